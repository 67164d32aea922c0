package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/buildfarm/stepwatch/internal/outcome"
	"github.com/buildfarm/stepwatch/internal/steplog"
)

// Process is one launched step. It is owned by the caller that launched it.
type Process struct {
	spec   Spec
	sup    *Supervisor
	cmd    *exec.Cmd
	log    steplog.Writer
	logger *slog.Logger

	stdout, stderr *lineWriter
	unsubscribe    func()

	started  time.Time
	lastLine atomic.Int64
	emitMu   sync.Mutex
	// closed is set by Cleanup; later lines are dropped. Guarded by emitMu.
	closed bool

	mu       sync.Mutex
	exitCode int
	code     outcome.Code
	text     string
	done     chan struct{}
	// waitDone closes once the OS reported the exit.
	waitDone chan struct{}

	cleanupOnce sync.Once
}

// Spec returns what the process was launched with.
func (p *Process) Spec() Spec {
	return p.spec
}

// PID returns the OS process id, or 0 if the launch failed.
func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Done is closed when the process is complete.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Completed reports whether the process is complete.
func (p *Process) Completed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitCode is the process exit status. It is only meaningful once Completed
// reports true, and is -1 when no status was observed.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// Outcome reports an infrastructure outcome (launch failure, kill, watchdog)
// or outcome.None when the process ran to a normal exit.
func (p *Process) Outcome() outcome.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return outcome.Outcome{Code: p.code, Text: p.text}
}

// WaitForExit blocks until the process completes or ctx ends. While waiting
// it enforces the supervisor's timeout and stall watchdog. A ctx error leaves
// the process running.
func (p *Process) WaitForExit(ctx context.Context) error {
	tick := time.NewTicker(p.sup.pollInterval)
	defer tick.Stop()

	for {
		select {
		case <-p.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case now := <-tick.C:
			if code, text := p.watchdog(now); code != outcome.None {
				p.logger.Warn("watchdog killing step", "reason", code, "pid", p.PID())
				p.terminate(code, text)
			}
		}
	}
}

func (p *Process) watchdog(now time.Time) (outcome.Code, string) {
	if p.started.IsZero() {
		return outcome.None, ""
	}
	if t := p.sup.timeout; t > 0 && now.Sub(p.started) > t {
		return outcome.TimedOut, fmt.Sprintf("Step exceeded its time limit of %s", t)
	}
	if t := p.sup.stallTimeout; t > 0 {
		last := time.Unix(0, p.lastLine.Load())
		if now.Sub(last) > t {
			return outcome.Crashed, fmt.Sprintf("Step produced no output for %s and is presumed hung", t)
		}
	}
	return outcome.None, ""
}

// Kill terminates the process and any auxiliary tools by name, waits up to
// the supervisor's kill wait for the process to go, and marks it complete.
// Every failure is swallowed. Killing a completed process does nothing.
func (p *Process) Kill() {
	p.terminate(outcome.Killed, "Process was killed")
}

func (p *Process) terminate(code outcome.Code, text string) {
	p.mu.Lock()
	select {
	case <-p.done:
		p.mu.Unlock()
		return
	default:
	}
	if p.code == outcome.None {
		p.code = code
		p.text = text
	}
	p.mu.Unlock()

	if p.cmd != nil && p.cmd.Process != nil {
		if err := killProcess(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.logger.Debug("killing step process", "pid", p.cmd.Process.Pid, "error", err)
		}
	}
	if n := killByName(p.sup.auxProcesses, p.logger); n > 0 {
		p.logger.Info("killed auxiliary processes", "count", n)
	}

	select {
	case <-p.waitDone:
	case <-time.After(p.sup.killWait):
		p.logger.Warn("step process did not exit after kill", "pid", p.PID(), "waited", p.sup.killWait)
	}

	p.mu.Lock()
	p.finishLocked()
	p.mu.Unlock()
}

// Cleanup releases the step log and the capture subscription. It is safe on
// every path and may be called more than once.
func (p *Process) Cleanup() {
	p.cleanupOnce.Do(func() {
		if p.unsubscribe != nil {
			p.unsubscribe()
		}
		p.emitMu.Lock()
		defer p.emitMu.Unlock()
		p.closed = true
		if err := p.log.Close(); err != nil {
			p.logger.Debug("closing step log", "error", err)
		}
	})
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.stdout.flush()
	p.stderr.flush()

	code := exitCodeOf(p.cmd, err)
	p.logger.Info("step exited", "pid", p.cmd.Process.Pid, "exit_code", code)

	p.mu.Lock()
	p.exitCode = code
	close(p.waitDone)
	p.finishLocked()
	p.mu.Unlock()
}

// finishLocked marks completion once. p.mu must be held.
func (p *Process) finishLocked() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}

func exitCodeOf(cmd *exec.Cmd, err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}
