// Package supervisor runs one external build tool per step: it launches the
// process, routes its text into the step log, waits for it, and tears it down
// together with the helper tools build chains tend to leave behind.
package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/buildfarm/stepwatch/internal/dbwin"
	"github.com/buildfarm/stepwatch/internal/outcome"
	"github.com/buildfarm/stepwatch/internal/steplog"
)

// CaptureMode selects where a child's text comes from.
type CaptureMode int

const (
	// CaptureStreams redirects stdout and stderr into the log.
	CaptureStreams CaptureMode = iota
	// CaptureDebugChannel leaves the streams alone and records every message
	// on the host debug channel instead.
	CaptureDebugChannel
)

func (m CaptureMode) String() string {
	if m == CaptureDebugChannel {
		return "debug-channel"
	}
	return "streams"
}

// DefaultAuxProcesses are tool images that outlive a killed build step and
// hold files or pop up crash dialogs.
var DefaultAuxProcesses = []string{"WerFault", "DW20", "vsimake", "cmd", "link", "BuildSystem"}

const (
	DefaultKillWait     = 30 * time.Second
	DefaultPollInterval = 100 * time.Millisecond

	// waitDelay bounds how long Wait keeps draining pipes held open by
	// grandchildren after the child itself exited.
	waitDelay = 5 * time.Second
)

// Options configures a Supervisor.
type Options struct {
	// Capture serves steps launched in CaptureDebugChannel mode.
	Capture *dbwin.Service
	Logger  *slog.Logger
	// AuxProcesses are killed by name alongside a killed step. Nil means
	// DefaultAuxProcesses; an empty slice disables it.
	AuxProcesses []string
	// KillWait bounds how long Kill waits for the primary process.
	KillWait time.Duration
	// Timeout kills a step that runs longer than this. Zero disables it.
	Timeout time.Duration
	// StallTimeout kills a step that produced no line for this long. Zero
	// disables it.
	StallTimeout time.Duration
	// PollInterval is how often WaitForExit checks the watchdog.
	PollInterval time.Duration
}

// Supervisor launches step processes.
type Supervisor struct {
	capture      *dbwin.Service
	logger       *slog.Logger
	auxProcesses []string
	killWait     time.Duration
	timeout      time.Duration
	stallTimeout time.Duration
	pollInterval time.Duration
}

// New creates a Supervisor, filling in defaults.
func New(opts Options) *Supervisor {
	s := &Supervisor{
		capture:      opts.Capture,
		logger:       opts.Logger,
		auxProcesses: opts.AuxProcesses,
		killWait:     opts.KillWait,
		timeout:      opts.Timeout,
		stallTimeout: opts.StallTimeout,
		pollInterval: opts.PollInterval,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.auxProcesses == nil {
		s.auxProcesses = DefaultAuxProcesses
	}
	if s.killWait <= 0 {
		s.killWait = DefaultKillWait
	}
	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}
	return s
}

// Spec describes one step process.
type Spec struct {
	Executable string
	// Args is the raw argument string as the step definition carries it.
	Args string
	// WorkingDir defaults to the current directory.
	WorkingDir string
	Mode       CaptureMode
	// Env is appended to the inherited environment.
	Env []string

	// Log receives every line. Nil discards.
	Log steplog.Writer
	// OnLine is called synchronously for every line, after it is logged.
	OnLine func(line string)
}

// Launch starts spec. It never blocks on the child: a process that could not
// be started comes back already completed with outcome.LaunchFailed.
func (s *Supervisor) Launch(spec Spec) *Process {
	p := &Process{
		spec:     spec,
		sup:      s,
		log:      spec.Log,
		logger:   s.logger.With("step_exe", filepath.Base(spec.Executable)),
		exitCode: -1,
		code:     outcome.None,
		done:     make(chan struct{}),
		waitDone: make(chan struct{}),
	}
	if p.log == nil {
		p.log = steplog.Discard
	}

	cmd := command(spec.Executable, spec.Args)
	cmd.Dir = spec.WorkingDir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.WaitDelay = waitDelay

	startedCapture := false
	switch spec.Mode {
	case CaptureDebugChannel:
		startedCapture = p.attachCapture()
	default:
		p.stdout = newLineWriter(p.emit)
		p.stderr = newLineWriter(p.emit)
		cmd.Stdout = p.stdout
		cmd.Stderr = p.stderr
	}

	if err := cmd.Start(); err != nil {
		text := fmt.Sprintf("Failed to launch %s: %v", spec.Executable, err)
		p.logger.Warn("launch failed", "error", err, "dir", spec.WorkingDir)
		p.emit(text)
		if p.unsubscribe != nil {
			p.unsubscribe()
		}
		if startedCapture {
			p.sup.capture.Stop()
		}
		p.mu.Lock()
		p.code = outcome.LaunchFailed
		p.text = text
		p.finishLocked()
		p.mu.Unlock()
		return p
	}

	p.cmd = cmd
	p.started = time.Now()
	p.lastLine.Store(p.started.UnixNano())
	p.logger.Info("step launched", "pid", cmd.Process.Pid, "mode", spec.Mode.String(), "args", spec.Args)

	go p.wait()
	return p
}

// attachCapture subscribes to the capture service, starting it if needed.
// It reports whether this call started the service.
func (p *Process) attachCapture() bool {
	c := p.sup.capture
	if c == nil {
		p.logger.Warn("debug-channel step launched without a capture service")
		return false
	}
	p.unsubscribe = c.Subscribe(p.onDebugMessage)
	if c.Running() {
		return false
	}
	err := c.Start()
	if err != nil && !errors.Is(err, dbwin.ErrAlreadyStarted) {
		p.logger.Warn("debug capture unavailable, step will have no debug text", "error", err)
	}
	return err == nil
}

func (p *Process) onDebugMessage(m dbwin.Message) {
	for _, line := range steplog.SplitLines(m.Text) {
		if line == "" {
			continue
		}
		p.emit(line)
	}
}

// emit is the single serialization point for everything a step prints.
func (p *Process) emit(line string) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	if p.closed {
		return
	}

	p.lastLine.Store(time.Now().UnixNano())
	if err := p.log.Append(line); err != nil {
		p.logger.Debug("appending to step log", "error", err)
	}
	if p.spec.OnLine != nil {
		p.spec.OnLine(line)
	}
}
