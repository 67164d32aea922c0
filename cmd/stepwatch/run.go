package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/buildfarm/stepwatch/internal/classifier"
	"github.com/buildfarm/stepwatch/internal/dbwin"
	"github.com/buildfarm/stepwatch/internal/history"
	"github.com/buildfarm/stepwatch/internal/outcome"
	"github.com/buildfarm/stepwatch/internal/steplog"
	"github.com/buildfarm/stepwatch/internal/supervisor"
)

// cmdRun launches one step, classifies its output as it arrives and returns
// the exit status for the outcome.
func cmdRun(command []string) int {
	a := setup(true)
	defer a.close()

	exe := command[0]
	args := argsFlag
	if args == "" {
		args = joinArgs(command[1:])
	}
	step := stepFlag
	if step == "" {
		step = strings.TrimSuffix(filepath.Base(exe), filepath.Ext(exe))
	}
	seed := seedFromFlags()

	id := uuid.New()
	logPath := logFlag
	if logPath == "" {
		logPath = filepath.Join(a.cfg.LogDir(), fmt.Sprintf("%s-%s.log", step, id))
	}
	logger := a.logger.With("step", step, "id", id.String())

	started := time.Now()
	rep := report{ID: id.String(), Step: step, Log: logPath}

	file, err := steplog.Create(logPath)
	if err != nil {
		o := outcome.Infrastructure(outcome.LogOpenFailed, "Failed to open log file %s: %v", logPath, err)
		rep.Code, rep.Text = o.Code, o.Text
		return finishRun(a, rep, started, -1)
	}
	writers := []steplog.Writer{file}
	if a.cfg.Journal.Mirror {
		if j := steplog.NewJournal(step); j != nil {
			writers = append(writers, j)
		} else {
			logger.Warn("journald not available, not mirroring step log")
		}
	}

	mode := supervisor.CaptureStreams
	var capture *dbwin.Service
	if debugChan {
		mode = supervisor.CaptureDebugChannel
		capture = dbwin.New(dbwin.Options{Transport: dbwin.NewHostTransport(), Logger: logger})
		defer capture.Stop()
	}

	opts := a.cfg.SupervisorOptions()
	opts.Capture = capture
	opts.Logger = logger
	sup := supervisor.New(opts)

	stream := classifier.NewStream(classifyOptions(a, step, seed))

	logger.Info("launching step", "exe", exe, "args", args, "mode", mode, "log", logPath)
	p := sup.Launch(supervisor.Spec{
		Executable: exe,
		Args:       args,
		WorkingDir: dirFlag,
		Mode:       mode,
		Env:        envFlags,
		Log:        steplog.Multi(writers...),
		OnLine: func(line string) {
			if echoFlag {
				fmt.Println(line)
			}
			stream.Feed(line)
		},
	})

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		select {
		case <-ctx.Done():
			logger.Warn("interrupted, killing step", "pid", p.PID())
			p.Kill()
		case <-p.Done():
		}
	}()

	_ = p.WaitForExit(context.Background())
	p.Cleanup()

	res := stream.Finish()
	o := res.Outcome
	// A supervisor outcome overrides the classification of partial output.
	if infra := p.Outcome(); infra.Code != outcome.None {
		o = infra
	}
	rep.Code, rep.Text, rep.Rescanned = o.Code, o.Text, res.Rescanned
	return finishRun(a, rep, started, p.ExitCode())
}

func finishRun(a *app, rep report, started time.Time, exitCode int) int {
	finished := time.Now()
	o := rep.outcome()
	if !o.Succeeded() {
		rep.Hint = classifier.Explain(o.Text)
	}
	if exitCode >= 0 {
		rep.ExitCode = &exitCode
	}
	rep.Duration = formatDuration(finished.Sub(started))

	a.recordOutcome(o)
	a.logger.Info("step finished", "step", rep.Step, "code", o.Code, "exit_code", exitCode, "duration", rep.Duration)

	if !noHistory {
		if store := a.openHistory(); store != nil {
			id, _ := uuid.Parse(rep.ID)
			_, err := store.Record(context.Background(), history.Record{
				ID:       id,
				Step:     rep.Step,
				Code:     o.Code,
				ExitCode: exitCode,
				Excerpt:  o.Text,
				LogPath:  rep.Log,
				Started:  started,
				Finished: finished,
			})
			if err != nil {
				a.logger.Warn("recording history", "error", err)
			}
			_ = store.Close()
		}
	}

	printReports(os.Stdout, []report{rep})
	return exitStatus(o)
}

// joinArgs rebuilds a raw argument string from words, quoting any word that
// the step's argument splitter would otherwise break apart.
func joinArgs(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		if w != "" && !strings.ContainsAny(w, " \t\"") {
			quoted[i] = w
			continue
		}
		quoted[i] = `"` + strings.ReplaceAll(w, `"`, `\"`) + `"`
	}
	return strings.Join(quoted, " ")
}
