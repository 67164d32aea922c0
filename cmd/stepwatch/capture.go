package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/buildfarm/stepwatch/internal/dbwin"
)

// cmdCapture holds the debug channel and prints every message until
// interrupted. Only one capturer per host can run.
func cmdCapture() {
	a := setup(false)
	defer a.close()

	svc := dbwin.New(dbwin.Options{Transport: dbwin.NewHostTransport(), Logger: a.logger})
	svc.Subscribe(func(m dbwin.Message) {
		fmt.Printf("%s [%d] %s\n", time.Now().Format("15:04:05"), m.PID, m.Text)
	})
	if err := svc.Start(); err != nil {
		switch {
		case errors.Is(err, dbwin.ErrUnsupported):
			fatal("the debug channel is only available on Windows")
		case errors.Is(err, dbwin.ErrChannelBusy):
			fatal("another process is already capturing the debug channel")
		default:
			fatal("starting capture: %v", err)
		}
	}
	defer svc.Stop()

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
}
