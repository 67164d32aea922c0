package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/buildfarm/stepwatch/internal/config"
	"github.com/buildfarm/stepwatch/internal/history"
	"github.com/buildfarm/stepwatch/internal/logging"
	"github.com/buildfarm/stepwatch/internal/outcome"
	"github.com/buildfarm/stepwatch/internal/signal"
)

// app holds what every command shares: configuration, the process logger
// and the optional metrics and NATS outputs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	closeLog func() error
	metrics  *signal.PrometheusSink
	server   *http.Server
	nc       *nats.Conn
}

// setup loads config and builds the logger. Metrics and NATS are only
// started when withOutputs is set.
func setup(withOutputs bool) *app {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: configFlag, Flags: flag.CommandLine})
	if err != nil {
		fatal("%v", err)
	}
	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		fatal("%v", err)
	}
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, closeLog: closeLog}
	if withOutputs {
		a.startMetrics()
		a.connectNATS()
	}
	return a
}

func (a *app) startMetrics() {
	if a.cfg.Metrics.Addr == "" {
		return
	}
	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = signal.NewPrometheusSink(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	a.server = &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "addr", a.cfg.Metrics.Addr, "error", err)
		}
	}()
	a.logger.Debug("serving metrics", "addr", a.cfg.Metrics.Addr)
}

func (a *app) connectNATS() {
	if a.cfg.NATS.URL == "" {
		return
	}
	nc, err := signal.ConnectNATS(a.cfg.NATS.URL, a.logger)
	if err != nil {
		// Signals are advisory; the step still runs.
		a.logger.Warn("NATS unavailable, signals will not be published", "url", a.cfg.NATS.URL, "error", err)
		return
	}
	a.nc = nc
}

// sinks returns where tags from the named step go.
func (a *app) sinks(step string) signal.Sink {
	sinks := []signal.Sink{signal.LogSink{Logger: a.logger.With("step", step)}}
	if a.metrics != nil {
		sinks = append(sinks, a.metrics)
	}
	if a.nc != nil {
		sinks = append(sinks, signal.NewNATSSink(a.nc, a.cfg.NATS.SubjectPrefix, step, a.logger))
	}
	return signal.Multi(sinks...)
}

func (a *app) recordOutcome(o outcome.Outcome) {
	a.metrics.RecordOutcome(o)
}

// openHistory returns nil when history is disabled or unavailable.
func (a *app) openHistory() *history.Store {
	if a.cfg.History.Disabled {
		return nil
	}
	store, err := history.Open(a.cfg.HistoryPath())
	if err != nil {
		a.logger.Warn("history unavailable", "path", a.cfg.HistoryPath(), "error", err)
		return nil
	}
	return store
}

func (a *app) close() {
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			a.logger.Debug("draining NATS connection", "error", err)
		}
	}
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.server.Shutdown(ctx)
	}
	if a.closeLog != nil {
		_ = a.closeLog()
	}
}
