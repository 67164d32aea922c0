// Package signal forwards side-channel tags that build tools embed in their
// output (status reports, soft warnings, performance counters) to whatever
// watches the farm: the process log, Prometheus, NATS.
package signal

import (
	"context"
	"log/slog"
	"sync"
)

// Kind of a tag.
type Kind string

const (
	KindStatus  Kind = "status"
	KindWarning Kind = "warning"
	KindPerf    Kind = "perf"
)

// Tag is one side-channel record. Payload is the text after the marker,
// verbatim.
type Tag struct {
	Kind    Kind   `json:"kind"`
	Payload string `json:"payload"`
}

// Sink receives tags synchronously from a classification pass.
type Sink interface {
	Signal(Tag)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Tag)

func (f SinkFunc) Signal(t Tag) { f(t) }

// Multi forwards every tag to each sink in order. Nil sinks are skipped.
func Multi(sinks ...Sink) Sink {
	var out multi
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multi []Sink

func (m multi) Signal(t Tag) {
	for _, s := range m {
		s.Signal(t)
	}
}

// Discard drops every tag.
var Discard Sink = SinkFunc(func(Tag) {})

// LogSink writes tags to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Signal(t Tag) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if t.Kind == KindWarning {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "step signal", "kind", string(t.Kind), "payload", t.Payload)
}

// Recorder collects tags in memory.
type Recorder struct {
	mu   sync.Mutex
	tags []Tag
}

func (r *Recorder) Signal(t Tag) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = append(r.tags, t)
}

// Tags returns a copy of what was recorded.
func (r *Recorder) Tags() []Tag {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Tag(nil), r.tags...)
}
