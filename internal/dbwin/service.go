package dbwin

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Handler receives one message. It runs on the capture worker; a slow handler
// backpressures every producer on the host.
type Handler func(Message)

// Options configures a Service.
type Options struct {
	// Transport defaults to NewHostTransport().
	Transport Transport
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Strict re-raises handler panics on the worker instead of logging them.
	Strict bool
}

// Service owns the reader side of the debug channel. Callers create one per
// process and share it by reference.
type Service struct {
	transport Transport
	logger    *slog.Logger
	strict    bool

	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex
	done      chan struct{}
	alive     atomic.Bool

	subMu   sync.RWMutex
	handler Handler
	subID   uint64
}

// New creates a stopped Service.
func New(opts Options) *Service {
	t := opts.Transport
	if t == nil {
		t = NewHostTransport()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		transport: t,
		logger:    logger.With("component", "dbwin"),
		strict:    opts.Strict,
	}
}

// Start claims the channel and spawns the capture worker. On error the
// service is left as if Start had never been called.
func (s *Service) Start() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.done != nil {
		return ErrAlreadyStarted
	}
	if err := s.transport.Acquire(); err != nil {
		return fmt.Errorf("acquiring debug channel: %w", err)
	}

	done := make(chan struct{})
	s.done = done
	s.alive.Store(true)
	go s.run(done)

	s.logger.Debug("debug capture started")
	return nil
}

// Stop cancels the worker, waits for it to exit and releases the channel.
// It is a no-op when the service is not running.
func (s *Service) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.done == nil {
		return
	}
	s.alive.Store(false)
	if err := s.transport.Wake(); err != nil {
		s.logger.Warn("waking capture worker", "error", err)
	}
	<-s.done
	s.done = nil

	if err := s.transport.Release(); err != nil {
		s.logger.Warn("releasing debug channel", "error", err)
	}
	s.logger.Debug("debug capture stopped")
}

// Running reports whether the worker is active.
func (s *Service) Running() bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.done != nil
}

// Subscribe installs fn as the only handler, replacing any previous one. The
// returned func removes fn unless it has already been replaced.
func (s *Service) Subscribe(fn Handler) (unsubscribe func()) {
	s.subMu.Lock()
	s.subID++
	id := s.subID
	s.handler = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if s.subID == id {
			s.handler = nil
		}
	}
}

func (s *Service) run(done chan struct{}) {
	defer close(done)

	for s.alive.Load() {
		if err := s.transport.Ready(); err != nil {
			s.logger.Warn("signalling buffer ready", "error", err)
		}
		got, err := s.transport.Await()
		if !s.alive.Load() {
			return
		}
		if err != nil {
			s.logger.Warn("waiting for debug data", "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if !got {
			continue
		}

		msg, err := Decode(s.transport.View())
		if err != nil {
			s.logger.Debug("dropping malformed debug message", "error", err)
			continue
		}
		s.dispatch(msg)
	}
}

func (s *Service) dispatch(msg Message) {
	s.subMu.RLock()
	fn := s.handler
	s.subMu.RUnlock()
	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			if s.strict {
				panic(r)
			}
			s.logger.Error("debug message handler panicked", "pid", msg.PID, "panic", r)
		}
	}()
	fn(msg)
}
