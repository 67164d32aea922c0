package dbwin

import (
	"context"
	"sync"
)

// Transport is the reader side of the debug channel. A Service drives it in a
// strict Ready/Await alternation from a single goroutine; Wake may be called
// from any goroutine.
type Transport interface {
	// Acquire claims the channel and provisions every named object. On
	// failure nothing stays allocated.
	Acquire() error
	// Ready tells producers the buffer may be written.
	Ready() error
	// Await blocks until a producer signals data (true) or Wake is called
	// (false).
	Await() (bool, error)
	// View returns a copy of the mapped buffer.
	View() []byte
	// Wake unblocks a pending or the next Await.
	Wake() error
	// Release frees every named object.
	Release() error
}

// MemoryTransport is an in-process Transport. Emit plays the producer role.
type MemoryTransport struct {
	// AcquireErr, when set, makes Acquire fail.
	AcquireErr error

	mu       sync.Mutex
	acquired bool
	released int
	view     []byte

	ready chan struct{}
	data  chan []byte
	wake  chan struct{}
}

var _ Transport = (*MemoryTransport)(nil)

// NewMemoryTransport creates an unclaimed in-process channel.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		ready: make(chan struct{}, 1),
		data:  make(chan []byte, 1),
		wake:  make(chan struct{}, 1),
	}
}

func (t *MemoryTransport) Acquire() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.AcquireErr != nil {
		return t.AcquireErr
	}
	if t.acquired {
		return ErrChannelBusy
	}
	t.acquired = true
	return nil
}

func (t *MemoryTransport) Ready() error {
	select {
	case t.ready <- struct{}{}:
	default:
	}
	return nil
}

func (t *MemoryTransport) Await() (bool, error) {
	select {
	case buf := <-t.data:
		t.mu.Lock()
		t.view = buf
		t.mu.Unlock()
		return true, nil
	case <-t.wake:
		return false, nil
	}
}

func (t *MemoryTransport) View() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.view...)
}

func (t *MemoryTransport) Wake() error {
	select {
	case t.wake <- struct{}{}:
	default:
	}
	return nil
}

func (t *MemoryTransport) Release() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.acquired = false
	t.released++
	return nil
}

// Acquired reports whether the channel is currently claimed.
func (t *MemoryTransport) Acquired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.acquired
}

// Releases counts Release calls.
func (t *MemoryTransport) Releases() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}

// Emit waits for the reader to signal ready, then hands it one message, the
// way OutputDebugString does. It returns ctx.Err() if no reader shows up.
func (t *MemoryTransport) Emit(ctx context.Context, pid uint32, text string) error {
	select {
	case <-t.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case t.data <- Encode(pid, text):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
