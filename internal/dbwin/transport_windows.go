//go:build windows

package dbwin

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

// everyone grants generic access to all users so producers running under
// other accounts or integrity levels can still write.
const everyone = "D:(A;;GA;;;WD)"

// hostTransport services the real channel through named kernel objects.
type hostTransport struct {
	mu sync.Mutex

	lock        windows.Handle
	bufferReady windows.Handle
	dataReady   windows.Handle
	section     windows.Handle
	view        uintptr
	wake        windows.Handle
}

// NewHostTransport returns the transport for the host debug channel.
func NewHostTransport() Transport {
	return &hostTransport{}
}

func (t *hostTransport) Acquire() (err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lock != 0 {
		return ErrChannelBusy
	}
	defer func() {
		if err != nil {
			t.closeAll()
		}
	}()

	sd, err := windows.SecurityDescriptorFromString(everyone)
	if err != nil {
		return fmt.Errorf("building security descriptor: %w", err)
	}
	sa := &windows.SecurityAttributes{SecurityDescriptor: sd}
	sa.Length = uint32(unsafe.Sizeof(*sa))

	if t.lock, err = create(LockName, func(name *uint16) (windows.Handle, error) {
		return windows.CreateMutex(sa, false, name)
	}); err != nil {
		return err
	}
	if t.bufferReady, err = create(BufferReadyName, func(name *uint16) (windows.Handle, error) {
		return windows.CreateEvent(sa, 0, 0, name)
	}); err != nil {
		return err
	}
	if t.dataReady, err = create(DataReadyName, func(name *uint16) (windows.Handle, error) {
		return windows.CreateEvent(sa, 0, 0, name)
	}); err != nil {
		return err
	}
	if t.section, err = create(BufferName, func(name *uint16) (windows.Handle, error) {
		return windows.CreateFileMapping(windows.InvalidHandle, sa, windows.PAGE_READWRITE, 0, BufferSize, name)
	}); err != nil {
		return err
	}

	if t.view, err = windows.MapViewOfFile(t.section, windows.FILE_MAP_READ, 0, 0, ViewSize); err != nil {
		t.view = 0
		return fmt.Errorf("mapping %s: %w", BufferName, err)
	}
	if t.wake, err = windows.CreateEvent(nil, 0, 0, nil); err != nil {
		t.wake = 0
		return fmt.Errorf("creating wake event: %w", err)
	}
	return nil
}

// create makes a named object. An object that already exists belongs to
// another reader, so its handle is closed and the channel reported busy.
func create(name string, fn func(*uint16) (windows.Handle, error)) (windows.Handle, error) {
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, err
	}
	h, err := fn(p)
	if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		if h != 0 {
			_ = windows.CloseHandle(h)
		}
		return 0, fmt.Errorf("%s: %w", name, ErrChannelBusy)
	}
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", name, err)
	}
	return h, nil
}

func (t *hostTransport) Ready() error {
	return windows.SetEvent(t.bufferReady)
}

func (t *hostTransport) Await() (bool, error) {
	ev, err := windows.WaitForMultipleObjects([]windows.Handle{t.dataReady, t.wake}, false, windows.INFINITE)
	if err != nil {
		return false, err
	}
	switch ev {
	case windows.WAIT_OBJECT_0:
		return true, nil
	case windows.WAIT_OBJECT_0 + 1:
		return false, nil
	}
	return false, fmt.Errorf("unexpected wait result %#x", ev)
}

func (t *hostTransport) View() []byte {
	if t.view == 0 {
		return nil
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(t.view)), ViewSize)
	return append([]byte(nil), src...)
}

func (t *hostTransport) Wake() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.wake == 0 {
		return nil
	}
	return windows.SetEvent(t.wake)
}

func (t *hostTransport) Release() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeAll()
}

func (t *hostTransport) closeAll() error {
	var errs []error
	if t.view != 0 {
		errs = append(errs, windows.UnmapViewOfFile(t.view))
		t.view = 0
	}
	for _, h := range []*windows.Handle{&t.wake, &t.section, &t.dataReady, &t.bufferReady, &t.lock} {
		if *h != 0 {
			errs = append(errs, windows.CloseHandle(*h))
			*h = 0
		}
	}
	return errors.Join(errs...)
}
