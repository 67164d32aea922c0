//go:build !windows

package dbwin

// NewHostTransport returns a transport whose Acquire always fails: the host
// debug channel only exists on Windows.
func NewHostTransport() Transport {
	return unsupported{}
}

type unsupported struct{}

func (unsupported) Acquire() error       { return ErrUnsupported }
func (unsupported) Ready() error         { return ErrUnsupported }
func (unsupported) Await() (bool, error) { return false, ErrUnsupported }
func (unsupported) View() []byte         { return nil }
func (unsupported) Wake() error          { return nil }
func (unsupported) Release() error       { return nil }
