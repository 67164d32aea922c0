// Package dbwin receives the host-wide debug output broadcast (the channel
// behind OutputDebugString) and republishes each message, tagged with the id
// of the process that emitted it, to a single subscriber.
//
// The channel is single-reader: one named lock, two named auto-reset events
// and one named shared section. Producers wait for the buffer-ready event,
// write a little-endian pid followed by NUL-terminated 8-bit text, and set
// the data-ready event. A Service owns the reader side for its lifetime.
package dbwin

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// LockName is the reader-side mutex. It belongs to stepwatch, not to the
// wire protocol: producers serialize on "DBWinMutex", which a reader must
// never hold.
const LockName = "StepwatchDBWinLock"

// Named objects of the wire protocol.
const (
	BufferReadyName = "DBWIN_BUFFER_READY"
	DataReadyName   = "DBWIN_DATA_READY"
	BufferName      = "DBWIN_BUFFER"

	// BufferSize is the size of the shared section.
	BufferSize = 4096
	// ViewSize is how much of the section the reader maps.
	ViewSize = 512

	pidSize = 4
)

var (
	ErrAlreadyStarted = errors.New("debug capture already started")
	ErrUnsupported    = errors.New("debug capture is not supported on this platform")
	ErrChannelBusy    = errors.New("debug channel is serviced by another reader")
)

// Message is one debug string and the process that emitted it.
type Message struct {
	PID  uint32
	Text string
}

// Decode parses a mapped view: pid header, then NUL-terminated ANSI text.
func Decode(view []byte) (Message, error) {
	if len(view) < pidSize {
		return Message{}, fmt.Errorf("debug buffer too short: %d bytes", len(view))
	}
	pid := binary.LittleEndian.Uint32(view[:pidSize])
	payload := view[pidSize:]
	if i := bytes.IndexByte(payload, 0); i >= 0 {
		payload = payload[:i]
	}
	text, err := charmap.Windows1252.NewDecoder().Bytes(payload)
	if err != nil {
		return Message{}, fmt.Errorf("decoding debug text: %w", err)
	}
	return Message{PID: pid, Text: string(text)}, nil
}

// Encode lays out a message the way a producer writes it into the section,
// truncated so that it fits in the reader's view with its terminator.
func Encode(pid uint32, text string) []byte {
	enc := encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())
	payload, err := enc.Bytes([]byte(text))
	if err != nil {
		payload = []byte(text)
	}
	if limit := ViewSize - pidSize - 1; len(payload) > limit {
		payload = payload[:limit]
	}
	buf := make([]byte, ViewSize)
	binary.LittleEndian.PutUint32(buf, pid)
	copy(buf[pidSize:], payload)
	return buf
}
