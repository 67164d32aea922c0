package dbwin

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStopsAtNUL(t *testing.T) {
	view := []byte{0x39, 0x30, 0, 0, 'o', 'k', 0, 'x', 'x'}
	m, err := Decode(view)
	require.NoError(t, err)
	assert.Equal(t, Message{PID: 12345, Text: "ok"}, m)
}

func TestDecodeWindows1252(t *testing.T) {
	// 0xE9 is é, 0x80 is the euro sign.
	view := []byte{1, 0, 0, 0, 'c', 'a', 'f', 0xE9, ' ', 0x80, 0}
	m, err := Decode(view)
	require.NoError(t, err)
	assert.Equal(t, "café €", m.Text)
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := Decode([]byte{1, 2})
	assert.Error(t, err, "a buffer without a pid must not decode")
}

func TestEncodeRoundTripAndTruncation(t *testing.T) {
	buf := Encode(99, "café")
	require.Len(t, buf, ViewSize)
	m, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, Message{PID: 99, Text: "café"}, m)

	long := strings.Repeat("a", 2*ViewSize)
	m, err = Decode(Encode(1, long))
	require.NoError(t, err)
	assert.Len(t, m.Text, ViewSize-5)
}
