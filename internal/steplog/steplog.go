// Package steplog records the ordered, append-only text of one build step.
//
// Every line on disk carries a wall-clock stamp ("15:04:05: text"). Readers
// strip the stamp with StripStamp before interpreting a line, and keep the
// original line when quoting it back.
package steplog

import (
	"strings"
	"sync"
	"time"
)

// StampLayout is the time layout prefixed to each line.
const StampLayout = "15:04:05: "

// Writer is the single writer of one step's log. Implementations serialize
// concurrent Appends so lines are never interleaved.
type Writer interface {
	Append(line string) error
	Close() error
}

// Clock returns the current time. Tests replace it for stable stamps.
type Clock func() time.Time

// StripStamp removes a leading "HH:MM:SS: " stamp, if present.
func StripStamp(line string) string {
	if len(line) < len(StampLayout) {
		return line
	}
	for i, c := range []byte(line[:len(StampLayout)]) {
		switch i {
		case 2, 5, 8:
			if c != ':' {
				return line
			}
		case 9:
			if c != ' ' {
				return line
			}
		default:
			if c < '0' || c > '9' {
				return line
			}
		}
	}
	return line[len(StampLayout):]
}

// SplitLines breaks text into lines, trimming carriage returns and dropping
// a single trailing empty line.
func SplitLines(text string) []string {
	text = strings.TrimSuffix(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	return lines
}

// Multi fans every Append out to each writer. The first error is returned
// but every writer still receives the line.
func Multi(writers ...Writer) Writer {
	return multi(writers)
}

type multi []Writer

func (m multi) Append(line string) error {
	var first error
	for _, w := range m {
		if err := w.Append(line); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m multi) Close() error {
	var first error
	for _, w := range m {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Discard accepts and drops every line.
var Discard Writer = discard{}

type discard struct{}

func (discard) Append(string) error { return nil }
func (discard) Close() error        { return nil }

// Memory keeps appended lines in memory, unstamped.
type Memory struct {
	mu     sync.Mutex
	lines  []string
	closed bool
}

var _ Writer = (*Memory)(nil)

func (m *Memory) Append(line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, line)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Lines returns a copy of everything appended so far.
func (m *Memory) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}

// Closed reports whether Close was called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
