package steplog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// File is a Writer backed by a plain text file.
type File struct {
	path  string
	clock Clock

	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

var _ Writer = (*File)(nil)

// Create truncates or creates the log at path, making parent directories.
func Create(path string) (*File, error) {
	return open(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY)
}

// OpenAppend opens the log at path for appending, creating it if needed.
func OpenAppend(path string) (*File, error) {
	return open(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY)
}

func open(path string, flag int) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening step log: %w", err)
	}
	return &File{
		path:  path,
		clock: time.Now,
		f:     f,
		w:     bufio.NewWriter(f),
	}, nil
}

// SetClock replaces the stamp source.
func (l *File) SetClock(c Clock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = c
}

// Path returns the file the log writes to.
func (l *File) Path() string {
	return l.path
}

// Append stamps and writes line. Embedded newlines produce one stamped line
// each. The buffer is flushed so followers see the line immediately.
func (l *File) Append(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return fmt.Errorf("step log %s is closed", l.path)
	}

	stamp := l.clock().Format(StampLayout)
	for _, part := range strings.Split(line, "\n") {
		l.w.WriteString(stamp)
		l.w.WriteString(strings.TrimRight(part, "\r"))
		l.w.WriteByte('\n')
	}
	return l.w.Flush()
}

// Close flushes and closes the file. Further Appends fail.
func (l *File) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.w.Flush()
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
