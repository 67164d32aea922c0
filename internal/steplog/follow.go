package steplog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval backs up file notifications on filesystems that drop them
// (network shares, some container mounts).
const pollInterval = time.Second

// Follower reads a step log that is still being written.
type Follower struct {
	path    string
	f       *os.File
	watcher *fsnotify.Watcher
	err     error
}

// NewFollower opens path and starts watching it for appends.
func NewFollower(path string) (*Follower, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving log path: %w", err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	// Watch the directory: editors and rotating writers replace files.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		f.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	return &Follower{path: abs, f: f, watcher: w}, nil
}

// Lines yields every complete line, from the start of the file, as it
// appears. It ends when ctx is done or the file is removed or renamed; a
// trailing partial line is yielded then.
func (fl *Follower) Lines(ctx context.Context) iter.Seq[string] {
	return func(yield func(string) bool) {
		r := bufio.NewReader(fl.f)
		var partial strings.Builder
		flush := func() {
			if partial.Len() > 0 {
				yield(strings.TrimRight(partial.String(), "\r"))
				partial.Reset()
			}
		}

		tick := time.NewTicker(pollInterval)
		defer tick.Stop()
		gone := false

		for {
			chunk, err := r.ReadString('\n')
			partial.WriteString(chunk)
			if err == nil {
				line := strings.TrimRight(partial.String(), "\r\n")
				partial.Reset()
				if !yield(line) {
					return
				}
				continue
			}
			if err != io.EOF {
				fl.err = fmt.Errorf("reading %s: %w", fl.path, err)
				return
			}
			if gone {
				flush()
				return
			}

			select {
			case <-ctx.Done():
				flush()
				return
			case ev, ok := <-fl.watcher.Events:
				if !ok {
					flush()
					return
				}
				if filepath.Clean(ev.Name) == fl.path && ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					// Drain what the open handle can still read, then stop.
					gone = true
				}
			case err, ok := <-fl.watcher.Errors:
				if ok {
					fl.err = fmt.Errorf("watching %s: %w", fl.path, err)
				}
				flush()
				return
			case <-tick.C:
			}
		}
	}
}

// Err returns the error that ended Lines early, if any.
func (fl *Follower) Err() error {
	return fl.err
}

// Close stops watching and closes the file.
func (fl *Follower) Close() error {
	werr := fl.watcher.Close()
	if err := fl.f.Close(); err != nil {
		return err
	}
	return werr
}
