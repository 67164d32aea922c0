package steplog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// maxLine bounds a single log line. Some tools dump whole command lines or
// asset paths on one line.
const maxLine = 1 << 20

// ReadLines reads a finished step log. A UTF-8 or UTF-16 byte order mark is
// honoured; otherwise the content is taken as UTF-8.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadFrom(f)
}

// ReadFrom reads lines from r the way ReadLines reads a file.
func ReadFrom(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(transform.NewReader(r, unicode.BOMOverride(transform.Nop)))
	sc.Buffer(make([]byte, 64*1024), maxLine)

	var lines []string
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return lines, fmt.Errorf("reading step log: %w", err)
	}
	return lines, nil
}
