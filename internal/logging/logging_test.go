package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "ParseLevel(%q)", tt.in)
	}
}

func TestAutoFormatIsJSONOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, closeLog, err := New(Options{Format: "auto", Output: &buf})
	require.NoError(t, err)
	defer closeLog()

	logger.Info("step finished", "code", "success")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec), "output is not JSON: %q", buf.String())
	assert.Equal(t, "success", rec["code"])
}

func TestTextFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Options{Level: "warn", Format: "text", Output: &buf})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "pid", 42)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "pid=42")
}

func TestLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "stepwatch.log")
	logger, closeLog, err := New(Options{Format: "json", File: path})
	require.NoError(t, err)
	logger.Error("capture failed")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"capture failed"`)
}

func TestIsTerminalPlainWriter(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}), "buffer reported as terminal")
}
