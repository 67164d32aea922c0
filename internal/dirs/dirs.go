// Package dirs resolves where stepwatch keeps state, step logs and its
// config file. It follows XDG base directories with fallbacks for hosts
// where XDG isn't set (Windows build agents, service accounts without HOME).
package dirs

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "stepwatch"

// StateDir returns the directory for persistent state (history, step logs).
// Priority: $STEPWATCH_STATE_DIR > $XDG_STATE_HOME/stepwatch >
// %LOCALAPPDATA%\stepwatch (Windows) > ~/.local/state/stepwatch
func StateDir() string {
	if v := os.Getenv("STEPWATCH_STATE_DIR"); v != "" {
		return v
	}
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, appName)
	}
	if runtime.GOOS == "windows" {
		if base := os.Getenv("LOCALAPPDATA"); base != "" {
			return filepath.Join(base, appName)
		}
	}
	if home := homeDir(); home != "" {
		return filepath.Join(home, ".local", "state", appName)
	}
	return filepath.Join(os.TempDir(), appName+"-state")
}

// LogDir returns where step logs go under a state directory.
func LogDir(stateDir string) string {
	return filepath.Join(stateDir, "logs")
}

// HistoryFile returns the history database path under a state directory.
func HistoryFile(stateDir string) string {
	return filepath.Join(stateDir, "history.db")
}

// ConfigDir returns the directory holding config.yaml.
// Priority: $XDG_CONFIG_HOME/stepwatch > os.UserConfigDir()/stepwatch > .stepwatch
func ConfigDir() string {
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		return filepath.Join(base, appName)
	}
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, appName)
	}
	return "." + appName
}

// ConfigFile returns the default config file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return ""
}
