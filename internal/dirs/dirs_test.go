package dirs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateDirOverride(t *testing.T) {
	t.Setenv("STEPWATCH_STATE_DIR", "/srv/stepwatch")
	t.Setenv("XDG_STATE_HOME", "/xdg/state")

	assert.Equal(t, "/srv/stepwatch", StateDir())
}

func TestStateDirXDG(t *testing.T) {
	t.Setenv("STEPWATCH_STATE_DIR", "")
	t.Setenv("XDG_STATE_HOME", "/xdg/state")

	assert.Equal(t, filepath.Join("/xdg/state", "stepwatch"), StateDir())
}

func TestStateDirHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("STEPWATCH_STATE_DIR", "")
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("LOCALAPPDATA", "")
	t.Setenv("HOME", home)

	assert.Equal(t, filepath.Join(home, ".local", "state", "stepwatch"), StateDir())
}

func TestDerivedPaths(t *testing.T) {
	state := filepath.Join("var", "stepwatch")
	assert.Equal(t, filepath.Join(state, "logs"), LogDir(state))
	assert.Equal(t, filepath.Join(state, "history.db"), HistoryFile(state))
}

func TestConfigFileXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")

	assert.Equal(t, filepath.Join("/xdg/config", "stepwatch", "config.yaml"), ConfigFile())
}
