package outcome

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeKinds(t *testing.T) {
	assert.True(t, Success.IsSuccess())
	assert.True(t, CookingSuccess.IsSuccess())
	assert.False(t, Failed.IsSuccess())
	assert.False(t, None.IsSuccess())

	assert.True(t, Compile.IsStep())
	assert.False(t, Failed.IsStep())

	for _, c := range []Code{LogOpenFailed, LaunchFailed, Killed, TimedOut, Crashed} {
		assert.True(t, c.IsInfrastructure(), c)
	}
	assert.False(t, CriticalError.IsInfrastructure())
	assert.True(t, CriticalError.IsCritical())
}

func TestParseCode(t *testing.T) {
	for _, c := range All() {
		got, err := ParseCode(string(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	_, err := ParseCode("exploded")
	assert.Error(t, err)
}

func TestInfrastructure(t *testing.T) {
	o := Infrastructure(LaunchFailed, "cannot start %q", "cl.exe")
	assert.Equal(t, LaunchFailed, o.Code)
	assert.Equal(t, `cannot start "cl.exe"`, o.Text)
	assert.False(t, o.Succeeded())
}
