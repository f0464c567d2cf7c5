package detector

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureSelf(t *testing.T) {
	id := Capture(os.Getpid())
	require.Equal(t, os.Getpid(), id.PID)
	assert.True(t, id.Alive())
}

func TestAliveRejectsBadPIDs(t *testing.T) {
	assert.False(t, Alive(0))
	assert.False(t, Alive(-5))
	// PIDs beyond the kernel's pid_max are never allocated.
	assert.False(t, Alive(1<<30))
}

func TestIdentityStartTimeMismatch(t *testing.T) {
	id := Capture(os.Getpid())
	if id.StartUnix == 0 {
		t.Skip("start time not available on this platform")
	}
	stale := Identity{PID: id.PID, StartUnix: id.StartUnix - 3600}
	assert.False(t, stale.Alive())
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "pid:42", Identity{PID: 42}.Describe())
}
