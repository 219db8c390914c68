package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nslcd.pid")

	// An existing file must be truncated.
	require.NoError(t, os.WriteFile(path, []byte("1234567890\n1234567890\n"), 0644))
	require.NoError(t, WritePID(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d\n", os.Getpid()), string(data))

	pid, err := ReadPID(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestWritePIDUnwritable(t *testing.T) {
	err := WritePID(filepath.Join(t.TempDir(), "missing", "nslcd.pid"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "cannot open pid file")
}

func TestReadPIDInvalid(t *testing.T) {
	for _, content := range []string{"", "nslcd\n", "-1\n", "0"} {
		path := filepath.Join(t.TempDir(), "nslcd.pid")
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		_, err := ReadPID(path)
		assert.ErrorIs(t, err, ErrInvalidPID, "content %q", content)
	}
}

func TestProcessAlive(t *testing.T) {
	assert.True(t, processAlive(os.Getpid()))
	assert.True(t, processAlive(1))
	assert.False(t, processAlive(1<<22+1))
}
