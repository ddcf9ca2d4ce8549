package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriterRotatesOnSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coordinator.log")

	w, err := NewRotatingWriter(path, 0, 2) // maxSizeMB=0 -> rotate on first write
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	_, err = w.Write([]byte(strings.Repeat("x", 16)))
	require.NoError(t, err)
	_, err = w.Write([]byte(strings.Repeat("y", 16)))
	require.NoError(t, err)

	_, statErr := os.Stat(path + ".1")
	assert.NoError(t, statErr)
}

func TestRotatingWriterKeepsAtMostMaxFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coordinator.log")

	w, err := NewRotatingWriter(path, 0, 1)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	for i := 0; i < 3; i++ {
		_, err = w.Write([]byte("entry\n"))
		require.NoError(t, err)
	}

	matches, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(matches), 1)
}
