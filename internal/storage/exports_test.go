package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReplacesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "exports")
	store, err := NewExportStorage(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, store.Dir())

	path, err := store.Write("nodes.yaml", "first")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "nodes.yaml"), path)

	_, err = store.Write("nodes.yaml", "second")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWriteRejectsEscapingNames(t *testing.T) {
	store, err := NewExportStorage(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "  ", "../x.yaml", "a/b.yaml", ".", ".."} {
		_, err := store.Write(name, "data")
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}
