package badger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "vectors")
	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenBackend_FileInsteadOfDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	_, err := OpenBackend(path, false)
	assert.Error(t, err)
}

func TestBackend_ClosedRejectsWork(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	vectors, err := NewVectorStore(backend)
	require.NoError(t, err)
	_, err = vectors.Count(context.Background(), "c")
	assert.Error(t, err)
}

func TestCollectionKeysDoNotOverlap(t *testing.T) {
	a := makeVectorPrefix("a")
	ab := makeVectorKey("a:b", "id")
	assert.NotEqual(t, string(a), string(ab[:len(a)]))
}

func TestOpenBackend_Options(t *testing.T) {
	dir := t.TempDir()
	backend, err := OpenBackend(dir, false,
		WithBackendLogger(nil),
		WithSyncWrites(true),
		WithCompression(true),
	)
	require.NoError(t, err)
	defer backend.Close()

	vectors, err := NewVectorStore(backend)
	require.NoError(t, err)
	n, err := vectors.Count(context.Background(), "c")
	require.NoError(t, err)
	assert.Zero(t, n)
}
