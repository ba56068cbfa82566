package badger

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupVectorStore(t *testing.T) storage.VectorStore {
	t.Helper()
	vectors, _, backend, err := NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return vectors
}

func record(collection string, doc core.ID, index int, vector ...float32) core.VectorRecord {
	return core.VectorRecord{
		Id:     core.ChunkID(doc, index),
		Vector: vector,
		Metadata: core.VectorMetadata{
			DocumentId:   doc,
			CollectionId: collection,
			SourceName:   string(doc) + ".txt",
			SourceKind:   core.SourceKindFile,
			Snippet:      fmt.Sprintf("chunk %d", index),
			ChunkIndex:   index,
		},
	}
}

func TestVectorStore_QueryOrdersByCosine(t *testing.T) {
	store := setupVectorStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []core.VectorRecord{
		record("physics", "d1", 0, 1, 0),
		record("physics", "d1", 1, 0.6, 0.8),
		record("physics", "d2", 0, 0, 1),
		record("history", "d3", 0, 1, 0),
	}))

	matches, err := store.Query(ctx, []float32{1, 0}, "physics", 10)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, core.ChunkID("d1", 0), matches[0].Id)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.InDelta(t, 0.6, matches[1].Score, 1e-6)
	assert.InDelta(t, 0.0, matches[2].Score, 1e-6)
	assert.Equal(t, "physics", matches[0].Metadata.CollectionId)

	top, err := store.Query(ctx, []float32{1, 0}, "physics", 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestVectorStore_QueryIsCollectionScoped(t *testing.T) {
	store := setupVectorStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []core.VectorRecord{record("a:b", "d1", 0, 1, 0)}))

	matches, err := store.Query(ctx, []float32{1, 0}, "a", 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestVectorStore_UpsertOverwrites(t *testing.T) {
	store := setupVectorStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []core.VectorRecord{record("c", "d1", 0, 1, 0)}))
	require.NoError(t, store.Upsert(ctx, []core.VectorRecord{record("c", "d1", 0, 0, 1)}))

	n, err := store.Count(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	matches, err := store.Query(ctx, []float32{0, 1}, "c", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
}

func TestVectorStore_UpsertValidates(t *testing.T) {
	store := setupVectorStore(t)
	ctx := context.Background()

	bad := record("c", "d1", 0)
	assert.ErrorIs(t, store.Upsert(ctx, []core.VectorRecord{bad}), storage.ErrInvalidQuery)

	noCollection := record("", "d1", 0, 1)
	assert.ErrorIs(t, store.Upsert(ctx, []core.VectorRecord{noCollection}), storage.ErrInvalidQuery)
}

func TestVectorStore_DeleteDocument(t *testing.T) {
	store := setupVectorStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []core.VectorRecord{
		record("c", "d1", 0, 1, 0),
		record("c", "d1", 1, 1, 0),
		record("c", "d2", 0, 1, 0),
	}))

	removed, err := store.DeleteDocument(ctx, "c", "d1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	n, err := store.Count(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	removed, err = store.DeleteDocument(ctx, "c", "missing")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestVectorStore_SkipsMismatchedDimensions(t *testing.T) {
	store := setupVectorStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []core.VectorRecord{
		record("c", "d1", 0, 1, 0),
		record("c", "d2", 0, 1, 0, 0),
	}))

	matches, err := store.Query(ctx, []float32{1, 0}, "c", 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, core.ID("d1"), matches[0].Metadata.DocumentId)
}

func TestVectorStore_QueryRejectsBadInput(t *testing.T) {
	store := setupVectorStore(t)

	_, err := store.Query(context.Background(), nil, "c", 5)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	_, err = store.Query(context.Background(), []float32{1}, "c", 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}
