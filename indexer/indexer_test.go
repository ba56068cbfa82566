package indexer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/storage"
	"github.com/poiesic/lore/storage/badger"
)

func newStore(t *testing.T) storage.VectorStore {
	t.Helper()
	vectors, _, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return vectors
}

func records(doc core.ID, n int) []core.VectorRecord {
	out := make([]core.VectorRecord, n)
	for i := range out {
		out[i] = core.VectorRecord{
			Id:     core.ChunkID(doc, i),
			Vector: []float32{1, float32(i), 0},
			Metadata: core.VectorMetadata{
				DocumentId:   doc,
				CollectionId: "c1",
				SourceName:   "doc.txt",
				Snippet:      fmt.Sprintf("chunk %d", i),
				ChunkIndex:   i,
			},
		}
	}
	return out
}

// countingStore records batch sizes and fails the failAt-th Upsert (1-based).
type countingStore struct {
	storage.VectorStore
	batches []int
	failAt  int
}

func (s *countingStore) Upsert(ctx context.Context, records []core.VectorRecord) error {
	s.batches = append(s.batches, len(records))
	if len(s.batches) == s.failAt {
		return errors.New("disk full")
	}
	return s.VectorStore.Upsert(ctx, records)
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrStoreRequired)
}

func TestUpsert_Batches(t *testing.T) {
	store := &countingStore{VectorStore: newStore(t)}
	ix, err := New(store)
	require.NoError(t, err)

	require.NoError(t, ix.Upsert(context.Background(), records("d1", 250)))

	assert.Equal(t, []int{100, 100, 50}, store.batches)
	n, err := store.Count(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 250, n)
}

func TestUpsert_Idempotent(t *testing.T) {
	store := newStore(t)
	ix, err := New(store, WithBatchSize(3))
	require.NoError(t, err)

	recs := records("d1", 10)
	require.NoError(t, ix.Upsert(context.Background(), recs))
	require.NoError(t, ix.Upsert(context.Background(), recs))

	n, err := store.Count(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestUpsert_BatchFailureFailsWholeCall(t *testing.T) {
	store := &countingStore{VectorStore: newStore(t), failAt: 2}
	ix, err := New(store, WithBatchSize(4))
	require.NoError(t, err)

	err = ix.Upsert(context.Background(), records("d1", 10))
	assert.ErrorIs(t, err, ErrIndexingFailure)
	assert.ErrorContains(t, err, "disk full")
	assert.Len(t, store.batches, 2)
}

func TestUpsert_Validation(t *testing.T) {
	ix, err := New(newStore(t))
	require.NoError(t, err)

	recs := records("d1", 3)
	recs[1].Id = ""
	assert.ErrorIs(t, ix.Upsert(context.Background(), recs), ErrIndexingFailure)

	recs = records("d1", 3)
	recs[2].Vector = []float32{1}
	err = ix.Upsert(context.Background(), recs)
	assert.ErrorIs(t, err, ErrIndexingFailure)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	recs = records("d1", 1)
	recs[0].Metadata.CollectionId = ""
	assert.ErrorIs(t, ix.Upsert(context.Background(), recs), core.ErrEmptyCollection)

	assert.NoError(t, ix.Upsert(context.Background(), nil))
}

func TestRemove(t *testing.T) {
	store := newStore(t)
	ix, err := New(store)
	require.NoError(t, err)

	require.NoError(t, ix.Upsert(context.Background(), records("d1", 4)))
	require.NoError(t, ix.Upsert(context.Background(), records("d2", 2)))

	n, err := ix.Remove(context.Background(), "c1", "d1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	count, err := store.Count(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	n, err = ix.Remove(context.Background(), "c1", "missing")
	require.NoError(t, err)
	assert.Zero(t, n)
}
