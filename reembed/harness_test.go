package reembed

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/poiesic/lore/ai/mock"
	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/embedding"
	"github.com/poiesic/lore/extract"
	"github.com/poiesic/lore/indexer"
	"github.com/poiesic/lore/ingestion"
	"github.com/poiesic/lore/retry"
	"github.com/poiesic/lore/storage"
	"github.com/poiesic/lore/storage/badger"
	"github.com/poiesic/lore/storage/sqlite"
)

const collection = "kb"

type env struct {
	docs        storage.DocumentRepository
	chunks      storage.ChunkRepository
	vectors     storage.VectorStore
	checkpoints storage.CheckpointRepository
	indexer     *indexer.Indexer
	texts       map[string]string
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	docs, chunks := sqlite.NewRepositories(db)

	vectors, _, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	ix, err := indexer.New(vectors)
	require.NoError(t, err)

	return &env{
		docs:        docs,
		chunks:      chunks,
		vectors:     vectors,
		checkpoints: badger.NewCheckpointRepository(backend),
		indexer:     ix,
		texts:       make(map[string]string),
	}
}

func documentText(i int) string {
	return fmt.Sprintf("Document %d. ", i) + strings.Repeat(fmt.Sprintf("Fact %d about the subject. ", i), 6)
}

func newGenerator(t *testing.T, embedder *mock.MockEmbedder, opts ...embedding.Option) *embedding.Generator {
	t.Helper()
	opts = append([]embedding.Option{
		embedding.WithRetryPolicy(retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond}),
		embedding.WithBatchSize(16),
	}, opts...)
	g, err := embedding.NewGenerator(embedder, opts...)
	require.NoError(t, err)
	return g
}

func embedderWithDims(dims int) *mock.MockEmbedder {
	e := mock.NewMockEmbedder()
	e.Dimensions = dims
	return e
}

// ingest creates n documents and ingests them with generator, returning
// their ids in collection order.
func (e *env) ingest(t *testing.T, n int, generator *embedding.Generator) []core.ID {
	t.Helper()
	ctx := context.Background()

	source := extract.ExtractorFunc(func(_ context.Context, doc *core.Document) (*extract.Extraction, error) {
		return &extract.Extraction{Text: e.texts[doc.StorageRef]}, nil
	})
	ingestor, err := ingestion.NewIngestor(e.docs, e.chunks, source, generator, e.indexer,
		ingestion.WithChunking(80, 10))
	require.NoError(t, err)

	for i := range n {
		ref := fmt.Sprintf("doc-%d.txt", i)
		e.texts[ref] = documentText(i)
		doc, err := e.docs.CreateDocument(ctx, &core.Document{
			CollectionId: collection,
			Name:         ref,
			SourceKind:   core.SourceKindFile,
			StorageRef:   ref,
		})
		require.NoError(t, err)
		_, err = ingestor.IngestOne(ctx, doc.Id)
		require.NoError(t, err)
	}

	return e.orderedIDs(t)
}

func (e *env) orderedIDs(t *testing.T) []core.ID {
	t.Helper()
	docs, err := e.docs.ListDocuments(context.Background(), storage.DocumentFilter{CollectionId: collection})
	require.NoError(t, err)
	ids := make([]core.ID, len(docs))
	for i, d := range docs {
		ids[i] = d.Id
	}
	return ids
}

func (e *env) totalChunks(t *testing.T) int {
	t.Helper()
	total := 0
	for _, id := range e.orderedIDs(t) {
		n, err := e.chunks.CountChunks(context.Background(), id)
		require.NoError(t, err)
		total += n
	}
	return total
}

// vectorsWithDims counts stored vectors of the given length.
func (e *env) vectorsWithDims(t *testing.T, dims int) int {
	t.Helper()
	queryVec := make([]float32, dims)
	queryVec[0] = 1
	matches, err := e.vectors.Query(context.Background(), queryVec, collection, 10000)
	require.NoError(t, err)
	return len(matches)
}
