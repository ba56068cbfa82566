package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/poiesic/lore/ai/mock"
	"github.com/poiesic/lore/cache"
	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/embedding"
	"github.com/poiesic/lore/extract"
	"github.com/poiesic/lore/indexer"
	"github.com/poiesic/lore/retry"
	"github.com/poiesic/lore/storage"
	"github.com/poiesic/lore/storage/badger"
	"github.com/poiesic/lore/storage/sqlite"
)

// fakeSource serves extractions by storage ref and can fail or panic.
type fakeSource struct {
	mu       sync.Mutex
	content  map[string]*extract.Extraction
	failures map[string]error
	panics   map[string]bool
	calls    map[string]int
	before   func(ref string)
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		content:  make(map[string]*extract.Extraction),
		failures: make(map[string]error),
		panics:   make(map[string]bool),
		calls:    make(map[string]int),
	}
}

func (f *fakeSource) Extract(ctx context.Context, doc *core.Document) (*extract.Extraction, error) {
	f.mu.Lock()
	f.calls[doc.StorageRef]++
	ex := f.content[doc.StorageRef]
	err := f.failures[doc.StorageRef]
	panics := f.panics[doc.StorageRef]
	before := f.before
	f.mu.Unlock()

	if before != nil {
		before(doc.StorageRef)
	}
	if panics {
		panic("corrupt source " + doc.StorageRef)
	}
	if err != nil {
		return nil, err
	}
	if ex == nil {
		return nil, errors.New("no such source")
	}
	return ex, nil
}

func (f *fakeSource) set(ref string, ex *extract.Extraction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content[ref] = ex
}

func (f *fakeSource) fail(ref string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[ref] = err
}

func (f *fakeSource) callCount(ref string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[ref]
}

// failingVectors fails every Upsert after the first okBatches.
type failingVectors struct {
	storage.VectorStore
	mu        sync.Mutex
	okBatches int
	upserts   int
}

func (v *failingVectors) Upsert(ctx context.Context, records []core.VectorRecord) error {
	v.mu.Lock()
	v.upserts++
	n := v.upserts
	v.mu.Unlock()
	if n > v.okBatches {
		return errors.New("vector store unavailable")
	}
	return v.VectorStore.Upsert(ctx, records)
}

type harness struct {
	docs     storage.DocumentRepository
	chunks   storage.ChunkRepository
	vectors  storage.VectorStore
	embedder *mock.MockEmbedder
	source   *fakeSource
	cache    *cache.Map
	ingestor *Ingestor
}

type harnessConfig struct {
	embedOpts []embedding.Option
	wrap      func(storage.VectorStore) storage.VectorStore
}

func newHarness(t *testing.T, cfg harnessConfig) *harness {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	docs, chunks := sqlite.NewRepositories(db)

	vectors, _, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	store := vectors
	if cfg.wrap != nil {
		store = cfg.wrap(vectors)
	}

	embedder := mock.NewMockEmbedder()
	embedder.Dimensions = 8
	opts := append([]embedding.Option{
		embedding.WithRetryPolicy(retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}),
		embedding.WithBatchSize(4),
	}, cfg.embedOpts...)
	generator, err := embedding.NewGenerator(embedder, opts...)
	require.NoError(t, err)

	ix, err := indexer.New(store, indexer.WithBatchSize(3))
	require.NoError(t, err)

	source := newFakeSource()
	c := cache.NewMap()
	ingestor, err := NewIngestor(docs, chunks, source, generator, ix,
		WithChunking(120, 20),
		WithCache(c, time.Minute),
	)
	require.NoError(t, err)

	return &harness{
		docs:     docs,
		chunks:   chunks,
		vectors:  vectors,
		embedder: embedder,
		source:   source,
		cache:    c,
		ingestor: ingestor,
	}
}

func (h *harness) addDocument(t *testing.T, ref, text string) core.ID {
	t.Helper()
	doc, err := h.docs.CreateDocument(context.Background(), &core.Document{
		CollectionId: "kb",
		Name:         ref,
		SourceKind:   core.SourceKindFile,
		StorageRef:   ref,
	})
	require.NoError(t, err)
	h.source.set(ref, &extract.Extraction{Text: text})
	return doc.Id
}

func (h *harness) document(t *testing.T, id core.ID) *core.Document {
	t.Helper()
	doc, err := h.docs.GetDocument(context.Background(), id)
	require.NoError(t, err)
	return doc
}

func (h *harness) chunkStatuses(t *testing.T, id core.ID) map[core.ChunkStatus]int {
	t.Helper()
	chunks, err := h.chunks.GetChunks(context.Background(), id)
	require.NoError(t, err)
	out := make(map[core.ChunkStatus]int)
	for _, c := range chunks {
		out[c.Status]++
	}
	return out
}

func (h *harness) vectorCount(t *testing.T) int {
	t.Helper()
	n, err := h.vectors.Count(context.Background(), "kb")
	require.NoError(t, err)
	return n
}

func longText(paragraphs int) string {
	var b strings.Builder
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(&b, "Paragraph %d talks about topic %d in some detail. It has two sentences.\n\n", i, i)
	}
	return b.String()
}
