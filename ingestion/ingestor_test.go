package ingestion

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/embedding"
	"github.com/poiesic/lore/extract"
	"github.com/poiesic/lore/indexer"
	"github.com/poiesic/lore/storage"
)

func TestNewIngestor_RequiresDependencies(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	i := h.ingestor

	_, err := NewIngestor(nil, i.chunkRepo, i.extractor, i.embedder, i.indexer)
	assert.ErrorIs(t, err, ErrDocumentRepositoryRequired)
	_, err = NewIngestor(i.documents, nil, i.extractor, i.embedder, i.indexer)
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)
	_, err = NewIngestor(i.documents, i.chunkRepo, nil, i.embedder, i.indexer)
	assert.ErrorIs(t, err, ErrExtractorRequired)
	_, err = NewIngestor(i.documents, i.chunkRepo, i.extractor, nil, i.indexer)
	assert.ErrorIs(t, err, ErrGeneratorRequired)
	_, err = NewIngestor(i.documents, i.chunkRepo, i.extractor, i.embedder, nil)
	assert.ErrorIs(t, err, ErrIndexerRequired)
}

func TestIngestOne_Success(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	id := h.addDocument(t, "guide.txt", longText(10))

	outcome, err := h.ingestor.IngestOne(context.Background(), id)
	require.NoError(t, err)
	require.Greater(t, outcome.ChunksCreated, 1)
	assert.False(t, outcome.MockEmbedding)

	doc := h.document(t, id)
	assert.Equal(t, core.DocumentStatusCompleted, doc.Status)
	assert.Empty(t, doc.ErrorMessage)
	assert.Equal(t, outcome.ChunksCreated, doc.Metadata.ChunkCount)
	assert.Equal(t, 1, doc.Metadata.Attempts)
	assert.False(t, doc.ProcessingStartedAt.IsZero())
	assert.False(t, doc.ProcessingFinishedAt.IsZero())
	assert.NotEmpty(t, doc.ExtractedText)

	chunks, err := h.chunks.GetChunks(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, chunks, outcome.ChunksCreated)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, core.ChunkStatusEmbedded, c.Status)
		assert.Equal(t, c.Id, c.VectorId)
		assert.Positive(t, c.TokenCount)
	}

	assert.Equal(t, len(chunks), h.vectorCount(t))
}

func TestIngestOne_VectorMetadata(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	id := h.addDocument(t, "guide.txt", "A short document about lighthouses.")

	_, err := h.ingestor.IngestOne(context.Background(), id)
	require.NoError(t, err)

	vec, err := h.embedder.EmbedText(context.Background(), "A short document about lighthouses.")
	require.NoError(t, err)
	matches, err := h.vectors.Query(context.Background(), vec, "kb", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, core.ChunkID(id, 0), m.Id)
	assert.Equal(t, id, m.Metadata.DocumentId)
	assert.Equal(t, "guide.txt", m.Metadata.SourceName)
	assert.Equal(t, core.SourceKindFile, m.Metadata.SourceKind)
	assert.Equal(t, "A short document about lighthouses.", m.Metadata.Snippet)
	assert.InDelta(t, 1.0, m.Score, 1e-4)
}

func TestIngestOne_DegenerateContentCompletes(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	id := h.addDocument(t, "blank.txt", " \n\n\t  \n")

	outcome, err := h.ingestor.IngestOne(context.Background(), id)
	require.NoError(t, err)
	assert.Zero(t, outcome.ChunksCreated)

	doc := h.document(t, id)
	assert.Equal(t, core.DocumentStatusCompleted, doc.Status)
	assert.Equal(t, "no content", doc.Metadata.Note)
	assert.Zero(t, doc.Metadata.ChunkCount)
	assert.Zero(t, h.embedder.CallCount())
	assert.Zero(t, h.vectorCount(t))
}

func TestIngestOne_EmbeddingFailurePropagates(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.embedder.WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("rate limited")
	})
	id := h.addDocument(t, "guide.txt", longText(8))

	outcome, err := h.ingestor.IngestOne(context.Background(), id)
	assert.Nil(t, outcome)
	assert.ErrorIs(t, err, embedding.ErrProviderFailure)

	doc := h.document(t, id)
	assert.Equal(t, core.DocumentStatusError, doc.Status)
	assert.Contains(t, doc.ErrorMessage, "rate limited")

	statuses := h.chunkStatuses(t, id)
	assert.Positive(t, statuses[core.ChunkStatusError])
	assert.Zero(t, statuses[core.ChunkStatusPending])
	assert.Zero(t, statuses[core.ChunkStatusEmbedded])
	assert.Zero(t, h.vectorCount(t))
}

func TestIngestOne_EmbeddingFallbackRecordsMock(t *testing.T) {
	h := newHarness(t, harnessConfig{embedOpts: []embedding.Option{
		embedding.WithFailurePolicy(embedding.PolicyFallback),
		embedding.WithDimensions(8),
	}})
	h.embedder.WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("quota exceeded")
	})
	id := h.addDocument(t, "guide.txt", longText(3))

	outcome, err := h.ingestor.IngestOne(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, outcome.MockEmbedding)
	assert.Contains(t, outcome.Warning, "mock embedding")

	doc := h.document(t, id)
	assert.Equal(t, core.DocumentStatusCompleted, doc.Status)
	assert.True(t, doc.Metadata.MockEmbedding)
	assert.Contains(t, doc.Metadata.Warning, "mock embedding")
	assert.Equal(t, outcome.ChunksCreated, h.vectorCount(t))
}

func TestIngestOne_ExtractionFailure(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	id := h.addDocument(t, "scan.pdf", "")
	h.source.fail("scan.pdf", extract.ErrMalformed)

	_, err := h.ingestor.IngestOne(context.Background(), id)
	assert.ErrorIs(t, err, ErrExtractionFailure)
	assert.ErrorIs(t, err, extract.ErrMalformed)

	doc := h.document(t, id)
	assert.Equal(t, core.DocumentStatusError, doc.Status)
	assert.Contains(t, doc.ErrorMessage, "malformed document")
	assert.Empty(t, h.chunkStatuses(t, id))
	assert.Zero(t, h.embedder.CallCount())
}

func TestIngestOne_IndexingFailureIsAllOrNothing(t *testing.T) {
	h := newHarness(t, harnessConfig{wrap: func(v storage.VectorStore) storage.VectorStore {
		return &failingVectors{VectorStore: v, okBatches: 1}
	}})
	id := h.addDocument(t, "guide.txt", longText(10))

	_, err := h.ingestor.IngestOne(context.Background(), id)
	assert.ErrorIs(t, err, indexer.ErrIndexingFailure)

	doc := h.document(t, id)
	assert.Equal(t, core.DocumentStatusError, doc.Status)

	statuses := h.chunkStatuses(t, id)
	assert.Positive(t, statuses[core.ChunkStatusError])
	assert.Zero(t, statuses[core.ChunkStatusEmbedded])
	// the batch that landed before the failure is removed again
	assert.Zero(t, h.vectorCount(t))
}

func TestIngestOne_RecoversPanics(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	id := h.addDocument(t, "evil.txt", "x")
	h.source.mu.Lock()
	h.source.panics["evil.txt"] = true
	h.source.mu.Unlock()

	outcome, err := h.ingestor.IngestOne(context.Background(), id)
	assert.Nil(t, outcome)
	assert.ErrorIs(t, err, ErrPanic)

	doc := h.document(t, id)
	assert.Equal(t, core.DocumentStatusError, doc.Status)
	assert.Contains(t, doc.ErrorMessage, "corrupt source evil.txt")
}

func TestIngestOne_RejectsDocumentAlreadyProcessing(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	id := h.addDocument(t, "guide.txt", longText(2))

	_, err := h.docs.Transition(context.Background(), id, core.DocumentStatusProcessing, nil)
	require.NoError(t, err)

	_, err = h.ingestor.IngestOne(context.Background(), id)
	assert.ErrorIs(t, err, core.ErrInvalidStateTransition)
	assert.Zero(t, h.source.callCount("guide.txt"))
	assert.Equal(t, core.DocumentStatusProcessing, h.document(t, id).Status)
}

func TestIngestOne_ConcurrentCallsProcessOnce(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	id := h.addDocument(t, "guide.txt", longText(4))

	release := make(chan struct{})
	h.source.before = func(string) { <-release }

	var (
		wg       sync.WaitGroup
		rejected atomic.Int32
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.ingestor.IngestOne(context.Background(), id); errors.Is(err, core.ErrInvalidStateTransition) {
				rejected.Add(1)
			}
		}()
	}

	// The winner is parked in extraction until every other caller is rejected.
	require.Eventually(t, func() bool { return rejected.Load() == 3 }, 5*time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, h.source.callCount("guide.txt"))
	assert.Equal(t, core.DocumentStatusCompleted, h.document(t, id).Status)
}

func TestIngestOne_ReingestReplacesChunksAndVectors(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	id := h.addDocument(t, "guide.txt", longText(12))

	first, err := h.ingestor.IngestOne(context.Background(), id)
	require.NoError(t, err)

	h.source.set("guide.txt", &extract.Extraction{Text: "Now it is short."})
	require.NoError(t, h.cache.Delete(context.Background(), extractionKey(h.document(t, id))))

	second, err := h.ingestor.IngestOne(context.Background(), id)
	require.NoError(t, err)

	assert.Greater(t, first.ChunksCreated, second.ChunksCreated)
	assert.Equal(t, 1, second.ChunksCreated)
	assert.Equal(t, 1, h.vectorCount(t))
	assert.Equal(t, 2, h.document(t, id).Metadata.Attempts)
}

func TestIngestOne_UsesExtractionCache(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	id := h.addDocument(t, "guide.txt", longText(2))

	_, err := h.ingestor.IngestOne(context.Background(), id)
	require.NoError(t, err)
	_, found, err := h.cache.Get(context.Background(), "extract:kb:"+string(id))
	require.NoError(t, err)
	assert.True(t, found)

	_, err = h.ingestor.IngestOne(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, h.source.callCount("guide.txt"))
}

func TestIngestOne_PagesFlowIntoChunks(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	id := h.addDocument(t, "paper.pdf", "")
	h.source.set("paper.pdf", &extract.Extraction{Pages: []string{
		longText(2),
		longText(2),
		longText(2),
	}})

	_, err := h.ingestor.IngestOne(context.Background(), id)
	require.NoError(t, err)

	chunks, err := h.chunks.GetChunks(context.Background(), id)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 3, chunks[len(chunks)-1].Page)
}

func TestIngestOne_SourceNameFallsBackToTitle(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	doc, err := h.docs.CreateDocument(context.Background(), &core.Document{
		CollectionId: "kb",
		SourceKind:   core.SourceKindWebpage,
		StorageRef:   "https://example.com/post",
	})
	require.NoError(t, err)
	h.source.set("https://example.com/post", &extract.Extraction{Text: "Web content.", Title: "A Post"})

	_, err = h.ingestor.IngestOne(context.Background(), doc.Id)
	require.NoError(t, err)

	vec, err := h.embedder.EmbedText(context.Background(), "Web content.")
	require.NoError(t, err)
	matches, err := h.vectors.Query(context.Background(), vec, "kb", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "A Post", matches[0].Metadata.SourceName)

	stored, err := h.docs.GetDocument(context.Background(), doc.Id)
	require.NoError(t, err)
	assert.Equal(t, "A Post", stored.Name)
}

func TestRetryDocument(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	id := h.addDocument(t, "guide.txt", longText(3))
	h.source.fail("guide.txt", errors.New("temporarily unavailable"))

	_, err := h.ingestor.IngestOne(context.Background(), id)
	require.ErrorIs(t, err, ErrExtractionFailure)

	h.source.fail("guide.txt", nil)
	outcome, err := h.ingestor.RetryDocument(context.Background(), id)
	require.NoError(t, err)
	assert.Positive(t, outcome.ChunksCreated)

	doc := h.document(t, id)
	assert.Equal(t, core.DocumentStatusCompleted, doc.Status)
	assert.Empty(t, doc.ErrorMessage)
	assert.Equal(t, 2, doc.Metadata.Attempts)

	_, err = h.ingestor.RetryDocument(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotRetryable)
}

func TestIngestOne_MissingDocument(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	_, err := h.ingestor.IngestOne(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short", snippet("short", 10))
	assert.Equal(t, "héllo…", snippet("héllo wörld", 5))
	assert.Equal(t, "unbounded", snippet("unbounded", 0))
}

func TestInterrupt_ResetsDocumentLeftProcessing(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	id := h.addDocument(t, "guide.txt", longText(4))
	_, err := h.ingestor.IngestOne(context.Background(), id)
	require.NoError(t, err)
	require.Positive(t, h.vectorCount(t))

	// a re-ingestion that died after the status write
	_, err = h.docs.Transition(context.Background(), id, core.DocumentStatusProcessing, nil)
	require.NoError(t, err)

	reset, err := h.ingestor.Interrupt(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, reset)

	doc := h.document(t, id)
	assert.Equal(t, core.DocumentStatusError, doc.Status)
	assert.Equal(t, ErrInterrupted.Error(), doc.ErrorMessage)
	assert.Zero(t, h.vectorCount(t))
	assert.Zero(t, h.chunkStatuses(t, id)[core.ChunkStatusEmbedded])

	_, err = h.ingestor.RetryDocument(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, core.DocumentStatusCompleted, h.document(t, id).Status)
	assert.Positive(t, h.vectorCount(t))
}

func TestInterrupt_LeavesOtherStatesAlone(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	id := h.addDocument(t, "guide.txt", longText(2))

	reset, err := h.ingestor.Interrupt(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, reset)
	assert.Equal(t, core.DocumentStatusPending, h.document(t, id).Status)

	_, err = h.ingestor.Interrupt(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecoverInterrupted(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	stuck := h.addDocument(t, "stuck.txt", longText(2))
	waiting := h.addDocument(t, "waiting.txt", longText(2))
	_, err := h.docs.Transition(context.Background(), stuck, core.DocumentStatusProcessing, nil)
	require.NoError(t, err)

	n, err := h.ingestor.RecoverInterrupted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, core.DocumentStatusError, h.document(t, stuck).Status)
	assert.Equal(t, core.DocumentStatusPending, h.document(t, waiting).Status)
}
