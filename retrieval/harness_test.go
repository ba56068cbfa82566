package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/poiesic/lore/ai/mock"
	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/storage"
)

// fixedStore returns canned matches and records the topK it was asked for.
type fixedStore struct {
	storage.VectorStore

	mu      sync.Mutex
	matches []core.VectorMatch
	err     error
	topKs   []int
}

func (s *fixedStore) Query(_ context.Context, _ []float32, _ string, topK int) ([]core.VectorMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topKs = append(s.topKs, topK)
	if s.err != nil {
		return nil, s.err
	}
	return append([]core.VectorMatch(nil), s.matches...), nil
}

func (s *fixedStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.topKs)
}

type embedFunc func(ctx context.Context, text string) ([]float32, error)

func (f embedFunc) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

func unitEmbedder() embedFunc {
	return func(context.Context, string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}
}

func failingEmbedder() embedFunc {
	return func(context.Context, string) ([]float32, error) {
		return nil, errors.New("provider unavailable")
	}
}

func match(doc, source string, score float32, snippet string) core.VectorMatch {
	return core.VectorMatch{
		Id:    core.IDFromContent(doc + snippet),
		Score: score,
		Metadata: core.VectorMetadata{
			DocumentId:   core.ID(doc),
			CollectionId: "kb",
			SourceName:   source,
			Snippet:      snippet,
		},
	}
}

func scoredMatches(scores ...float32) []core.VectorMatch {
	matches := make([]core.VectorMatch, len(scores))
	names := []string{"alpha.pdf", "beta.md", "gamma.html", "delta.txt", "epsilon.docx", "zeta.txt", "eta.txt"}
	for i, s := range scores {
		matches[i] = match("doc-"+names[i], names[i], s, "passage from "+names[i])
	}
	return matches
}

func newTestRetriever(t *testing.T, embedder QueryEmbedder, store storage.VectorStore, generator *mock.MockGenerator, opts ...Option) *Retriever {
	t.Helper()
	r, err := NewRetriever(embedder, store, generator, opts...)
	require.NoError(t, err)
	return r
}

// recordingMonitor keeps the fallback reason and the final result.
type recordingMonitor struct {
	noopMonitor
	started  bool
	reason   string
	kept     int
	genErr   error
	finished *core.QueryResult
}

func (m *recordingMonitor) Start(_, _ string)                   { m.started = true }
func (m *recordingMonitor) AfterFilter(kept []core.VectorMatch) { m.kept = len(kept) }
func (m *recordingMonitor) Fallback(reason string)              { m.reason = reason }
func (m *recordingMonitor) AfterGeneration(_ string, err error) { m.genErr = err }
func (m *recordingMonitor) Finish(result *core.QueryResult)     { m.finished = result }
