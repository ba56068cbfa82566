package reembed

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/lore/ai/mock"
	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/embedding"
)

func TestNewReembedder_RequiresDependencies(t *testing.T) {
	e := newEnv(t)
	g := newGenerator(t, embedderWithDims(4))

	_, err := NewReembedder(nil, e.chunks, g, e.indexer, nil, nil)
	assert.ErrorIs(t, err, ErrDocumentRepositoryRequired)
	_, err = NewReembedder(e.docs, nil, g, e.indexer, nil, nil)
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)
	_, err = NewReembedder(e.docs, e.chunks, nil, e.indexer, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
	_, err = NewReembedder(e.docs, e.chunks, g, nil, nil, nil)
	assert.ErrorIs(t, err, ErrIndexerRequired)
}

func TestReembedder_Run(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.ingest(t, 5, newGenerator(t, embedderWithDims(4)))
	total := e.totalChunks(t)
	require.Equal(t, total, e.vectorsWithDims(t, 4))

	var buf bytes.Buffer
	config := &Config{BatchSize: 2, ReportInterval: 1, SnippetRunes: 40}
	r, err := NewReembedder(e.docs, e.chunks, newGenerator(t, embedderWithDims(6)), e.indexer, config, &buf,
		WithCheckpoints(e.checkpoints))
	require.NoError(t, err)

	report, err := r.Run(ctx, collection)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Documents)
	assert.Equal(t, total, report.Chunks)
	assert.False(t, report.Resumed)
	assert.Zero(t, report.Skipped)

	// Same ids, new vectors: nothing of the old dimension is left.
	assert.Zero(t, e.vectorsWithDims(t, 4))
	assert.Equal(t, total, e.vectorsWithDims(t, 6))
	count, err := e.vectors.Count(ctx, collection)
	require.NoError(t, err)
	assert.Equal(t, total, count)

	for _, id := range e.orderedIDs(t) {
		n, err := e.chunks.CountChunks(ctx, id, core.ChunkStatusEmbedded)
		require.NoError(t, err)
		assert.Positive(t, n)
	}

	cp, err := e.checkpoints.LoadCheckpoint(ctx, CheckpointName(collection))
	require.NoError(t, err)
	assert.Nil(t, cp, "checkpoint should be removed after a complete run")

	output := buf.String()
	assert.Contains(t, output, "Starting reembedding of kb: 5 documents")
	assert.Contains(t, output, "Reembedding complete")
}

func TestReembedder_ResumesFromCheckpoint(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ids := e.ingest(t, 5, newGenerator(t, embedderWithDims(4)))

	third, err := e.docs.GetDocument(ctx, ids[2])
	require.NoError(t, err)
	poison := e.texts[third.StorageRef][:len("Document 0.")]

	broken := embedderWithDims(6).WithEmbedTextsFunc(func(_ context.Context, texts []string) ([][]float32, error) {
		for _, text := range texts {
			if strings.Contains(text, poison) {
				return nil, errors.New("provider outage")
			}
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.DeterministicVector(text, 6)
		}
		return out, nil
	})
	config := &Config{BatchSize: 2, ReportInterval: 10}
	r, err := NewReembedder(e.docs, e.chunks, newGenerator(t, broken), e.indexer, config, nil,
		WithCheckpoints(e.checkpoints))
	require.NoError(t, err)

	report, err := r.Run(ctx, collection)
	require.Error(t, err)
	assert.ErrorIs(t, err, embedding.ErrProviderFailure)
	assert.Contains(t, err.Error(), string(ids[2]))
	assert.Equal(t, 2, report.Documents)

	second, err := e.docs.GetDocument(ctx, ids[1])
	require.NoError(t, err)
	cp, err := e.checkpoints.LoadCheckpoint(ctx, CheckpointName(collection))
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, CursorOf(second).String(), cp.Position)

	healthy := embedderWithDims(6)
	r, err = NewReembedder(e.docs, e.chunks, newGenerator(t, healthy), e.indexer, config, nil,
		WithCheckpoints(e.checkpoints))
	require.NoError(t, err)

	report, err = r.Run(ctx, collection)
	require.NoError(t, err)
	assert.True(t, report.Resumed)
	assert.Equal(t, 3, report.Documents)

	assert.Equal(t, e.totalChunks(t), e.vectorsWithDims(t, 6))
	cp, err = e.checkpoints.LoadCheckpoint(ctx, CheckpointName(collection))
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestReembedder_WithoutCheckpointsStartsOver(t *testing.T) {
	e := newEnv(t)
	e.ingest(t, 3, newGenerator(t, embedderWithDims(4)))

	embedder := embedderWithDims(4)
	r, err := NewReembedder(e.docs, e.chunks, newGenerator(t, embedder), e.indexer, nil, nil)
	require.NoError(t, err)

	for range 2 {
		report, err := r.Run(context.Background(), collection)
		require.NoError(t, err)
		assert.Equal(t, 3, report.Documents)
		assert.False(t, report.Resumed)
	}
	assert.Equal(t, 2*e.totalChunks(t), embedder.TextCount())
}

func TestReembedder_EmptyCollection(t *testing.T) {
	e := newEnv(t)
	var buf bytes.Buffer
	r, err := NewReembedder(e.docs, e.chunks, newGenerator(t, embedderWithDims(4)), e.indexer, nil, &buf,
		WithCheckpoints(e.checkpoints))
	require.NoError(t, err)

	report, err := r.Run(context.Background(), "nothing-here")
	require.NoError(t, err)
	assert.Zero(t, report.Documents)
	assert.Contains(t, buf.String(), "No completed documents")
}

func TestReembedder_InvalidCheckpoint(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		Name:     CheckpointName(collection),
		Position: "garbage",
	}))

	r, err := NewReembedder(e.docs, e.chunks, newGenerator(t, embedderWithDims(4)), e.indexer, nil, nil,
		WithCheckpoints(e.checkpoints))
	require.NoError(t, err)

	_, err = r.Run(ctx, collection)
	assert.ErrorIs(t, err, ErrInvalidCursor)
}
