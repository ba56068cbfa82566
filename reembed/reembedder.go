// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/ingestion"
	"github.com/poiesic/lore/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of documents handled between checkpoints
	BatchSize int

	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int

	// SnippetRunes caps the excerpt stored with each vector
	SnippetRunes int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 10,
		SnippetRunes:   ingestion.DefaultSnippetRunes,
	}
}

// Report summarises a finished run.
type Report struct {
	Documents int
	Chunks    int
	Skipped   int
	Resumed   bool
	Elapsed   time.Duration
}

// Reembedder orchestrates re-embedding of a collection.
type Reembedder struct {
	checkpoints storage.CheckpointRepository
	config      *Config
	progress    io.Writer
	processor   *BatchProcessor
	iterator    *DocumentIterator
	logger      *slog.Logger
}

// Option configures a Reembedder.
type Option func(*Reembedder)

// WithCheckpoints saves progress after every batch so an interrupted run
// can resume. Default is no checkpoints.
func WithCheckpoints(checkpoints storage.CheckpointRepository) Option {
	return func(r *Reembedder) {
		r.checkpoints = checkpoints
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reembedder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// CheckpointName is the checkpoint key of collectionID's run.
func CheckpointName(collectionID string) string {
	return "reembed:" + collectionID
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr); may be nil
func NewReembedder(
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	embedder ingestion.ChunkEmbedder,
	indexer ingestion.VectorIndexer,
	config *Config,
	progress io.Writer,
	opts ...Option,
) (*Reembedder, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if indexer == nil {
		return nil, ErrIndexerRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	r := &Reembedder{
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(documents, chunks, embedder, indexer, config.SnippetRunes),
		iterator:  NewDocumentIterator(documents, config.BatchSize),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "reembedder")
	return r, nil
}

// Run re-embeds every completed document of collectionID, resuming from
// the saved checkpoint when there is one. The checkpoint is removed once
// the collection is done; on error it keeps the last finished batch.
func (r *Reembedder) Run(ctx context.Context, collectionID string) (*Report, error) {
	logger := r.logger.With("collection", collectionID)

	cursor, err := r.loadCursor(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	report := &Report{Resumed: !cursor.IsZero()}

	remaining, err := r.iterator.Remaining(ctx, collectionID, cursor)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	total := len(remaining)
	if total == 0 {
		fmt.Fprintf(r.progress, "No completed documents to reembed in %s\n", collectionID)
		return report, r.clearCursor(ctx, collectionID)
	}

	if report.Resumed {
		fmt.Fprintf(r.progress, "Resuming reembedding of %s: %d documents left (batch size: %d)\n",
			collectionID, total, r.iterator.batchSize)
	} else {
		fmt.Fprintf(r.progress, "Starting reembedding of %s: %d documents (batch size: %d)\n",
			collectionID, total, r.iterator.batchSize)
	}
	logger.Info("reembedding collection", "documents", total, "resumed", report.Resumed)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	err = r.iterator.ForEach(ctx, collectionID, cursor, func(docs []*core.Document) error {
		for _, doc := range docs {
			written, skipped, err := r.processor.Process(ctx, doc)
			if err != nil {
				return fmt.Errorf("failed to reembed document %s: %w", doc.Id, err)
			}
			if skipped {
				logger.Info("skipping document that is no longer completed", "document", doc.Id)
				report.Skipped++
				tracker.Skip()
				continue
			}
			report.Documents++
			report.Chunks += written
			tracker.Document(written)
		}
		return r.saveCursor(ctx, collectionID, CursorOf(docs[len(docs)-1]))
	})
	report.Elapsed = tracker.Finish().Elapsed

	if err != nil {
		logger.Error("reembedding stopped", "documents", report.Documents, "err", err)
		return report, err
	}
	if err := r.clearCursor(ctx, collectionID); err != nil {
		return report, err
	}

	fmt.Fprintf(r.progress, "Reembedding complete. %d documents, %d chunks in %v (%.1f chunks/sec)\n",
		report.Documents, report.Chunks, report.Elapsed.Round(time.Millisecond),
		float64(report.Chunks)/report.Elapsed.Seconds())
	logger.Info("reembedding complete", "documents", report.Documents, "chunks", report.Chunks, "skipped", report.Skipped)
	return report, nil
}

func (r *Reembedder) loadCursor(ctx context.Context, collectionID string) (Cursor, error) {
	if r.checkpoints == nil {
		return Cursor{}, nil
	}
	cp, err := r.checkpoints.LoadCheckpoint(ctx, CheckpointName(collectionID))
	if err != nil {
		return Cursor{}, fmt.Errorf("load checkpoint: %w", err)
	}
	if cp == nil {
		return Cursor{}, nil
	}
	return ParseCursor(cp.Position)
}

func (r *Reembedder) saveCursor(ctx context.Context, collectionID string, cursor Cursor) error {
	if r.checkpoints == nil {
		return nil
	}
	err := r.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		Name:     CheckpointName(collectionID),
		Position: cursor.String(),
	})
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (r *Reembedder) clearCursor(ctx context.Context, collectionID string) error {
	if r.checkpoints == nil {
		return nil
	}
	if err := r.checkpoints.DeleteCheckpoint(ctx, CheckpointName(collectionID)); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}
