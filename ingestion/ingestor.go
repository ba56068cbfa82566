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

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/lore/cache"
	"github.com/poiesic/lore/chunker"
	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/embedding"
	"github.com/poiesic/lore/extract"
	"github.com/poiesic/lore/storage"
)

const (
	DefaultCacheTTL          = time.Hour
	DefaultMaxExtractedBytes = 1 << 20
	DefaultSnippetRunes      = 300
)

// ChunkEmbedder turns chunk texts into vectors. embedding.Generator
// implements it.
type ChunkEmbedder interface {
	Embed(ctx context.Context, texts []string) (*embedding.Result, error)
}

// VectorIndexer writes and removes a document's vectors. indexer.Indexer
// implements it.
type VectorIndexer interface {
	Upsert(ctx context.Context, records []core.VectorRecord) error
	Remove(ctx context.Context, collectionID string, documentID core.ID) (int, error)
}

// Outcome describes a successful ingestion attempt.
type Outcome struct {
	ChunksCreated int
	MockEmbedding bool
	Truncated     bool
	Warning       string
	Elapsed       time.Duration
}

// Ingestor runs single documents through extraction, chunking, embedding
// and indexing.
type Ingestor struct {
	documents storage.DocumentRepository
	chunkRepo storage.ChunkRepository
	extractor extract.Extractor
	embedder  ChunkEmbedder
	indexer   VectorIndexer

	cache             cache.Cache
	cacheTTL          time.Duration
	chunkSize         int
	chunkOverlap      int
	maxExtractedBytes int
	snippetRunes      int
	logger            *slog.Logger
	tracer            trace.Tracer
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithChunking sets the chunk size and overlap in runes.
// Default is chunker.DefaultMaxSize and chunker.DefaultOverlap.
func WithChunking(maxSize, overlap int) Option {
	return func(i *Ingestor) {
		i.chunkSize = maxSize
		i.chunkOverlap = overlap
	}
}

// WithCache caches extracted text for ttl. Default is no cache.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(i *Ingestor) {
		if c != nil {
			i.cache = c
			i.cacheTTL = ttl
		}
	}
}

// WithMaxExtractedBytes caps the extracted text kept on the document row.
// Zero disables storing it.
func WithMaxExtractedBytes(n int) Option {
	return func(i *Ingestor) {
		i.maxExtractedBytes = n
	}
}

// WithSnippetRunes caps the chunk excerpt stored with each vector.
func WithSnippetRunes(n int) Option {
	return func(i *Ingestor) {
		i.snippetRunes = n
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingestor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewIngestor creates an Ingestor.
func NewIngestor(
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	extractor extract.Extractor,
	embedder ChunkEmbedder,
	indexer VectorIndexer,
	opts ...Option,
) (*Ingestor, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if embedder == nil {
		return nil, ErrGeneratorRequired
	}
	if indexer == nil {
		return nil, ErrIndexerRequired
	}

	i := &Ingestor{
		documents:         documents,
		chunkRepo:         chunks,
		extractor:         extractor,
		embedder:          embedder,
		indexer:           indexer,
		cache:             cache.Nop{},
		cacheTTL:          DefaultCacheTTL,
		chunkSize:         chunker.DefaultMaxSize,
		chunkOverlap:      chunker.DefaultOverlap,
		maxExtractedBytes: DefaultMaxExtractedBytes,
		snippetRunes:      DefaultSnippetRunes,
		logger:            slog.Default(),
		tracer:            otel.Tracer("lore/ingestion"),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.With("component", "ingestor")
	return i, nil
}

// IngestOne moves the document to processing, runs every stage and records
// the terminal status. A document that is already processing is rejected
// with core.ErrInvalidStateTransition before any work is done. Every other
// failure leaves the document in error and returns an error wrapping the
// cause's sentinel: ErrExtractionFailure, embedding.ErrProviderFailure,
// indexer.ErrIndexingFailure or ErrPanic.
func (i *Ingestor) IngestOne(ctx context.Context, id core.ID) (outcome *Outcome, err error) {
	ctx, span := i.tracer.Start(ctx, "ingestion.ingest_one",
		trace.WithAttributes(attribute.String("lore.document_id", string(id))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var j *job
	start := time.Now()
	logger := i.logger.With("document", id)

	defer func() {
		if r := recover(); r != nil {
			outcome = nil
			err = fmt.Errorf("%w: %v", ErrPanic, r)
			logger.Error("ingestion panicked", "panic", r, "stack", string(debug.Stack()))
			if j != nil {
				i.fail(ctx, logger, j, start, err)
			}
		}
	}()

	doc, err := i.documents.Transition(ctx, id, core.DocumentStatusProcessing, func(d *core.Document) {
		d.Metadata = core.ProcessingMetadata{Attempts: d.Metadata.Attempts + 1}
	})
	if err != nil {
		return nil, fmt.Errorf("start ingestion of %s: %w", id, err)
	}

	j = &job{doc: doc}
	logger = logger.With("collection", doc.CollectionId)
	logger.Info("ingesting document", "source", doc.StorageRef, "attempt", doc.Metadata.Attempts)

	for _, s := range i.stages() {
		stageStart := time.Now()
		if err := s.run(ctx, j); err != nil {
			logger.Error("ingestion stage failed", "stage", s.name, "err", err)
			i.fail(ctx, logger, j, start, err)
			return nil, err
		}
		logger.Debug("ingestion stage done", "stage", s.name, "elapsed", time.Since(stageStart))
		if j.empty {
			break
		}
	}

	return i.complete(ctx, logger, j, start)
}

// RetryDocument ingests a document that previously ended in error.
func (i *Ingestor) RetryDocument(ctx context.Context, id core.ID) (*Outcome, error) {
	doc, err := i.documents.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != core.DocumentStatusError {
		return nil, fmt.Errorf("%w: document %s is %s", ErrNotRetryable, id, doc.Status)
	}
	return i.IngestOne(ctx, id)
}

// Interrupt moves a document left in processing by a process that died
// to error, dropping any vectors and chunk statuses the dead run wrote, so
// it can be ingested again. It reports false, with no change, for documents
// in any other state.
func (i *Ingestor) Interrupt(ctx context.Context, id core.ID) (bool, error) {
	doc, err := i.documents.GetDocument(ctx, id)
	if err != nil {
		return false, err
	}
	if doc.Status != core.DocumentStatusProcessing {
		return false, nil
	}
	logger := i.logger.With("document", id, "collection", doc.CollectionId)

	if _, err := i.indexer.Remove(ctx, doc.CollectionId, id); err != nil {
		return false, fmt.Errorf("remove vectors of interrupted %s: %w", id, err)
	}
	if err := i.chunkRepo.UpdateChunkStatuses(ctx, id, core.ChunkStatusError, nil); err != nil {
		return false, fmt.Errorf("mark chunks of interrupted %s: %w", id, err)
	}
	_, err = i.documents.Transition(ctx, id, core.DocumentStatusError, func(d *core.Document) {
		d.ErrorMessage = ErrInterrupted.Error()
		d.Metadata.ChunkCount = 0
	})
	if err != nil {
		if errors.Is(err, core.ErrInvalidStateTransition) {
			// finished between the read and the write
			return false, nil
		}
		return false, fmt.Errorf("record interruption of %s: %w", id, err)
	}
	logger.Warn("recovered document interrupted mid-ingestion", "started", doc.ProcessingStartedAt)
	return true, nil
}

// RecoverInterrupted interrupts every document still in processing. Call
// it only while no other ingestion can run against the same stores, such
// as right after acquiring the vector store at startup.
func (i *Ingestor) RecoverInterrupted(ctx context.Context) (int, error) {
	docs, err := i.documents.ListDocuments(ctx, storage.DocumentFilter{
		Statuses: []core.DocumentStatus{core.DocumentStatusProcessing},
	})
	if err != nil {
		return 0, fmt.Errorf("list processing documents: %w", err)
	}
	var (
		recovered int
		errs      []error
	)
	for _, doc := range docs {
		ok, err := i.Interrupt(ctx, doc.Id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			recovered++
		}
	}
	return recovered, errors.Join(errs...)
}

func (i *Ingestor) complete(ctx context.Context, logger *slog.Logger, j *job, start time.Time) (*Outcome, error) {
	// The work is done; record it even if the caller has gone away.
	ctx = context.WithoutCancel(ctx)

	if j.chunksWritten {
		vectorIDs := make(map[core.ID]core.ID, len(j.records))
		for _, r := range j.records {
			vectorIDs[r.Id] = r.Id
		}
		if err := i.chunkRepo.UpdateChunkStatuses(ctx, j.doc.Id, core.ChunkStatusEmbedded, vectorIDs); err != nil {
			err = fmt.Errorf("mark chunks embedded: %w", err)
			i.fail(ctx, logger, j, start, err)
			return nil, err
		}
	}

	outcome := &Outcome{
		ChunksCreated: len(j.chunks),
		MockEmbedding: j.embedded != nil && j.embedded.Mock,
		Truncated:     j.truncated,
		Warning:       strings.Join(j.warnings, "; "),
		Elapsed:       time.Since(start),
	}

	_, err := i.documents.Transition(ctx, j.doc.Id, core.DocumentStatusCompleted, func(d *core.Document) {
		d.Metadata.ChunkCount = outcome.ChunksCreated
		d.Metadata.ElapsedMillis = outcome.Elapsed.Milliseconds()
		d.Metadata.MockEmbedding = outcome.MockEmbedding
		d.Metadata.Truncated = outcome.Truncated
		d.Metadata.Warning = outcome.Warning
		d.Metadata.Note = j.note
		if d.Name == "" {
			d.Name = SourceName(d, j.extraction)
		}
		d.ExtractedText = i.keepText(j.extraction)
	})
	if err != nil {
		err = fmt.Errorf("complete ingestion of %s: %w", j.doc.Id, err)
		if !errors.Is(err, core.ErrInvalidStateTransition) {
			i.fail(ctx, logger, j, start, err)
		}
		return nil, err
	}

	if outcome.Warning != "" {
		logger.Warn("document ingested with warnings", "chunks", outcome.ChunksCreated, "warning", outcome.Warning)
	} else {
		logger.Info("document ingested", "chunks", outcome.ChunksCreated, "elapsed", outcome.Elapsed)
	}
	return outcome, nil
}

// fail undoes partial work and moves the document to error. Bookkeeping
// errors are logged; the caller returns the original cause.
func (i *Ingestor) fail(ctx context.Context, logger *slog.Logger, j *job, start time.Time, cause error) {
	ctx = context.WithoutCancel(ctx)

	if j.indexed {
		if _, err := i.indexer.Remove(ctx, j.doc.CollectionId, j.doc.Id); err != nil {
			logger.Error("failed to remove partial vectors", "err", err)
		}
	}
	if j.chunksWritten {
		if err := i.chunkRepo.UpdateChunkStatuses(ctx, j.doc.Id, core.ChunkStatusError, nil); err != nil {
			logger.Error("failed to mark chunks as errored", "err", err)
		}
	}

	_, err := i.documents.Transition(ctx, j.doc.Id, core.DocumentStatusError, func(d *core.Document) {
		d.ErrorMessage = cause.Error()
		d.Metadata.ChunkCount = 0
		d.Metadata.ElapsedMillis = time.Since(start).Milliseconds()
		d.Metadata.Warning = strings.Join(j.warnings, "; ")
	})
	if err != nil {
		logger.Error("failed to record ingestion error", "err", err, "cause", cause)
	}
}

func (i *Ingestor) keepText(ex *extract.Extraction) string {
	if ex == nil || i.maxExtractedBytes <= 0 || len(ex.Text) > i.maxExtractedBytes {
		return ""
	}
	return ex.Text
}
