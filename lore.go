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

// Package lore wires the knowledge base together: the relational and
// vector stores, the AI provider, ingestion and retrieval.
package lore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/poiesic/lore/ai"
	"github.com/poiesic/lore/ai/gemini"
	"github.com/poiesic/lore/ai/mock"
	"github.com/poiesic/lore/ai/openai"
	"github.com/poiesic/lore/cache"
	"github.com/poiesic/lore/cache/memory"
	"github.com/poiesic/lore/cache/redis"
	"github.com/poiesic/lore/config"
	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/embedding"
	"github.com/poiesic/lore/extract"
	"github.com/poiesic/lore/indexer"
	"github.com/poiesic/lore/ingestion"
	"github.com/poiesic/lore/reembed"
	"github.com/poiesic/lore/retrieval"
	"github.com/poiesic/lore/retry"
	"github.com/poiesic/lore/storage"
	"github.com/poiesic/lore/storage/badger"
	"github.com/poiesic/lore/storage/sqlite"
)

// KnowledgeBase owns every store and service of one data directory.
type KnowledgeBase struct {
	config      *config.Config
	db          *sqlite.DB
	backend     *badger.Backend
	documents   storage.DocumentRepository
	chunks      storage.ChunkRepository
	vectors     storage.VectorStore
	tasks       storage.TaskRepository
	checkpoints storage.CheckpointRepository
	cache       cache.Cache
	provider    ai.AIProvider
	embedder    *embedding.Generator
	indexer     *indexer.Indexer
	ingestor    *ingestion.Ingestor
	scheduler   *ingestion.Scheduler
	queue       *ingestion.Queue
	retriever   *retrieval.Retriever
	closers     []func() error
	logger      *slog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	provider  ai.AIProvider
	extractor extract.Extractor
	cache     cache.Cache
	inMemory  bool
	logger    *slog.Logger
}

// WithProvider replaces the provider the configuration selects. The
// knowledge base closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithExtractor replaces the default extract.Registry.
func WithExtractor(extractor extract.Extractor) Option {
	return func(o *options) {
		o.extractor = extractor
	}
}

// WithCache replaces the configured cache backend.
func WithCache(c cache.Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// InMemory keeps both stores in memory; nothing is written to DataDir.
func InMemory() Option {
	return func(o *options) {
		o.inMemory = true
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// NewProvider creates the provider named by config.Provider.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Provider {
	case ai.ProviderOpenAI:
		return openai.NewProvider(config)
	case ai.ProviderGemini:
		return gemini.NewProvider(config)
	case ai.ProviderMock:
		embedder := mock.NewMockEmbedder()
		embedder.Dimensions = config.Dimensions
		return mock.NewMockProviderWithServices(embedder, mock.NewMockGenerator()), nil
	}
	return nil, fmt.Errorf("unknown AI provider %q", config.Provider)
}

// Open validates cfg and builds a KnowledgeBase over cfg.DataDir.
// Everything opened so far is closed again when a later step fails.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (kb *KnowledgeBase, err error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	kb = &KnowledgeBase{config: cfg, logger: o.logger}
	defer func() {
		if err != nil {
			kb.Close()
			kb = nil
		}
	}()

	if err := kb.openStores(o.inMemory); err != nil {
		return kb, err
	}
	if err := kb.openCache(ctx, o.cache); err != nil {
		return kb, err
	}

	kb.provider = o.provider
	if kb.provider == nil {
		if kb.provider, err = NewProvider(cfg.ProviderConfig()); err != nil {
			return kb, fmt.Errorf("create AI provider: %w", err)
		}
	}
	kb.closers = append(kb.closers, kb.provider.Close)

	extractor := o.extractor
	if extractor == nil {
		extractor = extract.NewRegistry(
			extract.WithMaxBytes(cfg.Ingestion.MaxSourceBytes),
			extract.WithLogger(o.logger),
		)
	}

	if err := kb.buildServices(extractor); err != nil {
		return kb, err
	}

	// Holding the vector store lock makes this the only process ingesting
	// into DataDir, so documents still processing belong to one that died.
	n, err := kb.ingestor.RecoverInterrupted(ctx)
	if err != nil {
		return kb, fmt.Errorf("recover interrupted documents: %w", err)
	}
	if n > 0 {
		kb.logger.Warn("reset documents interrupted by a previous process", "documents", n)
	}
	return kb, nil
}

func (kb *KnowledgeBase) openStores(inMemory bool) error {
	dbPath, vectorsPath := ":memory:", ""
	if !inMemory {
		if err := os.MkdirAll(kb.config.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
		dbPath, vectorsPath = kb.config.DatabasePath(), kb.config.VectorsPath()
	}

	db, err := sqlite.Open(dbPath)
	if err != nil {
		return err
	}
	kb.db = db
	kb.closers = append(kb.closers, db.Close)
	kb.documents, kb.chunks = sqlite.NewRepositories(db)

	backend, err := badger.OpenBackend(vectorsPath, inMemory, badger.WithBackendLogger(kb.logger))
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}
	kb.backend = backend
	kb.closers = append(kb.closers, backend.Close)

	if kb.vectors, err = badger.NewVectorStore(backend); err != nil {
		return err
	}
	if kb.tasks, err = badger.NewTaskRepository(backend); err != nil {
		return err
	}
	kb.checkpoints = badger.NewCheckpointRepository(backend)
	return nil
}

func (kb *KnowledgeBase) openCache(ctx context.Context, injected cache.Cache) error {
	if injected != nil {
		kb.cache = injected
		return nil
	}
	cfg := kb.config.Cache
	switch cfg.Backend {
	case "memory":
		c, err := memory.New(cfg.MaxBytes)
		if err != nil {
			return fmt.Errorf("create memory cache: %w", err)
		}
		kb.cache = c
		kb.closers = append(kb.closers, func() error { c.Close(); return nil })
	case "redis":
		client, err := redis.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		c := redis.New(client, "lore:")
		kb.cache = c
		kb.closers = append(kb.closers, c.Close)
	default:
		kb.cache = cache.Nop{}
	}
	return nil
}

func (kb *KnowledgeBase) buildServices(extractor extract.Extractor) error {
	cfg := kb.config
	logger := kb.logger

	policy, err := embedding.ParsePolicy(cfg.Embedding.FailurePolicy)
	if err != nil {
		return err
	}
	retryPolicy := retry.DefaultPolicy()
	retryPolicy.MaxAttempts = cfg.Embedding.MaxAttempts

	kb.embedder, err = embedding.NewGenerator(kb.provider.Embedder(),
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
		embedding.WithParallelism(cfg.Embedding.Parallelism),
		embedding.WithDimensions(cfg.AI.Dimensions),
		embedding.WithFailurePolicy(policy),
		embedding.WithRetryPolicy(retryPolicy),
		embedding.WithRateLimit(cfg.Embedding.RateLimit, cfg.Embedding.RateBurst),
		embedding.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	if kb.indexer, err = indexer.New(kb.vectors, indexer.WithLogger(logger)); err != nil {
		return err
	}

	kb.ingestor, err = ingestion.NewIngestor(kb.documents, kb.chunks, extractor, kb.embedder, kb.indexer,
		ingestion.WithChunking(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap),
		ingestion.WithCache(kb.cache, cfg.Ingestion.ExtractionTTL),
		ingestion.WithMaxExtractedBytes(cfg.Ingestion.MaxExtractedBytes),
		ingestion.WithSnippetRunes(cfg.Ingestion.SnippetRunes),
		ingestion.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	kb.scheduler, err = ingestion.NewScheduler(kb.ingestor,
		ingestion.WithStagger(cfg.Ingestion.Stagger),
		ingestion.WithSchedulerLogger(logger),
	)
	if err != nil {
		return err
	}

	if kb.queue, err = ingestion.NewQueue(kb.scheduler, kb.tasks, ingestion.WithQueueLogger(logger)); err != nil {
		return err
	}
	// The queue waits for its running tasks, so it closes before the stores.
	kb.closers = append(kb.closers, kb.queue.Close)

	kb.retriever, err = retrieval.NewRetriever(kb.embedder, kb.vectors, kb.provider.Generator(),
		retrieval.WithCache(kb.cache, cfg.Retrieval.QueryCacheTTL),
		retrieval.WithOversample(cfg.Retrieval.Oversample),
		retrieval.WithDefaults(retrieval.QueryOptions{
			MinConfidence: cfg.Retrieval.MinConfidence,
			MaxSources:    cfg.Retrieval.MaxSources,
		}),
		retrieval.WithLogger(logger),
	)
	return err
}

// Close releases everything Open acquired, newest first.
func (kb *KnowledgeBase) Close() error {
	var errs []error
	for i := len(kb.closers) - 1; i >= 0; i-- {
		if err := kb.closers[i](); err != nil {
			kb.logger.Error("error closing knowledge base", "err", err)
			errs = append(errs, err)
		}
	}
	kb.closers = nil
	return errors.Join(errs...)
}

// AddDocument registers a pending document. An empty SourceKind is
// guessed from the storage reference.
func (kb *KnowledgeBase) AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if doc != nil && doc.SourceKind == "" {
		doc.SourceKind = core.SourceKindOf(doc.StorageRef)
	}
	return kb.documents.CreateDocument(ctx, doc)
}

// IngestOne runs one document through the ingestion pipeline.
func (kb *KnowledgeBase) IngestOne(ctx context.Context, id core.ID) (*ingestion.Outcome, error) {
	return kb.ingestor.IngestOne(ctx, id)
}

// RetryDocument re-ingests a document that ended in error.
func (kb *KnowledgeBase) RetryDocument(ctx context.Context, id core.ID) (*ingestion.Outcome, error) {
	return kb.ingestor.RetryDocument(ctx, id)
}

// IngestAll ingests ids with at most maxConcurrent in flight. A
// non-positive limit uses the configured one.
func (kb *KnowledgeBase) IngestAll(ctx context.Context, ids []core.ID, maxConcurrent int) ingestion.Summary {
	return kb.scheduler.RunAll(ctx, ids, kb.concurrency(maxConcurrent))
}

// IngestAllWithProgress is IngestAll reporting each finished document.
func (kb *KnowledgeBase) IngestAllWithProgress(ctx context.Context, ids []core.ID, maxConcurrent int, progress ingestion.ProgressFunc) ingestion.Summary {
	return kb.scheduler.Run(ctx, ids, kb.concurrency(maxConcurrent), progress)
}

// Enqueue starts a background ingestion task and returns its handle.
func (kb *KnowledgeBase) Enqueue(ctx context.Context, ids []core.ID, maxConcurrent int) (*core.Task, error) {
	return kb.queue.Enqueue(ctx, ids, kb.concurrency(maxConcurrent))
}

func (kb *KnowledgeBase) concurrency(n int) int {
	if n > 0 {
		return n
	}
	return kb.config.Ingestion.MaxConcurrent
}

// PendingDocuments lists the ids of a collection's documents that still
// need ingestion: pending ones, plus errored ones when retryErrors is set.
func (kb *KnowledgeBase) PendingDocuments(ctx context.Context, collectionID string, retryErrors bool) ([]core.ID, error) {
	return ListPending(ctx, kb.documents, collectionID, retryErrors)
}

// ListPending is PendingDocuments over any document repository.
func ListPending(ctx context.Context, documents storage.DocumentRepository, collectionID string, retryErrors bool) ([]core.ID, error) {
	filter := storage.DocumentFilter{
		CollectionId: collectionID,
		Statuses:     []core.DocumentStatus{core.DocumentStatusPending},
	}
	if retryErrors {
		filter.Statuses = append(filter.Statuses, core.DocumentStatusError)
	}
	docs, err := documents.ListDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}
	ids := make([]core.ID, len(docs))
	for i, doc := range docs {
		ids[i] = doc.Id
	}
	return ids, nil
}

// Query answers text from collectionID. See retrieval.Retriever.Query.
func (kb *KnowledgeBase) Query(ctx context.Context, text, collectionID string, opts retrieval.QueryOptions) (*core.QueryResult, error) {
	return kb.retriever.Query(ctx, text, collectionID, opts)
}

// QueryWithMonitor is Query reporting each stage to monitor.
func (kb *KnowledgeBase) QueryWithMonitor(ctx context.Context, text, collectionID string, opts retrieval.QueryOptions, monitor retrieval.QueryMonitor) (*core.QueryResult, error) {
	return kb.retriever.QueryWithMonitor(ctx, text, collectionID, opts, monitor)
}

// Reembed rebuilds the vectors of every completed document in
// collectionID with the current embedder, resuming from the last
// checkpoint. progress may be nil.
func (kb *KnowledgeBase) Reembed(ctx context.Context, collectionID string, batchSize int, progress io.Writer) (*reembed.Report, error) {
	cfg := reembed.DefaultConfig()
	if batchSize > 0 {
		cfg.BatchSize = batchSize
	}
	cfg.SnippetRunes = kb.config.Ingestion.SnippetRunes
	r, err := reembed.NewReembedder(kb.documents, kb.chunks, kb.embedder, kb.indexer, cfg, progress,
		reembed.WithCheckpoints(kb.checkpoints),
		reembed.WithLogger(kb.logger),
	)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, collectionID)
}

// CollectionStatus summarises one collection.
type CollectionStatus struct {
	CollectionId string
	Documents    map[core.DocumentStatus]int
	Vectors      int
}

// Status counts a collection's documents by status and its vectors.
func (kb *KnowledgeBase) Status(ctx context.Context, collectionID string) (*CollectionStatus, error) {
	docs, err := kb.documents.ListDocuments(ctx, storage.DocumentFilter{CollectionId: collectionID})
	if err != nil {
		return nil, err
	}
	status := &CollectionStatus{
		CollectionId: collectionID,
		Documents:    make(map[core.DocumentStatus]int),
	}
	for _, doc := range docs {
		status.Documents[doc.Status]++
	}
	if status.Vectors, err = kb.vectors.Count(ctx, collectionID); err != nil {
		return nil, err
	}
	return status, nil
}

func (kb *KnowledgeBase) Config() *config.Config {
	return kb.config
}

func (kb *KnowledgeBase) Documents() storage.DocumentRepository {
	return kb.documents
}

func (kb *KnowledgeBase) Chunks() storage.ChunkRepository {
	return kb.chunks
}

func (kb *KnowledgeBase) Vectors() storage.VectorStore {
	return kb.vectors
}

func (kb *KnowledgeBase) Ingestor() *ingestion.Ingestor {
	return kb.ingestor
}

func (kb *KnowledgeBase) Queue() *ingestion.Queue {
	return kb.queue
}

func (kb *KnowledgeBase) Retriever() *retrieval.Retriever {
	return kb.retriever
}
