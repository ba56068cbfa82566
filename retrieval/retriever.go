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

package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/lore/ai"
	"github.com/poiesic/lore/cache"
	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/storage"
)

const (
	DefaultMinConfidence = 0.65
	DefaultMaxSources    = 5
	DefaultOversample    = 3
	DefaultCacheTTL      = 10 * time.Minute
)

var errEmptyAnswer = errors.New("generator returned an empty answer")

// QueryEmbedder embeds query text. embedding.Generator implements it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// NoThreshold as MinConfidence keeps every candidate; cosine scores never
// fall below -1.
const NoThreshold = -1.0

// QueryOptions tunes a single query. Zero fields take the retriever's
// defaults.
type QueryOptions struct {
	// MinConfidence is the lowest similarity score a source may have.
	// Negative values are used as given.
	MinConfidence float64

	// MaxSources caps the number of citations.
	MaxSources int
}

// Retriever answers questions from a collection's vectors.
type Retriever struct {
	embedder   QueryEmbedder
	store      storage.VectorStore
	generator  ai.Generator
	fallback   FallbackStrategy
	cache      cache.Cache
	cacheTTL   time.Duration
	oversample int
	defaults   QueryOptions
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithFallbackStrategy replaces the default KeywordFallback.
func WithFallbackStrategy(strategy FallbackStrategy) Option {
	return func(r *Retriever) error {
		if strategy == nil {
			return errors.New("fallback strategy cannot be nil")
		}
		r.fallback = strategy
		return nil
	}
}

// WithCache caches query embeddings for ttl. Default is no cache.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(r *Retriever) error {
		if c != nil {
			r.cache = c
			r.cacheTTL = ttl
		}
		return nil
	}
}

// WithOversample sets how many nearest neighbours are fetched per wanted
// source. Default is DefaultOversample.
func WithOversample(n int) Option {
	return func(r *Retriever) error {
		if n < 1 {
			return fmt.Errorf("oversample must be at least 1, got %d", n)
		}
		r.oversample = n
		return nil
	}
}

// WithDefaults sets the options used for zero QueryOptions fields.
func WithDefaults(opts QueryOptions) Option {
	return func(r *Retriever) error {
		if opts.MinConfidence > 1 {
			return fmt.Errorf("min confidence must be at most 1, got %v", opts.MinConfidence)
		}
		if opts.MinConfidence > 0 {
			r.defaults.MinConfidence = opts.MinConfidence
		}
		if opts.MaxSources > 0 {
			r.defaults.MaxSources = opts.MaxSources
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRetriever creates a Retriever.
func NewRetriever(
	embedder QueryEmbedder,
	store storage.VectorStore,
	generator ai.Generator,
	opts ...Option,
) (*Retriever, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if store == nil {
		return nil, ErrVectorStoreRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	r := &Retriever{
		embedder:   embedder,
		store:      store,
		generator:  generator,
		cache:      cache.Nop{},
		cacheTTL:   DefaultCacheTTL,
		oversample: DefaultOversample,
		defaults: QueryOptions{
			MinConfidence: DefaultMinConfidence,
			MaxSources:    DefaultMaxSources,
		},
		logger: slog.Default(),
		tracer: otel.Tracer("lore/retrieval"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "retriever")
	if r.fallback == nil {
		r.fallback = NewKeywordFallback(generator, WithFallbackLogger(r.logger))
	}

	return r, nil
}

// Query answers text from the sources of collectionID.
// It returns an error only for a blank query, a blank collection id or a
// done context; provider and store failures degrade the result instead.
func (r *Retriever) Query(ctx context.Context, text, collectionID string, opts QueryOptions) (*core.QueryResult, error) {
	return r.QueryWithMonitor(ctx, text, collectionID, opts, nil)
}

// QueryWithMonitor is Query with monitoring.
// The monitor receives callbacks at each stage of the query.
func (r *Retriever) QueryWithMonitor(ctx context.Context, text, collectionID string, opts QueryOptions, monitor QueryMonitor) (result *core.QueryResult, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	if strings.TrimSpace(collectionID) == "" {
		return nil, core.ErrEmptyCollection
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	opts = r.resolve(opts)

	ctx, span := r.tracer.Start(ctx, "retrieval.query",
		trace.WithAttributes(
			attribute.String("lore.collection_id", collectionID),
			attribute.Int("lore.max_sources", opts.MaxSources),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(
				attribute.Bool("lore.fallback", result.Fallback),
				attribute.Int("lore.citations", len(result.Citations)),
				attribute.Float64("lore.confidence", result.Confidence),
			)
		}
		span.End()
	}()

	monitor.Start(text, collectionID)
	logger := r.logger.With("collection", collectionID)

	candidates, reason, err := r.search(ctx, logger, monitor, text, collectionID, opts)
	if err != nil {
		return nil, err
	}

	kept := selectSources(candidates, opts)
	monitor.AfterFilter(kept)

	if len(kept) == 0 {
		if reason == "" {
			reason = "no source above confidence threshold"
		}
		result, err = r.fallbackResult(ctx, logger, monitor, text, candidates, reason)
	} else {
		result, err = r.answer(ctx, logger, monitor, text, kept)
	}
	if err != nil {
		return nil, err
	}

	monitor.Finish(result)
	return result, nil
}

func (r *Retriever) resolve(opts QueryOptions) QueryOptions {
	if opts.MinConfidence == 0 {
		opts.MinConfidence = r.defaults.MinConfidence
	}
	if opts.MaxSources <= 0 {
		opts.MaxSources = r.defaults.MaxSources
	}
	return opts
}

// search returns the nearest neighbours of text. When embedding or the
// store fails it returns no candidates and the reason; the only error it
// returns is the context's.
func (r *Retriever) search(ctx context.Context, logger *slog.Logger, monitor QueryMonitor, text, collectionID string, opts QueryOptions) ([]core.VectorMatch, string, error) {
	vector, err := r.queryVector(ctx, logger, text)
	monitor.AfterEmbedding(vector, err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		logger.Warn("query embedding failed, answering without sources", "err", err)
		return nil, "query embedding failed", nil
	}

	candidates, err := r.store.Query(ctx, vector, collectionID, opts.MaxSources*r.oversample)
	monitor.AfterSearch(candidates, err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		logger.Warn("vector search failed, answering without sources", "err", err)
		return nil, "vector search failed", nil
	}
	return candidates, "", nil
}

func (r *Retriever) queryVector(ctx context.Context, logger *slog.Logger, text string) ([]float32, error) {
	key := cache.Key("query", string(core.IDFromContent(text)))

	data, ok, err := r.cache.Get(ctx, key)
	switch {
	case err != nil:
		logger.Warn("query cache read failed", "err", err)
	case ok:
		vector, err := storage.UnmarshalVector(data)
		if err == nil && len(vector) > 0 {
			return vector, nil
		}
		logger.Warn("discarding unreadable cached query vector", "err", err)
		_ = r.cache.Delete(ctx, key)
	}

	vector, err := r.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, key, storage.MarshalVector(vector), r.cacheTTL); err != nil {
		logger.Warn("query cache write failed", "err", err)
	}
	return vector, nil
}

// selectSources keeps matches scoring at least MinConfidence, best first,
// at most MaxSources of them.
func selectSources(candidates []core.VectorMatch, opts QueryOptions) []core.VectorMatch {
	kept := make([]core.VectorMatch, 0, len(candidates))
	for _, c := range candidates {
		// compare at score precision: float32(0.65) widens below 0.65
		if c.Score >= float32(opts.MinConfidence) {
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})
	if len(kept) > opts.MaxSources {
		kept = kept[:opts.MaxSources]
	}
	return kept
}

func (r *Retriever) fallbackResult(ctx context.Context, logger *slog.Logger, monitor QueryMonitor, text string, candidates []core.VectorMatch, reason string) (*core.QueryResult, error) {
	monitor.Fallback(reason)

	content, err := r.fallback.Respond(ctx, text, candidates)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("fallback strategy failed", "err", err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		content = noResultsMessage(nil)
	}

	logger.Info("query answered without sources", "reason", reason, "candidates", len(candidates))
	return &core.QueryResult{
		Content:       content,
		Citations:     []core.Citation{},
		Confidence:    0,
		DocumentsUsed: []string{},
		Fallback:      true,
	}, nil
}

func (r *Retriever) answer(ctx context.Context, logger *slog.Logger, monitor QueryMonitor, text string, sources []core.VectorMatch) (*core.QueryResult, error) {
	citations := make([]core.Citation, len(sources))
	var total float64
	for i, s := range sources {
		citations[i] = core.Citation{
			Marker:     i + 1,
			DocumentId: s.Metadata.DocumentId,
			SourceName: s.Metadata.SourceName,
			Page:       s.Metadata.Page,
			Snippet:    s.Metadata.Snippet,
			Score:      s.Score,
		}
		total += float64(s.Score)
	}

	content, err := r.generator.Generate(ctx, answerPrompt(text, citations))
	content = strings.TrimSpace(content)
	if err == nil && content == "" {
		err = errEmptyAnswer
	}
	monitor.AfterGeneration(content, err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("answer generation failed, listing excerpts", "err", err)
		content = excerptAnswer(citations)
	}

	confidence := clamp01(total / float64(len(sources)))
	logger.Info("query answered", "citations", len(citations), "confidence", confidence)
	return &core.QueryResult{
		Content:       content,
		Citations:     citations,
		Confidence:    confidence,
		DocumentsUsed: documentsUsed(citations),
	}, nil
}

// documentsUsed lists cited source names once each, in marker order.
func documentsUsed(citations []core.Citation) []string {
	seen := make(map[string]bool, len(citations))
	names := make([]string, 0, len(citations))
	for _, c := range citations {
		name := c.SourceName
		if name == "" {
			name = string(c.DocumentId)
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
