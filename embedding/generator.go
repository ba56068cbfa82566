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

// Package embedding turns chunk texts into vectors in bounded, retried
// batches.
//
// A Generator splits its input into batches, embeds them with limited
// parallelism and returns all vectors in input order, or fails as a whole.
// When configured with PolicyFallback, provider failures are replaced by
// deterministic mock vectors and flagged on the Result.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/poiesic/lore/ai"
	"github.com/poiesic/lore/retry"
)

const (
	DefaultBatchSize   = 32
	DefaultParallelism = 2
)

// FailurePolicy decides what Embed does when the provider fails.
type FailurePolicy int

const (
	// PolicyPropagate returns an error wrapping ErrProviderFailure.
	PolicyPropagate FailurePolicy = iota

	// PolicyFallback substitutes mock vectors and marks the Result.
	PolicyFallback
)

func (p FailurePolicy) String() string {
	switch p {
	case PolicyPropagate:
		return "propagate"
	case PolicyFallback:
		return "fallback"
	}
	return fmt.Sprintf("FailurePolicy(%d)", int(p))
}

// ParsePolicy maps "propagate" and "fallback" to a FailurePolicy.
func ParsePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "propagate":
		return PolicyPropagate, nil
	case "fallback":
		return PolicyFallback, nil
	}
	return PolicyPropagate, fmt.Errorf("unknown embedding failure policy %q", s)
}

// Result holds one vector per input text, in input order.
type Result struct {
	Vectors [][]float32

	// Mock is set when the vectors are fallback substitutes.
	Mock bool

	// Warning describes why mock vectors were used.
	Warning string
}

// Generator embeds texts in batches.
type Generator struct {
	embedder    ai.Embedder
	batchSize   int
	parallelism int
	policy      FailurePolicy
	retry       retry.Policy
	limiter     *rate.Limiter
	logger      *slog.Logger

	// dimensions is configured, or inferred from the first vector seen.
	dimensions atomic.Int64
}

// Option configures a Generator.
type Option func(*Generator)

func WithBatchSize(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithParallelism bounds how many batches are in flight at once.
func WithParallelism(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.parallelism = n
		}
	}
}

// WithDimensions fixes the expected vector length. Without it the length
// of the first vector returned is enforced from then on.
func WithDimensions(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.dimensions.Store(int64(n))
		}
	}
}

func WithFailurePolicy(p FailurePolicy) Option {
	return func(g *Generator) {
		g.policy = p
	}
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(g *Generator) {
		if p.MaxAttempts > 0 {
			g.retry = p
		}
	}
}

// WithRateLimit caps provider calls per second. Zero disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(g *Generator) {
		if perSecond <= 0 {
			g.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGenerator creates a Generator over embedder.
func NewGenerator(embedder ai.Embedder, opts ...Option) (*Generator, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	g := &Generator{
		embedder:    embedder,
		batchSize:   DefaultBatchSize,
		parallelism: DefaultParallelism,
		policy:      PolicyPropagate,
		retry:       retry.DefaultPolicy(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "embedding")
	return g, nil
}

// Dimensions returns the enforced vector length, or zero if none is known yet.
func (g *Generator) Dimensions() int {
	return int(g.dimensions.Load())
}

// Embed returns one unit vector per text. Either every vector is returned
// or the call fails; with PolicyFallback a provider failure yields mock
// vectors instead, provided the dimension is known. Context cancellation
// is always returned as is.
func (g *Generator) Embed(ctx context.Context, texts []string) (*Result, error) {
	if len(texts) == 0 {
		return &Result{}, nil
	}

	vectors, err := g.embedAll(ctx, texts)
	if err == nil {
		return &Result{Vectors: vectors}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	if g.policy == PolicyFallback {
		if dim := g.Dimensions(); dim > 0 {
			g.logger.Warn("embedding provider failed, using mock vectors", "texts", len(texts), "err", err)
			mock := make([][]float32, len(texts))
			for i, text := range texts {
				mock[i] = MockVector(text, dim)
			}
			return &Result{
				Vectors: mock,
				Mock:    true,
				Warning: fmt.Sprintf("mock embedding: provider failed: %v", err),
			}, nil
		}
		g.logger.Warn("cannot fall back to mock vectors without known dimensions")
	}

	return nil, fmt.Errorf("%w: %w", ErrProviderFailure, err)
}

// EmbedQuery embeds a single query text. Failures always propagate.
func (g *Generator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.embedAll(ctx, []string{text})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrProviderFailure, err)
	}
	return vectors[0], nil
}

func (g *Generator) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.parallelism)

	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))
		eg.Go(func() error {
			out, err := g.embedBatch(egCtx, texts[start:end])
			if err != nil {
				return fmt.Errorf("batch [%d:%d]: %w", start, end, err)
			}
			for i, v := range out {
				if err := g.checkDimensions(len(v)); err != nil {
					return err
				}
				vectors[start+i] = Normalize(v)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (g *Generator) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var out [][]float32
	err := retry.Do(ctx, g.retry, func(ctx context.Context) error {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return retry.Permanent(err)
			}
		}

		var err error
		out, err = g.embedder.EmbedTexts(ctx, batch)
		if err != nil {
			return err
		}
		if len(out) != len(batch) {
			return retry.Permanent(fmt.Errorf("%w: %d vectors for %d texts", ErrCountMismatch, len(out), len(batch)))
		}
		return nil
	})
	if err != nil {
		g.logger.Debug("batch failed", "texts", len(batch), "err", err)
		return nil, err
	}
	return out, nil
}

func (g *Generator) checkDimensions(n int) error {
	if n == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	if g.dimensions.CompareAndSwap(0, int64(n)) {
		return nil
	}
	if want := g.dimensions.Load(); int64(n) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, n, want)
	}
	return nil
}
