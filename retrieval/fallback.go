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
	"log/slog"
	"strings"

	"github.com/poiesic/lore/ai"
	"github.com/poiesic/lore/core"
)

const (
	// DefaultFallbackSamples is how many of the best sub-threshold
	// candidates feed topic hints.
	DefaultFallbackSamples = 3

	// DefaultTopicHints caps the number of hints offered.
	DefaultTopicHints = 5
)

// FallbackStrategy produces the response for a query that no source
// answers. candidates are the nearest matches that missed the confidence
// threshold, best first; they may be empty.
type FallbackStrategy interface {
	Respond(ctx context.Context, query string, candidates []core.VectorMatch) (string, error)
}

// FallbackFunc adapts a function to FallbackStrategy.
type FallbackFunc func(ctx context.Context, query string, candidates []core.VectorMatch) (string, error)

func (f FallbackFunc) Respond(ctx context.Context, query string, candidates []core.VectorMatch) (string, error) {
	return f(ctx, query, candidates)
}

// KeywordFallback suggests adjacent topics taken from the most frequent
// keywords of the near misses. The generator phrases the reply; without one,
// or when it fails, a fixed message lists the hints.
type KeywordFallback struct {
	generator ai.Generator
	samples   int
	hints     int
	logger    *slog.Logger
}

// FallbackOption configures a KeywordFallback.
type FallbackOption func(*KeywordFallback)

// WithSamples sets how many candidates are mined for hints.
func WithSamples(n int) FallbackOption {
	return func(f *KeywordFallback) {
		if n > 0 {
			f.samples = n
		}
	}
}

// WithTopicHints sets the maximum number of hints.
func WithTopicHints(n int) FallbackOption {
	return func(f *KeywordFallback) {
		if n > 0 {
			f.hints = n
		}
	}
}

// WithFallbackLogger sets a custom logger.
func WithFallbackLogger(logger *slog.Logger) FallbackOption {
	return func(f *KeywordFallback) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewKeywordFallback creates a KeywordFallback. generator may be nil.
func NewKeywordFallback(generator ai.Generator, opts ...FallbackOption) *KeywordFallback {
	f := &KeywordFallback{
		generator: generator,
		samples:   DefaultFallbackSamples,
		hints:     DefaultTopicHints,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "keyword_fallback")
	return f
}

// sample returns the best candidates the fallback looks at.
func (f *KeywordFallback) sample(candidates []core.VectorMatch) []core.VectorMatch {
	if len(candidates) > f.samples {
		return candidates[:f.samples]
	}
	return candidates
}

// TopicHints returns the keywords offered for candidates.
func (f *KeywordFallback) TopicHints(candidates []core.VectorMatch) []string {
	candidates = f.sample(candidates)
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Metadata.Snippet
	}
	return topKeywords(texts, f.hints)
}

// Respond never fails unless ctx is done.
func (f *KeywordFallback) Respond(ctx context.Context, query string, candidates []core.VectorMatch) (string, error) {
	hints := f.TopicHints(candidates)
	if f.generator == nil {
		return noResultsMessage(hints), nil
	}

	reply, err := f.generator.Generate(ctx, noResultsPrompt(query, hints, f.sample(candidates)))
	if err == nil && strings.TrimSpace(reply) != "" {
		return strings.TrimSpace(reply), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		f.logger.Warn("fallback generation failed, using template", "err", err)
	}
	return noResultsMessage(hints), nil
}
