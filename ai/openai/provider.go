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

package openai

import (
	"log/slog"
	"sync"

	"github.com/poiesic/lore/ai"
)

// Provider serves embeddings and generations from OpenAI-compatible
// endpoints, which may be two different hosts. The generator is built on
// first use so ingestion-only processes never dial the generation host.
type Provider struct {
	config   *ai.Config
	embedder *Embedder
	logger   *slog.Logger

	genOnce   sync.Once
	generator ai.Generator
}

// NewProvider validates config and builds the embedder.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}

	return &Provider{
		config:   config,
		embedder: embedder,
		logger: slog.Default().With("component", "openai-provider",
			"embedding_host", config.EmbeddingHost, "generation_host", config.GenerationHost),
	}, nil
}

func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Generator returns the chat generator. A client that fails to build
// yields a generator that reports the construction error on every call.
func (p *Provider) Generator() ai.Generator {
	p.genOnce.Do(func() {
		g, err := newGenerator(p.config)
		if err != nil {
			p.logger.Error("cannot build generator", "err", err)
			p.generator = brokenGenerator{err: err}
			return
		}
		p.generator = g
	})
	return p.generator
}

// Close is a no-op; langchaingo clients hold no connections of their own.
func (p *Provider) Close() error {
	return nil
}
