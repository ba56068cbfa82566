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

package gemini

import (
	"context"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"github.com/poiesic/lore/ai"
	"google.golang.org/api/option"
)

// Provider implements ai.AIProvider on one genai client.
type Provider struct {
	client    *genai.Client
	embedder  *Embedder
	generator *Generator
	logger    *slog.Logger
}

// NewProvider creates a Gemini-backed provider.
//
// Returns ai.AIProvider interface to enforce abstraction.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("component", "gemini-provider")
	g := newGuard("gemini", config.RequestsPerMinute, logger)

	model := client.GenerativeModel(config.GenerationModel)
	model.SetTemperature(float32(config.Temperature))
	model.SetMaxOutputTokens(2048)

	return &Provider{
		client: client,
		embedder: &Embedder{
			model:  client.EmbeddingModel(config.EmbeddingModel),
			guard:  g,
			logger: slog.Default().With("component", "gemini-embedder"),
		},
		generator: &Generator{
			model:     model,
			modelName: config.GenerationModel,
			guard:     g,
			logger:    slog.Default().With("component", "gemini-generator"),
		},
		logger: logger,
	}, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Generator returns the text generation service.
func (p *Provider) Generator() ai.Generator {
	return p.generator
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	p.logger.Debug("closing Gemini provider")
	return p.client.Close()
}
