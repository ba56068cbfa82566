package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"github.com/poiesic/lore/ai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// maxBatch is the upstream limit on contents per batch embed request.
const maxBatch = 100

// Embedder implements ai.Embedder with a Gemini embedding model.
type Embedder struct {
	model  *genai.EmbeddingModel
	guard  *guard
	logger *slog.Logger
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings, issuing
// one batch request per maxBatch texts.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := otel.Tracer("lore/ai/gemini").Start(ctx, "gemini.embed")
	defer span.End()
	span.SetAttributes(attribute.Int("gemini.texts", len(texts)))

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))
		batch := texts[start:end]

		resp, err := do(ctx, e.guard, func() (*genai.BatchEmbedContentsResponse, error) {
			b := e.model.NewBatch()
			for _, t := range batch {
				b.AddContent(genai.Text(t))
			}
			return e.model.BatchEmbedContents(ctx, b)
		})
		if err != nil {
			span.SetAttributes(attribute.Bool("gemini.error", true))
			e.logger.Error("failed to generate embeddings", "count", len(batch), "err", err)
			return nil, err
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, fmt.Errorf("gemini: got %d embeddings for %d texts: %w", len(resp.Embeddings), len(batch), ai.ErrEmptyResponse)
		}
		for _, emb := range resp.Embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return nil, ai.ErrEmptyResponse
			}
			vectors = append(vectors, emb.Values)
		}
	}
	return vectors, nil
}
