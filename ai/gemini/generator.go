package gemini

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/poiesic/lore/ai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Generator implements ai.Generator with a Gemini generative model.
type Generator struct {
	model     *genai.GenerativeModel
	modelName string
	guard     *guard
	logger    *slog.Logger
}

// Generate returns the concatenated text parts of the first candidate.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := otel.Tracer("lore/ai/gemini").Start(ctx, "gemini.generate_content")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", g.modelName),
		attribute.Int("gemini.prompt_length", len(prompt)),
	)

	resp, err := do(ctx, g.guard, func() (*genai.GenerateContentResponse, error) {
		return g.model.GenerateContent(ctx, genai.Text(prompt))
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		g.logger.Error("failed to generate content", "err", err)
		return "", err
	}

	text := responseText(resp)
	if text == "" {
		return "", ai.ErrEmptyResponse
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return strings.TrimSpace(b.String())
}
