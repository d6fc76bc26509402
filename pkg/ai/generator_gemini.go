package ai

import (
	"context"
	"encoding/json"
)

// GeminiGenerator wraps GeminiClient with a fixed model.
type GeminiGenerator struct {
	client *GeminiClient
	model  string
}

// NewGeminiGenerator builds a Gemini-based StructuredGenerator.
func NewGeminiGenerator(client *GeminiClient, model string) *GeminiGenerator {
	return &GeminiGenerator{client: client, model: model}
}

// GenerateStructured implements StructuredGenerator using Gemini function calling.
func (g *GeminiGenerator) GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, fn FunctionSpec) (json.RawMessage, error) {
	return g.client.GenerateStructured(ctx, g.model, systemPrompt, userPrompt, fn)
}
