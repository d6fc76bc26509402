package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// OllamaGenerator wraps OllamaClient with a fixed model using the Ollama
// /api/chat endpoint.
type OllamaGenerator struct {
	client *OllamaClient
	model  string
}

// NewOllamaGenerator builds an Ollama-based generator.
func NewOllamaGenerator(client *OllamaClient, model string) *OllamaGenerator {
	return &OllamaGenerator{client: client, model: model}
}

// GenerateStructured constrains the reply to fn.Parameters through the
// "format" field; the message content is then the argument object.
func (g *OllamaGenerator) GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, fn FunctionSpec) (json.RawMessage, error) {
	resp, err := g.chat(ctx, systemPrompt, userPrompt, fn.Parameters)
	if err != nil {
		return nil, err
	}
	return rawArguments(resp.Message.Content)
}

func (g *OllamaGenerator) chat(ctx context.Context, systemPrompt, userPrompt string, format map[string]any) (ollamaChatResponse, error) {
	model := strings.TrimSpace(g.model)
	if model == "" {
		return ollamaChatResponse{}, fmt.Errorf("ollama generation model required")
	}

	messages := make([]ollamaChatMessage, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, ollamaChatMessage{Role: "user", Content: userPrompt})

	reqBody := ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Format:   format,
	}

	var resp ollamaChatResponse
	if _, err := g.client.doJSON(ctx, "/api/chat", reqBody, &resp); err != nil {
		return ollamaChatResponse{}, fmt.Errorf("ollama generate: %w", err)
	}
	return resp, nil
}

// Ollama /api/chat request/response types.

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Format   map[string]any      `json:"format,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
}
