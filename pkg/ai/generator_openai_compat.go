package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatGenerator calls any OpenAI-compatible /v1/chat/completions endpoint.
// Works with vLLM, LiteLLM, LocalAI, OpenRouter, self-hosted models, etc.
type OpenAICompatGenerator struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAICompatGenerator builds an OpenAI-compatible generator.
// baseURL should include the /v1 prefix, e.g. "http://localhost:8000/v1".
// apiKey can be empty for local models that do not require authentication.
func NewOpenAICompatGenerator(baseURL, apiKey, model string, timeout time.Duration) *OpenAICompatGenerator {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAICompatGenerator{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		model:      strings.TrimSpace(model),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GenerateStructured forces a call to fn via tool_choice and returns its arguments.
// Servers that ignore tools and answer with plain JSON content are accepted too.
func (g *OpenAICompatGenerator) GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, fn FunctionSpec) (json.RawMessage, error) {
	if g.model == "" {
		return nil, fmt.Errorf("openai-compat generation model required")
	}
	reqBody := oaiChatRequest{
		Model:    g.model,
		Messages: oaiMessages(systemPrompt, userPrompt),
		Tools: []oaiTool{{
			Type: "function",
			Function: oaiFunction{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  fn.Parameters,
			},
		}},
		ToolChoice: &oaiToolChoice{
			Type:     "function",
			Function: oaiToolChoiceFunction{Name: fn.Name},
		},
	}
	chatResp, err := g.chat(ctx, reqBody)
	if err != nil {
		return nil, err
	}
	msg := chatResp.Choices[0].Message
	for _, call := range msg.ToolCalls {
		if call.Function.Name == fn.Name {
			return rawArguments(call.Function.Arguments)
		}
	}
	if strings.TrimSpace(msg.Content) != "" {
		return rawArguments(msg.Content)
	}
	return nil, fmt.Errorf("%w: openai-compat api did not call %s", ErrMalformedResponse, fn.Name)
}

func (g *OpenAICompatGenerator) chat(ctx context.Context, reqBody oaiChatRequest) (oaiChatResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return oaiChatResponse{}, err
	}

	url := g.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return oaiChatResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return oaiChatResponse{}, fmt.Errorf("openai-compat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp oaiErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return oaiChatResponse{}, fmt.Errorf("openai-compat api error: %s", errResp.Error.Message)
		}
		return oaiChatResponse{}, fmt.Errorf("openai-compat api error: %s", resp.Status)
	}

	var chatResp oaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return oaiChatResponse{}, fmt.Errorf("%w: openai-compat decode: %v", ErrMalformedResponse, err)
	}
	if len(chatResp.Choices) == 0 {
		return oaiChatResponse{}, fmt.Errorf("%w: empty response from openai-compat api", ErrMalformedResponse)
	}
	return chatResp, nil
}

func oaiMessages(systemPrompt, userPrompt string) []oaiMessage {
	messages := make([]oaiMessage, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, oaiMessage{Role: "system", Content: systemPrompt})
	}
	return append(messages, oaiMessage{Role: "user", Content: userPrompt})
}

// OpenAI-compatible request/response types.

type oaiMessage struct {
	Role      string        `json:"role"`
	Content   string        `json:"content"`
	ToolCalls []oaiToolCall `json:"tool_calls,omitempty"`
}

type oaiToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type oaiTool struct {
	Type     string      `json:"type"`
	Function oaiFunction `json:"function"`
}

type oaiFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type oaiToolChoice struct {
	Type     string                `json:"type"`
	Function oaiToolChoiceFunction `json:"function"`
}

type oaiToolChoiceFunction struct {
	Name string `json:"name"`
}

type oaiChatRequest struct {
	Model      string         `json:"model"`
	Messages   []oaiMessage   `json:"messages"`
	Tools      []oaiTool      `json:"tools,omitempty"`
	ToolChoice *oaiToolChoice `json:"tool_choice,omitempty"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
