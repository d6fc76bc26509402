package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// ErrMalformedResponse marks provider output that arrived but could not be
// interpreted (no function call, empty arguments, invalid JSON). Transport and
// upstream status failures are returned without it.
var ErrMalformedResponse = errors.New("malformed model response")

// StructuredGenerator forces the model to answer by calling fn and returns the
// raw JSON arguments of that call. All providers (Gemini, Ollama,
// OpenAI-compatible) implement this interface.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, fn FunctionSpec) (json.RawMessage, error)
}

// FunctionSpec declares the single function the model must call.
// Parameters is a JSON schema object.
type FunctionSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// rawArguments validates that s holds a JSON object, tolerating a fenced
// ```json block around it.
func rawArguments(s string) (json.RawMessage, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrMalformedResponse
	}
	raw := json.RawMessage(s)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errors.Join(ErrMalformedResponse, err)
	}
	return raw, nil
}
