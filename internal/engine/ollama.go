package engine

import (
	"context"
	"fmt"

	"github.com/clauselens/clauselens/internal/ollama"
)

// OllamaEngine adapts the internal/ollama.Client to the Engine interface,
// pinning the model name from configuration.
type OllamaEngine struct {
	client *ollama.Client
	model  string
}

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at baseURL.
func NewOllamaEngine(baseURL, model string) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL), model: model}
}

func (e *OllamaEngine) Chat(ctx context.Context, messages []Message, jsonSchema *Schema) (string, error) {
	msgs := make([]ollama.Message, len(messages))
	for i, m := range messages {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}

	var s *ollama.Schema
	if jsonSchema != nil {
		s = &ollama.Schema{
			Type:     jsonSchema.Type,
			Required: jsonSchema.Required,
		}
		if jsonSchema.Properties != nil {
			s.Properties = make(map[string]ollama.SchemaProperty, len(jsonSchema.Properties))
			for k, v := range jsonSchema.Properties {
				s.Properties[k] = ollama.SchemaProperty{Type: v.Type, Description: v.Description}
			}
		}
	}

	return e.client.Chat(ctx, e.model, msgs, s)
}

func (e *OllamaEngine) Ping(ctx context.Context) error {
	if !e.client.IsRunning(ctx) {
		return fmt.Errorf("ollama is not reachable")
	}
	if !e.client.HasModel(ctx, e.model) {
		return fmt.Errorf("model %q is not available locally (run: ollama pull %s)", e.model, e.model)
	}
	return nil
}
