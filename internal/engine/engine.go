package engine

import "context"

// Engine abstracts the completion backend (local Ollama or a remote
// OpenAI-compatible provider). Pipeline stages, enhancement tasks, and
// the query engine depend on this interface instead of a concrete client.
type Engine interface {
	// Chat sends messages and returns the assistant's response.
	// When jsonSchema is non-nil, structured JSON output is requested.
	Chat(ctx context.Context, messages []Message, jsonSchema *Schema) (string, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Schema describes the expected JSON output structure for structured chat responses.
type Schema struct {
	Type       string                    `json:"type"`
	Properties map[string]SchemaProperty `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// SchemaProperty describes a single field within a Schema.
type SchemaProperty struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}
