package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	maxRetries        = 3
	initialBackoff    = 500 * time.Millisecond
)

// OpenRouterEngine is a remote completion backend speaking the
// OpenAI-compatible chat completions API. Structured output is requested
// via a system instruction rather than a format field; callers salvage
// the JSON with ExtractJSON either way.
type OpenRouterEngine struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewOpenRouterEngine creates an engine for the given API key and model.
func NewOpenRouterEngine(apiKey, model string) *OpenRouterEngine {
	return &OpenRouterEngine{
		apiKey:     apiKey,
		model:      model,
		baseURL:    openRouterBaseURL,
		httpClient: &http.Client{Timeout: 0},
	}
}

// NewOpenRouterEngineWithBaseURL creates an engine pointing at a custom base URL (for testing).
func NewOpenRouterEngineWithBaseURL(apiKey, model, baseURL string) *OpenRouterEngine {
	e := NewOpenRouterEngine(apiKey, model)
	e.baseURL = strings.TrimRight(baseURL, "/")
	return e
}

type chatCompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	_, ok := err.(*rateLimitError)
	return ok
}

func (e *OpenRouterEngine) Chat(ctx context.Context, messages []Message, jsonSchema *Schema) (string, error) {
	msgs := messages
	if jsonSchema != nil {
		instr, err := json.Marshal(jsonSchema)
		if err != nil {
			return "", fmt.Errorf("marshaling schema: %w", err)
		}
		sys := Message{
			Role:    "system",
			Content: "Respond with a single JSON object matching this schema, with no surrounding prose: " + string(instr),
		}
		msgs = append([]Message{sys}, messages...)
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:    e.model,
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := range maxRetries {
		out, err := e.doChat(ctx, body)
		if err == nil {
			return out, nil
		}

		if !isRateLimit(err) {
			return "", err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return "", fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func (e *OpenRouterEngine) doChat(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return "", &rateLimitError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("chat completions: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("chat completions: empty choices")
	}
	return result.Choices[0].Message.Content, nil
}

func (e *OpenRouterEngine) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("openrouter unreachable: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("openrouter rejected the API key")
	}
	return nil
}
