// Package llm wraps the model provider behind a small interface so the
// capture pipeline can be tested against fakes. One implementation exists
// (OpenAI); the pipeline only sees Client.
package llm

import (
	"context"
	"errors"
	"time"
)

// Timeouts for model operations. Classification gets the long budget;
// embeddings are quick lookups.
const (
	TimeoutComplete = 45 * time.Second
	TimeoutEmbed    = 10 * time.Second
)

// Domain errors.
var (
	ErrNoChoices = errors.New("model returned no choices")
	ErrNoAPIKey  = errors.New("no API key configured")
)

// Client is the interface the pipeline uses for structured generation and
// embeddings.
type Client interface {
	// Complete sends a chat request and returns the raw text of the first
	// choice. When req.JSONMode is set the provider is asked for a JSON
	// object response.
	Complete(ctx context.Context, req *Request) (*Response, error)
	// Embed returns the embedding vector for the input under the given model.
	Embed(ctx context.Context, model, input string) ([]float32, error)
}

// Request is a chat completion request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// Message is one chat turn.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Response is the provider-agnostic completion result.
type Response struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
}
