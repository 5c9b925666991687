package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/trace"

	brainotel "github.com/natthamonpisit/PARA-Brain-sub001/internal/otel"
)

var tracer = brainotel.Tracer("github.com/natthamonpisit/PARA-Brain-sub001/internal/llm")

// OpenAIClient implements Client against the OpenAI API.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a client with the given API key.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return &OpenAIClient{client: openai.NewClient(apiKey)}, nil
}

// NewOpenAIClientWithBaseURL creates a client pointing at a custom base URL
// (e.g. an httptest server in e2e tests). baseURL is scheme+host without
// path; the client appends /v1.
func NewOpenAIClientWithBaseURL(apiKey, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL + "/v1"
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

// Raw exposes the underlying SDK client for collaborators needing API
// surfaces beyond Client (e.g. vision multi-content messages).
func (c *OpenAIClient) Raw() *openai.Client {
	return c.client
}

// Complete sends a chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.complete",
		trace.WithAttributes(
			brainotel.GenAISystem.String("openai"),
			brainotel.GenAIRequestModel.String(req.Model),
			brainotel.GenAIRequestTemperature.Float64(req.Temperature),
			brainotel.GenAIRequestMaxTokens.Int(req.MaxTokens),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, TimeoutComplete)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai chat completion: %w", ErrNoChoices)
	}

	span.SetAttributes(
		brainotel.GenAIUsageInputTokens.Int(resp.Usage.PromptTokens),
		brainotel.GenAIUsageOutputTokens.Int(resp.Usage.CompletionTokens),
		brainotel.GenAIResponseFinishReason.String(string(resp.Choices[0].FinishReason)),
	)

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        resp.Model,
	}, nil
}

// Embed returns the embedding vector for input under model.
func (c *OpenAIClient) Embed(ctx context.Context, model, input string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.embed",
		trace.WithAttributes(
			brainotel.GenAISystem.String("openai"),
			brainotel.GenAIRequestModel.String(model),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, TimeoutEmbed)
	defer cancel()

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(model),
		Input: []string{input},
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response")
	}
	return resp.Data[0].Embedding, nil
}
