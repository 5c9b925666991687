// Package vision analyzes captured images: it classifies whether an image is
// a finance document (receipt, slip, invoice) and extracts a structured guess
// plus OCR text for downstream routing.
package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	brainotel "github.com/natthamonpisit/PARA-Brain-sub001/internal/otel"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/retry"
)

var tracer = brainotel.Tracer("github.com/natthamonpisit/PARA-Brain-sub001/internal/vision")

// Analysis is the structured guess for one image.
type Analysis struct {
	IsFinanceDocument bool    `json:"is_finance_document"`
	TransactionKind   string  `json:"transaction_kind,omitempty"` // "expense", "income", "transfer"
	Amount            float64 `json:"amount,omitempty"`
	Currency          string  `json:"currency,omitempty"`
	Merchant          string  `json:"merchant,omitempty"`
	OCRText           string  `json:"ocr_text,omitempty"`
	Confidence        float64 `json:"confidence"`
}

// Analyzer produces an Analysis for raw image bytes.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, mimeType, caption string) (*Analysis, error)
}

const analyzePrompt = `Analyze the image. Respond with a single JSON object:
{
  "is_finance_document": "boolean; true for receipts, transfer slips, invoices",
  "transaction_kind": "one of: expense | income | transfer, when financial",
  "amount": "number, the total amount when financial",
  "currency": "string currency code or symbol",
  "merchant": "string merchant or counterparty name",
  "ocr_text": "string, the visible text, condensed",
  "confidence": "number in [0,1]"
}`

// OpenAIAnalyzer implements Analyzer with a vision-capable chat model.
type OpenAIAnalyzer struct {
	client *openai.Client
	model  string
}

// NewOpenAIAnalyzer creates a vision analyzer.
func NewOpenAIAnalyzer(client *openai.Client, model string) *OpenAIAnalyzer {
	return &OpenAIAnalyzer{client: client, model: model}
}

// Analyze sends the image inline as a data URL and decodes the structured
// guess from the model's reply.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, image []byte, mimeType, caption string) (*Analysis, error) {
	ctx, span := tracer.Start(ctx, "vision.analyze")
	defer span.End()

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))

	userParts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
	}
	if caption != "" {
		userParts = append(userParts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: "Caption: " + caption,
		})
	}

	resp, err := retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		return a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: a.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: analyzePrompt},
				{Role: openai.ChatMessageRoleUser, MultiContent: userParts},
			},
			MaxTokens: 1024,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("vision analyze: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("vision analyze: empty response")
	}

	return parseAnalysis(resp.Choices[0].Message.Content)
}

func parseAnalysis(content string) (*Analysis, error) {
	raw := strings.TrimSpace(content)
	if i := strings.Index(raw, "{"); i > 0 {
		raw = raw[i:]
	}
	if i := strings.LastIndex(raw, "}"); i >= 0 {
		raw = raw[:i+1]
	}
	var out Analysis
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("vision analyze: decode: %w", err)
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return &out, nil
}
