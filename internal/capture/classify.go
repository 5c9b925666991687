package capture

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/llm"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/retry"
)

// Classifier invokes the model once through the retry policy and always
// returns a usable output: malformed results downgrade to a neutral
// fallback instead of failing the run.
type Classifier struct {
	client llm.Client
	model  string
}

// NewClassifier creates a classifier invocation wrapper.
func NewClassifier(client llm.Client, model string) *Classifier {
	return &Classifier{client: client, model: model}
}

// neutralFallback is the safe result used when the classifier output cannot
// be parsed. Transport exhaustion is different: that surfaces as an error so
// the pipeline can reply "temporarily unavailable".
func neutralFallback() *ClassifierOutput {
	return &ClassifierOutput{
		Intent:     IntentChitChat,
		Confidence: 0.4,
		Actionable: false,
		Operation:  OpChat,
	}
}

// Classify runs one structured-generation call. Retries cover transport and
// rate-limit failures only; a semantically malformed response is never
// retried, it falls back.
func (c *Classifier) Classify(ctx context.Context, built *BuiltRequest) (*ClassifierOutput, error) {
	ctx, span := tracer.Start(ctx, "capture.classify",
		trace.WithAttributes(attribute.String("model", c.model)))
	defer span.End()

	resp, err := retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) (*llm.Response, error) {
		return c.client.Complete(ctx, &llm.Request{
			Model: c.model,
			Messages: []llm.Message{
				{Role: "system", Content: built.System},
				{Role: "user", Content: built.User},
			},
			Temperature: 0.2,
			MaxTokens:   1024,
			JSONMode:    true,
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	out, ok := parseClassifierOutput(resp.Content)
	if !ok {
		log.Warn().Str("model", c.model).Msg("classifier_output_malformed")
		span.SetAttributes(attribute.Bool("fallback", true))
		return neutralFallback(), nil
	}
	return out, nil
}

// parseClassifierOutput decodes and normalizes the model's JSON. Tolerates
// surrounding prose and code fences; anything beyond that is malformed.
func parseClassifierOutput(content string) (*ClassifierOutput, bool) {
	raw := strings.TrimSpace(content)
	if i := strings.Index(raw, "{"); i > 0 {
		raw = raw[i:]
	}
	if i := strings.LastIndex(raw, "}"); i >= 0 {
		raw = raw[:i+1]
	}

	var out ClassifierOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, false
	}
	if out.Intent == "" || out.Operation == "" {
		return nil, false
	}

	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	switch out.Operation {
	case OpCreate, OpTransaction, OpModuleItem, OpComplete, OpChat:
	default:
		return nil, false
	}
	return &out, true
}
