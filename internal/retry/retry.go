// Package retry provides the bounded retry/backoff wrapper used by every
// outbound call the pipeline makes (classification, embeddings, page-title
// fetch, notification delivery).
//
// Only transport-class failures are retried: timeouts, connection errors,
// HTTP 429, and 5xx responses. Semantic failures (bad input, parse errors,
// resolution failures) must never be retried; callers surface those
// directly.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Policy bounds a retried operation.
type Policy struct {
	Attempts    int           // total attempts, including the first
	BaseBackoff time.Duration // delay before the second attempt
	MaxBackoff  time.Duration // backoff cap
}

// DefaultPolicy is the attempt budget used for all outbound calls.
var DefaultPolicy = Policy{
	Attempts:    3,
	BaseBackoff: 500 * time.Millisecond,
	MaxBackoff:  8 * time.Second,
}

// HTTPStatusError marks an error carrying an HTTP status code, so transport
// wrappers outside the OpenAI client (e.g. the Telegram sender) can opt in
// to status-based retry classification.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// Do runs fn up to p.Attempts times, sleeping with exponential backoff
// between attempts. Non-retryable errors abort immediately. The context is
// honored during backoff sleeps; fn is responsible for its own call timeout.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if p.Attempts <= 0 {
		p.Attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, p.backoff(attempt)); err != nil {
				return zero, err
			}
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !Retryable(err) {
			return zero, err
		}
	}
	return zero, fmt.Errorf("retry budget exhausted after %d attempts: %w", p.Attempts, lastErr)
}

func (p Policy) backoff(attempt int) time.Duration {
	d := p.BaseBackoff << (attempt - 1)
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled during backoff: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}

// Retryable reports whether err is a transport or rate-limit class failure.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	// A call-level deadline counts as a timeout; a cancelled parent does not.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return retryableStatus(statusErr.StatusCode)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}

	return false
}

func retryableStatus(code int) bool {
	return code == 429 || (code >= 500 && code <= 599)
}
