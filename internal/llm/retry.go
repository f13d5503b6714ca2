package llm

import (
	"context"
	"errors"
	"time"

	"magicagent/internal/logger"
	"magicagent/pkg/agenttypes"
)

const (
	maxRetries = 3
	baseDelay  = time.Second
)

// withRetry runs fn with bounded exponential backoff. Only failures carrying
// a retryable BackendError classification are retried; everything else is
// returned immediately. By the time an error leaves this layer, retries are
// exhausted — callers never retry again.
func withRetry(ctx context.Context, provider string, fn func() (string, error)) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay << (attempt - 1)
			logger.Warn("retrying backend request",
				"provider", provider, "attempt", attempt, "max", maxRetries, "delay", delay)
			select {
			case <-ctx.Done():
				return "", agenttypes.NewBackendError(agenttypes.ErrorKindFatal, ctx.Err())
			case <-time.After(delay):
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		var backendErr *agenttypes.BackendError
		if !errors.As(err, &backendErr) || !backendErr.Retryable() {
			return "", err
		}
	}

	logger.Error("backend request failed after retries", "provider", provider, "error", lastErr)
	return "", lastErr
}

// classifyStatus maps an HTTP status code to an error kind. Timeouts, rate
// limits, and server-side failures are transient; everything else is fatal.
func classifyStatus(status int) agenttypes.ErrorKind {
	switch {
	case status == 408 || status == 429:
		return agenttypes.ErrorKindRetryable
	case status >= 500:
		return agenttypes.ErrorKindRetryable
	default:
		return agenttypes.ErrorKindFatal
	}
}
