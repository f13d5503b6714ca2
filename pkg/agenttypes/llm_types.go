// Package agenttypes defines LLM backend types and interfaces for magicagent.
// This file contains the capability contract the agent core consumes from the
// LLM layer, plus the typed error classification used to drive retries.
package agenttypes

import (
	"context"
	"fmt"
)

// ErrorKind classifies a backend failure so callers can decide whether to
// retry without inspecting error strings.
type ErrorKind int

const (
	// ErrorKindFatal marks failures that will not succeed on retry
	// (bad request, authentication, context overflow).
	ErrorKindFatal ErrorKind = iota
	// ErrorKindRetryable marks transient failures (timeouts, rate limits,
	// server overload).
	ErrorKindRetryable
)

// BackendError wraps a backend failure with its retry classification.
type BackendError struct {
	Kind ErrorKind
	Err  error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the error is classified as transient.
func (e *BackendError) Retryable() bool {
	return e.Kind == ErrorKindRetryable
}

// NewBackendError wraps err with the given classification.
func NewBackendError(kind ErrorKind, err error) *BackendError {
	return &BackendError{Kind: kind, Err: err}
}

// TokenCounter is the token-measurement capability a backend supplies to the
// token manager. Counting may involve network I/O for some providers, so both
// methods take a context.
type TokenCounter interface {
	// CountTokens returns the token cost of a single text.
	CountTokens(ctx context.Context, text string) (int, error)

	// CountMessageTokens returns the token cost of a message list. The total
	// is not assumed to be the sum of per-message costs.
	CountMessageTokens(ctx context.Context, messages []ChatMessage) (int, error)
}

// LLM is the model-backend capability contract the agent runtime consumes.
// Implementations live in internal/llm; the core only depends on this
// interface.
type LLM interface {
	TokenCounter

	// GenerateChatCompletion sends the conversation to the model and returns
	// the assistant's reply text. Failures carry a BackendError
	// classification after the provider layer has exhausted its retries.
	GenerateChatCompletion(ctx context.Context, messages []ChatMessage) (string, error)

	// MaxContextSize returns the model's context window in tokens.
	MaxContextSize() int

	// ProviderName returns the backend provider name (e.g. "openai").
	ProviderName() string
}
