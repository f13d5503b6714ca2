package llm

import (
	"context"
	"fmt"
	"sync"

	"magicagent/pkg/agenttypes"
)

// MockClient is an in-memory LLM used in tests and in the "mock" provider
// mode. It echoes a canned response and records every request it receives.
type MockClient struct {
	mu sync.Mutex

	// Response is returned from GenerateChatCompletion when Err is nil.
	// When empty, a reply echoing the last user message is produced.
	Response string
	// Err, when set, fails every completion call.
	Err error
	// ContextWindow defaults to 8192 when zero.
	ContextWindow int
	// TokensPerMessage overrides estimate-based counting when non-zero.
	TokensPerMessage int

	calls [][]agenttypes.ChatMessage
}

// NewMockClient creates a mock backend with default settings.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// ProviderName returns "mock".
func (c *MockClient) ProviderName() string {
	return "mock"
}

// MaxContextSize returns the configured context window.
func (c *MockClient) MaxContextSize() int {
	if c.ContextWindow > 0 {
		return c.ContextWindow
	}
	return 8192
}

// GenerateChatCompletion records the request and returns the canned
// response.
func (c *MockClient) GenerateChatCompletion(_ context.Context, messages []agenttypes.ChatMessage) (string, error) {
	c.mu.Lock()
	snapshot := make([]agenttypes.ChatMessage, len(messages))
	copy(snapshot, messages)
	c.calls = append(c.calls, snapshot)
	c.mu.Unlock()

	if c.Err != nil {
		return "", c.Err
	}
	if c.Response != "" {
		return c.Response, nil
	}

	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == agenttypes.RoleUser {
			return fmt.Sprintf("You said: %s", messages[i].Content), nil
		}
	}
	return "Hello! This is a mock response.", nil
}

// CountTokens estimates the token cost of a text.
func (c *MockClient) CountTokens(_ context.Context, text string) (int, error) {
	if c.TokensPerMessage > 0 {
		return c.TokensPerMessage, nil
	}
	return estimateTokens(text), nil
}

// CountMessageTokens estimates the token cost of a message list.
func (c *MockClient) CountMessageTokens(_ context.Context, messages []agenttypes.ChatMessage) (int, error) {
	if c.TokensPerMessage > 0 {
		return c.TokensPerMessage * len(messages), nil
	}
	return estimateMessageTokens(messages), nil
}

// Calls returns the recorded completion requests.
func (c *MockClient) Calls() [][]agenttypes.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
