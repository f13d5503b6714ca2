package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"magicagent/internal/config"
	"magicagent/internal/logger"
	"magicagent/pkg/agenttypes"
)

// AnthropicClient implements the LLM capability against the Anthropic API.
type AnthropicClient struct {
	apiKey        string
	model         string
	temperature   float64
	maxTokens     int
	contextWindow int
	client        *anthropic.Client
}

// NewAnthropicClient creates an Anthropic-backed LLM from the configuration.
func NewAnthropicClient(cfg *config.Config, catalog *Catalog) *AnthropicClient {
	return &AnthropicClient{
		apiKey:        cfg.LLM.APIKey,
		model:         cfg.LLM.Model,
		temperature:   cfg.LLM.Temperature,
		maxTokens:     cfg.LLM.MaxTokens,
		contextWindow: catalog.ContextWindow(cfg.LLM.Model),
	}
}

// ProviderName returns "anthropic".
func (c *AnthropicClient) ProviderName() string {
	return "anthropic"
}

// MaxContextSize returns the model's context window in tokens.
func (c *AnthropicClient) MaxContextSize() int {
	return c.contextWindow
}

func (c *AnthropicClient) initClientIfNeeded() error {
	if c.client != nil {
		return nil
	}
	if c.apiKey == "" {
		return fmt.Errorf("Anthropic API key not configured")
	}
	client := anthropic.NewClient(option.WithAPIKey(c.apiKey))
	c.client = &client
	logger.Debug("Anthropic client initialized", "model", c.model)
	return nil
}

// GenerateChatCompletion sends the conversation to Anthropic and returns the
// reply text. System messages are lifted out of the conversation into the
// request's system field, which is where the Anthropic API expects them.
func (c *AnthropicClient) GenerateChatCompletion(ctx context.Context, messages []agenttypes.ChatMessage) (string, error) {
	if err := c.initClientIfNeeded(); err != nil {
		return "", agenttypes.NewBackendError(agenttypes.ErrorKindFatal, err)
	}

	converted, systemPrompt := convertMessagesToAnthropic(messages)

	maxTokens := c.maxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(maxTokens),
		Messages:    converted,
		Temperature: anthropic.Float(c.temperature),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	return withRetry(ctx, c.ProviderName(), func() (string, error) {
		message, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return "", c.classify(err)
		}
		if len(message.Content) == 0 {
			return "", agenttypes.NewBackendError(agenttypes.ErrorKindRetryable,
				fmt.Errorf("no response content returned"))
		}

		var content strings.Builder
		for _, block := range message.Content {
			content.WriteString(block.Text)
		}
		if content.Len() == 0 {
			return "", agenttypes.NewBackendError(agenttypes.ErrorKindRetryable,
				fmt.Errorf("empty response content"))
		}
		return content.String(), nil
	})
}

// CountTokens estimates the token cost of a text.
func (c *AnthropicClient) CountTokens(_ context.Context, text string) (int, error) {
	return estimateTokens(text), nil
}

// CountMessageTokens estimates the token cost of a message list.
func (c *AnthropicClient) CountMessageTokens(_ context.Context, messages []agenttypes.ChatMessage) (int, error) {
	return estimateMessageTokens(messages), nil
}

func (c *AnthropicClient) classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return agenttypes.NewBackendError(classifyStatus(apiErr.StatusCode),
			fmt.Errorf("anthropic request failed: %w", err))
	}
	return agenttypes.NewBackendError(agenttypes.ErrorKindRetryable,
		fmt.Errorf("anthropic request failed: %w", err))
}

// convertMessagesToAnthropic converts messages to the Anthropic format,
// returning the conversation and the concatenated system prompt.
func convertMessagesToAnthropic(messages []agenttypes.ChatMessage) ([]anthropic.MessageParam, string) {
	converted := make([]anthropic.MessageParam, 0, len(messages))
	var systemParts []string

	for _, msg := range messages {
		switch msg.Role {
		case agenttypes.RoleSystem:
			systemParts = append(systemParts, msg.Content)
		case agenttypes.RoleAssistant:
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	return converted, strings.Join(systemParts, "\n\n")
}
