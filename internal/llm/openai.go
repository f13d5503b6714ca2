package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"magicagent/internal/config"
	"magicagent/internal/logger"
	"magicagent/pkg/agenttypes"
)

// OpenAIClient implements the LLM capability against the OpenAI API.
// The underlying SDK client is created lazily on first use.
type OpenAIClient struct {
	apiKey        string
	model         string
	temperature   float64
	maxTokens     int
	contextWindow int
	client        *openai.Client
}

// NewOpenAIClient creates an OpenAI-backed LLM from the configuration.
func NewOpenAIClient(cfg *config.Config, catalog *Catalog) *OpenAIClient {
	return &OpenAIClient{
		apiKey:        cfg.LLM.APIKey,
		model:         cfg.LLM.Model,
		temperature:   cfg.LLM.Temperature,
		maxTokens:     cfg.LLM.MaxTokens,
		contextWindow: catalog.ContextWindow(cfg.LLM.Model),
	}
}

// ProviderName returns "openai".
func (c *OpenAIClient) ProviderName() string {
	return "openai"
}

// MaxContextSize returns the model's context window in tokens.
func (c *OpenAIClient) MaxContextSize() int {
	return c.contextWindow
}

func (c *OpenAIClient) initClientIfNeeded() error {
	if c.client != nil {
		return nil
	}
	if c.apiKey == "" {
		return fmt.Errorf("OpenAI API key not configured")
	}
	client := openai.NewClient(option.WithAPIKey(c.apiKey))
	c.client = &client
	logger.Debug("OpenAI client initialized", "model", c.model)
	return nil
}

// GenerateChatCompletion sends the conversation to OpenAI and returns the
// reply text. Transient failures are retried with bounded backoff before the
// classified error is returned.
func (c *OpenAIClient) GenerateChatCompletion(ctx context.Context, messages []agenttypes.ChatMessage) (string, error) {
	if err := c.initClientIfNeeded(); err != nil {
		return "", agenttypes.NewBackendError(agenttypes.ErrorKindFatal, err)
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    convertMessagesToOpenAI(messages),
		Temperature: openai.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTokens))
	}

	return withRetry(ctx, c.ProviderName(), func() (string, error) {
		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", c.classify(err)
		}
		if len(completion.Choices) == 0 {
			return "", agenttypes.NewBackendError(agenttypes.ErrorKindRetryable,
				fmt.Errorf("no response choices returned"))
		}
		content := completion.Choices[0].Message.Content
		if content == "" {
			return "", agenttypes.NewBackendError(agenttypes.ErrorKindRetryable,
				fmt.Errorf("empty response content"))
		}
		return content, nil
	})
}

// CountTokens estimates the token cost of a text.
func (c *OpenAIClient) CountTokens(_ context.Context, text string) (int, error) {
	return estimateTokens(text), nil
}

// CountMessageTokens estimates the token cost of a message list.
func (c *OpenAIClient) CountMessageTokens(_ context.Context, messages []agenttypes.ChatMessage) (int, error) {
	return estimateMessageTokens(messages), nil
}

func (c *OpenAIClient) classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return agenttypes.NewBackendError(classifyStatus(apiErr.StatusCode),
			fmt.Errorf("openai request failed: %w", err))
	}
	// Transport-level failures without a status are treated as transient.
	return agenttypes.NewBackendError(agenttypes.ErrorKindRetryable,
		fmt.Errorf("openai request failed: %w", err))
}

func convertMessagesToOpenAI(messages []agenttypes.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case agenttypes.RoleSystem:
			converted = append(converted, openai.SystemMessage(msg.Content))
		case agenttypes.RoleAssistant:
			converted = append(converted, openai.AssistantMessage(msg.Content))
		default:
			converted = append(converted, openai.UserMessage(msg.Content))
		}
	}
	return converted
}
