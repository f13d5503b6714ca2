package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"magicagent/internal/config"
	"magicagent/internal/logger"
	"magicagent/pkg/agenttypes"
)

// GeminiClient implements the LLM capability against the Google Gemini API.
type GeminiClient struct {
	apiKey        string
	model         string
	temperature   float64
	contextWindow int
	client        *genai.Client
}

// NewGeminiClient creates a Gemini-backed LLM from the configuration.
func NewGeminiClient(cfg *config.Config, catalog *Catalog) *GeminiClient {
	return &GeminiClient{
		apiKey:        cfg.LLM.APIKey,
		model:         cfg.LLM.Model,
		temperature:   cfg.LLM.Temperature,
		contextWindow: catalog.ContextWindow(cfg.LLM.Model),
	}
}

// ProviderName returns "gemini".
func (c *GeminiClient) ProviderName() string {
	return "gemini"
}

// MaxContextSize returns the model's context window in tokens.
func (c *GeminiClient) MaxContextSize() int {
	return c.contextWindow
}

func (c *GeminiClient) initClientIfNeeded(ctx context.Context) error {
	if c.client != nil {
		return nil
	}
	if c.apiKey == "" {
		return fmt.Errorf("Gemini API key not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: c.apiKey})
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}
	c.client = client
	logger.Debug("Gemini client initialized", "model", c.model)
	return nil
}

// GenerateChatCompletion sends the conversation to Gemini and returns the
// reply text. System messages become the system instruction; the rest of the
// conversation maps to user/model content entries.
func (c *GeminiClient) GenerateChatCompletion(ctx context.Context, messages []agenttypes.ChatMessage) (string, error) {
	if err := c.initClientIfNeeded(ctx); err != nil {
		return "", agenttypes.NewBackendError(agenttypes.ErrorKindFatal, err)
	}

	contents, systemPrompt := convertMessagesToGemini(messages)

	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(c.temperature)),
	}
	if systemPrompt != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	return withRetry(ctx, c.ProviderName(), func() (string, error) {
		result, err := c.client.Models.GenerateContent(ctx, c.model, contents, genConfig)
		if err != nil {
			return "", c.classify(err)
		}

		text := result.Text()
		if text == "" {
			return "", agenttypes.NewBackendError(agenttypes.ErrorKindRetryable,
				fmt.Errorf("empty response content"))
		}
		return text, nil
	})
}

// CountTokens estimates the token cost of a text.
func (c *GeminiClient) CountTokens(_ context.Context, text string) (int, error) {
	return estimateTokens(text), nil
}

// CountMessageTokens estimates the token cost of a message list.
func (c *GeminiClient) CountMessageTokens(_ context.Context, messages []agenttypes.ChatMessage) (int, error) {
	return estimateMessageTokens(messages), nil
}

func (c *GeminiClient) classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return agenttypes.NewBackendError(classifyStatus(apiErr.Code),
			fmt.Errorf("gemini request failed: %w", err))
	}
	return agenttypes.NewBackendError(agenttypes.ErrorKindRetryable,
		fmt.Errorf("gemini request failed: %w", err))
}

// convertMessagesToGemini converts messages to Gemini content entries,
// returning the conversation and the concatenated system prompt.
func convertMessagesToGemini(messages []agenttypes.ChatMessage) ([]*genai.Content, string) {
	contents := make([]*genai.Content, 0, len(messages))
	systemPrompt := ""

	for _, msg := range messages {
		switch msg.Role {
		case agenttypes.RoleSystem:
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
		case agenttypes.RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}

	return contents, systemPrompt
}
