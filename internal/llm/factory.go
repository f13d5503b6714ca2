package llm

import (
	"fmt"
	"sort"
	"sync"

	"magicagent/internal/config"
	"magicagent/internal/logger"
	"magicagent/pkg/agenttypes"
)

// ProviderConstructor builds an LLM client for one provider.
type ProviderConstructor func(cfg *config.Config, catalog *Catalog) (agenttypes.LLM, error)

var (
	providersMu sync.RWMutex
	providers   = map[string]ProviderConstructor{}
)

// RegisterProvider binds a provider name to its constructor. The built-in
// providers register at init; additional providers may be registered at
// startup before the first New call.
func RegisterProvider(name string, ctor ProviderConstructor) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[name] = ctor
}

// Providers returns the registered provider names, sorted.
func Providers() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates the LLM client for the configured provider.
func New(cfg *config.Config) (agenttypes.LLM, error) {
	catalog, err := LoadCatalog()
	if err != nil {
		return nil, err
	}

	providersMu.RLock()
	ctor, ok := providers[cfg.LLM.Provider]
	providersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider: %s (available: %v)", cfg.LLM.Provider, Providers())
	}

	client, err := ctor(cfg, catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.LLM.Provider, err)
	}

	logger.Info("LLM client created",
		"provider", client.ProviderName(), "model", cfg.LLM.Model,
		"context_window", client.MaxContextSize())
	return client, nil
}

func init() {
	RegisterProvider("openai", func(cfg *config.Config, catalog *Catalog) (agenttypes.LLM, error) {
		return NewOpenAIClient(cfg, catalog), nil
	})
	RegisterProvider("anthropic", func(cfg *config.Config, catalog *Catalog) (agenttypes.LLM, error) {
		return NewAnthropicClient(cfg, catalog), nil
	})
	RegisterProvider("gemini", func(cfg *config.Config, catalog *Catalog) (agenttypes.LLM, error) {
		return NewGeminiClient(cfg, catalog), nil
	})
	RegisterProvider("mock", func(_ *config.Config, _ *Catalog) (agenttypes.LLM, error) {
		return NewMockClient(), nil
	})
}
