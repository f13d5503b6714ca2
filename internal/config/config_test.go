package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "default", cfg.Agent.Type)
	assert.Equal(t, 10, cfg.Agent.MaxSteps)
	assert.True(t, cfg.Agent.AutoSave)
	assert.Equal(t, 5*time.Second, cfg.Agent.SaveInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.Agent.SessionRetention)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 1000, cfg.LLM.ReservedTokens)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Agent.MaxSteps, cfg.Agent.MaxSteps)
	assert.Equal(t, Default().LLM.Model, cfg.LLM.Model)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().LLM.Provider, cfg.LLM.Provider)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
agent:
  name: Helper
  max_steps: 3
  save_interval: 10s
llm:
  provider: anthropic
  model: claude-sonnet-4-20250514
  temperature: 0.2
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Helper", cfg.Agent.Name)
	assert.Equal(t, 3, cfg.Agent.MaxSteps)
	assert.Equal(t, 10*time.Second, cfg.Agent.SaveInterval)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.LLM.Model)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-9)

	// Untouched settings keep their defaults.
	assert.Equal(t, Default().Agent.SessionRetention, cfg.Agent.SessionRetention)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MAGICAGENT_LLM_PROVIDER", "gemini")
	t.Setenv("MAGICAGENT_AGENT_NAME", "EnvAgent")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "EnvAgent", cfg.Agent.Name)
}

func TestLoad_APIKeyFromProviderEnv(t *testing.T) {
	t.Setenv("MAGICAGENT_LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", cfg.LLM.APIKey)
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("GEMINI_API_KEY", "g-key")

	assert.Equal(t, "sk-openai", APIKeyFromEnv("openai"))
	assert.Equal(t, "g-key", APIKeyFromEnv("gemini"))
	assert.Empty(t, APIKeyFromEnv("unknown"))
}
