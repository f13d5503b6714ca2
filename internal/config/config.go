// Package config loads the magicagent configuration. The configuration is
// read once at process start and the resulting Config value is passed into
// each component constructor; there is no global configuration state.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"magicagent/internal/logger"
)

// AgentConfig holds agent runtime settings.
type AgentConfig struct {
	Type         string        `mapstructure:"type"`
	Name         string        `mapstructure:"name"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	DataDir      string        `mapstructure:"data_dir"`
	SessionsDir  string        `mapstructure:"sessions_dir"`
	MaxSteps     int           `mapstructure:"max_steps"`
	MaxIdleLoops int           `mapstructure:"max_idle_loops"`
	AutoSave     bool          `mapstructure:"auto_save"`
	SaveInterval time.Duration `mapstructure:"save_interval"`
	// SessionRetention bounds how long an inactive session survives on disk
	// before the expiry sweep removes it.
	SessionRetention time.Duration `mapstructure:"session_retention"`
}

// LLMConfig holds model backend settings.
type LLMConfig struct {
	Provider       string        `mapstructure:"provider"`
	Model          string        `mapstructure:"model"`
	APIKey         string        `mapstructure:"api_key"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	ReservedTokens int           `mapstructure:"reserved_tokens"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Config is the top-level magicagent configuration.
type Config struct {
	Debug bool        `mapstructure:"debug"`
	Agent AgentConfig `mapstructure:"agent"`
	LLM   LLMConfig   `mapstructure:"llm"`
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Type:             "default",
			Name:             "Assistant",
			DataDir:          "data/agents",
			SessionsDir:      "data/sessions",
			MaxSteps:         10,
			MaxIdleLoops:     5,
			AutoSave:         true,
			SaveInterval:     5 * time.Second,
			SessionRetention: 7 * 24 * time.Hour,
		},
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			Temperature:    0.7,
			MaxTokens:      1000,
			ReservedTokens: 1000,
			Timeout:        30 * time.Second,
		},
	}
}

// Load reads the configuration file at path (if present), applies environment
// overrides, and returns the resulting Config. A missing file is not an
// error; defaults apply. Environment variables use the MAGICAGENT_ prefix
// with underscores (e.g. MAGICAGENT_LLM_PROVIDER).
func Load(path string) (*Config, error) {
	// Best effort: a .env next to the working directory supplies API keys.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Debug("no .env file loaded", "error", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MAGICAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
			logger.Warn("config file not found, using defaults", "path", path)
		} else {
			logger.Info("loaded config file", "path", v.ConfigFileUsed())
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// The API key never lives in the config file; it comes from the
	// provider's conventional environment variable unless set explicitly.
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = APIKeyFromEnv(cfg.LLM.Provider)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("debug", d.Debug)
	v.SetDefault("agent.type", d.Agent.Type)
	v.SetDefault("agent.name", d.Agent.Name)
	v.SetDefault("agent.system_prompt", d.Agent.SystemPrompt)
	v.SetDefault("agent.data_dir", d.Agent.DataDir)
	v.SetDefault("agent.sessions_dir", d.Agent.SessionsDir)
	v.SetDefault("agent.max_steps", d.Agent.MaxSteps)
	v.SetDefault("agent.max_idle_loops", d.Agent.MaxIdleLoops)
	v.SetDefault("agent.auto_save", d.Agent.AutoSave)
	v.SetDefault("agent.save_interval", d.Agent.SaveInterval)
	v.SetDefault("agent.session_retention", d.Agent.SessionRetention)
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.reserved_tokens", d.LLM.ReservedTokens)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
}

// APIKeyFromEnv returns the conventional environment API key for a provider.
func APIKeyFromEnv(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	default:
		return ""
	}
}
