package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog(t *testing.T) {
	catalog, err := LoadCatalog()
	require.NoError(t, err)

	model, ok := catalog.Lookup("gpt-4o-mini")
	require.True(t, ok)
	assert.Equal(t, "openai", model.Provider)
	assert.Equal(t, 128000, model.ContextWindow)

	model, ok = catalog.Lookup("claude-sonnet-4-20250514")
	require.True(t, ok)
	assert.Equal(t, "anthropic", model.Provider)
	assert.Equal(t, 200000, model.ContextWindow)
}

func TestCatalog_ContextWindowFallback(t *testing.T) {
	catalog, err := LoadCatalog()
	require.NoError(t, err)

	assert.Equal(t, 128000, catalog.ContextWindow("gpt-4o"))
	assert.Equal(t, defaultContextWindow, catalog.ContextWindow("some-future-model"))
}
