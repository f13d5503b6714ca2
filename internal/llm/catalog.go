// Package llm implements the model backend clients consumed by the agent
// runtime: provider-specific chat completion, token counting, and a
// provider registry with typed retry classification.
package llm

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"magicagent/internal/data/embedded"
)

// defaultContextWindow is used for models missing from the catalog.
const defaultContextWindow = 8192

// CatalogModel is one model entry of the embedded catalog.
type CatalogModel struct {
	Name          string `yaml:"name"`
	Provider      string `yaml:"provider"`
	ContextWindow int    `yaml:"context_window"`
}

type catalogFile struct {
	Models []CatalogModel `yaml:"models"`
}

// Catalog resolves model names to their context window sizes.
type Catalog struct {
	models map[string]CatalogModel
}

// LoadCatalog parses the embedded model catalog.
func LoadCatalog() (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(embedded.ModelCatalogData, &file); err != nil {
		return nil, fmt.Errorf("failed to parse model catalog: %w", err)
	}

	models := make(map[string]CatalogModel, len(file.Models))
	for _, m := range file.Models {
		models[m.Name] = m
	}
	return &Catalog{models: models}, nil
}

// ContextWindow returns the context window size for a model, falling back to
// a conservative default for unknown models.
func (c *Catalog) ContextWindow(model string) int {
	if m, ok := c.models[model]; ok && m.ContextWindow > 0 {
		return m.ContextWindow
	}
	return defaultContextWindow
}

// Lookup returns the catalog entry for a model.
func (c *Catalog) Lookup(model string) (CatalogModel, bool) {
	m, ok := c.models[model]
	return m, ok
}
