package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"magicagent/internal/config"
	"magicagent/internal/logger"
	"magicagent/pkg/agenttypes"
)

// Constructor builds an agent of one concrete type. The backend capability
// is injected; agents do not construct their own clients.
type Constructor func(cfg *config.Config, agentID string, backend agenttypes.LLM) (agenttypes.Agent, error)

// Registry maps agent type tags to constructors. Registration is explicit
// and happens at startup, once per concrete agent kind; there is no
// directory or module scanning.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register binds an agent type tag to its constructor. Registering the same
// tag twice replaces the earlier constructor.
func (r *Registry) Register(agentType string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[agentType] = ctor
	logger.Debug("registered agent type", "type", agentType)
}

// Types returns the registered type tags, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.constructors))
	for t := range r.constructors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Create constructs and initializes an agent of the given type. An empty
// agentType falls back to the configured default.
func (r *Registry) Create(ctx context.Context, agentType, agentID string, cfg *config.Config, backend agenttypes.LLM) (agenttypes.Agent, error) {
	if agentType == "" {
		agentType = cfg.Agent.Type
	}

	r.mu.RLock()
	ctor, ok := r.constructors[agentType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown agent type: %s", agentType)
	}

	a, err := ctor(cfg, agentID, backend)
	if err != nil {
		return nil, fmt.Errorf("failed to construct %s agent: %w", agentType, err)
	}

	if err := a.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize %s agent: %w", agentType, err)
	}

	logger.Info("created agent", "type", agentType, "agent", a.Name(), "id", a.ID())
	return a, nil
}
