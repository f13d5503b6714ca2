package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magicagent/internal/config"
	"magicagent/internal/statemachine"
	"magicagent/internal/testutils"
	"magicagent/pkg/agenttypes"
)

func TestRegistry_RegisterAndTypes(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.Types())

	r.Register("echo", func(cfg *config.Config, agentID string, _ agenttypes.LLM) (agenttypes.Agent, error) {
		a := NewBaseAgent(cfg, agentID)
		a.SetThinker(&stubThinker{result: "echo"})
		return a, nil
	})
	r.Register("noop", func(cfg *config.Config, agentID string, _ agenttypes.LLM) (agenttypes.Agent, error) {
		a := NewBaseAgent(cfg, agentID)
		a.SetThinker(&stubThinker{result: "noop"})
		return a, nil
	})

	assert.Equal(t, []string{"echo", "noop"}, r.Types())
}

func TestRegistry_CreateInitializesAgent(t *testing.T) {
	cfg := testutils.NewTestConfig(t)
	r := NewRegistry()
	r.Register("echo", func(cfg *config.Config, agentID string, _ agenttypes.LLM) (agenttypes.Agent, error) {
		a := NewBaseAgent(cfg, agentID)
		a.SetThinker(&stubThinker{result: "echo"})
		return a, nil
	})

	a, err := r.Create(context.Background(), "echo", "agent-1", cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", a.ID())
	assert.Equal(t, statemachine.StateIdle, a.Status())
}

func TestRegistry_CreateUnknownType(t *testing.T) {
	cfg := testutils.NewTestConfig(t)
	r := NewRegistry()

	_, err := r.Create(context.Background(), "mystery", "agent-1", cfg, nil)
	assert.Error(t, err)
}

func TestRegistry_CreateEmptyTypeUsesConfigDefault(t *testing.T) {
	cfg := testutils.NewTestConfig(t)
	cfg.Agent.Type = "echo"
	r := NewRegistry()
	r.Register("echo", func(cfg *config.Config, agentID string, _ agenttypes.LLM) (agenttypes.Agent, error) {
		a := NewBaseAgent(cfg, agentID)
		a.SetThinker(&stubThinker{result: "echo"})
		return a, nil
	})

	a, err := r.Create(context.Background(), "", "agent-1", cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", a.ID())
}

func TestRegistry_ConstructorErrorPropagates(t *testing.T) {
	cfg := testutils.NewTestConfig(t)
	r := NewRegistry()
	r.Register("broken", func(*config.Config, string, agenttypes.LLM) (agenttypes.Agent, error) {
		return nil, errors.New("cannot build")
	})

	_, err := r.Create(context.Background(), "broken", "agent-1", cfg, nil)
	assert.ErrorContains(t, err, "cannot build")
}
