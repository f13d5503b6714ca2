package agent

import (
	"context"
	"fmt"

	"magicagent/internal/config"
	"magicagent/internal/statemachine"
	"magicagent/internal/token"
	"magicagent/pkg/agenttypes"
)

// AgentTypeDefault is the type tag of the reference agent implementation.
const AgentTypeDefault = "default"

// DefaultAgent is the reference agent: it answers each user turn with a
// single LLM completion over the token-budgeted conversation history.
type DefaultAgent struct {
	*BaseAgent

	backend      agenttypes.LLM
	tokenManager *token.Manager
}

// NewDefaultAgent creates a default agent backed by the given LLM.
func NewDefaultAgent(cfg *config.Config, agentID string, backend agenttypes.LLM) (*DefaultAgent, error) {
	if backend == nil {
		return nil, fmt.Errorf("default agent requires an LLM backend")
	}

	a := &DefaultAgent{
		BaseAgent: NewBaseAgent(cfg, agentID),
		backend:   backend,
		tokenManager: token.NewManager(
			backend.MaxContextSize(),
			cfg.LLM.ReservedTokens,
		),
	}
	a.SetThinker(a)
	return a, nil
}

// RegisterDefault registers the default agent under its type tag.
func RegisterDefault(r *Registry) {
	r.Register(AgentTypeDefault, func(cfg *config.Config, agentID string, backend agenttypes.LLM) (agenttypes.Agent, error) {
		return NewDefaultAgent(cfg, agentID, backend)
	})
}

// Initialize restores persisted state when present. A restored history keeps
// only its system messages: the conversation itself starts fresh each run
// while the seeded context survives.
func (a *DefaultAgent) Initialize(ctx context.Context) error {
	if a.LoadState(ctx) {
		a.logger.Debug("restored prior state, keeping system messages only",
			"agent", a.ID(), "messages", len(a.State().Messages))
		a.ClearHistory(true)
	}
	return a.BaseAgent.Initialize(ctx)
}

// Think generates a reply with the LLM over the bounded conversation
// context. Backend failures are caught here and produce an apologetic
// fallback response; that strategy is applied consistently for this agent
// type. Token-manager failures propagate.
func (a *DefaultAgent) Think(ctx context.Context) (any, error) {
	step := a.State().IncrementStep()
	a.logger.Debug("thinking", "agent", a.ID(), "step", step)

	userMsg, ok := a.LatestMessage(agenttypes.RoleUser)
	if !ok {
		return "I have not received any message.", nil
	}

	messages := a.handler.FormatForLLM(a.History(true), true)

	truncated, headroom, err := a.tokenManager.TruncateMessages(ctx, messages, a.backend, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fit context budget: %w", err)
	}
	a.logger.Debug("context prepared", "messages", len(truncated), "headroom", headroom)

	// The estimate is advisory; a counting failure here never fails the turn.
	if usage, uerr := a.tokenManager.EstimateUsage(ctx, userMsg.Content, a.backend, 0); uerr == nil {
		a.logger.Debug("usage estimate",
			"prompt", usage.PromptTokens, "completion", usage.CompletionTokens,
			"remaining", usage.RemainingTokens)
	}

	response, err := a.backend.GenerateChatCompletion(ctx, truncated)
	if err != nil {
		a.logger.Error("llm call failed", "agent", a.ID(), "error", err)
		return fmt.Sprintf("I'm sorry, I can't respond right now. Error: %v", err), nil
	}
	return response, nil
}

// Reset clears the conversation, keeping system messages, and resets the
// step counter. Used by the CLI's clear command.
func (a *DefaultAgent) Reset(_ context.Context) {
	a.ClearHistory(true)
	a.State().ResetSteps()
	a.State().Error = ""
	if a.Status() == statemachine.StateError {
		a.machine.Transition(statemachine.StateIdle, nil)
	}
}
