// Package agenttypes defines the agent runtime contract for magicagent.
package agenttypes

import "context"

// Agent is the contract every agent runtime implements. One Agent owns one
// conversation and its status lifecycle.
type Agent interface {
	// ID returns the agent's unique identifier. For session-managed agents
	// this is the session id.
	ID() string

	// Name returns the agent's display name.
	Name() string

	// Initialize performs one-time setup: persistence wiring, system prompt
	// seeding, and auto-save subscription. Safe to call more than once.
	Initialize(ctx context.Context) error

	// Process handles one user turn and returns the agent's response.
	// A think failure surfaces as an error and the turn is failed, not
	// degraded; no assistant message is recorded.
	Process(ctx context.Context, input string) (any, error)

	// Run drives the agent in non-interactive mode until its status leaves
	// RUNNING or the configured iteration cap is reached.
	Run(ctx context.Context) error

	// Cleanup stops the agent and forces a final state save.
	Cleanup(ctx context.Context) error

	// Status returns the agent's current lifecycle state.
	Status() string
}
