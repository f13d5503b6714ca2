// Package agenttypes defines the shared data model for magicagent.
// This file contains the conversation types: messages, agent state, and
// session metadata that are persisted across runs.
package agenttypes

import "time"

// Message roles. Role is a plain string so callers can extend the set with
// custom roles; these constants cover the standard conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a single message in the conversation history.
// Messages are immutable once created; ordering is strictly append-order.
// Timestamp is informational and is only consulted when truncated history
// segments are merged back together.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ChatMessage is the wire form sent to an LLM backend: role and content only.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AgentState is the complete conversational state of one agent: its status,
// ordered message history, step counters, and free-form metadata. It is
// serialized wholesale on save and replaced wholesale on load.
type AgentState struct {
	Status      string         `json:"status"`
	Messages    []Message      `json:"messages"`
	CurrentStep int            `json:"current_step"`
	MaxSteps    int            `json:"max_steps"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// NewAgentState creates an empty state with the given step limit.
func NewAgentState(maxSteps int) *AgentState {
	return &AgentState{
		Status:   "INITIALIZING",
		Messages: make([]Message, 0),
		MaxSteps: maxSteps,
		Metadata: make(map[string]any),
	}
}

// AddMessage appends a message to the history. Messages are never reordered.
func (s *AgentState) AddMessage(msg Message) {
	s.Messages = append(s.Messages, msg)
}

// IncrementStep increases the step counter and returns the new value.
func (s *AgentState) IncrementStep() int {
	s.CurrentStep++
	return s.CurrentStep
}

// ResetSteps resets the step counter to zero. This is the only way the
// counter decreases.
func (s *AgentState) ResetSteps() {
	s.CurrentStep = 0
}

// IsMaxStepsReached reports whether the step counter has hit the limit.
func (s *AgentState) IsMaxStepsReached() bool {
	return s.CurrentStep >= s.MaxSteps
}

// SessionMetadata describes one persisted session: which agent type backs it
// and when it was created and last used. It lives in its own file, separate
// from the agent state file; the session id is the join key between the two.
type SessionMetadata struct {
	AgentType  string    `json:"agent_type"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}
