package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"magicagent/internal/config"
	"magicagent/internal/logger"
	"magicagent/internal/statemachine"
	"magicagent/pkg/agenttypes"
)

// Thinker supplies the model-backend-dependent thinking step. The concrete
// agent implements it; BaseAgent drives everything around it.
type Thinker interface {
	// Think assembles bounded context, invokes the backend, and returns text
	// or a structured result. It must increment the step counter.
	Think(ctx context.Context) (any, error)
}

// StateChangeCallback observes state changes. Callbacks run sequentially in
// registration order and are waited on, so a save inside a callback is
// causally before the triggering operation returns. An error is logged and
// does not interrupt the remaining callbacks.
type StateChangeCallback func(ctx context.Context, state *agenttypes.AgentState) error

// MessageCallback observes appended messages. Message callbacks are
// best-effort; panics are recovered at the call site and order is not
// significant.
type MessageCallback func(msg agenttypes.Message)

// BaseAgent owns one conversation and its status lifecycle. The state
// machine is the single authority for the agent's status; AgentState.Status
// is synchronized from it so the persisted form stays truthful.
type BaseAgent struct {
	id           string
	name         string
	systemPrompt string
	cfg          *config.Config

	machine *statemachine.StateMachine
	state   *agenttypes.AgentState
	handler *MessageHandler
	thinker Thinker

	persistence  *StatePersistence
	autoSave     bool
	saveInterval time.Duration
	lastSaveTime time.Time

	onStateChange []StateChangeCallback
	onMessage     []MessageCallback

	logger *log.Logger
}

// NewBaseAgent creates an agent runtime. An empty agentID gets a generated
// uuid. The thinker is attached afterwards by the concrete agent via
// SetThinker.
func NewBaseAgent(cfg *config.Config, agentID string) *BaseAgent {
	if agentID == "" {
		agentID = uuid.New().String()
	}

	a := &BaseAgent{
		id:           agentID,
		name:         cfg.Agent.Name,
		systemPrompt: cfg.Agent.SystemPrompt,
		cfg:          cfg,
		machine:      statemachine.New(),
		state:        agenttypes.NewAgentState(cfg.Agent.MaxSteps),
		handler:      NewMessageHandler(),
		autoSave:     cfg.Agent.AutoSave,
		saveInterval: cfg.Agent.SaveInterval,
		logger:       logger.NewStyledLogger("Agent"),
	}

	a.logger.Info("agent created", "agent", a.name, "id", a.id)
	return a
}

// SetThinker attaches the concrete thinking step.
func (a *BaseAgent) SetThinker(t Thinker) {
	a.thinker = t
}

// ID returns the agent's identifier.
func (a *BaseAgent) ID() string {
	return a.id
}

// Name returns the agent's display name.
func (a *BaseAgent) Name() string {
	return a.name
}

// Status returns the agent's current lifecycle state, read from the state
// machine.
func (a *BaseAgent) Status() string {
	return a.machine.CurrentState()
}

// State returns the agent's conversational state.
func (a *BaseAgent) State() *agenttypes.AgentState {
	return a.state
}

// StateMachine exposes the lifecycle machine for observers that want to
// subscribe to specific transitions.
func (a *BaseAgent) StateMachine() *statemachine.StateMachine {
	return a.machine
}

// Initialize performs one-time setup: persistence wiring, system prompt
// seeding, and the auto-save subscription. Persistence wiring is idempotent,
// so Initialize may be called again after a state reload.
func (a *BaseAgent) Initialize(ctx context.Context) error {
	if err := a.initPersistence(); err != nil {
		return err
	}

	if a.systemPrompt != "" && len(a.state.Messages) == 0 {
		a.state.AddMessage(a.handler.NewMessage(agenttypes.RoleSystem, a.systemPrompt, nil))
	}

	a.changeState(ctx, statemachine.StateIdle, nil)
	a.logger.Debug("agent initialized", "agent", a.name)
	return nil
}

func (a *BaseAgent) initPersistence() error {
	if a.persistence != nil {
		return nil
	}

	p, err := NewStatePersistence(a.id, a.cfg.Agent.DataDir)
	if err != nil {
		return err
	}
	a.persistence = p

	if a.autoSave {
		a.OnStateChange(a.autoSaveCallback)
	}
	return nil
}

// Process handles one user turn: append the user message, transition to
// PROCESSING, run the thinking step, append a textual result as the
// assistant message, transition back to IDLE, and return the result. A think
// failure transitions to ERROR with the failure description attached and is
// returned to the caller; the turn is failed, not degraded, and no assistant
// message is recorded.
func (a *BaseAgent) Process(ctx context.Context, input string) (any, error) {
	userMsg := a.handler.NewMessage(agenttypes.RoleUser, input, nil)
	a.state.AddMessage(userMsg)
	a.notifyMessage(userMsg)

	a.changeState(ctx, statemachine.StateProcessing, nil)

	if a.thinker == nil {
		a.changeState(ctx, statemachine.StateError, map[string]any{"error": "no thinker attached"})
		return nil, fmt.Errorf("agent %s has no thinker attached", a.id)
	}

	result, err := a.thinker.Think(ctx)
	if err != nil {
		a.changeState(ctx, statemachine.StateError, map[string]any{"error": err.Error()})
		a.logger.Error("think failed", "agent", a.name, "error", err)
		return nil, fmt.Errorf("processing failed: %w", err)
	}

	if text, ok := result.(string); ok {
		assistantMsg := a.handler.NewMessage(agenttypes.RoleAssistant, text, nil)
		a.state.AddMessage(assistantMsg)
		a.notifyMessage(assistantMsg)
	}

	a.changeState(ctx, statemachine.StateIdle, nil)
	return result, nil
}

// Run drives the agent in non-interactive mode. It sets the status to
// RUNNING and loops until the status changes or the configured iteration cap
// is reached; the cap guarantees termination when no external transition
// ever arrives.
func (a *BaseAgent) Run(ctx context.Context) error {
	a.changeState(ctx, statemachine.StateRunning, nil)

	maxLoops := a.cfg.Agent.MaxIdleLoops
	count := 0
	for a.Status() == statemachine.StateRunning && count < maxLoops {
		count++
		a.logger.Debug("run loop", "iteration", count, "max", maxLoops)
		select {
		case <-ctx.Done():
			a.changeState(ctx, statemachine.StateIdle, nil)
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	if a.Status() == statemachine.StateRunning {
		a.changeState(ctx, statemachine.StateIdle, nil)
	}
	return nil
}

// Cleanup stops the agent: STOPPING, a final unthrottled state save, then
// STOPPED. Backend clients are owned by the caller and are not touched here.
func (a *BaseAgent) Cleanup(ctx context.Context) error {
	a.changeState(ctx, statemachine.StateStopping, nil)
	a.logger.Debug("agent cleaning up", "agent", a.name)

	a.SaveState(ctx)

	a.changeState(ctx, statemachine.StateStopped, nil)
	a.logger.Info("agent stopped", "agent", a.name)
	return nil
}

// SaveState persists the agent's state immediately. Returns whether the save
// succeeded.
func (a *BaseAgent) SaveState(ctx context.Context) bool {
	if err := a.initPersistence(); err != nil {
		a.logger.Error("persistence unavailable", "agent", a.id, "error", err)
		return false
	}

	a.state.Status = a.Status()
	if a.persistence.SaveState(ctx, a.state) {
		a.lastSaveTime = time.Now()
		a.logger.Debug("agent state saved", "agent", a.id)
		return true
	}
	return false
}

// LoadState restores the agent's state from disk, replacing the in-memory
// state wholesale on success and leaving it untouched on failure or absence.
func (a *BaseAgent) LoadState(_ context.Context) bool {
	if err := a.initPersistence(); err != nil {
		a.logger.Error("persistence unavailable", "agent", a.id, "error", err)
		return false
	}

	loaded, ok := a.persistence.LoadState()
	if !ok {
		return false
	}
	a.state = loaded
	a.logger.Info("agent state loaded", "agent", a.id)
	return true
}

// DeleteState removes the agent's persisted state file.
func (a *BaseAgent) DeleteState() bool {
	if err := a.initPersistence(); err != nil {
		a.logger.Error("persistence unavailable", "agent", a.id, "error", err)
		return false
	}
	return a.persistence.DeleteState()
}

// OnStateChange registers a state-change observer. Order of registration is
// significant: callbacks run sequentially and are waited on.
func (a *BaseAgent) OnStateChange(cb StateChangeCallback) {
	a.onStateChange = append(a.onStateChange, cb)
}

// OnMessage registers a message observer. Message callbacks are best-effort
// and unordered.
func (a *BaseAgent) OnMessage(cb MessageCallback) {
	a.onMessage = append(a.onMessage, cb)
}

// changeState drives the state machine and, on success, synchronizes the
// conversational state and notifies state-change observers. An illegal
// transition is logged by the machine and reported here as false; the core
// does not defend further against out-of-order calls.
func (a *BaseAgent) changeState(ctx context.Context, to string, data map[string]any) bool {
	if !a.machine.Transition(to, data) {
		return false
	}

	a.state.Status = to
	if errMsg, ok := data["error"].(string); ok {
		a.state.Error = errMsg
	}

	a.notifyStateChange(ctx)
	return true
}

func (a *BaseAgent) notifyStateChange(ctx context.Context) {
	for _, cb := range a.onStateChange {
		if err := cb(ctx, a.state); err != nil {
			a.logger.Error("state change callback failed", "agent", a.id, "error", err)
		}
	}
}

func (a *BaseAgent) notifyMessage(msg agenttypes.Message) {
	for _, cb := range a.onMessage {
		func() {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("message callback panicked", "agent", a.id, "error", r)
				}
			}()
			cb(msg)
		}()
	}
}

// autoSaveCallback persists state on state changes, throttled to at most one
// save per SaveInterval. Saves inside the window are skipped, not deferred:
// bursts of rapid transitions produce one snapshot per interval and
// intermediate states are accepted as lost on crash.
func (a *BaseAgent) autoSaveCallback(ctx context.Context, _ *agenttypes.AgentState) error {
	if !a.lastSaveTime.IsZero() && time.Since(a.lastSaveTime) < a.saveInterval {
		a.logger.Debug("auto-save skipped", "agent", a.id, "interval", a.saveInterval)
		return nil
	}
	a.SaveState(ctx)
	return nil
}

// History returns the conversation history, optionally without system
// messages.
func (a *BaseAgent) History(includeSystem bool) []agenttypes.Message {
	if includeSystem {
		return a.state.Messages
	}
	var msgs []agenttypes.Message
	for _, msg := range a.state.Messages {
		if msg.Role != agenttypes.RoleSystem {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// LatestMessage returns the newest message, or the newest with the given
// role when role is non-empty. The second result is false when no message
// matches.
func (a *BaseAgent) LatestMessage(role string) (agenttypes.Message, bool) {
	msgs := a.state.Messages
	if len(msgs) == 0 {
		return agenttypes.Message{}, false
	}
	if role == "" {
		return msgs[len(msgs)-1], true
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == role {
			return msgs[i], true
		}
	}
	return agenttypes.Message{}, false
}

// ClearHistory removes conversation history, optionally retaining system
// messages. Filtering preserves relative order; messages are never reordered.
func (a *BaseAgent) ClearHistory(keepSystem bool) {
	if !keepSystem {
		a.state.Messages = make([]agenttypes.Message, 0)
		return
	}
	kept := make([]agenttypes.Message, 0, len(a.state.Messages))
	for _, msg := range a.state.Messages {
		if msg.Role == agenttypes.RoleSystem {
			kept = append(kept, msg)
		}
	}
	a.state.Messages = kept
}
