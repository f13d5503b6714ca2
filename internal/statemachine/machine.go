// Package statemachine implements the agent lifecycle state machine.
// It manages a declarative transition table over the agent states and fires
// pattern-matched callbacks on every successful transition.
package statemachine

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"magicagent/internal/logger"
)

// Agent lifecycle states. Callers may register additional states with
// AddValidState before use.
const (
	StateInitializing = "INITIALIZING"
	StateIdle         = "IDLE"
	StateProcessing   = "PROCESSING"
	StateRunning      = "RUNNING"
	StateStopping     = "STOPPING"
	StateStopped      = "STOPPED"
	StateError        = "ERROR"
)

// TransitionCallback is invoked after a successful transition with the source
// state, target state, and the machine's merged state data. A panic inside a
// callback is recovered and logged; it never blocks other callbacks or fails
// the transition.
type TransitionCallback func(from, to string, data map[string]any)

// StateMachine manages agent state transitions. All methods are safe for
// concurrent use, though the runtime drives one machine from one goroutine.
type StateMachine struct {
	mu sync.Mutex

	validStates        map[string]struct{}
	allowedTransitions map[string]map[string]struct{}
	currentState       string
	stateData          map[string]any

	// Callbacks keyed by subscription pattern: "from->to", "from->*",
	// "*->to", "*->*". All matching patterns fire, not just the best match.
	callbacks map[string][]TransitionCallback

	logger *log.Logger
}

// New creates a state machine seeded with the standard lifecycle states and
// transition table, starting in INITIALIZING.
func New() *StateMachine {
	sm := &StateMachine{
		validStates:        make(map[string]struct{}),
		allowedTransitions: make(map[string]map[string]struct{}),
		currentState:       StateInitializing,
		stateData:          make(map[string]any),
		callbacks:          make(map[string][]TransitionCallback),
		logger:             logger.NewStyledLogger("StateMachine"),
	}

	for _, s := range []string{
		StateInitializing, StateIdle, StateProcessing,
		StateRunning, StateStopping, StateStopped, StateError,
	} {
		sm.validStates[s] = struct{}{}
	}

	table := map[string][]string{
		StateInitializing: {StateIdle, StateError},
		StateIdle:         {StateProcessing, StateRunning, StateStopping, StateError},
		StateProcessing:   {StateIdle, StateError},
		StateRunning:      {StateIdle, StateStopping, StateError},
		StateStopping:     {StateStopped, StateError},
		StateStopped:      {StateInitializing},
		StateError:        {StateIdle, StateStopping},
	}
	for from, tos := range table {
		set := make(map[string]struct{}, len(tos))
		for _, to := range tos {
			set[to] = struct{}{}
		}
		sm.allowedTransitions[from] = set
	}

	return sm
}

// CurrentState returns the machine's current state.
func (sm *StateMachine) CurrentState() string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.currentState
}

// StateData returns a copy of the machine's accumulated state data.
func (sm *StateMachine) StateData() map[string]any {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	data := make(map[string]any, len(sm.stateData))
	for k, v := range sm.stateData {
		data[k] = v
	}
	return data
}

// AddValidState registers an additional valid state.
func (sm *StateMachine) AddValidState(state string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.validStates[state] = struct{}{}
}

// AllowTransition adds an edge to the transition table. Both states must
// already be valid.
func (sm *StateMachine) AllowTransition(from, to string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, ok := sm.validStates[from]; !ok {
		return fmt.Errorf("invalid source state: %s", from)
	}
	if _, ok := sm.validStates[to]; !ok {
		return fmt.Errorf("invalid target state: %s", to)
	}

	if sm.allowedTransitions[from] == nil {
		sm.allowedTransitions[from] = make(map[string]struct{})
	}
	sm.allowedTransitions[from][to] = struct{}{}
	return nil
}

// OnTransition registers a callback for transitions matching from->to.
// Either side may be "*" to match any state. A single transition fires every
// matching pattern, so one callback registered under "*->*" and another under
// an exact pattern both run.
func (sm *StateMachine) OnTransition(from, to string, cb TransitionCallback) {
	if from == "" {
		from = "*"
	}
	if to == "" {
		to = "*"
	}
	key := from + "->" + to

	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.callbacks[key] = append(sm.callbacks[key], cb)
}

// CanTransition reports whether the machine may move to the target state
// from its current state.
func (sm *StateMachine) CanTransition(to string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.canTransitionLocked(to)
}

func (sm *StateMachine) canTransitionLocked(to string) bool {
	if _, ok := sm.validStates[to]; !ok {
		return false
	}
	allowed, ok := sm.allowedTransitions[sm.currentState]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// Transition moves the machine to the target state, merging data into the
// state data and firing all matching callbacks. An illegal transition is not
// an error condition: it is logged and reported as false, and the current
// state is left unchanged.
func (sm *StateMachine) Transition(to string, data map[string]any) bool {
	sm.mu.Lock()

	if !sm.canTransitionLocked(to) {
		from := sm.currentState
		sm.mu.Unlock()
		sm.logger.Warn("transition not allowed", "from", from, "to", to)
		return false
	}

	for k, v := range data {
		sm.stateData[k] = v
	}

	from := sm.currentState
	sm.currentState = to

	// Snapshot the matching callbacks and data under the lock, then fire
	// outside it so callbacks can read the machine.
	patterns := []string{
		from + "->" + to,
		from + "->*",
		"*->" + to,
		"*->*",
	}
	var fire []TransitionCallback
	for _, p := range patterns {
		fire = append(fire, sm.callbacks[p]...)
	}
	snapshot := make(map[string]any, len(sm.stateData))
	for k, v := range sm.stateData {
		snapshot[k] = v
	}
	sm.mu.Unlock()

	for _, cb := range fire {
		sm.invoke(cb, from, to, snapshot)
	}

	sm.logger.Debug("state transition", "from", from, "to", to)
	return true
}

func (sm *StateMachine) invoke(cb TransitionCallback, from, to string, data map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			sm.logger.Error("transition callback panicked", "from", from, "to", to, "error", r)
		}
	}()
	cb(from, to, data)
}
