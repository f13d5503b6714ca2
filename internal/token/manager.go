// Package token manages the fitting of conversation history into a bounded
// token budget before dispatch to a model backend. Counting is delegated to
// the backend's token-counting capability; eviction is priority-driven and
// never drops system-priority messages.
package token

import (
	"context"
	"sort"

	"github.com/charmbracelet/log"

	"magicagent/internal/logger"
	"magicagent/pkg/agenttypes"
)

// Priority ranks how droppable a message is when the history exceeds the
// budget. Lower priorities are evicted first; System is never evicted.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
	PrioritySystem
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	case PrioritySystem:
		return "SYSTEM"
	default:
		return "UNKNOWN"
	}
}

// Usage reports an estimated token breakdown for a prompt.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	AvailableTokens  int
	RemainingTokens  int
}

// Manager fits message collections into a token budget. The budget available
// for context is maxTokens minus reservedTokens (headroom kept for the
// model's reply).
type Manager struct {
	maxTokens        int
	reservedTokens   int
	maxContextTokens int

	logger *log.Logger
}

// NewManager creates a token manager for the given budget.
func NewManager(maxTokens, reservedTokens int) *Manager {
	return &Manager{
		maxTokens:        maxTokens,
		reservedTokens:   reservedTokens,
		maxContextTokens: maxTokens - reservedTokens,
		logger:           logger.NewStyledLogger("TokenManager"),
	}
}

// MaxContextTokens returns the budget available for conversation context.
func (m *Manager) MaxContextTokens() int {
	return m.maxContextTokens
}

// TruncateMessages returns a message list that fits the context budget and
// the remaining headroom. If priorities is nil, system-role messages get
// PrioritySystem and everything else PriorityNormal (keyed by message index).
//
// Messages are considered for eviction from the lowest priority upward, ties
// broken by original list order, and a candidate is only removed while its
// individually measured cost fits the outstanding overage. System-priority
// messages are never evicted, so the result can still exceed the budget; that
// is reported as negative headroom, never as an error. The only error
// returned is a counting failure.
func (m *Manager) TruncateMessages(
	ctx context.Context,
	messages []agenttypes.ChatMessage,
	counter agenttypes.TokenCounter,
	priorities map[int]Priority,
) ([]agenttypes.ChatMessage, int, error) {
	if priorities == nil {
		priorities = make(map[int]Priority, len(messages))
		for i, msg := range messages {
			if msg.Role == agenttypes.RoleSystem {
				priorities[i] = PrioritySystem
			} else {
				priorities[i] = PriorityNormal
			}
		}
	}

	totalTokens, err := counter.CountMessageTokens(ctx, messages)
	if err != nil {
		return nil, 0, err
	}

	if totalTokens <= m.maxContextTokens {
		return messages, m.maxContextTokens - totalTokens, nil
	}

	tokensToRemove := totalTokens - m.maxContextTokens

	// Candidate order: lowest priority first, original order within a
	// priority bucket. The stable sort keeps the tie-break deterministic.
	indices := make([]int, len(messages))
	for i := range messages {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return priorityOf(priorities, indices[a]) < priorityOf(priorities, indices[b])
	})

	removed := make(map[int]bool)
	for _, idx := range indices {
		if priorityOf(priorities, idx) == PrioritySystem {
			continue
		}

		msgTokens, err := counter.CountTokens(ctx, messages[idx].Content)
		if err != nil {
			return nil, 0, err
		}

		if msgTokens <= tokensToRemove {
			removed[idx] = true
			tokensToRemove -= msgTokens
			if tokensToRemove <= 0 {
				break
			}
		}
	}

	result := make([]agenttypes.ChatMessage, 0, len(messages)-len(removed))
	for i, msg := range messages {
		if !removed[i] {
			result = append(result, msg)
		}
	}

	// Token costs are not additive in general, so the survivor set is
	// measured again rather than derived from the per-message estimates.
	newTotal, err := counter.CountMessageTokens(ctx, result)
	if err != nil {
		return nil, 0, err
	}

	headroom := m.maxContextTokens - newTotal
	m.logger.Debug("truncated messages",
		"removed", len(removed), "kept", len(result), "headroom", headroom)
	return result, headroom, nil
}

// EstimateUsage estimates token consumption for a prompt. When
// expectedResponse is zero the reserved budget stands in for the completion.
func (m *Manager) EstimateUsage(
	ctx context.Context,
	prompt string,
	counter agenttypes.TokenCounter,
	expectedResponse int,
) (Usage, error) {
	promptTokens, err := counter.CountTokens(ctx, prompt)
	if err != nil {
		return Usage{}, err
	}

	completionTokens := expectedResponse
	if completionTokens == 0 {
		completionTokens = m.reservedTokens
	}

	total := promptTokens + completionTokens
	remaining := m.maxTokens - total
	if remaining < 0 {
		remaining = 0
	}

	return Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      total,
		AvailableTokens:  m.maxTokens,
		RemainingTokens:  remaining,
	}, nil
}

func priorityOf(priorities map[int]Priority, idx int) Priority {
	if p, ok := priorities[idx]; ok {
		return p
	}
	return PriorityNormal
}
