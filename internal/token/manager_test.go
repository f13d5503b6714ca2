package token

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magicagent/pkg/agenttypes"
)

// stubCounter charges a fixed cost per message content and sums them for
// message lists, so eviction arithmetic is exact in tests.
type stubCounter struct {
	costs map[string]int
	err   error
}

func (s *stubCounter) CountTokens(_ context.Context, text string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.costs[text], nil
}

func (s *stubCounter) CountMessageTokens(_ context.Context, messages []agenttypes.ChatMessage) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	total := 0
	for _, msg := range messages {
		total += s.costs[msg.Content]
	}
	return total, nil
}

func TestTruncateMessages_FitsUnchanged(t *testing.T) {
	m := NewManager(100, 20)
	counter := &stubCounter{costs: map[string]int{"a": 30, "b": 40}}
	msgs := []agenttypes.ChatMessage{
		{Role: agenttypes.RoleSystem, Content: "a"},
		{Role: agenttypes.RoleUser, Content: "b"},
	}

	result, headroom, err := m.TruncateMessages(context.Background(), msgs, counter, nil)
	require.NoError(t, err)
	assert.Equal(t, msgs, result)
	assert.Equal(t, 10, headroom)
}

func TestTruncateMessages_EvictsExactOverage(t *testing.T) {
	// Budget 100 with 20 reserved leaves 80 for context. Costs 50+40+30=120,
	// overage 40: the 40-cost NORMAL message is removed, headroom lands on 0.
	m := NewManager(100, 20)
	counter := &stubCounter{costs: map[string]int{"sys": 50, "mid": 40, "new": 30}}
	msgs := []agenttypes.ChatMessage{
		{Role: agenttypes.RoleSystem, Content: "sys"},
		{Role: agenttypes.RoleUser, Content: "mid"},
		{Role: agenttypes.RoleAssistant, Content: "new"},
	}

	result, headroom, err := m.TruncateMessages(context.Background(), msgs, counter, nil)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "sys", result[0].Content)
	assert.Equal(t, "new", result[1].Content)
	assert.Equal(t, 0, headroom)
}

func TestTruncateMessages_NeverEvictsSystem(t *testing.T) {
	// The system message alone exceeds the budget. It must survive and the
	// overflow is reported as negative headroom, not as an error.
	m := NewManager(100, 20)
	counter := &stubCounter{costs: map[string]int{"sys": 90, "u": 10}}
	msgs := []agenttypes.ChatMessage{
		{Role: agenttypes.RoleSystem, Content: "sys"},
		{Role: agenttypes.RoleUser, Content: "u"},
	}

	result, headroom, err := m.TruncateMessages(context.Background(), msgs, counter, nil)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, agenttypes.RoleSystem, result[0].Role)
	assert.Equal(t, -10, headroom)
}

func TestTruncateMessages_LowPriorityEvictedFirst(t *testing.T) {
	m := NewManager(60, 0)
	counter := &stubCounter{costs: map[string]int{"low": 30, "high": 30, "normal": 30}}
	msgs := []agenttypes.ChatMessage{
		{Role: agenttypes.RoleUser, Content: "high"},
		{Role: agenttypes.RoleUser, Content: "low"},
		{Role: agenttypes.RoleUser, Content: "normal"},
	}
	priorities := map[int]Priority{
		0: PriorityHigh,
		1: PriorityLow,
		2: PriorityNormal,
	}

	result, headroom, err := m.TruncateMessages(context.Background(), msgs, counter, priorities)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "high", result[0].Content)
	assert.Equal(t, "normal", result[1].Content)
	assert.Equal(t, 0, headroom)
}

func TestTruncateMessages_TieBrokenByOriginalOrder(t *testing.T) {
	// Two NORMAL candidates with equal priority: the earlier one goes first.
	m := NewManager(40, 0)
	counter := &stubCounter{costs: map[string]int{"first": 20, "second": 20, "third": 20}}
	msgs := []agenttypes.ChatMessage{
		{Role: agenttypes.RoleUser, Content: "first"},
		{Role: agenttypes.RoleUser, Content: "second"},
		{Role: agenttypes.RoleAssistant, Content: "third"},
	}

	result, headroom, err := m.TruncateMessages(context.Background(), msgs, counter, nil)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "second", result[0].Content)
	assert.Equal(t, "third", result[1].Content)
	assert.Equal(t, 0, headroom)
}

func TestTruncateMessages_SkipsCandidateLargerThanOverage(t *testing.T) {
	// Overage is 10 but every candidate costs 30: nothing fits the
	// outstanding overage, so nothing is removed and headroom goes negative.
	m := NewManager(50, 0)
	counter := &stubCounter{costs: map[string]int{"a": 30, "b": 30}}
	msgs := []agenttypes.ChatMessage{
		{Role: agenttypes.RoleUser, Content: "a"},
		{Role: agenttypes.RoleUser, Content: "b"},
	}

	result, headroom, err := m.TruncateMessages(context.Background(), msgs, counter, nil)
	require.NoError(t, err)
	assert.Len(t, result, 2)
	assert.Equal(t, -10, headroom)
}

func TestTruncateMessages_CounterErrorPropagates(t *testing.T) {
	m := NewManager(100, 20)
	counter := &stubCounter{err: errors.New("counting backend down")}
	msgs := []agenttypes.ChatMessage{{Role: agenttypes.RoleUser, Content: "x"}}

	_, _, err := m.TruncateMessages(context.Background(), msgs, counter, nil)
	assert.Error(t, err)
}

func TestEstimateUsage(t *testing.T) {
	m := NewManager(1000, 200)
	counter := &stubCounter{costs: map[string]int{"prompt": 300}}

	usage, err := m.EstimateUsage(context.Background(), "prompt", counter, 0)
	require.NoError(t, err)
	assert.Equal(t, 300, usage.PromptTokens)
	assert.Equal(t, 200, usage.CompletionTokens)
	assert.Equal(t, 500, usage.TotalTokens)
	assert.Equal(t, 1000, usage.AvailableTokens)
	assert.Equal(t, 500, usage.RemainingTokens)

	usage, err = m.EstimateUsage(context.Background(), "prompt", counter, 900)
	require.NoError(t, err)
	assert.Equal(t, 900, usage.CompletionTokens)
	assert.Equal(t, 0, usage.RemainingTokens, "remaining never goes negative")
}
