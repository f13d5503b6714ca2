package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"magicagent/internal/testutils"
	"magicagent/pkg/agenttypes"
)

func TestMessageHandler_FormatForLLM(t *testing.T) {
	h := NewMessageHandler()
	msgs := []agenttypes.Message{
		{Role: agenttypes.RoleSystem, Content: "sys"},
		{Role: agenttypes.RoleUser, Content: "hi"},
		{Role: agenttypes.RoleAssistant, Content: "hello"},
	}

	all := h.FormatForLLM(msgs, true)
	assert.Len(t, all, 3)
	assert.Equal(t, agenttypes.ChatMessage{Role: "system", Content: "sys"}, all[0])

	noSys := h.FormatForLLM(msgs, false)
	assert.Len(t, noSys, 2)
	assert.Equal(t, "hi", noSys[0].Content)
}

func TestMessageHandler_NewMessage(t *testing.T) {
	h := NewMessageHandler()

	msg := h.NewMessage(agenttypes.RoleUser, "hello", nil)
	assert.Equal(t, agenttypes.RoleUser, msg.Role)
	assert.Equal(t, "hello", msg.Content)
	assert.False(t, msg.Timestamp.IsZero())
	assert.NotNil(t, msg.Metadata)

	tagged := h.NewMessage(agenttypes.RoleAssistant, "ok", map[string]any{"step": 1})
	assert.Equal(t, 1, tagged.Metadata["step"])
}

func TestMessageHandler_Validate(t *testing.T) {
	h := NewMessageHandler()

	assert.True(t, h.Validate(agenttypes.Message{Role: agenttypes.RoleUser, Content: "hi"}))
	assert.False(t, h.Validate(agenttypes.Message{Role: agenttypes.RoleUser}))
	assert.False(t, h.Validate(agenttypes.Message{Content: "hi"}))
	// Unknown roles are allowed; the role set is extensible.
	assert.True(t, h.Validate(agenttypes.Message{Role: "critic", Content: "hm"}))
}

func TestMessageHandler_TruncateHistory(t *testing.T) {
	h := NewMessageHandler()
	testutils.ResetCounters()
	msgs := []agenttypes.Message{
		{Role: agenttypes.RoleSystem, Content: "sys", Timestamp: testutils.DeterministicTime()},
		{Role: agenttypes.RoleUser, Content: "m1", Timestamp: testutils.DeterministicTime()},
		{Role: agenttypes.RoleAssistant, Content: "m2", Timestamp: testutils.DeterministicTime()},
		{Role: agenttypes.RoleUser, Content: "m3", Timestamp: testutils.DeterministicTime()},
		{Role: agenttypes.RoleAssistant, Content: "m4", Timestamp: testutils.DeterministicTime()},
	}

	// Under the cap nothing changes.
	assert.Len(t, h.TruncateHistory(msgs, 10, true), 5)

	// Without keepSystem the newest maxCount survive, system included in the
	// count.
	tail := h.TruncateHistory(msgs, 2, false)
	assert.Equal(t, []string{"m3", "m4"}, []string{tail[0].Content, tail[1].Content})

	// With keepSystem the system message survives on top of the newest two,
	// merged back into timestamp order.
	kept := h.TruncateHistory(msgs, 2, true)
	assert.Len(t, kept, 3)
	assert.Equal(t, "sys", kept[0].Content)
	assert.Equal(t, "m3", kept[1].Content)
	assert.Equal(t, "m4", kept[2].Content)
}
