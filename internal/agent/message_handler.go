package agent

import (
	"sort"
	"time"

	"magicagent/internal/logger"
	"magicagent/pkg/agenttypes"
)

// MessageHandler formats, validates, and truncates message collections for
// dispatch. It is stateless; every method is a pure function of its inputs.
type MessageHandler struct{}

// NewMessageHandler creates a message handler.
func NewMessageHandler() *MessageHandler {
	return &MessageHandler{}
}

// FormatForLLM converts stored messages into the wire form sent to a backend,
// optionally dropping system messages.
func (h *MessageHandler) FormatForLLM(messages []agenttypes.Message, includeSystem bool) []agenttypes.ChatMessage {
	formatted := make([]agenttypes.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if !includeSystem && msg.Role == agenttypes.RoleSystem {
			continue
		}
		formatted = append(formatted, agenttypes.ChatMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return formatted
}

// NewMessage creates a message stamped with the current time.
func (h *MessageHandler) NewMessage(role, content string, metadata map[string]any) agenttypes.Message {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return agenttypes.Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// Validate reports whether a message has the required fields. An unknown role
// is allowed (roles are extensible) but logged.
func (h *MessageHandler) Validate(msg agenttypes.Message) bool {
	if msg.Content == "" || msg.Role == "" {
		return false
	}

	switch msg.Role {
	case agenttypes.RoleSystem, agenttypes.RoleUser, agenttypes.RoleAssistant, agenttypes.RoleTool:
	default:
		logger.Warn("unknown message role", "role", msg.Role)
	}

	return true
}

// TruncateHistory caps a message history at maxCount entries, keeping the
// newest messages. With keepSystem set, every system message survives and the
// merged result is re-sorted by timestamp; this is the one place timestamps
// affect ordering.
func (h *MessageHandler) TruncateHistory(messages []agenttypes.Message, maxCount int, keepSystem bool) []agenttypes.Message {
	if len(messages) <= maxCount {
		return messages
	}

	if !keepSystem {
		return messages[len(messages)-maxCount:]
	}

	var systemMsgs, otherMsgs []agenttypes.Message
	for _, msg := range messages {
		if msg.Role == agenttypes.RoleSystem {
			systemMsgs = append(systemMsgs, msg)
		} else {
			otherMsgs = append(otherMsgs, msg)
		}
	}

	if len(otherMsgs) > maxCount {
		otherMsgs = otherMsgs[len(otherMsgs)-maxCount:]
	}

	result := make([]agenttypes.Message, 0, len(systemMsgs)+len(otherMsgs))
	result = append(result, systemMsgs...)
	result = append(result, otherMsgs...)
	sort.SliceStable(result, func(a, b int) bool {
		return result[a].Timestamp.Before(result[b].Timestamp)
	})
	return result
}
