package invoke

import (
	"strings"

	"github.com/aj47/nvidia-control-center-sub003/llm"
	"github.com/samber/lo"
)

// Payload is a message list split into the shape providers expect.
type Payload struct {
	System   string
	Messages []llm.Message
}

// BuildRequest moves every system-role message into Payload.System, joined by
// a blank line in order. Other messages keep their relative order; any role
// other than assistant is sent as user.
func BuildRequest(messages []llm.ChatMessage) Payload {
	system, rest := lo.FilterReject(messages, func(m llm.ChatMessage, _ int) bool {
		return m.Role == llm.RoleSystem
	})

	return Payload{
		System: strings.Join(lo.Map(system, func(m llm.ChatMessage, _ int) string {
			return m.Content
		}), "\n\n"),
		Messages: lo.Map(rest, func(m llm.ChatMessage, _ int) llm.Message {
			role := llm.RoleUser
			if m.Role == llm.RoleAssistant {
				role = llm.RoleAssistant
			}
			return llm.NewTextMessage(role, m.Content)
		}),
	}
}
