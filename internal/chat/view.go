package chat

import (
	"medichat/internal/models"
)

const (
	AssistantSender   = "Medical Assistant"
	UserSender        = "You"
	ThinkingIndicator = "Thinking..."
	TimestampLayout   = "15:04"
)

// MessageView is one rendered entry of the conversation.
type MessageView struct {
	ID        string
	Role      models.Role
	Sender    string
	Content   string
	Timestamp string
}

// View is a snapshot of what the UI draws.
type View struct {
	Messages []MessageView
	// Thinking is set while a round trip runs; Indicator then holds the transient text.
	Thinking  bool
	Indicator string
	// CanRetry is set when the last user message has no reply.
	CanRetry bool
}

// Render snapshots the visible sequence and busy flag into a View.
func (c *Controller) Render() View {
	c.mu.RLock()
	messages := make([]models.Message, 0, len(c.messages))
	for _, m := range c.messages {
		messages = append(messages, *m)
	}
	busy := c.busy
	c.mu.RUnlock()
	return RenderView(messages, busy)
}

// RenderView is the pure rendering of a message sequence.
func RenderView(messages []models.Message, busy bool) View {
	view := View{Messages: make([]MessageView, 0, len(messages))}
	for _, m := range messages {
		view.Messages = append(view.Messages, MessageView{
			ID:        m.ID,
			Role:      m.Role,
			Sender:    senderLabel(m.Role),
			Content:   m.Content,
			Timestamp: formatTimestamp(m),
		})
	}
	if busy {
		view.Thinking = true
		view.Indicator = ThinkingIndicator
	} else if n := len(messages); n > 0 && messages[n-1].Role == models.RoleUser {
		view.CanRetry = true
	}
	return view
}

func senderLabel(role models.Role) string {
	if role == models.RoleUser {
		return UserSender
	}
	return AssistantSender
}

func formatTimestamp(m models.Message) string {
	if m.CreatedAt.IsZero() {
		return ""
	}
	return m.CreatedAt.Local().Format(TimestampLayout)
}
