package domain

import (
	"regexp"
	"strings"
	"time"
)

// Sender identifies who wrote a chat message.
type Sender string

const (
	// SenderUser is the person reporting the issue.
	SenderUser Sender = "user"
	// SenderBot is the intake agent.
	SenderBot Sender = "bot"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// ValidID reports whether id is an acceptable user, conversation or record identifier.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Sender  Sender    `json:"sender"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sentAt"`
}

// NewChatMessage stamps a message with the current UTC time.
func NewChatMessage(sender Sender, text string) ChatMessage {
	return ChatMessage{Sender: sender, Message: text, SentAt: time.Now().UTC()}
}

// Conversation is the ordered message log for a conversation id.
type Conversation struct {
	UserID         string        `json:"user_id"`
	ConversationID string        `json:"conversation_id"`
	CreatedAt      time.Time     `json:"createdAt"`
	ChatMessages   []ChatMessage `json:"chat_messages"`
}

// Transcript flattens the conversation into "sender: text" lines.
func (c *Conversation) Transcript() string {
	var b strings.Builder
	for i, m := range c.ChatMessages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(m.Sender))
		b.WriteString(": ")
		b.WriteString(m.Message)
	}
	return b.String()
}

// ConversationSummary is a per-user listing entry.
type ConversationSummary struct {
	ConversationID string        `json:"_id"`
	Messages       []ChatMessage `json:"messages"`
	StartTime      time.Time     `json:"startTime"`
}
