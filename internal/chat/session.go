// Package chat runs intake conversations over a channel.
package chat

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// ConfirmationQuestion is the phrase that marks the assistant's closing summary.
const ConfirmationQuestion = "Is this summary correct?"

// continueAction is the action of a frame that replays a chat history.
const continueAction = "continue_conversation"

// State is the lifecycle state of a Session.
type State int

// Session states.
const (
	StateGathering State = iota
	StateFinalizing
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateGathering:
		return "gathering"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Session is the per-channel conversation state.
type Session struct {
	// ID is unique per channel and keys the assistant's memory, so a
	// replaced session cannot touch its successor's turns.
	ID             string
	UserID         string
	ConversationID string

	state             State
	lastAgentQuestion string
}

func newSession(userID, conversationID string) *Session {
	return &Session{ID: uuid.NewString(), UserID: userID, ConversationID: conversationID, state: StateGathering}
}

// State returns the session's current state.
func (s *Session) State() State { return s.state }

// LastAgentQuestion returns the most recent reply sent to the user.
func (s *Session) LastAgentQuestion() string { return s.lastAgentQuestion }

func (s *Session) end(next State) {
	s.state = next
	s.lastAgentQuestion = ""
}

// Triggered reports whether text confirms the closing summary asked in last.
func Triggered(last, text string) bool {
	return strings.Contains(last, ConfirmationQuestion) && strings.Contains(strings.ToLower(text), "yes")
}

// inbound is one decoded client frame.
type inbound struct {
	text         string
	continuation bool
}

// parseFrame classifies a raw frame. A continuation carries its re-encoded
// chat history as text; anything else is taken verbatim.
func parseFrame(raw string) inbound {
	var msg struct {
		Action      string          `json:"action"`
		ChatHistory json.RawMessage `json:"chat_history"`
	}
	if err := json.Unmarshal([]byte(raw), &msg); err != nil || msg.Action != continueAction {
		return inbound{text: raw}
	}

	var history any
	if len(msg.ChatHistory) > 0 {
		_ = json.Unmarshal(msg.ChatHistory, &history)
	}
	data, err := json.Marshal(history)
	if err != nil {
		data = []byte("null")
	}
	return inbound{text: string(data), continuation: true}
}
