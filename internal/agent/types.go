// Package agent implements the tool-augmented intake assistant.
package agent

import (
	"time"
)

// EventKind distinguishes streamed tokens from the final reply.
type EventKind int

const (
	// EventToken carries one streamed text fragment.
	EventToken EventKind = iota
	// EventDone carries the parsed reply. It is always the last event.
	EventDone
	// EventRoundEnd follows the tokens of a round that ended in tool calls.
	// Those tokens are not part of the reply.
	EventRoundEnd
)

// Event is one item of a Converse stream.
type Event struct {
	Kind  EventKind
	Token string
	Reply Reply
	// Raw is the model's unparsed final text, set on EventDone.
	Raw string
}

// Reply is the structured answer the assistant sends to the user.
type Reply struct {
	Response string `json:"response"`
	Options  []any  `json:"options"`
}

// Config holds agent configuration.
type Config struct {
	MaxToolRounds  int
	MaxConcurrency int64
	// Now supplies the date shown in the system prompt.
	Now func() time.Time
}

// DefaultConfig returns default agent configuration.
func DefaultConfig() Config {
	return Config{
		MaxToolRounds:  8,
		MaxConcurrency: 16,
		Now:            time.Now,
	}
}
