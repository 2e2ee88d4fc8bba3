package agent

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/ashureev/geek-intake/internal/llm"
	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates how many tokens a text costs.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// NewTiktokenCounter returns a counter for model, using cl100k_base for unknown models.
func NewTiktokenCounter(model string) (TokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return tiktokenCounter{enc: enc}, nil
}

// RuneCounter approximates tokens as one per four runes.
type RuneCounter struct{}

// Count implements TokenCounter.
func (RuneCounter) Count(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// perMessageOverhead approximates the role and framing tokens of one message.
const perMessageOverhead = 4

// Memory keeps the user and assistant turns of each session within a token budget.
type Memory struct {
	mu       sync.Mutex
	sessions map[string][]llm.Message
	budget   int
	counter  TokenCounter
}

// NewMemory creates a memory. A budget <= 0 keeps every turn.
func NewMemory(budget int, counter TokenCounter) *Memory {
	if counter == nil {
		counter = RuneCounter{}
	}
	return &Memory{
		sessions: make(map[string][]llm.Message),
		budget:   budget,
		counter:  counter,
	}
}

// History returns a copy of the session's retained turns, oldest first.
func (m *Memory) History(sessionID string) []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Message(nil), m.sessions[sessionID]...)
}

// Append records turns and drops the oldest ones that exceed the budget.
// The newest turn is always retained.
func (m *Memory) Append(sessionID string, msgs ...llm.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := append(m.sessions[sessionID], msgs...)
	if m.budget > 0 {
		total := 0
		keep := len(history)
		for i := len(history) - 1; i >= 0; i-- {
			cost := m.counter.Count(history[i].Content) + perMessageOverhead
			if total+cost > m.budget && i < len(history)-1 {
				break
			}
			total += cost
			keep = i
		}
		history = append([]llm.Message(nil), history[keep:]...)
	}
	m.sessions[sessionID] = history
}

// Forget drops the session.
func (m *Memory) Forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Len reports the number of sessions held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
