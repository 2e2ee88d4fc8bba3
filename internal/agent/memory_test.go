package agent

import (
	"strings"
	"testing"

	"github.com/ashureev/geek-intake/internal/llm"
)

func TestMemoryTrimsOldestTurns(t *testing.T) {
	// Each message costs 10 runes / 4 = 3 tokens + 4 overhead = 7.
	m := NewMemory(15, RuneCounter{})
	for i := 0; i < 4; i++ {
		m.Append("s", llm.Message{Role: llm.RoleUser, Content: strings.Repeat(string(rune('a'+i)), 10)})
	}

	got := m.History("s")
	if len(got) != 2 {
		t.Fatalf("retained %d messages, want 2", len(got))
	}
	if got[0].Content[0] != 'c' || got[1].Content[0] != 'd' {
		t.Errorf("retained %q and %q, want the newest two", got[0].Content, got[1].Content)
	}
}

func TestMemoryKeepsNewestEvenOverBudget(t *testing.T) {
	m := NewMemory(1, RuneCounter{})
	m.Append("s", llm.Message{Role: llm.RoleUser, Content: strings.Repeat("x", 100)})

	if got := m.History("s"); len(got) != 1 {
		t.Fatalf("retained %d messages, want 1", len(got))
	}
}

func TestMemorySessionsAreIsolated(t *testing.T) {
	m := NewMemory(0, nil)
	m.Append("a", llm.Message{Role: llm.RoleUser, Content: "one"})
	m.Append("b", llm.Message{Role: llm.RoleUser, Content: "two"})

	if got := m.History("a"); len(got) != 1 || got[0].Content != "one" {
		t.Errorf("History(a) = %+v", got)
	}
	m.Forget("a")
	if m.Len() != 1 {
		t.Errorf("Len() = %d after Forget, want 1", m.Len())
	}
}

func TestRuneCounter(t *testing.T) {
	if got := (RuneCounter{}).Count("héllo wörld"); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
}
