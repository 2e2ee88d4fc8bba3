package channel

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/coder/websocket"
)

type stubChannel struct {
	mu     sync.Mutex
	closed []string
}

func (s *stubChannel) Receive(context.Context) (string, error) { return "", ErrClosed }
func (s *stubChannel) Send(context.Context, string) error { return nil }
func (s *stubChannel) SendJSON(context.Context, any) error { return nil }
func (s *stubChannel) Close(_ websocket.StatusCode, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, reason)
	return nil
}

func (s *stubChannel) closeReasons() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.closed...)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	ch := &stubChannel{}

	r.Register("user123", "conv-1", ch)

	if got := r.Get("user123", "conv-1"); got != ch {
		t.Errorf("Expected channel %v, got %v", ch, got)
	}
}

func TestRegistry_RegisterReplacesAndCloses(t *testing.T) {
	r := NewRegistry()
	old := &stubChannel{}
	next := &stubChannel{}

	r.Register("user123", "conv-1", old)
	r.Register("user123", "conv-1", next)

	if got := r.Get("user123", "conv-1"); got != next {
		t.Errorf("Expected replacement channel, got %v", got)
	}
	if reasons := old.closeReasons(); len(reasons) != 1 || reasons[0] != "session replaced" {
		t.Errorf("old channel close reasons = %v, want [session replaced]", reasons)
	}
	if reasons := next.closeReasons(); len(reasons) != 0 {
		t.Errorf("new channel was closed: %v", reasons)
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	ch := &stubChannel{}

	r.Register("user123", "conv-1", ch)
	r.Unregister("user123", "conv-1", ch)

	if got := r.Get("user123", "conv-1"); got != nil {
		t.Errorf("Expected nil channel, got %v", got)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_UnregisterStale(t *testing.T) {
	r := NewRegistry()
	old := &stubChannel{}
	next := &stubChannel{}

	r.Register("user123", "conv-1", old)
	r.Register("user123", "conv-1", next)

	// The replaced session finishing must not evict its successor.
	r.Unregister("user123", "conv-1", old)

	if got := r.Get("user123", "conv-1"); got != next {
		t.Errorf("Expected channel %v, got %v", next, got)
	}
}

func TestRegistry_CloseUser(t *testing.T) {
	r := NewRegistry()
	a, b, other := &stubChannel{}, &stubChannel{}, &stubChannel{}
	r.Register("user123", "conv-1", a)
	r.Register("user123", "conv-2", b)
	r.Register("user456", "conv-1", other)

	r.CloseUser("user123")

	if len(a.closeReasons()) != 1 || len(b.closeReasons()) != 1 {
		t.Errorf("expected both channels of user123 closed")
	}
	if len(other.closeReasons()) != 0 {
		t.Errorf("channel of another user was closed")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
	r.CloseUser("nobody")
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			r.Register("concurrentUser", "conv-"+strconv.Itoa(i), &stubChannel{})
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			r.Get("concurrentUser", "conv-"+strconv.Itoa(i))
		}
	}()

	wg.Wait()
	if r.Len() != 1000 {
		t.Errorf("Len() = %d, want 1000", r.Len())
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry()
	a, b := &stubChannel{}, &stubChannel{}
	r.Register("u1", "c1", a)
	r.Register("u2", "c2", b)

	r.CloseAll()

	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
	for _, ch := range []*stubChannel{a, b} {
		if reasons := ch.closeReasons(); len(reasons) != 1 || reasons[0] != "server shutting down" {
			t.Errorf("close reasons = %v, want [server shutting down]", reasons)
		}
	}
}
