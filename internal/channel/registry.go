package channel

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Registry tracks the active channel of every user conversation.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[string]Channel
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]map[string]Channel),
	}
}

// Get returns the active channel for a user conversation, or nil.
func (r *Registry) Get(userID, conversationID string) Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if convs, ok := r.active[userID]; ok {
		return convs[conversationID]
	}
	return nil
}

// Register makes ch the active channel for a user conversation. A different
// channel already registered there is closed.
func (r *Registry) Register(userID, conversationID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[userID]; !exists {
		r.active[userID] = make(map[string]Channel)
	}

	if existing, exists := r.active[userID][conversationID]; exists && existing != ch {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}

	r.active[userID][conversationID] = ch
	slog.Info("Chat channel registered", "user_id", userID, "conversation_id", conversationID)
}

// Unregister removes ch if it is still the active channel.
func (r *Registry) Unregister(userID, conversationID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if convs, ok := r.active[userID]; ok {
		if current, exists := convs[conversationID]; exists && current == ch {
			delete(convs, conversationID)
			if len(convs) == 0 {
				delete(r.active, userID)
			}
			slog.Info("Chat channel unregistered", "user_id", userID, "conversation_id", conversationID)
		}
	}
}

// CloseUser force-closes every channel of a user.
func (r *Registry) CloseUser(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	convs, ok := r.active[userID]
	if !ok {
		return
	}
	for cid, ch := range convs {
		_ = ch.Close(websocket.StatusNormalClosure, "session closed")
		slog.Info("Chat channel closed", "user_id", userID, "conversation_id", cid)
	}
	delete(r.active, userID)
}

// Len returns the number of active channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, convs := range r.active {
		n += len(convs)
	}
	return n
}

// CloseAll closes every active channel with GoingAway. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for uid, convs := range r.active {
		for _, ch := range convs {
			_ = ch.Close(websocket.StatusGoingAway, "server shutting down")
		}
		delete(r.active, uid)
	}
}
