// Package identity validates caller-supplied identifiers and carries them in the request context.
package identity

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/ashureev/geek-intake/internal/domain"
	"github.com/go-chi/chi/v5"
)

// ConversationQueryParam is the query parameter that names a conversation.
const ConversationQueryParam = "conversation_id"

type contextKey int

const (
	userIDKey contextKey = iota
	conversationIDKey
)

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// ConversationIDFromContext extracts the conversation ID from the request context.
func ConversationIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(conversationIDKey).(string); ok {
		return v
	}
	return ""
}

// WithConversationID returns a copy of ctx carrying conversationID.
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, conversationIDKey, conversationID)
}

func writeInvalid(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(`{"error":"invalid ` + name + `"}`))
}

// Middleware rejects requests whose named URL parameters, or conversation_id
// query value, are not valid identifiers. Valid user_id and conversation_id
// values are stored in the request context.
func Middleware(params ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			for _, name := range params {
				v := strings.TrimSpace(chi.URLParam(r, name))
				if !domain.ValidID(v) {
					writeInvalid(w, name)
					return
				}
				switch name {
				case "user_id":
					ctx = context.WithValue(ctx, userIDKey, v)
				case "conversation_id":
					ctx = context.WithValue(ctx, conversationIDKey, v)
				}
			}

			if q := r.URL.Query().Get(ConversationQueryParam); q != "" {
				q = strings.TrimSpace(q)
				if !domain.ValidID(q) {
					writeInvalid(w, ConversationQueryParam)
					return
				}
				ctx = context.WithValue(ctx, conversationIDKey, q)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
