package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/geek-intake/internal/domain"
	"github.com/ashureev/geek-intake/internal/identity"
)

// RegisterChatRoutes registers the chat history routes and, when ws is not
// nil, the websocket route /chat/{user_id}.
func (h *Handler) RegisterChatRoutes(r chi.Router, ws http.Handler) {
	r.Route("/chat", func(r chi.Router) {
		if ws != nil {
			r.With(identity.Middleware("user_id")).Handle("/{user_id}", ws)
		}
		r.With(identity.Middleware("conversation_id")).Get("/chat_history/{conversation_id}", h.ChatHistory)
		r.With(identity.Middleware("user_id")).Get("/conversation/{user_id}", h.Conversations)
		r.With(identity.Middleware("conversation_id")).Delete("/delete/{conversation_id}", h.DeleteConversation)
	})
}

// ChatHistory returns the conversation as a one-element list, or an empty list.
func (h *Handler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	conversationID := identity.ConversationIDFromContext(r.Context())

	conv, err := h.repo.GetConversation(r.Context(), conversationID)
	if domain.IsNotFoundError(err) {
		slog.Info("Chat history not found", "conversation_id", conversationID)
		JSON(w, http.StatusOK, []domain.Conversation{})
		return
	}
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, []domain.Conversation{*conv})
}

// Conversations lists a user's conversations, newest first.
func (h *Handler) Conversations(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	convs, err := h.repo.ListConversations(r.Context(), userID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, convs)
}

// DeleteConversation removes a conversation and its messages.
func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := identity.ConversationIDFromContext(r.Context())

	n, err := h.repo.DeleteConversation(r.Context(), conversationID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if n == 0 {
		Error(w, http.StatusNotFound, fmt.Sprintf("Conversation with id %s not found", conversationID))
		return
	}
	slog.Info("Conversation deleted", "conversation_id", conversationID, "rows", n)
	JSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Conversation with id %s deleted successfully", conversationID),
	})
}
