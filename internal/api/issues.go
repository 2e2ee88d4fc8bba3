package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/geek-intake/internal/domain"
	"github.com/ashureev/geek-intake/internal/identity"
)

// RegisterIssueRoutes registers the issue record routes.
func (h *Handler) RegisterIssueRoutes(r chi.Router) {
	r.Route("/issues", func(r chi.Router) {
		r.Post("/", h.CreateIssue)
		r.Get("/{id}", h.Issue)
		r.With(identity.Middleware("user_id")).Get("/user/{user_id}", h.UserIssues)
	})
}

// CreateIssue stores a validated IssueRecord.
func (h *Handler) CreateIssue(w http.ResponseWriter, r *http.Request) {
	var issue domain.IssueRecord
	if err := decodeJSON(r, &issue); err != nil {
		WriteError(w, r, err)
		return
	}
	created, err := h.repo.CreateIssue(r.Context(), &issue)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	slog.Info("Issue created", "issue_id", created.ID, "user_id", created.UserID, "conversation_id", created.ConversationID)
	JSON(w, http.StatusCreated, created)
}

// Issue returns one IssueRecord.
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !domain.ValidID(id) {
		Error(w, http.StatusBadRequest, "invalid id")
		return
	}
	issue, err := h.repo.GetIssue(r.Context(), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, issue)
}

// UserIssues lists the issues reported by a user.
func (h *Handler) UserIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := h.repo.ListIssuesByUser(r.Context(), identity.UserIDFromContext(r.Context()))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, issues)
}
