package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/geek-intake/internal/domain"
)

// RegisterSeekerRoutes registers the seeker query routes.
func (h *Handler) RegisterSeekerRoutes(r chi.Router) {
	r.Route("/seeker_query", func(r chi.Router) {
		r.Get("/get_all_seekers", h.AllSeekers)
		r.Get("/get_seeker/{id}", h.Seeker)
	})
}

// AllSeekers lists every seeker.
func (h *Handler) AllSeekers(w http.ResponseWriter, r *http.Request) {
	users, err := h.repo.ListUsers(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"seekers": users})
}

// Seeker returns one seeker.
func (h *Handler) Seeker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !domain.ValidID(id) {
		Error(w, http.StatusBadRequest, "invalid id")
		return
	}
	user, err := h.repo.GetUser(r.Context(), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"seeker": user})
}
