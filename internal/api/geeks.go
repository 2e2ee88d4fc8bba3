package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/geek-intake/internal/domain"
	"github.com/ashureev/geek-intake/internal/store"
)

const defaultGeekLimit = 10

// RegisterGeekRoutes registers the provider and catalog query routes.
func (h *Handler) RegisterGeekRoutes(r chi.Router) {
	r.Route("/geek_query", func(r chi.Router) {
		r.Get("/get_all_geeks", h.AllGeeks)
		r.Get("/get_geeks", h.Geeks)
		r.Get("/get_geek/{id}", h.Geek)
		r.Get("/get_service_categories", h.ServiceCategories)
		r.Get("/get_subcategories_from_slug/{slug}", h.SubcategoriesFromSlug)
		r.Post("/get_geeks_from_user_issue", h.GeeksFromIssue)
	})
}

// AllGeeks lists every provider.
func (h *Handler) AllGeeks(w http.ResponseWriter, r *http.Request) {
	geeks, err := h.repo.ListProviders(r.Context(), store.ProviderFilter{})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"geeks": geeks})
}

// Geeks lists providers matching the query filters.
func (h *Handler) Geeks(w http.ResponseWriter, r *http.Request) {
	f, err := parseProviderFilter(r.URL.Query())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	geeks, err := h.repo.ListProviders(r.Context(), f)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"geeks": geeks})
}

// Geek returns one provider.
func (h *Handler) Geek(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !domain.ValidID(id) {
		Error(w, http.StatusBadRequest, "invalid id")
		return
	}
	geek, err := h.repo.GetProvider(r.Context(), id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"geek": geek})
}

// ServiceCategories lists the service catalog.
func (h *Handler) ServiceCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.repo.ListCategories(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"categories": cats})
}

// SubcategoriesFromSlug lists the subcategory titles of a category.
func (h *Handler) SubcategoriesFromSlug(w http.ResponseWriter, r *http.Request) {
	titles, err := h.catalog.Subcategories(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, titles)
}

// GeeksFromIssue matches providers to the IssueRecord in the body.
func (h *Handler) GeeksFromIssue(w http.ResponseWriter, r *http.Request) {
	var issue domain.IssueRecord
	if err := decodeJSON(r, &issue); err != nil {
		WriteError(w, r, err)
		return
	}
	issue.Normalize()

	q := r.URL.Query()
	var fields []domain.FieldError
	page := intParam(q, "page", 1, &fields)
	pageSize := intParam(q, "page_size", h.pageSize, &fields)
	if len(fields) > 0 {
		WriteError(w, r, domain.ValidationError{Fields: fields})
		return
	}

	result, err := h.matcher.Match(r.Context(), &issue, page, pageSize)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if len(result.Geeks) == 0 {
		slog.Info("No matching geeks found for user issue", "user_id", issue.UserID, "total", result.Total)
		Error(w, http.StatusNotFound, "No matching geeks found for user issue")
		return
	}
	JSON(w, http.StatusOK, result)
}

func intParam(q url.Values, name string, fallback int, fields *[]domain.FieldError) int {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*fields = append(*fields, domain.FieldError{Field: name, Message: "must be an integer"})
		return fallback
	}
	return n
}

func parseProviderFilter(q url.Values) (store.ProviderFilter, error) {
	var fields []domain.FieldError
	f := store.ProviderFilter{
		Type:         domain.ProviderType(q.Get("type")),
		PrimarySkill: q.Get("primary_skill"),
		Brand:        q.Get("brand"),
		Limit:        intParam(q, "limit", defaultGeekLimit, &fields),
		Skip:         intParam(q, "skip", 0, &fields),
	}

	switch f.Type {
	case "", domain.ProviderIndividual, domain.ProviderCorporate:
	default:
		fields = append(fields, domain.FieldError{Field: "type", Message: "must be Individual or Corporate"})
	}
	if raw := q.Get("mode_of_service"); raw != "" {
		mode, ok := domain.ParseModeOfService(raw)
		if !ok {
			fields = append(fields, domain.FieldError{Field: "mode_of_service", Message: "is not a known mode"})
		}
		f.Mode = mode
	}
	if q.Has("min_yoe") {
		yoe := intParam(q, "min_yoe", 0, &fields)
		f.MinYOE = &yoe
	}
	if raw := q.Get("is_verified"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			fields = append(fields, domain.FieldError{Field: "is_verified", Message: "must be a boolean"})
		}
		f.IsVerified = &v
	}
	if f.Limit < 0 || f.Skip < 0 {
		fields = append(fields, domain.FieldError{Field: "limit", Message: "limit and skip must not be negative"})
	}

	if len(fields) > 0 {
		return f, domain.ValidationError{Fields: fields}
	}
	return f, nil
}
