// Package api provides HTTP handlers for the intake API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/geek-intake/internal/domain"
	"github.com/ashureev/geek-intake/internal/store"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Matcher finds providers for an issue.
type Matcher interface {
	Match(ctx context.Context, issue *domain.IssueRecord, page, pageSize int) (*domain.MatchResult, error)
}

// Subcategories resolves subcategory titles for a category slug.
type Subcategories interface {
	Subcategories(ctx context.Context, slug string) ([]string, error)
}

// Handler provides common handler utilities.
type Handler struct {
	repo     store.Repository
	catalog  Subcategories
	matcher  Matcher
	pageSize int
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, catalog Subcategories, matcher Matcher, pageSize int) *Handler {
	if pageSize <= 0 {
		pageSize = 5
	}
	return &Handler{
		repo:     repo,
		catalog:  catalog,
		matcher:  matcher,
		pageSize: pageSize,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// StatusFor maps an error onto the HTTP status of its kind.
func StatusFor(err error) int {
	switch {
	case domain.IsValidationError(err):
		return http.StatusBadRequest
	case domain.IsNotFoundError(err):
		return http.StatusNotFound
	case domain.IsConflictError(err):
		return http.StatusConflict
	case domain.IsExtractionError(err):
		return http.StatusUnprocessableEntity
	case domain.IsReasoningFault(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err with the status of its kind. Internal failures are
// logged and reported without detail.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		Error(w, status, http.StatusText(status))
		return
	}
	var ve domain.ValidationError
	if errors.As(err, &ve) {
		JSON(w, status, map[string]any{"error": ve.Error(), "fields": ve.Fields})
		return
	}
	Error(w, status, err.Error())
}

// decodeJSON reads a single JSON value from the request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("body", fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}
