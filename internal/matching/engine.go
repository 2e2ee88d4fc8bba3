// Package matching pairs an IssueRecord with service providers.
package matching

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ashureev/geek-intake/internal/domain"
	"github.com/ashureev/geek-intake/internal/metrics"
	"github.com/ashureev/geek-intake/internal/store"
)

// Store is the persistence the engine reads from.
type Store interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	GetCategoryByTitle(ctx context.Context, title string) (*domain.Category, error)
	GetSubcategoryByTitle(ctx context.Context, title string) (*domain.Subcategory, error)
	QueryProviders(ctx context.Context, q store.ProviderQuery) (*store.ProviderPage, error)
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// Engine finds providers for issues.
type Engine struct {
	store  Store
	logger *slog.Logger
}

// NewEngine creates an Engine over s.
func NewEngine(s Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: s, logger: logger}
}

// Match returns one page of providers whose skills and geography fit issue.
// Pages are 1-based; page < 1 is treated as the first page but reported as given.
func (e *Engine) Match(ctx context.Context, issue *domain.IssueRecord, page, pageSize int) (*domain.MatchResult, error) {
	if pageSize <= 0 {
		return nil, domain.NewValidationError("page_size", "must be positive")
	}
	if issue == nil {
		return nil, domain.NewValidationError("issue", "is required")
	}

	user, err := e.resolveUser(ctx, issue.UserID)
	if err != nil {
		metrics.MatchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	skills, err := e.skillIDs(ctx, issue.CategoryDetails)
	if err != nil {
		metrics.MatchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	q := store.ProviderQuery{
		SkillIDs: skills,
		Offset:   max(page-1, 0) * pageSize,
		Limit:    pageSize,
	}
	applyGeography(&q, issue, user)

	res, err := e.store.QueryProviders(ctx, q)
	if err != nil {
		metrics.MatchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("query providers: %w", err)
	}

	geeks := res.Providers
	if geeks == nil {
		geeks = []domain.MatchedProvider{}
	}
	result := &domain.MatchResult{
		Geeks: geeks,
		Total: res.Total,
		Limit: pageSize,
		Page:  page,
		Pages: (res.Total + pageSize - 1) / pageSize,
		Issue: *issue,
	}

	outcome := "matched"
	if result.Total == 0 {
		outcome = "empty"
	}
	metrics.MatchesTotal.WithLabelValues(outcome).Inc()
	e.logger.Info("matched providers",
		"user_id", issue.UserID,
		"conversation_id", issue.ConversationID,
		"skills", len(skills),
		"total", result.Total,
		"page", page,
	)
	return result, nil
}

func (e *Engine) resolveUser(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, nil
	}
	user, err := e.store.GetUser(ctx, userID)
	if domain.IsNotFoundError(err) {
		e.logger.Warn("user not found, matching without address", "user_id", userID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (e *Engine) skillIDs(ctx context.Context, cd domain.CategoryDetails) ([]string, error) {
	var ids []string
	if cd.Category != "" {
		cat, err := e.store.GetCategoryByTitle(ctx, cd.Category)
		switch {
		case err == nil:
			ids = append(ids, cat.ID)
		case domain.IsNotFoundError(err):
			e.logger.Info("category not in catalog", "category", cd.Category)
		default:
			return nil, fmt.Errorf("get category: %w", err)
		}
	}
	if cd.Subcategory != "" && cd.Subcategory != cd.Category {
		sub, err := e.store.GetSubcategoryByTitle(ctx, cd.Subcategory)
		switch {
		case err == nil:
			ids = append(ids, sub.ID)
		case domain.IsNotFoundError(err):
			e.logger.Info("subcategory not in catalog", "subcategory", cd.Subcategory)
		default:
			return nil, fmt.Errorf("get subcategory: %w", err)
		}
	}
	return ids, nil
}

// applyGeography sets at most one geography filter. The user's address wins
// when the issue has no location; Online issues are never filtered.
func applyGeography(q *store.ProviderQuery, issue *domain.IssueRecord, user *domain.User) {
	if issue.ModeOfService == domain.ModeOnline {
		return
	}
	location := strings.TrimSpace(issue.Location)
	if location == "" {
		if user.HasAddress() {
			q.Area = &store.CityOrState{City: user.Address.City, State: user.Address.State}
		}
		return
	}
	q.LocationTokens = Tokenize(location)
}

// Tokenize splits s on runs of non-word characters and drops empty tokens.
func Tokenize(s string) []string {
	parts := nonWord.Split(s, -1)
	tokens := parts[:0]
	for _, p := range parts {
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}
