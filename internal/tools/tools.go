// Package tools implements the catalog lookup tools offered to the assistant.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/geek-intake/internal/agent"
	"github.com/ashureev/geek-intake/internal/domain"
	"github.com/ashureev/geek-intake/internal/store"
)

// Catalog answers category, subcategory and brand lookups from the store.
type Catalog struct {
	store  store.CatalogStore
	cache  *resultCache
	logger *slog.Logger
}

// NewCatalog creates a Catalog whose results are cached for ttl.
func NewCatalog(s store.CatalogStore, ttl time.Duration, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{store: s, cache: newResultCache(ttl), logger: logger}
}

func normalizeSlug(slug string) (string, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return "", domain.NewValidationError("category_slug", "cannot be empty")
	}
	return slug, nil
}

// Categories returns every category title.
func (c *Catalog) Categories(ctx context.Context) ([]string, error) {
	return c.cache.get(ctx, "categories", func(ctx context.Context) ([]string, error) {
		cats, err := c.store.ListCategories(ctx)
		if err != nil {
			return nil, err
		}
		titles := make([]string, 0, len(cats))
		for _, cat := range cats {
			if cat.Title != "" {
				titles = append(titles, cat.Title)
			}
		}
		c.logger.Debug("loaded categories", "count", len(titles))
		return titles, nil
	})
}

// Subcategories returns the subcategory titles of the category with slug.
// An unknown category yields an empty list.
func (c *Catalog) Subcategories(ctx context.Context, slug string) ([]string, error) {
	slug, err := normalizeSlug(slug)
	if err != nil {
		return nil, err
	}
	return c.cache.get(ctx, "subcategories:"+slug, func(ctx context.Context) ([]string, error) {
		cat, err := c.store.GetCategoryBySlug(ctx, slug)
		if domain.IsNotFoundError(err) {
			c.logger.Info("category not found", "slug", slug)
			return []string{}, nil
		}
		if err != nil {
			return nil, err
		}
		subs, err := c.store.ListSubcategoriesByIDs(ctx, cat.SubCategories)
		if err != nil {
			return nil, err
		}
		titles := make([]string, 0, len(subs))
		for _, s := range subs {
			titles = append(titles, s.Title)
		}
		return titles, nil
	})
}

// Brands returns the names of brands serviced under the category with slug.
// An unknown category yields an empty list.
func (c *Catalog) Brands(ctx context.Context, slug string) ([]string, error) {
	slug, err := normalizeSlug(slug)
	if err != nil {
		return nil, err
	}
	return c.cache.get(ctx, "brands:"+slug, func(ctx context.Context) ([]string, error) {
		cat, err := c.store.GetCategoryBySlug(ctx, slug)
		if domain.IsNotFoundError(err) {
			c.logger.Info("category not found", "slug", slug)
			return []string{}, nil
		}
		if err != nil {
			return nil, err
		}
		brands, err := c.store.ListBrandsByCategory(ctx, cat.ID)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(brands))
		for _, b := range brands {
			names = append(names, b.Name)
		}
		return names, nil
	})
}

// Purge drops every cached result.
func (c *Catalog) Purge() {
	c.cache.purge()
}

// Tools returns the assistant tools backed by c.
func (c *Catalog) Tools() []agent.Tool {
	return []agent.Tool{
		categoriesTool{c},
		subcategoriesTool{c},
		brandsTool{c},
	}
}

var slugSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"category_slug": {
			"type": "string",
			"description": "The lowercase slug of the main category (e.g. 'cloud-service-and-maintain')."
		}
	},
	"required": ["category_slug"]
}`)

type slugArgs struct {
	CategorySlug string `json:"category_slug"`
}

func parseSlug(args json.RawMessage) (string, error) {
	var a slugArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return "", domain.NewValidationError("arguments", fmt.Sprintf("invalid JSON: %v", err))
		}
	}
	return a.CategorySlug, nil
}

func encode(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type categoriesTool struct{ c *Catalog }

func (categoriesTool) Name() string { return "get_categories" }

func (categoriesTool) Description() string {
	return "Retrieves the list of service category names. Use this when asking the user which category of service they need."
}

func (categoriesTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}

func (t categoriesTool) Execute(ctx context.Context, _ json.RawMessage) (string, error) {
	titles, err := t.c.Categories(ctx)
	if err != nil {
		return "", err
	}
	return encode(titles)
}

type subcategoriesTool struct{ c *Catalog }

func (subcategoriesTool) Name() string { return "get_subcategories" }

func (subcategoriesTool) Description() string {
	return "Retrieves the subcategory names for a main category slug. Use this when asking the user about the specific kind of service within a category."
}

func (subcategoriesTool) Parameters() json.RawMessage { return slugSchema }

func (t subcategoriesTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	slug, err := parseSlug(args)
	if err != nil {
		return "", err
	}
	titles, err := t.c.Subcategories(ctx, slug)
	if err != nil {
		return "", err
	}
	return encode(titles)
}

type brandsTool struct{ c *Catalog }

func (brandsTool) Name() string { return "get_brands" }

func (brandsTool) Description() string {
	return "Retrieves the brand names serviced for a category slug. Use this when asking the user which brand their device is."
}

func (brandsTool) Parameters() json.RawMessage { return slugSchema }

func (t brandsTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	slug, err := parseSlug(args)
	if err != nil {
		return "", err
	}
	names, err := t.c.Brands(ctx, slug)
	if err != nil {
		return "", err
	}
	return encode(names)
}
