package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/geek-intake/internal/domain"
	"github.com/ashureev/geek-intake/internal/shared"
)

const categoryColumns = `category_id, title, slug, subcategories, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (*domain.Category, error) {
	var (
		c                    domain.Category
		subs                 string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&c.ID, &c.Title, &c.Slug, &subs, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	ids, err := unmarshalList(subs)
	if err != nil {
		return nil, fmt.Errorf("decode subcategories: %w", err)
	}
	c.SubCategories = ids
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return &c, nil
}

// ListCategories returns every category in insertion order.
func (s *SQLiteStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY rowid`)
	if err != nil {
		return nil, fault("list categories", err)
	}
	defer closeRows(rows, "list categories")

	categories := []domain.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fault("scan category", err)
		}
		categories = append(categories, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fault("list categories", err)
	}
	return categories, nil
}

// GetCategoryBySlug finds a category by exact slug.
func (s *SQLiteStore) GetCategoryBySlug(ctx context.Context, slug string) (*domain.Category, error) {
	return s.getCategory(ctx, "slug", slug)
}

// GetCategoryByTitle finds a category by exact title.
func (s *SQLiteStore) GetCategoryByTitle(ctx context.Context, title string) (*domain.Category, error) {
	return s.getCategory(ctx, "title", title)
}

func (s *SQLiteStore) getCategory(ctx context.Context, column, value string) (*domain.Category, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE `+column+` = ? ORDER BY rowid LIMIT 1`, value)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("category", value)
	}
	if err != nil {
		return nil, fault("get category by "+column, err)
	}
	return c, nil
}

// GetSubcategoryByTitle finds a subcategory by exact title.
func (s *SQLiteStore) GetSubcategoryByTitle(ctx context.Context, title string) (*domain.Subcategory, error) {
	var sub domain.Subcategory
	err := s.db.QueryRowContext(ctx, `
		SELECT subcategory_id, title, slug, parent_category FROM subcategories
		WHERE title = ? ORDER BY rowid LIMIT 1
	`, title).Scan(&sub.ID, &sub.Title, &sub.Slug, &sub.ParentCategory)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("subcategory", title)
	}
	if err != nil {
		return nil, fault("get subcategory by title", err)
	}
	return &sub, nil
}

// ListSubcategoriesByIDs returns the subcategories with the given ids, in the order given.
// Unknown ids are skipped.
func (s *SQLiteStore) ListSubcategoriesByIDs(ctx context.Context, ids []string) ([]domain.Subcategory, error) {
	if len(ids) == 0 {
		return []domain.Subcategory{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT subcategory_id, title, slug, parent_category FROM subcategories
		WHERE subcategory_id IN (`+placeholders(len(ids))+`)
	`, stringArgs(ids)...)
	if err != nil {
		return nil, fault("list subcategories", err)
	}
	defer closeRows(rows, "list subcategories")

	byID := make(map[string]domain.Subcategory, len(ids))
	for rows.Next() {
		var sub domain.Subcategory
		if err := rows.Scan(&sub.ID, &sub.Title, &sub.Slug, &sub.ParentCategory); err != nil {
			return nil, fault("scan subcategory", err)
		}
		byID[sub.ID] = sub
	}
	if err := rows.Err(); err != nil {
		return nil, fault("list subcategories", err)
	}

	out := make([]domain.Subcategory, 0, len(byID))
	for _, id := range ids {
		if sub, ok := byID[id]; ok {
			out = append(out, sub)
		}
	}
	return out, nil
}

// ListBrandsByCategory returns the brands serviced under a category.
func (s *SQLiteStore) ListBrandsByCategory(ctx context.Context, categoryID string) ([]domain.Brand, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT brand_id, name, slug, description, image, category_id FROM brands
		WHERE category_id = ? ORDER BY rowid
	`, categoryID)
	if err != nil {
		return nil, fault("list brands", err)
	}
	defer closeRows(rows, "list brands")

	brands := []domain.Brand{}
	for rows.Next() {
		var b domain.Brand
		if err := rows.Scan(&b.ID, &b.Name, &b.Slug, &b.Description, &b.Image, &b.Category); err != nil {
			return nil, fault("scan brand", err)
		}
		brands = append(brands, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fault("list brands", err)
	}
	return brands, nil
}

// skillNames resolves category and subcategory ids to titles.
func (s *SQLiteStore) skillNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	args := stringArgs(ids)
	rows, err := s.db.QueryContext(ctx, `
		SELECT category_id, title FROM categories WHERE category_id IN (`+placeholders(len(ids))+`)
		UNION ALL
		SELECT subcategory_id, title FROM subcategories WHERE subcategory_id IN (`+placeholders(len(ids))+`)
	`, append(args, args...)...)
	if err != nil {
		return nil, fault("resolve skill names", err)
	}
	defer closeRows(rows, "resolve skill names")

	for rows.Next() {
		var id, title string
		if err := rows.Scan(&id, &title); err != nil {
			return nil, fault("scan skill name", err)
		}
		if _, seen := names[id]; !seen {
			names[id] = title
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fault("resolve skill names", err)
	}
	return names, nil
}

// UpsertCategory inserts or replaces a category.
func (s *SQLiteStore) UpsertCategory(ctx context.Context, c *domain.Category) error {
	if c.ID == "" || c.Slug == "" {
		return domain.NewValidationError("category", "id and slug are required")
	}
	subs, err := marshalList(c.SubCategories)
	if err != nil {
		return fmt.Errorf("marshal subcategories: %w", err)
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	err = s.withRetry(ctx, "upsert category", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO categories (`+categoryColumns+`)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(category_id) DO UPDATE SET
				title = excluded.title,
				slug = excluded.slug,
				subcategories = excluded.subcategories,
				updated_at = excluded.updated_at
		`, c.ID, c.Title, c.Slug, subs, toMillis(c.CreatedAt), toMillis(c.UpdatedAt))
		return err
	})
	if shared.IsSQLiteUniqueError(err) {
		return domain.ConflictError{Field: "slug", Message: fmt.Sprintf("slug %q belongs to another category", c.Slug)}
	}
	return fault("upsert category", err)
}

// UpsertSubcategory inserts or replaces a subcategory.
func (s *SQLiteStore) UpsertSubcategory(ctx context.Context, sub *domain.Subcategory) error {
	if sub.ID == "" {
		return domain.NewValidationError("subcategory", "id is required")
	}
	err := s.withRetry(ctx, "upsert subcategory", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO subcategories (subcategory_id, title, slug, parent_category)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(subcategory_id) DO UPDATE SET
				title = excluded.title,
				slug = excluded.slug,
				parent_category = excluded.parent_category
		`, sub.ID, sub.Title, sub.Slug, sub.ParentCategory)
		return err
	})
	return fault("upsert subcategory", err)
}

// UpsertBrand inserts or replaces a brand.
func (s *SQLiteStore) UpsertBrand(ctx context.Context, b *domain.Brand) error {
	if b.ID == "" || b.Category == "" {
		return domain.NewValidationError("brand", "id and category are required")
	}
	err := s.withRetry(ctx, "upsert brand", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO brands (brand_id, name, slug, description, image, category_id)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(brand_id) DO UPDATE SET
				name = excluded.name,
				slug = excluded.slug,
				description = excluded.description,
				image = excluded.image,
				category_id = excluded.category_id
		`, b.ID, b.Name, b.Slug, b.Description, b.Image, b.Category)
		return err
	})
	return fault("upsert brand", err)
}
