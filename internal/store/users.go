package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/geek-intake/internal/domain"
)

// GetUser retrieves a seeker by id.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM users WHERE user_id = ?`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("user", userID)
	}
	if err != nil {
		return nil, fault("get user", err)
	}
	var u domain.User
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		return nil, fault("decode user", err)
	}
	return &u, nil
}

// ListUsers returns every seeker.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM users ORDER BY rowid`)
	if err != nil {
		return nil, fault("list users", err)
	}
	defer closeRows(rows, "list users")

	users := []domain.User{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fault("scan user", err)
		}
		var u domain.User
		if err := json.Unmarshal([]byte(data), &u); err != nil {
			return nil, fault("decode user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fault("list users", err)
	}
	return users, nil
}

// UpsertUser inserts or replaces a seeker.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u *domain.User) error {
	if !domain.ValidID(u.ID) {
		return domain.NewValidationError("_id", "has an invalid format")
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	err = s.withRetry(ctx, "upsert user", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO users (user_id, data, created_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				data = excluded.data,
				updated_at = excluded.updated_at
		`, u.ID, string(data), toMillis(u.CreatedAt), toMillis(u.UpdatedAt))
		return err
	})
	return fault("upsert user", err)
}
