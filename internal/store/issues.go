package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/geek-intake/internal/domain"
	"github.com/ashureev/geek-intake/internal/shared"
	"github.com/google/uuid"
)

// CreateIssue stores a new issue record and returns the stored copy.
func (s *SQLiteStore) CreateIssue(ctx context.Context, issue *domain.IssueRecord) (*domain.IssueRecord, error) {
	rec := *issue
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec.ID = uuid.NewString()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal issue: %w", err)
	}

	err = s.withRetry(ctx, "create issue", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO issues (issue_id, conversation_id, user_id, status, data, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, rec.ID, rec.ConversationID, rec.UserID, string(rec.Status), string(data), toMillis(now), toMillis(now))
		return err
	})
	if shared.IsSQLiteUniqueError(err) {
		return nil, domain.ConflictError{Field: "conversation_id", Message: "an issue already exists for this conversation"}
	}
	if err != nil {
		return nil, fault("create issue", err)
	}
	return &rec, nil
}

// GetIssue retrieves an issue by id.
func (s *SQLiteStore) GetIssue(ctx context.Context, issueID string) (*domain.IssueRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM issues WHERE issue_id = ?`, issueID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("issue", issueID)
	}
	if err != nil {
		return nil, fault("get issue", err)
	}
	return decodeIssue(data)
}

// ListIssuesByUser returns a user's issues, oldest first.
func (s *SQLiteStore) ListIssuesByUser(ctx context.Context, userID string) ([]*domain.IssueRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM issues WHERE user_id = ? ORDER BY created_at, rowid
	`, userID)
	if err != nil {
		return nil, fault("list issues", err)
	}
	defer closeRows(rows, "list issues")

	issues := []*domain.IssueRecord{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fault("scan issue", err)
		}
		rec, err := decodeIssue(data)
		if err != nil {
			return nil, err
		}
		issues = append(issues, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fault("list issues", err)
	}
	return issues, nil
}

func decodeIssue(data string) (*domain.IssueRecord, error) {
	var rec domain.IssueRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fault("decode issue", err)
	}
	return &rec, nil
}
