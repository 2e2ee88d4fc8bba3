package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/geek-intake/internal/domain"
)

// AppendMessage adds a message, creating the conversation on first use.
func (s *SQLiteStore) AppendMessage(ctx context.Context, userID, conversationID string, msg domain.ChatMessage) error {
	sentAt := msg.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}

	return s.inTx(ctx, "append chat message", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (conversation_id, user_id, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT(conversation_id) DO NOTHING
		`, conversationID, userID, toMillis(sentAt))
		if err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO chat_messages (conversation_id, sender, message, sent_at)
			VALUES (?, ?, ?, ?)
		`, conversationID, string(msg.Sender), msg.Message, toMillis(sentAt))
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
}

// GetConversation returns a conversation with its messages in arrival order.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	conv := &domain.Conversation{ConversationID: conversationID}
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, created_at FROM conversations WHERE conversation_id = ?
	`, conversationID).Scan(&conv.UserID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("conversation", conversationID)
	}
	if err != nil {
		return nil, fault("get conversation", err)
	}
	conv.CreatedAt = fromMillis(createdAt)

	msgs, err := s.messages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	conv.ChatMessages = msgs
	return conv, nil
}

func (s *SQLiteStore) messages(ctx context.Context, conversationID string) ([]domain.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sender, message, sent_at FROM chat_messages
		WHERE conversation_id = ?
		ORDER BY message_id
	`, conversationID)
	if err != nil {
		return nil, fault("list chat messages", err)
	}
	defer closeRows(rows, "list chat messages")

	msgs := []domain.ChatMessage{}
	for rows.Next() {
		var (
			m      domain.ChatMessage
			sender string
			sentAt int64
		)
		if err := rows.Scan(&sender, &m.Message, &sentAt); err != nil {
			return nil, fault("scan chat message", err)
		}
		m.Sender = domain.Sender(sender)
		m.SentAt = fromMillis(sentAt)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fault("list chat messages", err)
	}
	return msgs, nil
}

// ListConversations returns a user's conversations, newest first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, created_at FROM conversations
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, userID)
	if err != nil {
		return nil, fault("list conversations", err)
	}

	var summaries []domain.ConversationSummary
	for rows.Next() {
		var (
			sum       domain.ConversationSummary
			createdAt int64
		)
		if err := rows.Scan(&sum.ConversationID, &createdAt); err != nil {
			closeRows(rows, "list conversations")
			return nil, fault("scan conversation", err)
		}
		sum.StartTime = fromMillis(createdAt)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		closeRows(rows, "list conversations")
		return nil, fault("list conversations", err)
	}
	// Release the cursor before issuing the per-conversation queries.
	closeRows(rows, "list conversations")

	out := make([]domain.ConversationSummary, 0, len(summaries))
	for _, sum := range summaries {
		msgs, err := s.messages(ctx, sum.ConversationID)
		if err != nil {
			return nil, err
		}
		sum.Messages = msgs
		out = append(out, sum)
	}
	return out, nil
}

// DeleteConversation removes a conversation and its messages.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, conversationID string) (int64, error) {
	var removed int64
	err := s.inTx(ctx, "delete conversation", func(tx *sql.Tx) error {
		removed = 0
		res, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE conversation_id = ?`, conversationID)
		if err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed += n

		res, err = tx.ExecContext(ctx, `DELETE FROM conversations WHERE conversation_id = ?`, conversationID)
		if err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
		n, err = res.RowsAffected()
		if err != nil {
			return err
		}
		removed += n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
