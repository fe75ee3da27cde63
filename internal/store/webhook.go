// ABOUTME: Webhook attempt rows backing the idempotency ledger
// ABOUTME: The unique (channel_type, external_id) insert is the compare-and-swap primitive

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateAttempt inserts a new webhook attempt row.
// Returns ErrDuplicateAttempt if a row already exists for the
// (channel_type, external_id) pair; callers fetch and replay that row.
func (s *SQLiteStore) CreateAttempt(ctx context.Context, a *WebhookAttempt) error {
	query := `
		INSERT INTO webhook_attempts (id, channel_type, external_id, status, response, message_id, conversation_id, processing_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		a.ID,
		a.ChannelType,
		a.ExternalID,
		a.Status,
		a.Response,
		nullString(a.MessageID),
		nullString(a.ConversationID),
		a.ProcessingMS,
		formatTime(a.CreatedAt),
		formatTime(a.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateAttempt
		}
		return fmt.Errorf("inserting webhook attempt: %w", err)
	}

	s.logger.Debug("created webhook attempt",
		"id", a.ID, "channel", a.ChannelType, "external_id", a.ExternalID)
	return nil
}

// GetAttemptByExternalID retrieves the attempt for an external message id.
// Returns ErrNotFound if no attempt exists.
func (s *SQLiteStore) GetAttemptByExternalID(ctx context.Context, channelType, externalID string) (*WebhookAttempt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, channel_type, external_id, status, response, message_id, conversation_id, processing_ms, created_at, updated_at
		FROM webhook_attempts
		WHERE channel_type = ? AND external_id = ?
	`, channelType, externalID)

	var a WebhookAttempt
	var messageID, conversationID sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&a.ID, &a.ChannelType, &a.ExternalID, &a.Status, &a.Response,
		&messageID, &conversationID, &a.ProcessingMS, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning webhook attempt: %w", err)
	}

	a.MessageID = fromNull(messageID)
	a.ConversationID = fromNull(conversationID)
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &a, nil
}

// FinalizeAttempt updates an attempt in place with its processing outcome.
// Returns ErrNotFound if the attempt doesn't exist.
func (s *SQLiteStore) FinalizeAttempt(ctx context.Context, a *WebhookAttempt) error {
	query := `
		UPDATE webhook_attempts
		SET status = ?, response = ?, message_id = ?, conversation_id = ?, processing_ms = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		a.Status,
		a.Response,
		nullString(a.MessageID),
		nullString(a.ConversationID),
		a.ProcessingMS,
		formatTime(a.UpdatedAt),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("finalizing webhook attempt: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("finalized webhook attempt",
		"id", a.ID, "status", a.Status, "processing_ms", a.ProcessingMS)
	return nil
}
