// ABOUTME: Conversation persistence with the one-active-per-shape constraint
// ABOUTME: Duplicate active inserts surface as ErrDuplicateConversation for race recovery

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateConversation inserts a new conversation.
// If an active conversation already exists for the same (guest, hotel,
// department, purpose), it returns ErrDuplicateConversation; callers re-read
// and reuse the winner's row.
func (s *SQLiteStore) CreateConversation(ctx context.Context, c *Conversation) error {
	query := `
		INSERT INTO conversations (id, guest_id, hotel_id, department, purpose, status, last_message_at, last_message_preview, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		c.ID,
		nullString(c.GuestID),
		c.HotelID,
		c.Department,
		c.Purpose,
		c.Status,
		formatTime(c.LastMessageAt),
		c.LastMessagePreview,
		formatTime(c.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation",
		"id", c.ID, "purpose", c.Purpose, "department", c.Department)
	return nil
}

const conversationColumns = `id, guest_id, hotel_id, department, purpose, status, last_message_at, last_message_preview, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var c Conversation
	var guestID sql.NullString
	var lastMessageAt, createdAt string

	err := row.Scan(&c.ID, &guestID, &c.HotelID, &c.Department, &c.Purpose,
		&c.Status, &lastMessageAt, &c.LastMessagePreview, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	c.GuestID = fromNull(guestID)
	if c.LastMessageAt, err = parseTime(lastMessageAt); err != nil {
		return nil, fmt.Errorf("parsing last_message_at: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &c, nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

// GetActiveConversation retrieves the single active conversation for the
// given (guest, hotel, department, purpose) shape.
// Returns ErrNotFound if none exists.
func (s *SQLiteStore) GetActiveConversation(ctx context.Context, guestID, hotelID, department, purpose string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE guest_id = ? AND hotel_id = ? AND department = ? AND purpose = ? AND status = 'active'
	`, guestID, hotelID, department, purpose)
	return scanConversation(row)
}

// ListActiveConversationsByGuest returns the guest's active conversations,
// most recently touched first. The router applies flow priority on top of
// this ordering; recency alone never picks the flow.
func (s *SQLiteStore) ListActiveConversationsByGuest(ctx context.Context, guestID string) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE guest_id = ? AND status = 'active'
		ORDER BY last_message_at DESC
	`, guestID)
	if err != nil {
		return nil, fmt.Errorf("querying active conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	return conversations, nil
}

// SetConversationStatus transitions a conversation to the given status.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) SetConversationStatus(ctx context.Context, id, status string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("updating conversation status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("conversation status changed", "id", id, "status", status)
	return nil
}

// ArchiveActiveConversations archives all of a guest's active conversations
// with the given purpose. Used when a fresh flow command supersedes prior runs.
func (s *SQLiteStore) ArchiveActiveConversations(ctx context.Context, guestID, purpose string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET status = 'archived'
		WHERE guest_id = ? AND purpose = ? AND status = 'active'
	`, guestID, purpose)
	if err != nil {
		return fmt.Errorf("archiving conversations: %w", err)
	}

	if n, _ := result.RowsAffected(); n > 0 {
		s.logger.Debug("archived conversations", "guest_id", guestID, "purpose", purpose, "count", n)
	}
	return nil
}
