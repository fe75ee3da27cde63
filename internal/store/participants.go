// ABOUTME: Staff participation in conversations for read tracking
// ABOUTME: Participants auto-join on relay; membership is idempotent

package store

import (
	"context"
	"fmt"
	"time"
)

// AddParticipant joins a staff member to a conversation. Re-joining an
// existing participant is a no-op.
func (s *SQLiteStore) AddParticipant(ctx context.Context, p *Participant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO participants (conversation_id, staff_id, last_read_at, joined_at)
		VALUES (?, ?, ?, ?)
	`, p.ConversationID, p.StaffID, formatTime(p.LastReadAt), formatTime(p.JoinedAt))
	if err != nil {
		return fmt.Errorf("adding participant: %w", err)
	}

	s.logger.Debug("participant joined",
		"conversation_id", p.ConversationID, "staff_id", p.StaffID)
	return nil
}

// MarkConversationRead updates a participant's last-read timestamp.
// Returns ErrNotFound if the staff member is not a participant.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, conversationID, staffID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE participants SET last_read_at = ?
		WHERE conversation_id = ? AND staff_id = ?
	`, formatTime(time.Now()), conversationID, staffID)
	if err != nil {
		return fmt.Errorf("marking conversation read: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
