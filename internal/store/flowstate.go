// ABOUTME: Current-step snapshots per (conversation, flow)
// ABOUTME: Written alongside system flow messages; the message log is the fallback

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertFlowPosition records the current step for a (conversation, flow) pair
func (s *SQLiteStore) UpsertFlowPosition(ctx context.Context, pos *FlowPosition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_positions (conversation_id, flow_id, step, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(conversation_id, flow_id) DO UPDATE SET
			step = excluded.step,
			updated_at = excluded.updated_at
	`, pos.ConversationID, pos.FlowID, pos.Step, formatTime(pos.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upserting flow position: %w", err)
	}

	s.logger.Debug("flow position updated",
		"conversation_id", pos.ConversationID, "flow_id", pos.FlowID, "step", pos.Step)
	return nil
}

// GetFlowPosition retrieves the step snapshot for a (conversation, flow) pair.
// Returns ErrNotFound if no snapshot exists.
func (s *SQLiteStore) GetFlowPosition(ctx context.Context, conversationID, flowID string) (*FlowPosition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, flow_id, step, updated_at
		FROM flow_positions
		WHERE conversation_id = ? AND flow_id = ?
	`, conversationID, flowID)

	var pos FlowPosition
	var updatedAt string

	err := row.Scan(&pos.ConversationID, &pos.FlowID, &pos.Step, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning flow position: %w", err)
	}

	if pos.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &pos, nil
}
