// ABOUTME: Append-only message log doubling as the flow state log
// ABOUTME: Appends update conversation activity in the same transaction

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// previewLimit caps the conversation's last-message preview
const previewLimit = 255

// AppendMessage appends a message and updates the conversation's
// last-activity timestamp and preview as a single transactional unit.
// Per-conversation ordering follows from this serialization.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender, content, media_ref, is_flow, flow_id, flow_step, step_success, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ID,
		msg.ConversationID,
		msg.Sender,
		msg.Content,
		nullString(msg.MediaRef),
		boolToInt(msg.IsFlow),
		nullString(msg.FlowID),
		msg.FlowStep,
		boolToInt(msg.StepSuccess),
		formatTime(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	if msg.Seq, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("reading message seq: %w", err)
	}

	preview := msg.Content
	if len(preview) > previewLimit {
		preview = preview[:previewLimit]
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET last_message_at = ?, last_message_preview = ?
		WHERE id = ?
	`, formatTime(msg.CreatedAt), preview, msg.ConversationID); err != nil {
		return fmt.Errorf("updating conversation activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message append: %w", err)
	}

	s.logger.Debug("appended message",
		"id", msg.ID, "conversation_id", msg.ConversationID, "sender", msg.Sender,
		"is_flow", msg.IsFlow, "flow_step", msg.FlowStep)
	return nil
}

const messageColumns = `seq, id, conversation_id, sender, content, media_ref, is_flow, flow_id, flow_step, step_success, created_at`

func scanMessage(row rowScanner) (*Message, error) {
	var msg Message
	var mediaRef, flowID sql.NullString
	var isFlow, stepSuccess int
	var createdAt string

	err := row.Scan(&msg.Seq, &msg.ID, &msg.ConversationID, &msg.Sender, &msg.Content,
		&mediaRef, &isFlow, &flowID, &msg.FlowStep, &stepSuccess, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning message: %w", err)
	}

	msg.MediaRef = fromNull(mediaRef)
	msg.FlowID = fromNull(flowID)
	msg.IsFlow = isFlow == 1
	msg.StepSuccess = stepSuccess == 1
	if msg.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing message created_at: %w", err)
	}

	return &msg, nil
}

// ListMessages retrieves the most recent `limit` messages for a conversation
// in chronological order. If limit is 0 or negative, all messages are returned.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	var query string
	var args []any

	if limit > 0 {
		// Get the N most recent messages, but return them in chronological order
		query = `
			SELECT ` + messageColumns + `
			FROM (
				SELECT ` + messageColumns + `
				FROM messages
				WHERE conversation_id = ?
				ORDER BY created_at DESC, seq DESC
				LIMIT ?
			)
			ORDER BY created_at ASC, seq ASC
		`
		args = []any{conversationID, limit}
	} else {
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE conversation_id = ?
			ORDER BY created_at ASC, seq ASC
		`
		args = []any{conversationID}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}

// LatestFlowMessage returns the most recent engine-authored (staff/system)
// flow message for the given flow in the conversation. The most recent by
// timestamp is authoritative for the current step, not the numerically
// largest flow_step. Returns ErrNotFound if no flow message exists.
func (s *SQLiteStore) LatestFlowMessage(ctx context.Context, conversationID, flowID string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = ? AND flow_id = ? AND is_flow = 1 AND sender IN ('staff', 'system')
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`, conversationID, flowID)
	return scanMessage(row)
}

// LatestGuestMessageAtStep returns the most recent guest message logged at a
// given flow step. The demo flow recovers the selected service from it.
// Returns ErrNotFound if none exists.
func (s *SQLiteStore) LatestGuestMessageAtStep(ctx context.Context, conversationID, flowID string, step int) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = ? AND flow_id = ? AND is_flow = 1 AND sender = 'guest' AND flow_step = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`, conversationID, flowID, step)
	return scanMessage(row)
}
