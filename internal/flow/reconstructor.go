// ABOUTME: Derives the current flow step for a conversation
// ABOUTME: Snapshot-first with a message log scan as the recovery path

package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lobbybee/concierge-gateway/internal/store"
)

// StepStore defines what step reconstruction needs from storage
type StepStore interface {
	GetFlowPosition(ctx context.Context, conversationID, flowID string) (*store.FlowPosition, error)
	LatestFlowMessage(ctx context.Context, conversationID, flowID string) (*store.Message, error)
}

// StepResolver reconstructs where a guest is in a flow. The position snapshot
// is consulted first; when it is missing the log scan recovers the step from
// the most recent engine-authored flow message. Most-recent-by-timestamp is
// authoritative, not the numerically largest step, so out-of-order step
// numbers in the log never raise.
type StepResolver struct {
	store  StepStore
	logger *slog.Logger
}

// NewStepResolver creates a resolver. Pass nil logger for default.
func NewStepResolver(s StepStore, logger *slog.Logger) *StepResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &StepResolver{
		store:  s,
		logger: logger.With("component", "step-resolver"),
	}
}

// CurrentStep returns the conversation's current step for a flow, or the
// flow's initial step if nothing has been recorded yet.
func (r *StepResolver) CurrentStep(ctx context.Context, conversationID, flowID string, initial int) (int, error) {
	pos, err := r.store.GetFlowPosition(ctx, conversationID, flowID)
	if err == nil {
		return pos.Step, nil
	}
	if err != store.ErrNotFound {
		return 0, fmt.Errorf("reading flow position: %w", err)
	}

	msg, err := r.store.LatestFlowMessage(ctx, conversationID, flowID)
	if err == store.ErrNotFound {
		return initial, nil
	}
	if err != nil {
		return 0, fmt.Errorf("scanning flow messages: %w", err)
	}

	r.logger.Debug("recovered step from message log",
		"conversation_id", conversationID, "flow_id", flowID, "step", msg.FlowStep)
	return msg.FlowStep, nil
}
