// ABOUTME: Idempotency ledger gating all webhook processing
// ABOUTME: Admit wins or replays; Finalize records the outcome in place

package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lobbybee/concierge-gateway/internal/store"
)

const (
	// defaultCacheTTL covers the window in which providers typically redeliver
	defaultCacheTTL = 10 * time.Minute
	defaultCacheMax = 10000
)

// AttemptStore defines what the ledger needs from storage
type AttemptStore interface {
	CreateAttempt(ctx context.Context, a *store.WebhookAttempt) error
	GetAttemptByExternalID(ctx context.Context, channelType, externalID string) (*store.WebhookAttempt, error)
	FinalizeAttempt(ctx context.Context, a *store.WebhookAttempt) error
}

// Ledger records one attempt per (channel, external id) and gates all other
// processing. The unique-constraint insert is the compare-and-swap primitive:
// the winner proceeds, losers replay the winner's cached response.
type Ledger struct {
	store  AttemptStore
	cache  *seenCache
	logger *slog.Logger
}

// New creates a ledger. Pass nil logger for default.
func New(s AttemptStore, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:  s,
		cache:  newSeenCache(defaultCacheTTL, defaultCacheMax),
		logger: logger.With("component", "ledger"),
	}
}

// Admit attempts to claim an external message id for processing.
// Returns the ledger row and whether this delivery is a duplicate. On a
// duplicate the returned row carries the cached response; the caller must
// replay it verbatim and stop.
func (l *Ledger) Admit(ctx context.Context, channelType, externalID string) (*store.WebhookAttempt, bool, error) {
	key := channelType + "|" + externalID

	// Fast path: a hot redelivery skips the insert attempt entirely.
	if l.cache.checkAndMark(key) {
		existing, err := l.store.GetAttemptByExternalID(ctx, channelType, externalID)
		if err == nil {
			l.logger.Debug("duplicate delivery (cache)",
				"channel", channelType, "external_id", externalID, "status", existing.Status)
			return existing, true, nil
		}
		if err != store.ErrNotFound {
			return nil, false, fmt.Errorf("looking up cached attempt: %w", err)
		}
		// Cache said seen but no row exists; fall through to the insert.
	}

	now := time.Now()
	attempt := &store.WebhookAttempt{
		ID:          uuid.New().String(),
		ChannelType: channelType,
		ExternalID:  externalID,
		Status:      store.AttemptProcessing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := l.store.CreateAttempt(ctx, attempt)
	if err == store.ErrDuplicateAttempt {
		existing, lookupErr := l.store.GetAttemptByExternalID(ctx, channelType, externalID)
		if lookupErr != nil {
			return nil, false, fmt.Errorf("re-reading attempt after duplicate: %w", lookupErr)
		}
		l.logger.Debug("duplicate delivery",
			"channel", channelType, "external_id", externalID, "status", existing.Status)
		return existing, true, nil
	}
	if err != nil {
		// The insert never happened; let a redelivery try again.
		l.cache.forget(key)
		return nil, false, fmt.Errorf("admitting event: %w", err)
	}

	return attempt, false, nil
}

// Finalize persists the processing outcome on the attempt row. It uses a
// detached timeout context so the outcome is recorded even if the request
// context was cancelled mid-flight.
func (l *Ledger) Finalize(a *store.WebhookAttempt, status, response, messageID, conversationID string) {
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a.Status = status
	a.Response = response
	a.MessageID = messageID
	a.ConversationID = conversationID
	a.ProcessingMS = time.Since(a.CreatedAt).Milliseconds()
	a.UpdatedAt = time.Now()

	if err := l.store.FinalizeAttempt(saveCtx, a); err != nil {
		l.logger.Error("failed to finalize attempt",
			"error", err,
			"attempt_id", a.ID,
			"external_id", a.ExternalID,
			"status", status)
	}
}

// Close releases the in-memory cache
func (l *Ledger) Close() {
	l.cache.close()
}
