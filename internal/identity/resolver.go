// ABOUTME: Maps channel addresses to guest records and lifecycle status
// ABOUTME: Only active guests may reach the relay/menu path; everyone else enters a flow

package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lobbybee/concierge-gateway/internal/store"
)

// Status is the coarse routing classification of a sender
type Status string

const (
	// StatusAnonymous means no guest record exists for the address
	StatusAnonymous Status = "anonymous"
	// StatusPendingGuest means the guest is mid check-in
	StatusPendingGuest Status = "pending_guest"
	// StatusActiveGuest means the guest is checked in
	StatusActiveGuest Status = "active_guest"
	// StatusOldGuest means the guest checked out (or any other state)
	StatusOldGuest Status = "old_guest"
)

// GuestStore defines what the resolver needs from storage
type GuestStore interface {
	GetGuestByAddress(ctx context.Context, address string) (*store.Guest, error)
}

// Resolver looks up guests by canonical address and classifies them
type Resolver struct {
	store  GuestStore
	logger *slog.Logger
}

// NewResolver creates a resolver. Pass nil logger for default.
func NewResolver(s GuestStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:  s,
		logger: logger.With("component", "identity"),
	}
}

// Resolve normalizes the address and classifies its guest, if any.
// The returned guest is nil for StatusAnonymous.
func (r *Resolver) Resolve(ctx context.Context, rawAddress string) (*store.Guest, Status, error) {
	address, err := NormalizeAddress(rawAddress)
	if err != nil {
		return nil, "", err
	}

	guest, err := r.store.GetGuestByAddress(ctx, address)
	if err == store.ErrNotFound {
		return nil, StatusAnonymous, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("looking up guest: %w", err)
	}

	status := classify(guest.Status)
	r.logger.Debug("resolved sender", "address", address, "status", status)
	return guest, status, nil
}

// classify maps the guest lifecycle field onto the routing status.
// The mapping is intentionally coarse.
func classify(guestStatus string) Status {
	switch guestStatus {
	case store.GuestStatusCheckedIn:
		return StatusActiveGuest
	case store.GuestStatusPendingCheckin:
		return StatusPendingGuest
	default:
		return StatusOldGuest
	}
}
