// ABOUTME: Tests for guest status resolution
// ABOUTME: Covers the anonymous case and the lifecycle-to-status mapping

package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lobbybee/concierge-gateway/internal/store"
)

type stubGuestStore struct {
	guests map[string]*store.Guest
}

func (s *stubGuestStore) GetGuestByAddress(_ context.Context, address string) (*store.Guest, error) {
	g, ok := s.guests[address]
	if !ok {
		return nil, store.ErrNotFound
	}
	return g, nil
}

func TestResolve(t *testing.T) {
	stub := &stubGuestStore{guests: map[string]*store.Guest{
		"919876543210": {ID: "g1", Address: "919876543210", Status: store.GuestStatusCheckedIn},
		"919876543211": {ID: "g2", Address: "919876543211", Status: store.GuestStatusPendingCheckin},
		"919876543212": {ID: "g3", Address: "919876543212", Status: store.GuestStatusCheckedOut},
	}}
	r := NewResolver(stub, nil)

	tests := []struct {
		name    string
		address string
		status  Status
		guestID string
	}{
		{name: "checked in maps to active", address: "+91 98765 43210", status: StatusActiveGuest, guestID: "g1"},
		{name: "pending checkin maps to pending", address: "919876543211", status: StatusPendingGuest, guestID: "g2"},
		{name: "checked out maps to old", address: "919876543212", status: StatusOldGuest, guestID: "g3"},
		{name: "unknown address is anonymous", address: "919999999999", status: StatusAnonymous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guest, status, err := r.Resolve(t.Context(), tt.address)
			require.NoError(t, err)
			assert.Equal(t, tt.status, status)
			if tt.guestID == "" {
				assert.Nil(t, guest)
			} else {
				require.NotNil(t, guest)
				assert.Equal(t, tt.guestID, guest.ID)
			}
		})
	}
}

func TestResolve_InvalidAddress(t *testing.T) {
	r := NewResolver(&stubGuestStore{}, nil)

	_, _, err := r.Resolve(t.Context(), "12345")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}
