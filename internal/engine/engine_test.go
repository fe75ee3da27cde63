// ABOUTME: End-to-end engine tests over a real temp-dir SQLite store
// ABOUTME: Covers duplicate replay, flow dispatch, relay and menu paths

package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lobbybee/concierge-gateway/internal/broadcast"
	"github.com/lobbybee/concierge-gateway/internal/flow"
	"github.com/lobbybee/concierge-gateway/internal/identity"
	"github.com/lobbybee/concierge-gateway/internal/ledger"
	"github.com/lobbybee/concierge-gateway/internal/router"
	"github.com/lobbybee/concierge-gateway/internal/store"
)

type fakeMedia struct{}

func (fakeMedia) DownloadMedia(_ context.Context, ref string) ([]byte, error) {
	return []byte("image:" + ref), nil
}

type fakeExtractor struct {
	result *flow.ExtractedIdentity
	err    error
}

func (e *fakeExtractor) ExtractIdentityDocument(context.Context, []byte, []byte, string) (*flow.ExtractedIdentity, error) {
	return e.result, e.err
}

type harness struct {
	store       *store.SQLiteStore
	engine      *Engine
	broadcaster *broadcast.Broadcaster
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	steps := flow.NewStepResolver(s, nil)
	hotels := flow.NewStaticHotelDirectory(nil)
	checkin := flow.NewCheckinFlow(s, steps, hotels, fakeMedia{},
		&fakeExtractor{err: errors.New("no extractor in tests")}, time.Second, nil)
	demo := flow.NewDemoFlow(s, steps, nil)
	feedback := flow.NewFeedbackFlow(s, steps, hotels, "https://g.page/review", nil)

	registry := flow.NewRegistry(checkin, demo, feedback)
	r := router.New(s, registry, nil, 2*time.Minute, nil)
	b := broadcast.New(nil)
	t.Cleanup(b.Close)

	led := ledger.New(s, nil)
	t.Cleanup(led.Close)

	e := New(Config{
		Store:       s,
		Ledger:      led,
		Resolver:    identity.NewResolver(s, nil),
		Router:      r,
		Checkin:     checkin,
		Demo:        demo,
		Feedback:    feedback,
		Broadcaster: b,
	})
	return &harness{store: s, engine: e, broadcaster: b}
}

func textEvent(sender, text string) *flow.Event {
	return &flow.Event{
		SenderAddress: sender,
		ExternalID:    uuid.New().String(),
		Kind:          flow.KindText,
		Text:          text,
	}
}

func seedActiveGuest(t *testing.T, s *store.SQLiteStore, address string) *store.Guest {
	t.Helper()
	now := time.Now()
	g := &store.Guest{
		ID:        uuid.New().String(),
		Address:   address,
		FullName:  "Asha Rao",
		Status:    store.GuestStatusCheckedIn,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateGuest(t.Context(), g))
	return g
}

func TestProcess_RequiresExternalID(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Process(t.Context(), "whatsapp", &flow.Event{
		SenderAddress: "+1 555 123 4567", Kind: flow.KindText, Text: "hi",
	})
	assert.Error(t, err)
}

func TestProcess_DuplicateDeliveryReplaysWithoutSideEffects(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	ev := textEvent("+1 555 123 0001", "/checkin-42")
	first, err := h.engine.Process(ctx, "whatsapp", ev)
	require.NoError(t, err)

	guest, err := h.store.GetGuestByAddress(ctx, "15551230001")
	require.NoError(t, err)

	// Same external id again: identical response, no second guest or
	// conversation.
	second, err := h.engine.Process(ctx, "whatsapp", ev)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	convs, err := h.store.ListActiveConversationsByGuest(ctx, guest.ID)
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestProcess_InvalidAddressIsValidationFailure(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	ev := textEvent("???", "hello")
	resp, err := h.engine.Process(ctx, "whatsapp", ev)
	require.NoError(t, err)
	assert.Equal(t, flow.ResponseText, resp.Type)
	assert.Contains(t, resp.Text, "could not recognize")

	attempt, err := h.store.GetAttemptByExternalID(ctx, "whatsapp", ev.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, store.AttemptValidationFailed, attempt.Status)

	// The replay path serves the same text.
	replayed, err := h.engine.Process(ctx, "whatsapp", ev)
	require.NoError(t, err)
	assert.Equal(t, resp, replayed)
}

func TestProcess_CheckinCommandStartsFlow(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	resp, err := h.engine.Process(ctx, "whatsapp", textEvent("+1 555 123 0002", "/checkin-42"))
	require.NoError(t, err)
	assert.Equal(t, flow.ResponseList, resp.Type)

	guest, err := h.store.GetGuestByAddress(ctx, "15551230002")
	require.NoError(t, err)
	assert.Equal(t, store.GuestStatusPendingCheckin, guest.Status)
}

func TestProcess_CheckinEndToEndWithSynthesizedData(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	sender := "+1 555 123 4567"

	_, err := h.engine.Process(ctx, "whatsapp", textEvent(sender, "/checkin-42"))
	require.NoError(t, err)

	pick := textEvent(sender, "")
	pick.Kind = flow.KindList
	pick.SelectionID = "option_0"
	_, err = h.engine.Process(ctx, "whatsapp", pick)
	require.NoError(t, err)

	for _, ref := range []string{"media-front", "media-back"} {
		up := textEvent(sender, "")
		up.Kind = flow.KindMedia
		up.MediaRef = ref
		_, err = h.engine.Process(ctx, "whatsapp", up)
		require.NoError(t, err)
	}

	// The extractor always errors in this harness, so the profile carries
	// synthesized placeholders and check-in still completes.
	guest, err := h.store.GetGuestByAddress(ctx, "15551234567")
	require.NoError(t, err)
	assert.Equal(t, "Guest 4567", guest.FullName)
	assert.Equal(t, "01/01/1990", guest.DateOfBirth)

	convs, err := h.store.ListActiveConversationsByGuest(ctx, guest.ID)
	require.NoError(t, err)
	assert.Empty(t, convs, "check-in conversation should be closed")
}

func TestProcess_WelcomeForUnknownSender(t *testing.T) {
	h := newHarness(t)

	resp, err := h.engine.Process(t.Context(), "whatsapp", textEvent("+1 555 123 0003", "hello"))
	require.NoError(t, err)
	assert.Equal(t, flow.ResponseText, resp.Type)
	assert.Contains(t, resp.Text, "/checkin-")
}

func TestProcess_CheckedInGuestSeesMenu(t *testing.T) {
	h := newHarness(t)
	seedActiveGuest(t, h.store, "15551230004")

	resp, err := h.engine.Process(t.Context(), "whatsapp", textEvent("+1 555 123 0004", "hi"))
	require.NoError(t, err)
	assert.Equal(t, flow.ResponseList, resp.Type)
	require.Len(t, resp.Options, 5)
	assert.Equal(t, "dept_reception", resp.Options[0].ID)
}

func TestProcess_MenuSelectionCreatesConversationAndRelays(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	guest := seedActiveGuest(t, h.store, "15551230005")

	events, _ := h.broadcaster.Subscribe(ctx, broadcast.GroupDepartment("housekeeping"))

	sel := textEvent("+1 555 123 0005", "")
	sel.Kind = flow.KindList
	sel.SelectionID = "dept_housekeeping"
	resp, err := h.engine.Process(ctx, "whatsapp", sel)
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "Housekeeping")

	convs, err := h.store.ListActiveConversationsByGuest(ctx, guest.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "housekeeping", convs[0].Department)
	assert.Equal(t, store.PurposeService, convs[0].Purpose)

	select {
	case event := <-events:
		assert.Equal(t, convs[0].ID, event.ConversationID)
	case <-time.After(time.Second):
		t.Fatal("no broadcast event for the department group")
	}

	// A follow-up message relays into the same conversation.
	_, err = h.engine.Process(ctx, "whatsapp", textEvent("+1 555 123 0005", "extra towels please"))
	require.NoError(t, err)

	msgs, err := h.store.ListMessages(ctx, convs[0].ID, 50)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestProcess_InvalidInteractiveSelection(t *testing.T) {
	h := newHarness(t)
	seedActiveGuest(t, h.store, "15551230006")

	sel := textEvent("+1 555 123 0006", "")
	sel.Kind = flow.KindButton
	sel.SelectionID = "dept_spa"
	resp, err := h.engine.Process(t.Context(), "whatsapp", sel)
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "valid department")
}

func TestProcess_ActiveFlowTakesReplyOverMenu(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	sender := "+1 555 123 0007"

	_, err := h.engine.Process(ctx, "whatsapp", textEvent(sender, "/demo"))
	require.NoError(t, err)

	// A plain text reply continues the demo flow instead of hitting the menu.
	resp, err := h.engine.Process(ctx, "whatsapp", textEvent(sender, "option_2"))
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "Housekeeping")
}

func TestProcess_CommandRestartsFlowMidway(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	sender := "+1 555 123 0008"

	_, err := h.engine.Process(ctx, "whatsapp", textEvent(sender, "/checkin-42"))
	require.NoError(t, err)

	pick := textEvent(sender, "")
	pick.Kind = flow.KindList
	pick.SelectionID = "option_1"
	_, err = h.engine.Process(ctx, "whatsapp", pick)
	require.NoError(t, err)

	// Mid-flow restart archives the old conversation and starts over.
	resp, err := h.engine.Process(ctx, "whatsapp", textEvent(sender, "/checkin-42"))
	require.NoError(t, err)
	assert.Equal(t, flow.ResponseList, resp.Type)

	guest, err := h.store.GetGuestByAddress(ctx, "15551230008")
	require.NoError(t, err)
	convs, err := h.store.ListActiveConversationsByGuest(ctx, guest.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, store.PurposeCheckin, convs[0].Purpose)
}

func TestProcess_StoreFailureSurfacesError(t *testing.T) {
	h := newHarness(t)

	// Closing the store underneath the engine fails admission.
	h.store.Close()

	_, err := h.engine.Process(t.Context(), "whatsapp", textEvent("+1 555 123 0009", "hi"))
	assert.Error(t, err)
}
