// ABOUTME: Shared flow test fixtures plus registry and step resolver tests
// ABOUTME: Flows run against a real temp-dir SQLite store

package flow

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lobbybee/concierge-gateway/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedGuest(t *testing.T, s *store.SQLiteStore, address, status string) *store.Guest {
	t.Helper()
	now := time.Now()
	g := &store.Guest{
		ID:        uuid.New().String(),
		Address:   address,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateGuest(t.Context(), g))
	return g
}

func seedConversation(t *testing.T, s *store.SQLiteStore, guestID, purpose string) *store.Conversation {
	t.Helper()
	now := time.Now()
	c := &store.Conversation{
		ID:            uuid.New().String(),
		GuestID:       guestID,
		Department:    "reception",
		Purpose:       purpose,
		Status:        store.ConversationActive,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	require.NoError(t, s.CreateConversation(t.Context(), c))
	return c
}

type fakeMedia struct {
	fail map[string]bool
}

func (m *fakeMedia) DownloadMedia(_ context.Context, ref string) ([]byte, error) {
	if m.fail[ref] {
		return nil, errors.New("download failed")
	}
	return []byte("image:" + ref), nil
}

type fakeExtractor struct {
	result *ExtractedIdentity
	err    error
	calls  int
}

func (e *fakeExtractor) ExtractIdentityDocument(_ context.Context, _, _ []byte, _ string) (*ExtractedIdentity, error) {
	e.calls++
	return e.result, e.err
}

type stubFlow struct {
	id       string
	purpose  string
	priority int
}

func (f *stubFlow) ID() string      { return f.id }
func (f *stubFlow) Purpose() string { return f.purpose }
func (f *stubFlow) Priority() int   { return f.priority }
func (f *stubFlow) Continue(context.Context, *store.Conversation, *store.Guest, *Event) (*Response, error) {
	return TextResponse("stub"), nil
}

func TestRegistry_SelectByPriorityNotRecency(t *testing.T) {
	checkin := &stubFlow{id: "checkin", purpose: store.PurposeCheckin, priority: 30}
	feedback := &stubFlow{id: "feedback", purpose: store.PurposeFeedback, priority: 10}
	r := NewRegistry(feedback, checkin)

	// The feedback conversation is fresher but check-in outranks it.
	convs := []*store.Conversation{
		{ID: "c-feedback", Purpose: store.PurposeFeedback, Status: store.ConversationActive, LastMessageAt: time.Now()},
		{ID: "c-checkin", Purpose: store.PurposeCheckin, Status: store.ConversationActive, LastMessageAt: time.Now().Add(-time.Hour)},
	}

	conv, f, ok := r.Select(convs)
	require.True(t, ok)
	assert.Equal(t, "c-checkin", conv.ID)
	assert.Equal(t, "checkin", f.ID())
}

func TestRegistry_SelectIgnoresNonFlowAndInactive(t *testing.T) {
	demo := &stubFlow{id: "demo", purpose: store.PurposeDemo, priority: 20}
	r := NewRegistry(demo)

	convs := []*store.Conversation{
		{ID: "c-service", Purpose: store.PurposeService, Status: store.ConversationActive},
		{ID: "c-closed-demo", Purpose: store.PurposeDemo, Status: store.ConversationClosed},
	}

	_, _, ok := r.Select(convs)
	assert.False(t, ok)
}

func TestRegistry_ByPurpose(t *testing.T) {
	demo := &stubFlow{id: "demo", purpose: store.PurposeDemo, priority: 20}
	r := NewRegistry(demo)

	f, ok := r.ByPurpose(store.PurposeDemo)
	require.True(t, ok)
	assert.Equal(t, "demo", f.ID())

	_, ok = r.ByPurpose(store.PurposeService)
	assert.False(t, ok)
}

func TestStepResolver_InitialWhenEmpty(t *testing.T) {
	s := newTestStore(t)
	g := seedGuest(t, s, "15551230001", store.GuestStatusPendingCheckin)
	conv := seedConversation(t, s, g.ID, store.PurposeCheckin)

	r := NewStepResolver(s, nil)
	step, err := r.CurrentStep(t.Context(), conv.ID, "checkin", CheckinStepInitial)
	require.NoError(t, err)
	assert.Equal(t, CheckinStepInitial, step)
}

func TestStepResolver_SnapshotWins(t *testing.T) {
	s := newTestStore(t)
	g := seedGuest(t, s, "15551230002", store.GuestStatusPendingCheckin)
	conv := seedConversation(t, s, g.ID, store.PurposeCheckin)
	ctx := t.Context()

	require.NoError(t, s.UpsertFlowPosition(ctx, &store.FlowPosition{
		ConversationID: conv.ID, FlowID: "checkin", Step: CheckinStepIDUpload, UpdatedAt: time.Now(),
	}))

	r := NewStepResolver(s, nil)
	step, err := r.CurrentStep(ctx, conv.ID, "checkin", CheckinStepInitial)
	require.NoError(t, err)
	assert.Equal(t, CheckinStepIDUpload, step)
}

func TestStepResolver_LogFallbackByRecency(t *testing.T) {
	s := newTestStore(t)
	g := seedGuest(t, s, "15551230003", store.GuestStatusPendingCheckin)
	conv := seedConversation(t, s, g.ID, store.PurposeCheckin)
	ctx := t.Context()

	// Messages written without snapshots, with a step-1 marker arriving after
	// step-2. Recency wins, not the numeric max.
	base := time.Now().Add(-time.Minute)
	for i, step := range []int{0, 1, 2, 1} {
		require.NoError(t, s.AppendMessage(ctx, &store.Message{
			ID:             uuid.New().String(),
			ConversationID: conv.ID,
			Sender:         store.SenderStaff,
			Content:        "prompt",
			IsFlow:         true,
			FlowID:         "checkin",
			FlowStep:       step,
			StepSuccess:    true,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}))
	}

	r := NewStepResolver(s, nil)
	step, err := r.CurrentStep(ctx, conv.ID, "checkin", CheckinStepInitial)
	require.NoError(t, err)
	assert.Equal(t, 1, step)
}

func TestEvent_Input(t *testing.T) {
	ev := &Event{Text: "hello", SelectionID: "btn_0"}
	assert.Equal(t, "btn_0", ev.Input())

	ev = &Event{Text: "hello"}
	assert.Equal(t, "hello", ev.Input())
}
