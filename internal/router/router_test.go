// ABOUTME: Routing decision tests: command grammar, flow precedence, expiry
// ABOUTME: Conversations are stubbed; decisions are pure given the list

package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lobbybee/concierge-gateway/internal/flow"
	"github.com/lobbybee/concierge-gateway/internal/identity"
	"github.com/lobbybee/concierge-gateway/internal/store"
)

type stubLister struct {
	convs []*store.Conversation
}

func (s *stubLister) ListActiveConversationsByGuest(context.Context, string) ([]*store.Conversation, error) {
	return s.convs, nil
}

type stubFlow struct {
	id       string
	purpose  string
	priority int
}

func (f *stubFlow) ID() string      { return f.id }
func (f *stubFlow) Purpose() string { return f.purpose }
func (f *stubFlow) Priority() int   { return f.priority }
func (f *stubFlow) Continue(context.Context, *store.Conversation, *store.Guest, *flow.Event) (*flow.Response, error) {
	return flow.TextResponse("stub"), nil
}

func testRegistry() *flow.Registry {
	return flow.NewRegistry(
		&stubFlow{id: "checkin", purpose: store.PurposeCheckin, priority: 30},
		&stubFlow{id: "demo", purpose: store.PurposeDemo, priority: 20},
		&stubFlow{id: "feedback", purpose: store.PurposeFeedback, priority: 10},
	)
}

func newTestRouter(convs ...*store.Conversation) *Router {
	return New(&stubLister{convs: convs}, testRegistry(), nil, 2*time.Minute, nil)
}

func activeConv(id, department, purpose string, idle time.Duration) *store.Conversation {
	return &store.Conversation{
		ID:            id,
		GuestID:       "g1",
		Department:    department,
		Purpose:       purpose,
		Status:        store.ConversationActive,
		LastMessageAt: time.Now().Add(-idle),
	}
}

func checkedInGuest() *store.Guest {
	return &store.Guest{ID: "g1", Address: "15551234567", Status: store.GuestStatusCheckedIn}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name  string
		ev    *flow.Event
		want  *Command
		match bool
	}{
		{
			name:  "checkin with dash",
			ev:    &flow.Event{Kind: flow.KindText, Text: "/checkin-42"},
			want:  &Command{Flow: CommandCheckin, HotelID: "42"},
			match: true,
		},
		{
			name:  "checkin with space and mixed case",
			ev:    &flow.Event{Kind: flow.KindText, Text: "/CheckIn hotel-7"},
			want:  &Command{Flow: CommandCheckin, HotelID: "hotel-7"},
			match: true,
		},
		{
			name:  "demo",
			ev:    &flow.Event{Kind: flow.KindText, Text: "/demo"},
			want:  &Command{Flow: CommandDemo},
			match: true,
		},
		{
			name:  "demo button",
			ev:    &flow.Event{Kind: flow.KindButton, SelectionID: "start_demo"},
			want:  &Command{Flow: CommandDemo},
			match: true,
		},
		{
			name:  "feedback",
			ev:    &flow.Event{Kind: flow.KindText, Text: "/feedback-42-stay123"},
			want:  &Command{Flow: CommandFeedback, HotelID: "42", StayID: "stay123"},
			match: true,
		},
		{
			name:  "plain text",
			ev:    &flow.Event{Kind: flow.KindText, Text: "hello there"},
			match: false,
		},
		{
			name:  "checkin without hotel",
			ev:    &flow.Event{Kind: flow.KindText, Text: "/checkin"},
			match: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, ok := ParseCommand(tt.ev)
			assert.Equal(t, tt.match, ok)
			if tt.match {
				assert.Equal(t, tt.want, cmd)
			}
		})
	}
}

func TestDecide_CommandWinsOverActiveFlow(t *testing.T) {
	r := newTestRouter(activeConv("c1", "reception", store.PurposeFeedback, time.Second))

	action, err := r.Decide(t.Context(), checkedInGuest(), identity.StatusActiveGuest,
		&flow.Event{Kind: flow.KindText, Text: "/checkin-42"})
	require.NoError(t, err)
	assert.Equal(t, ActionStartFlow, action.Kind)
	assert.Equal(t, CommandCheckin, action.FlowID)
	assert.Equal(t, "42", action.HotelID)
}

func TestDecide_ActiveFlowByPriorityNotRecency(t *testing.T) {
	// Feedback touched seconds ago, check-in an hour ago. Priority wins.
	r := newTestRouter(
		activeConv("c-feedback", "reception", store.PurposeFeedback, time.Second),
		activeConv("c-checkin", "reception", store.PurposeCheckin, time.Hour),
	)

	action, err := r.Decide(t.Context(), checkedInGuest(), identity.StatusActiveGuest,
		&flow.Event{Kind: flow.KindText, Text: "yes"})
	require.NoError(t, err)
	assert.Equal(t, ActionContinueFlow, action.Kind)
	assert.Equal(t, "checkin", action.Flow.ID())
	assert.Equal(t, "c-checkin", action.Conversation.ID)
}

func TestDecide_NonActiveGuestGetsWelcomeFlow(t *testing.T) {
	r := newTestRouter()

	for _, status := range []identity.Status{
		identity.StatusAnonymous, identity.StatusPendingGuest, identity.StatusOldGuest,
	} {
		action, err := r.Decide(t.Context(), nil, status,
			&flow.Event{Kind: flow.KindText, Text: "hello"})
		require.NoError(t, err)
		assert.Equal(t, ActionStartFlow, action.Kind)
		assert.Equal(t, WelcomeFlowID, action.FlowID)
	}
}

func TestDecide_ExpiredConversationShowsMenu(t *testing.T) {
	// Still active in the store, but idle past the window.
	r := newTestRouter(activeConv("c1", "restaurant", store.PurposeService, 5*time.Minute))

	action, err := r.Decide(t.Context(), checkedInGuest(), identity.StatusActiveGuest,
		&flow.Event{Kind: flow.KindText, Text: "another coffee please"})
	require.NoError(t, err)
	assert.Equal(t, ActionShowMenu, action.Kind)
}

func TestDecide_ExpiredButMenuSelectionRelays(t *testing.T) {
	r := newTestRouter(activeConv("c1", "restaurant", store.PurposeService, 5*time.Minute))

	action, err := r.Decide(t.Context(), checkedInGuest(), identity.StatusActiveGuest,
		&flow.Event{Kind: flow.KindList, SelectionID: "dept_housekeeping"})
	require.NoError(t, err)
	assert.Equal(t, ActionRelay, action.Kind)
	assert.Equal(t, "housekeeping", action.Department)
	assert.Nil(t, action.Conversation, "expired conversation is not reused")
}

func TestDecide_MenuSelectionReusesFreshConversation(t *testing.T) {
	fresh := activeConv("c1", "housekeeping", store.PurposeService, time.Second)
	r := newTestRouter(fresh)

	// Title match is case-insensitive.
	action, err := r.Decide(t.Context(), checkedInGuest(), identity.StatusActiveGuest,
		&flow.Event{Kind: flow.KindText, Text: "HOUSEKEEPING"})
	require.NoError(t, err)
	assert.Equal(t, ActionRelay, action.Kind)
	assert.Equal(t, "housekeeping", action.Department)
	require.NotNil(t, action.Conversation)
	assert.Equal(t, "c1", action.Conversation.ID)
}

func TestDecide_InvalidInteractiveSelection(t *testing.T) {
	r := newTestRouter()

	action, err := r.Decide(t.Context(), checkedInGuest(), identity.StatusActiveGuest,
		&flow.Event{Kind: flow.KindButton, SelectionID: "dept_spa"})
	require.NoError(t, err)
	assert.Equal(t, ActionInvalidSelection, action.Kind)
}

func TestDecide_FreshConversationRelaysDirectly(t *testing.T) {
	r := newTestRouter(activeConv("c1", "restaurant", store.PurposeService, 30*time.Second))

	action, err := r.Decide(t.Context(), checkedInGuest(), identity.StatusActiveGuest,
		&flow.Event{Kind: flow.KindText, Text: "add a lemonade"})
	require.NoError(t, err)
	assert.Equal(t, ActionRelay, action.Kind)
	assert.Equal(t, "c1", action.Conversation.ID)
	assert.Equal(t, "restaurant", action.Department)
}

func TestDecide_NoConversationsShowsMenu(t *testing.T) {
	r := newTestRouter()

	action, err := r.Decide(t.Context(), checkedInGuest(), identity.StatusActiveGuest,
		&flow.Event{Kind: flow.KindText, Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, ActionShowMenu, action.Kind)
}

func TestMenuOptions(t *testing.T) {
	r := newTestRouter()

	options := r.MenuOptions()
	require.Len(t, options, 5)
	assert.Equal(t, "dept_reception", options[0].ID)
	assert.Equal(t, "Room Service", options[2].Title)
}
