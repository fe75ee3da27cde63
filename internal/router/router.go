// ABOUTME: Routing decision engine: commands, flow precedence, relay and menu
// ABOUTME: Expiry is computed lazily from conversation activity, never by timers

package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lobbybee/concierge-gateway/internal/flow"
	"github.com/lobbybee/concierge-gateway/internal/identity"
	"github.com/lobbybee/concierge-gateway/internal/store"
)

// Action kinds
const (
	ActionStartFlow        = "start_flow"
	ActionContinueFlow     = "continue_flow"
	ActionRelay            = "relay"
	ActionShowMenu         = "show_menu"
	ActionInvalidSelection = "invalid_selection"
)

// WelcomeFlowID is the default entry point for guests who are not checked in
const WelcomeFlowID = "welcome"

// DefaultExpiryWindow is the inactivity duration after which a service
// conversation is treated as stale for menu purposes.
const DefaultExpiryWindow = 2 * time.Minute

// Action is the routing decision for one inbound event
type Action struct {
	Kind string

	// StartFlow
	FlowID  string
	HotelID string
	StayID  string

	// ContinueFlow
	Flow         flow.Flow
	Conversation *store.Conversation // also Relay target; nil means create

	// Relay
	Department string
}

// Department is one entry in the staff menu
type Department struct {
	ID    string // canonical slug, also the broadcast group name
	Title string
}

// DefaultDepartments is the built-in staff menu
var DefaultDepartments = []Department{
	{ID: "reception", Title: "Reception"},
	{ID: "housekeeping", Title: "Housekeeping"},
	{ID: "room_service", Title: "Room Service"},
	{ID: "restaurant", Title: "Restaurant"},
	{ID: "management", Title: "Management"},
}

// ConversationLister defines what routing needs from storage
type ConversationLister interface {
	ListActiveConversationsByGuest(ctx context.Context, guestID string) ([]*store.Conversation, error)
}

// Router decides what to do with each inbound event after identity
// resolution. The decision order is fixed; the first matching case wins.
type Router struct {
	store       ConversationLister
	registry    *flow.Registry
	departments []Department
	expiry      time.Duration
	logger      *slog.Logger
}

// New creates a router. Zero expiry uses the default window; nil departments
// use the built-in menu. Pass nil logger for default.
func New(s ConversationLister, registry *flow.Registry, departments []Department, expiry time.Duration, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if expiry <= 0 {
		expiry = DefaultExpiryWindow
	}
	if len(departments) == 0 {
		departments = DefaultDepartments
	}
	return &Router{
		store:       s,
		registry:    registry,
		departments: departments,
		expiry:      expiry,
		logger:      logger.With("component", "router"),
	}
}

// Departments returns the staff menu entries
func (r *Router) Departments() []Department {
	return r.departments
}

// MenuOptions renders the department menu as selectable options
func (r *Router) MenuOptions() []flow.Option {
	options := make([]flow.Option, len(r.departments))
	for i, d := range r.departments {
		options[i] = flow.Option{ID: "dept_" + d.ID, Title: d.Title}
	}
	return options
}

// Decide routes one inbound event. Guest is nil for unknown addresses.
func (r *Router) Decide(ctx context.Context, guest *store.Guest, status identity.Status, ev *flow.Event) (*Action, error) {
	// Case 1: explicit commands always win.
	if cmd, ok := ParseCommand(ev); ok {
		r.logger.Debug("routing to command", "flow", cmd.Flow, "hotel_id", cmd.HotelID)
		return &Action{Kind: ActionStartFlow, FlowID: cmd.Flow, HotelID: cmd.HotelID, StayID: cmd.StayID}, nil
	}

	var convs []*store.Conversation
	if guest != nil {
		var err error
		convs, err = r.store.ListActiveConversationsByGuest(ctx, guest.ID)
		if err != nil {
			return nil, fmt.Errorf("listing active conversations: %w", err)
		}
	}

	// Case 2: an active flow conversation takes the reply, chosen by flow
	// priority rather than recency.
	if conv, f, ok := r.registry.Select(convs); ok {
		r.logger.Debug("routing to active flow", "flow", f.ID(), "conversation_id", conv.ID)
		return &Action{Kind: ActionContinueFlow, Flow: f, Conversation: conv}, nil
	}

	// Case 3: guests who are not checked in have no relay target.
	if status != identity.StatusActiveGuest {
		return &Action{Kind: ActionStartFlow, FlowID: WelcomeFlowID}, nil
	}

	dept, attempted := r.parseMenuSelection(ev)
	mostRecent := firstServicePurpose(convs)

	// Case 7: nothing to resume and nothing selected.
	if mostRecent == nil && !attempted {
		return &Action{Kind: ActionShowMenu}, nil
	}

	// Case 4: stale conversation resets to the menu unless the event is
	// itself a menu selection.
	if mostRecent != nil && r.expired(mostRecent) && !attempted {
		r.logger.Debug("conversation expired, showing menu",
			"conversation_id", mostRecent.ID, "idle", time.Since(mostRecent.LastMessageAt))
		return &Action{Kind: ActionShowMenu}, nil
	}

	// Case 5: resolve the menu selection.
	if attempted {
		if dept == nil {
			return &Action{Kind: ActionInvalidSelection}, nil
		}
		target := r.freshConversationForDepartment(convs, dept.ID)
		return &Action{Kind: ActionRelay, Department: dept.ID, Conversation: target}, nil
	}

	// Case 6: an active, non-expired conversation takes the message directly.
	return &Action{Kind: ActionRelay, Department: mostRecent.Department, Conversation: mostRecent}, nil
}

// parseMenuSelection reports whether the event looks like a department menu
// selection and resolves it if valid. Interactive replies are always
// selection attempts; plain text counts only when it names a department.
func (r *Router) parseMenuSelection(ev *flow.Event) (*Department, bool) {
	input := strings.TrimSpace(ev.Input())
	candidate := strings.TrimPrefix(strings.ToLower(input), "dept_")

	for i := range r.departments {
		d := &r.departments[i]
		if candidate == d.ID || strings.EqualFold(input, d.Title) {
			return d, true
		}
	}

	interactive := ev.Kind == flow.KindButton || ev.Kind == flow.KindList
	return nil, interactive
}

// expired reports whether the conversation has gone stale
func (r *Router) expired(conv *store.Conversation) bool {
	return time.Since(conv.LastMessageAt) > r.expiry
}

// firstServicePurpose picks the most recently active service conversation.
// The list is already ordered by last activity, newest first.
func firstServicePurpose(convs []*store.Conversation) *store.Conversation {
	for _, c := range convs {
		if c.Purpose == store.PurposeService {
			return c
		}
	}
	return nil
}

// freshConversationForDepartment finds a reusable non-expired service
// conversation for the department, or nil when a new one is needed.
func (r *Router) freshConversationForDepartment(convs []*store.Conversation, deptID string) *store.Conversation {
	for _, c := range convs {
		if c.Purpose == store.PurposeService && c.Department == deptID && !r.expired(c) {
			return c
		}
	}
	return nil
}
