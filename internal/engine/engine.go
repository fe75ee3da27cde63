// ABOUTME: Per-event orchestration: admit, resolve, route, execute, fan out
// ABOUTME: Every inbound event is one complete unit of work

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lobbybee/concierge-gateway/internal/broadcast"
	"github.com/lobbybee/concierge-gateway/internal/flow"
	"github.com/lobbybee/concierge-gateway/internal/identity"
	"github.com/lobbybee/concierge-gateway/internal/ledger"
	"github.com/lobbybee/concierge-gateway/internal/router"
	"github.com/lobbybee/concierge-gateway/internal/store"
)

// Template names consumed from the renderer
const (
	TemplateWelcome = "welcome"
	TemplateMenu    = "menu"
)

// DefaultTemplates are the built-in engine message templates
var DefaultTemplates = map[string]string{
	TemplateWelcome: "Welcome! To check in, send /checkin-{hotel_id} using the code shared by your hotel, or try our services with /demo.",
	TemplateMenu:    "How can we help you today? Please choose a department from the menu below.",
}

// Engine wires the pipeline for one inbound event: idempotency admission,
// identity resolution, routing, flow execution or relay, fan-out, finalize.
type Engine struct {
	store       store.Store
	ledger      *ledger.Ledger
	resolver    *identity.Resolver
	router      *router.Router
	checkin     *flow.CheckinFlow
	demo        *flow.DemoFlow
	feedback    *flow.FeedbackFlow
	broadcaster *broadcast.Broadcaster
	renderer    flow.TemplateRenderer
	logger      *slog.Logger
}

// Config bundles the engine's collaborators
type Config struct {
	Store       store.Store
	Ledger      *ledger.Ledger
	Resolver    *identity.Resolver
	Router      *router.Router
	Checkin     *flow.CheckinFlow
	Demo        *flow.DemoFlow
	Feedback    *flow.FeedbackFlow
	Broadcaster *broadcast.Broadcaster
	Renderer    flow.TemplateRenderer // nil uses the built-in templates
	Logger      *slog.Logger
}

// New creates the engine
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	renderer := cfg.Renderer
	if renderer == nil {
		renderer = flow.NewPlaceholderRenderer(DefaultTemplates)
	}
	return &Engine{
		store:       cfg.Store,
		ledger:      cfg.Ledger,
		resolver:    cfg.Resolver,
		router:      cfg.Router,
		checkin:     cfg.Checkin,
		demo:        cfg.Demo,
		feedback:    cfg.Feedback,
		broadcaster: cfg.Broadcaster,
		renderer:    renderer,
		logger:      logger.With("component", "engine"),
	}
}

// Process handles one inbound event end to end and returns the outbound
// response. Duplicate deliveries replay the cached response without side
// effects. Returned errors indicate processing failures already recorded on
// the ledger; validation problems come back as user-visible responses.
func (e *Engine) Process(ctx context.Context, channelType string, ev *flow.Event) (*flow.Response, error) {
	if ev.ExternalID == "" {
		return nil, fmt.Errorf("event is missing an external id")
	}

	attempt, dup, err := e.ledger.Admit(ctx, channelType, ev.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("admitting event: %w", err)
	}
	if dup {
		return e.replay(attempt), nil
	}

	resp, convID, status, procErr := e.process(ctx, ev)
	if procErr != nil {
		e.logger.Error("event processing failed",
			"error", procErr, "external_id", ev.ExternalID, "sender", ev.SenderAddress)
		e.ledger.Finalize(attempt, store.AttemptProcessingFailed, "", "", convID)
		return nil, procErr
	}

	e.ledger.Finalize(attempt, status, marshalResponse(resp), "", convID)
	return resp, nil
}

// replay returns the cached outcome of a previously admitted delivery
func (e *Engine) replay(attempt *store.WebhookAttempt) *flow.Response {
	e.logger.Info("duplicate delivery replayed",
		"external_id", attempt.ExternalID, "status", attempt.Status)

	if attempt.Response != "" {
		var resp flow.Response
		if err := json.Unmarshal([]byte(attempt.Response), &resp); err == nil {
			return &resp
		}
		e.logger.Warn("cached response is not valid JSON", "attempt_id", attempt.ID)
	}
	// Admitted but not yet (or never) finalized. Blocking is the safe side.
	return flow.TextResponse("We're still processing your previous message.")
}

// process runs the post-admission pipeline. It returns the response, the
// conversation id when known, and the ledger status to record.
func (e *Engine) process(ctx context.Context, ev *flow.Event) (*flow.Response, string, string, error) {
	guest, status, err := e.resolver.Resolve(ctx, ev.SenderAddress)
	if err == identity.ErrInvalidAddress {
		resp := flow.TextResponse("Sorry, we could not recognize your number. Please contact the reception.")
		return resp, "", store.AttemptValidationFailed, nil
	}
	if err != nil {
		return nil, "", "", fmt.Errorf("resolving identity: %w", err)
	}

	address := guestAddress(guest, ev)

	action, err := e.router.Decide(ctx, guest, status, ev)
	if err != nil {
		return nil, "", "", fmt.Errorf("routing event: %w", err)
	}

	switch action.Kind {
	case router.ActionStartFlow:
		resp, convID, err := e.startFlow(ctx, action, guest, address)
		return resp, convID, store.AttemptSuccess, err

	case router.ActionContinueFlow:
		resp, err := action.Flow.Continue(ctx, action.Conversation, guest, ev)
		if err != nil {
			return nil, action.Conversation.ID, "", err
		}
		e.publish(action.Conversation, address, resp)
		return resp, action.Conversation.ID, store.AttemptSuccess, nil

	case router.ActionRelay:
		resp, convID, err := e.relay(ctx, action, guest, address, ev)
		return resp, convID, store.AttemptSuccess, err

	case router.ActionShowMenu:
		return e.showMenu(), "", store.AttemptSuccess, nil

	case router.ActionInvalidSelection:
		return flow.TextResponse("Please select a valid department from the menu."), "", store.AttemptSuccess, nil

	default:
		return nil, "", "", fmt.Errorf("unknown routing action %q", action.Kind)
	}
}

// startFlow dispatches an explicit or implicit flow start
func (e *Engine) startFlow(ctx context.Context, action *router.Action, guest *store.Guest, address string) (*flow.Response, string, error) {
	var resp *flow.Response
	var err error

	switch action.FlowID {
	case router.CommandCheckin:
		resp, err = e.checkin.Start(ctx, guest, address, action.HotelID)
	case router.CommandDemo:
		resp, err = e.demo.Start(ctx, guest, address)
	case router.CommandFeedback:
		resp, err = e.feedback.Start(ctx, guest, action.HotelID, action.StayID)
	case router.WelcomeFlowID:
		return e.welcome(), "", nil
	default:
		return nil, "", fmt.Errorf("unknown flow %q", action.FlowID)
	}
	if err != nil {
		return nil, "", err
	}

	e.publish(nil, address, resp)
	return resp, "", nil
}

// welcome renders the default entry response for non-checked-in guests
func (e *Engine) welcome() *flow.Response {
	text, err := e.renderer.RenderTemplate(TemplateWelcome, nil)
	if err != nil {
		e.logger.Warn("welcome template missing", "error", err)
		text = "Welcome! Please contact the reception to get started."
	}
	return flow.TextResponse(text)
}

// showMenu renders the department menu
func (e *Engine) showMenu() *flow.Response {
	body, err := e.renderer.RenderTemplate(TemplateMenu, nil)
	if err != nil {
		e.logger.Warn("menu template missing", "error", err)
		body = "Please choose a department from the menu below."
	}
	return flow.ListResponse("Hotel Services", body, e.router.MenuOptions())
}

// relay appends the guest message to a live staff conversation, creating the
// thread when needed. Creation races resolve through the unique constraint:
// the loser re-reads and reuses the winner's row.
func (e *Engine) relay(ctx context.Context, action *router.Action, guest *store.Guest, address string, ev *flow.Event) (*flow.Response, string, error) {
	conv := action.Conversation
	if conv == nil {
		hotelID := ""
		if stay, err := e.store.GetActiveStay(ctx, guest.ID); err == nil {
			hotelID = stay.HotelID
		} else if err != store.ErrNotFound {
			return nil, "", fmt.Errorf("looking up active stay: %w", err)
		}

		now := time.Now()
		conv = &store.Conversation{
			ID:            uuid.New().String(),
			GuestID:       guest.ID,
			HotelID:       hotelID,
			Department:    action.Department,
			Purpose:       store.PurposeService,
			Status:        store.ConversationActive,
			LastMessageAt: now,
			CreatedAt:     now,
		}
		err := e.store.CreateConversation(ctx, conv)
		if err == store.ErrDuplicateConversation {
			conv, err = e.store.GetActiveConversation(ctx, guest.ID, hotelID, action.Department, store.PurposeService)
			if err != nil {
				return nil, "", fmt.Errorf("re-reading service conversation: %w", err)
			}
		} else if err != nil {
			return nil, "", fmt.Errorf("creating service conversation: %w", err)
		}
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Sender:         store.SenderGuest,
		Content:        ev.Input(),
		MediaRef:       ev.MediaRef,
		CreatedAt:      time.Now(),
	}
	if err := e.store.AppendMessage(ctx, msg); err != nil {
		return nil, conv.ID, fmt.Errorf("appending relayed message: %w", err)
	}

	e.logger.Info("message relayed",
		"conversation_id", conv.ID, "department", conv.Department, "guest_id", guest.ID)

	resp := flow.TextResponse(fmt.Sprintf("Your message has been forwarded to %s. Someone will be with you shortly.", departmentTitle(e.router.Departments(), conv.Department)))
	e.publish(conv, address, resp)
	return resp, conv.ID, nil
}

// publish fans the outbound response out to the interested groups. Publishing
// is fire-and-forget; it never affects the request that produced the event.
func (e *Engine) publish(conv *store.Conversation, address string, resp *flow.Response) {
	event := &broadcast.Event{
		Sender:    store.SenderSystem,
		Payload:   resp,
		CreatedAt: time.Now(),
	}

	if conv != nil {
		event.ConversationID = conv.ID
		event.Department = conv.Department
		if conv.Department != "" {
			e.broadcaster.Publish(broadcast.GroupDepartment(conv.Department), event)
		}
		e.broadcaster.Publish(broadcast.GroupConversation(conv.ID), event)
	}
	if address != "" {
		event.GuestAddress = address
		e.broadcaster.Publish(broadcast.GroupGuest(address), event)
	}
}

// guestAddress prefers the stored canonical address over the raw sender
func guestAddress(guest *store.Guest, ev *flow.Event) string {
	if guest != nil {
		return guest.Address
	}
	normalized, err := identity.NormalizeAddress(ev.SenderAddress)
	if err != nil {
		return ev.SenderAddress
	}
	return normalized
}

func departmentTitle(departments []router.Department, id string) string {
	for _, d := range departments {
		if d.ID == id {
			return d.Title
		}
	}
	return id
}

func marshalResponse(resp *flow.Response) string {
	if resp == nil {
		return ""
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return ""
	}
	return string(data)
}
