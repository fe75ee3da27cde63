// ABOUTME: Demo flow executor: a self-contained tour of the service menu
// ABOUTME: The selected service is recovered from the guest's logged menu reply

package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lobbybee/concierge-gateway/internal/store"
)

// Demo flow steps
const (
	DemoStepInitial           = 0
	DemoStepServiceMenu       = 1
	DemoStepServiceSelected   = 2
	DemoStepOrderConfirmation = 3
	DemoStepCompleted         = 4
)

const demoFlowID = "demo"

// demoServiceOrder fixes the positional option_<n> mapping
var demoServiceOrder = []string{"restaurant", "management", "housekeeping", "exit"}

var demoServiceLabels = map[string]string{
	"restaurant":   "Restaurant",
	"management":   "Management",
	"housekeeping": "Housekeeping",
	"exit":         "Exit Demo",
}

// DemoFlow lets anyone explore the service experience without a real hotel.
// A guest record is synthesized for unknown addresses.
type DemoFlow struct {
	store  store.Store
	steps  *StepResolver
	logger *slog.Logger
}

// NewDemoFlow creates the demo executor. Pass nil logger for default.
func NewDemoFlow(s store.Store, steps *StepResolver, logger *slog.Logger) *DemoFlow {
	if logger == nil {
		logger = slog.Default()
	}
	return &DemoFlow{
		store:  s,
		steps:  steps,
		logger: logger.With("component", "flow", "flow_id", demoFlowID),
	}
}

func (f *DemoFlow) ID() string      { return demoFlowID }
func (f *DemoFlow) Purpose() string { return store.PurposeDemo }
func (f *DemoFlow) Priority() int   { return 20 }

// Start handles a fresh /demo command
func (f *DemoFlow) Start(ctx context.Context, guest *store.Guest, address string) (*Response, error) {
	now := time.Now()
	if guest == nil {
		guest = &store.Guest{
			ID:        uuid.New().String(),
			Address:   address,
			FullName:  "Demo Guest",
			Status:    store.GuestStatusPendingCheckin,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := f.store.CreateGuest(ctx, guest); err != nil {
			return nil, fmt.Errorf("creating demo guest: %w", err)
		}
	}

	if err := f.store.ArchiveActiveConversations(ctx, guest.ID, store.PurposeDemo); err != nil {
		return nil, fmt.Errorf("archiving old demo conversations: %w", err)
	}

	conv := &store.Conversation{
		ID:            uuid.New().String(),
		GuestID:       guest.ID,
		Department:    "demo",
		Purpose:       store.PurposeDemo,
		Status:        store.ConversationActive,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	if err := f.store.CreateConversation(ctx, conv); err == store.ErrDuplicateConversation {
		conv, err = f.store.GetActiveConversation(ctx, guest.ID, "", "demo", store.PurposeDemo)
		if err != nil {
			return nil, fmt.Errorf("re-reading demo conversation: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("creating demo conversation: %w", err)
	}

	f.logger.Info("demo started", "guest_id", guest.ID, "conversation_id", conv.ID)
	return f.showServiceMenu(ctx, conv)
}

// Continue advances the demo flow from the reconstructed current step
func (f *DemoFlow) Continue(ctx context.Context, conv *store.Conversation, guest *store.Guest, ev *Event) (*Response, error) {
	step, err := f.steps.CurrentStep(ctx, conv.ID, demoFlowID, DemoStepInitial)
	if err != nil {
		return nil, err
	}

	if err := logGuestMessage(ctx, f.store, conv, demoFlowID, step, ev); err != nil {
		return nil, err
	}

	switch step {
	case DemoStepInitial, DemoStepServiceMenu:
		return f.handleServiceMenu(ctx, conv, ev)
	case DemoStepServiceSelected:
		return f.handleServiceSelected(ctx, conv)
	case DemoStepOrderConfirmation:
		return f.handleOrderConfirmation(ctx, conv, ev)
	default:
		f.logger.Warn("unknown demo step", "conversation_id", conv.ID, "step", step)
		return TextResponse("Something went wrong with the demo. Please start again with /demo"), nil
	}
}

// showServiceMenu emits the service list and advances to SERVICE_MENU
func (f *DemoFlow) showServiceMenu(ctx context.Context, conv *store.Conversation) (*Response, error) {
	header := "Welcome to Demo Hotel!"
	body := "Here are the services we offer:\n\n" +
		"- Restaurant: order food and drinks\n" +
		"- Management: speak with hotel management\n" +
		"- Housekeeping: request room services\n" +
		"- Exit Demo: end the demo experience\n\n" +
		"Please select a service from the options below:"

	if err := logSystemMessage(ctx, f.store, f.logger, conv, demoFlowID, DemoStepServiceMenu, header+"\n\n"+body, true); err != nil {
		return nil, err
	}

	options := make([]Option, len(demoServiceOrder))
	for i, svc := range demoServiceOrder {
		options[i] = Option{ID: svc, Title: demoServiceLabels[svc]}
	}
	return ListResponse(header, body, options), nil
}

// parseDemoService accepts service ids, positional option_<n> and btn_<n>
func parseDemoService(input string) (string, bool) {
	input = strings.ToLower(strings.TrimSpace(input))

	if _, ok := demoServiceLabels[input]; ok {
		return input, true
	}
	for _, prefix := range []string{"option_", "btn_"} {
		if rest, ok := strings.CutPrefix(input, prefix); ok {
			idx, err := strconv.Atoi(rest)
			if err == nil && idx >= 0 && idx < len(demoServiceOrder) {
				return demoServiceOrder[idx], true
			}
			return "", false
		}
	}
	return "", false
}

// handleServiceMenu processes the service selection
func (f *DemoFlow) handleServiceMenu(ctx context.Context, conv *store.Conversation, ev *Event) (*Response, error) {
	service, ok := parseDemoService(ev.Input())
	if !ok {
		return f.showServiceMenu(ctx, conv)
	}

	if service == "exit" {
		return f.exitDemo(ctx, conv)
	}

	label := demoServiceLabels[service]
	header := "Connecting to " + label
	body := fmt.Sprintf("You are now connected to the %s. Please place your order or make your request:", label)
	if err := logSystemMessage(ctx, f.store, f.logger, conv, demoFlowID, DemoStepServiceSelected, header+"\n\n"+body, true); err != nil {
		return nil, err
	}
	return TextResponse(header + "\n\n" + body), nil
}

// selectedService recovers the chosen service from the guest's logged reply at
// the menu step. Defaults to restaurant when nothing parseable is found.
func (f *DemoFlow) selectedService(ctx context.Context, conversationID string) string {
	msg, err := f.store.LatestGuestMessageAtStep(ctx, conversationID, demoFlowID, DemoStepServiceMenu)
	if err != nil {
		if err != store.ErrNotFound {
			f.logger.Warn("failed to recover service selection", "error", err, "conversation_id", conversationID)
		}
		return "restaurant"
	}
	if service, ok := parseDemoService(msg.Content); ok && service != "exit" {
		return service
	}
	return "restaurant"
}

// handleServiceSelected simulates order processing for the chosen service
func (f *DemoFlow) handleServiceSelected(ctx context.Context, conv *store.Conversation) (*Response, error) {
	var header, body string
	switch f.selectedService(ctx, conv.ID) {
	case "management":
		header = "Management Request Received"
		body = "Your request has been forwarded to hotel management. Someone will contact you shortly.\n\nResponse time: within 10 minutes"
	case "housekeeping":
		header = "Housekeeping Request Received"
		body = "Your housekeeping request has been registered. Our staff will attend to your room shortly.\n\nResponse time: within 5-10 minutes"
	default:
		header = "Restaurant Order Received"
		body = "Your order has been placed and forwarded to our kitchen staff.\n\nEstimated time: 15-20 minutes"
	}

	if err := logSystemMessage(ctx, f.store, f.logger, conv, demoFlowID, DemoStepOrderConfirmation, header+"\n\n"+body, true); err != nil {
		return nil, err
	}
	return ButtonsResponse(header, body, []Option{
		{ID: "back_to_menu", Title: "Back to Main Menu"},
	}), nil
}

// handleOrderConfirmation returns to the menu or repeats the confirmation
func (f *DemoFlow) handleOrderConfirmation(ctx context.Context, conv *store.Conversation, ev *Event) (*Response, error) {
	switch strings.ToLower(strings.TrimSpace(ev.Input())) {
	case "back_to_menu", "btn_0":
		return f.showServiceMenu(ctx, conv)
	default:
		return f.handleServiceSelected(ctx, conv)
	}
}

// exitDemo closes the conversation and says goodbye
func (f *DemoFlow) exitDemo(ctx context.Context, conv *store.Conversation) (*Response, error) {
	if err := f.store.SetConversationStatus(ctx, conv.ID, store.ConversationClosed); err != nil {
		return nil, fmt.Errorf("closing demo conversation: %w", err)
	}

	text := "Thank you for trying Demo Hotel!\n\nWe hope you enjoyed exploring our services. In a real hotel you would be connected to actual staff.\n\nFeel free to start the demo again with /demo"
	if err := logSystemMessage(ctx, f.store, f.logger, conv, demoFlowID, DemoStepCompleted, text, true); err != nil {
		return nil, err
	}

	f.logger.Info("demo completed", "conversation_id", conv.ID)
	return TextResponse(text), nil
}
