// ABOUTME: Shared flow types: inbound events, outbound responses, the Flow
// ABOUTME: interface and the priority-ordered registry used by the router

package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lobbybee/concierge-gateway/internal/store"
)

// ErrUnknownStep marks a step id the handler table doesn't cover. Executors
// recover from it with a restart response; it never reaches the guest.
var ErrUnknownStep = errors.New("unknown flow step")

// Inbound event kinds
const (
	KindText   = "text"
	KindButton = "button"
	KindList   = "list"
	KindMedia  = "media"
)

// Event is one inbound guest message as delivered by the transport webhook.
// ExternalID is the idempotency key.
type Event struct {
	SenderAddress string `json:"sender_address"`
	ExternalID    string `json:"external_id"`
	Kind          string `json:"kind"`
	Text          string `json:"text,omitempty"`
	SelectionID   string `json:"selection_id,omitempty"`
	MediaRef      string `json:"media_ref,omitempty"`
}

// Input returns the guest's effective reply: the interactive selection id when
// present, the raw text otherwise.
func (e *Event) Input() string {
	if e.SelectionID != "" {
		return e.SelectionID
	}
	return e.Text
}

// HasMedia reports whether the event carries an attachment
func (e *Event) HasMedia() bool {
	return e.MediaRef != ""
}

// Outbound response types
const (
	ResponseText    = "text"
	ResponseButtons = "buttons"
	ResponseList    = "list"
	ResponseMedia   = "media"
)

// Option is one selectable choice in a buttons or list response
type Option struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Response is the outbound payload handed to the transport collaborator.
// Buttons carry at most three options; larger choice sets use a list.
type Response struct {
	Type      string   `json:"type"`
	Text      string   `json:"text"`
	Body      string   `json:"body,omitempty"`
	Options   []Option `json:"options,omitempty"`
	MediaType string   `json:"media_type,omitempty"`
	MediaRef  string   `json:"media_ref,omitempty"`
	Caption   string   `json:"caption,omitempty"`
}

// TextResponse builds a plain text response
func TextResponse(text string) *Response {
	return &Response{Type: ResponseText, Text: text}
}

// ButtonsResponse builds an interactive response with up to three buttons
func ButtonsResponse(text, body string, options []Option) *Response {
	return &Response{Type: ResponseButtons, Text: text, Body: body, Options: options}
}

// ListResponse builds an interactive list response for larger choice sets
func ListResponse(text, body string, options []Option) *Response {
	return &Response{Type: ResponseList, Text: text, Body: body, Options: options}
}

// MediaDownloader fetches attachment bytes from the transport provider
type MediaDownloader interface {
	DownloadMedia(ctx context.Context, mediaRef string) ([]byte, error)
}

// ExtractedIdentity is the result of a document recognition call
type ExtractedIdentity struct {
	Success     bool
	FullName    string
	DateOfBirth string
	IDNumber    string
	Nationality string
}

// DocumentExtractor runs OCR/QR recognition over a captured identity document.
// Callers bound the call with a timeout; any failure falls through to the
// synthesized-data path, never to the guest.
type DocumentExtractor interface {
	ExtractIdentityDocument(ctx context.Context, front, back []byte, documentType string) (*ExtractedIdentity, error)
}

// TemplateRenderer substitutes placeholders into a named message template
type TemplateRenderer interface {
	RenderTemplate(name string, data map[string]string) (string, error)
}

// PlaceholderRenderer is the built-in TemplateRenderer: it replaces {key}
// markers in registered template strings. No conditionals, no escaping.
type PlaceholderRenderer struct {
	templates map[string]string
}

// NewPlaceholderRenderer creates a renderer over a fixed template set
func NewPlaceholderRenderer(templates map[string]string) *PlaceholderRenderer {
	return &PlaceholderRenderer{templates: templates}
}

// RenderTemplate substitutes {key} placeholders from data into the template
func (r *PlaceholderRenderer) RenderTemplate(name string, data map[string]string) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}
	for key, value := range data {
		tmpl = strings.ReplaceAll(tmpl, "{"+key+"}", value)
	}
	return tmpl, nil
}

// Flow is one named multi-step guided interaction. Continue advances the
// conversation from its reconstructed current step; selection among multiple
// active flow conversations is by Priority, never recency.
type Flow interface {
	ID() string
	Purpose() string
	Priority() int
	Continue(ctx context.Context, conv *store.Conversation, guest *store.Guest, ev *Event) (*Response, error)
}

// Registry holds the known flows ordered by descending priority
type Registry struct {
	flows []Flow
}

// NewRegistry builds a registry from the given flows
func NewRegistry(flows ...Flow) *Registry {
	r := &Registry{flows: make([]Flow, len(flows))}
	copy(r.flows, flows)
	sort.SliceStable(r.flows, func(i, j int) bool {
		return r.flows[i].Priority() > r.flows[j].Priority()
	})
	return r
}

// ByPurpose returns the flow registered for a conversation purpose
func (r *Registry) ByPurpose(purpose string) (Flow, bool) {
	for _, f := range r.flows {
		if f.Purpose() == purpose {
			return f, true
		}
	}
	return nil, false
}

// Select picks the highest-priority flow among the guest's active
// conversations. A stray reply must not resume an older, lower-priority flow
// just because it was touched more recently.
func (r *Registry) Select(convs []*store.Conversation) (*store.Conversation, Flow, bool) {
	for _, f := range r.flows {
		for _, c := range convs {
			if c.Status == store.ConversationActive && c.Purpose == f.Purpose() {
				return c, f, true
			}
		}
	}
	return nil, nil, false
}

// logGuestMessage appends the inbound guest message to the conversation log,
// tagged with the step it was received at.
func logGuestMessage(ctx context.Context, s store.Store, conv *store.Conversation, flowID string, step int, ev *Event) error {
	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Sender:         store.SenderGuest,
		Content:        ev.Input(),
		MediaRef:       ev.MediaRef,
		IsFlow:         true,
		FlowID:         flowID,
		FlowStep:       step,
		StepSuccess:    true,
		CreatedAt:      time.Now(),
	}
	if err := s.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("logging guest message: %w", err)
	}
	return nil
}

// logSystemMessage appends an engine-authored response message tagged with the
// next step and updates the flow position snapshot. The message log remains
// the recovery source; the snapshot spares the scan.
func logSystemMessage(ctx context.Context, s store.Store, logger *slog.Logger, conv *store.Conversation, flowID string, step int, content string, success bool) error {
	now := time.Now()
	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Sender:         store.SenderStaff,
		Content:        content,
		IsFlow:         true,
		FlowID:         flowID,
		FlowStep:       step,
		StepSuccess:    success,
		CreatedAt:      now,
	}
	if err := s.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("logging system message: %w", err)
	}

	pos := &store.FlowPosition{
		ConversationID: conv.ID,
		FlowID:         flowID,
		Step:           step,
		UpdatedAt:      now,
	}
	if err := s.UpsertFlowPosition(ctx, pos); err != nil {
		// The log scan fallback still recovers the step.
		logger.Warn("failed to update flow position snapshot",
			"error", err, "conversation_id", conv.ID, "flow_id", flowID, "step", step)
	}
	return nil
}
