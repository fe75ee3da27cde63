// ABOUTME: Feedback flow executor: star rating, optional note, review prompt
// ABOUTME: The rating is persisted to the stay's feedback record as soon as it is chosen

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

// Feedback flow steps
const (
	FeedbackStepInitial      = 0
	FeedbackStepRating       = 1
	FeedbackStepNoteOption   = 2
	FeedbackStepNoteInput    = 3
	FeedbackStepGoogleReview = 4
	FeedbackStepCompleted    = 5
)

const feedbackFlowID = "feedback"

// FeedbackFlow collects a 1-5 star rating and an optional note for a
// completed stay. Favorable ratings are nudged toward a public review.
type FeedbackFlow struct {
	store      store.Store
	steps      *StepResolver
	hotels     HotelDirectory
	reviewLink string // empty disables the review prompt
	logger     *slog.Logger
}

// NewFeedbackFlow creates the feedback executor. Pass nil logger for default.
func NewFeedbackFlow(s store.Store, steps *StepResolver, hotels HotelDirectory, reviewLink string, logger *slog.Logger) *FeedbackFlow {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedbackFlow{
		store:      s,
		steps:      steps,
		hotels:     hotels,
		reviewLink: reviewLink,
		logger:     logger.With("component", "flow", "flow_id", feedbackFlowID),
	}
}

func (f *FeedbackFlow) ID() string      { return feedbackFlowID }
func (f *FeedbackFlow) Purpose() string { return store.PurposeFeedback }
func (f *FeedbackFlow) Priority() int   { return 10 }

// Start handles a fresh /feedback-{hotelId}-{stayId} command. The stay must
// belong to the guest and must not already carry feedback.
func (f *FeedbackFlow) Start(ctx context.Context, guest *store.Guest, hotelID, stayID string) (*Response, error) {
	if !f.hotels.ValidHotel(hotelID) {
		return TextResponse("Invalid hotel code. Please try again."), nil
	}
	if guest == nil {
		return TextResponse("Invalid stay reference. Please contact the reception."), nil
	}

	stay, err := f.store.GetStay(ctx, stayID)
	if err == store.ErrNotFound || (err == nil && stay.GuestID != guest.ID) {
		return TextResponse("Invalid stay reference. Please contact the reception."), nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up stay: %w", err)
	}

	if _, err := f.store.GetFeedbackByStay(ctx, stay.ID); err == nil {
		return TextResponse("You have already provided feedback for this stay. Thank you!"), nil
	} else if err != store.ErrNotFound {
		return nil, fmt.Errorf("checking existing feedback: %w", err)
	}

	if err := f.store.ArchiveActiveConversations(ctx, guest.ID, store.PurposeFeedback); err != nil {
		return nil, fmt.Errorf("archiving old feedback conversations: %w", err)
	}

	now := time.Now()
	conv := &store.Conversation{
		ID:            uuid.New().String(),
		GuestID:       guest.ID,
		HotelID:       hotelID,
		Department:    "reception",
		Purpose:       store.PurposeFeedback,
		Status:        store.ConversationActive,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	if err := f.store.CreateConversation(ctx, conv); err == store.ErrDuplicateConversation {
		conv, err = f.store.GetActiveConversation(ctx, guest.ID, hotelID, "reception", store.PurposeFeedback)
		if err != nil {
			return nil, fmt.Errorf("re-reading feedback conversation: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("creating feedback conversation: %w", err)
	}

	f.logger.Info("feedback started", "guest_id", guest.ID, "stay_id", stayID, "conversation_id", conv.ID)
	return f.promptRating(ctx, conv, "How was your stay?",
		"We'd love to hear about your experience! Please rate your stay from 1 to 5 stars.")
}

// Continue advances the feedback flow from the reconstructed current step
func (f *FeedbackFlow) Continue(ctx context.Context, conv *store.Conversation, guest *store.Guest, ev *Event) (*Response, error) {
	step, err := f.steps.CurrentStep(ctx, conv.ID, feedbackFlowID, FeedbackStepInitial)
	if err != nil {
		return nil, err
	}

	if err := logGuestMessage(ctx, f.store, conv, feedbackFlowID, step, ev); err != nil {
		return nil, err
	}

	switch step {
	case FeedbackStepInitial:
		return f.promptRating(ctx, conv, "How was your stay?",
			"Please rate your stay from 1 to 5 stars.")
	case FeedbackStepRating:
		return f.handleRating(ctx, conv, guest, ev)
	case FeedbackStepNoteOption:
		return f.handleNoteOption(ctx, conv, guest, ev)
	case FeedbackStepNoteInput:
		return f.handleNoteInput(ctx, conv, guest, ev)
	case FeedbackStepGoogleReview:
		return f.completeFlow(ctx, conv)
	default:
		f.logger.Warn("unknown feedback step", "conversation_id", conv.ID, "step", step)
		return TextResponse("Something went wrong. Please start again with /feedback-{hotel_id}-{stay_id}"), nil
	}
}

// promptRating emits the star list and advances to RATING
func (f *FeedbackFlow) promptRating(ctx context.Context, conv *store.Conversation, header, body string) (*Response, error) {
	if err := logSystemMessage(ctx, f.store, f.logger, conv, feedbackFlowID, FeedbackStepRating, header+"\n\n"+body, true); err != nil {
		return nil, err
	}

	options := make([]Option, 5)
	for i := range options {
		options[i] = Option{
			ID:    fmt.Sprintf("rating_%d", i+1),
			Title: strings.Repeat("*", i+1),
		}
	}
	return ListResponse(header, body, options), nil
}

// parseRating accepts rating_<n> ids and bare numeric text
func parseRating(input string) (int, bool) {
	input = strings.TrimSpace(strings.ToLower(input))
	if rest, ok := strings.CutPrefix(input, "rating_"); ok {
		input = rest
	}
	rating, err := strconv.Atoi(input)
	if err != nil || rating < 1 || rating > 5 {
		return 0, false
	}
	return rating, true
}

// handleRating persists the rating and branches on sentiment
func (f *FeedbackFlow) handleRating(ctx context.Context, conv *store.Conversation, guest *store.Guest, ev *Event) (*Response, error) {
	rating, ok := parseRating(ev.Input())
	if !ok {
		if err := logSystemMessage(ctx, f.store, f.logger, conv, feedbackFlowID, FeedbackStepRating,
			"Please select a rating from 1 to 5.", false); err != nil {
			return nil, err
		}
		return f.promptRating(ctx, conv, "How was your stay?", "Please rate your stay from 1 to 5 stars.")
	}

	if err := f.saveRating(ctx, conv, guest, rating); err != nil {
		return nil, err
	}

	var header, body string
	if rating >= 3 {
		header = "Thank you for your positive feedback!"
		body = "We're glad you enjoyed your stay! Would you like to add any additional notes about your experience?"
	} else {
		header = "We're sorry to hear that."
		body = "We're sorry your experience didn't meet your expectations. Would you like to share more details so we can improve?"
	}

	if err := logSystemMessage(ctx, f.store, f.logger, conv, feedbackFlowID, FeedbackStepNoteOption, header+"\n\n"+body, true); err != nil {
		return nil, err
	}
	return ButtonsResponse(header, body, []Option{
		{ID: "add_note", Title: "Add Note"},
		{ID: "skip_note", Title: "Skip"},
	}), nil
}

// saveRating writes the rating to the guest's latest completed stay
func (f *FeedbackFlow) saveRating(ctx context.Context, conv *store.Conversation, guest *store.Guest, rating int) error {
	stay, err := f.store.GetLatestCompletedStay(ctx, guest.ID)
	if err == store.ErrNotFound {
		// No stay to attach to; the conversation itself still records the rating.
		f.logger.Warn("no completed stay for rating", "guest_id", guest.ID, "conversation_id", conv.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up completed stay: %w", err)
	}

	now := time.Now()
	fb := &store.Feedback{
		ID:        uuid.New().String(),
		GuestID:   guest.ID,
		StayID:    stay.ID,
		HotelID:   stay.HotelID,
		Rating:    rating,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := f.store.SaveFeedback(ctx, fb); err != nil {
		return fmt.Errorf("saving rating: %w", err)
	}
	return nil
}

// latestFeedback retrieves the feedback row written at the rating step
func (f *FeedbackFlow) latestFeedback(ctx context.Context, guest *store.Guest) (*store.Feedback, error) {
	stay, err := f.store.GetLatestCompletedStay(ctx, guest.ID)
	if err != nil {
		return nil, err
	}
	return f.store.GetFeedbackByStay(ctx, stay.ID)
}

// handleNoteOption processes the add/skip choice
func (f *FeedbackFlow) handleNoteOption(ctx context.Context, conv *store.Conversation, guest *store.Guest, ev *Event) (*Response, error) {
	switch strings.ToLower(strings.TrimSpace(ev.Input())) {
	case "add_note", "btn_0":
		rating := 3
		if fb, err := f.latestFeedback(ctx, guest); err == nil {
			rating = fb.Rating
		}

		var header, body string
		if rating >= 3 {
			header = "Share your experience"
			body = "Please tell us more about your stay. Your feedback helps us improve our service!"
		} else {
			header = "Help us improve"
			body = "Please let us know what we could have done better. Your feedback is important to us."
		}
		text := header + "\n\n" + body
		if err := logSystemMessage(ctx, f.store, f.logger, conv, feedbackFlowID, FeedbackStepNoteInput, text, true); err != nil {
			return nil, err
		}
		return TextResponse(text), nil

	case "skip_note", "btn_1":
		return f.completeFlow(ctx, conv)

	default:
		if err := logSystemMessage(ctx, f.store, f.logger, conv, feedbackFlowID, FeedbackStepNoteOption,
			"Please select a valid option.", false); err != nil {
			return nil, err
		}
		return ButtonsResponse("Add Note?", "Would you like to add any additional notes?", []Option{
			{ID: "add_note", Title: "Add Note"},
			{ID: "skip_note", Title: "Skip"},
		}), nil
	}
}

// handleNoteInput stores the note and optionally shows the review link
func (f *FeedbackFlow) handleNoteInput(ctx context.Context, conv *store.Conversation, guest *store.Guest, ev *Event) (*Response, error) {
	note := strings.TrimSpace(ev.Input())
	if note == "" {
		text := "Please enter a note or type 'skip' to continue."
		if err := logSystemMessage(ctx, f.store, f.logger, conv, feedbackFlowID, FeedbackStepNoteInput, text, false); err != nil {
			return nil, err
		}
		return TextResponse(text), nil
	}

	rating := 3
	if strings.EqualFold(note, "skip") {
		note = ""
	}
	if fb, err := f.latestFeedback(ctx, guest); err == nil {
		rating = fb.Rating
		if note != "" {
			fb.Note = note
			fb.UpdatedAt = time.Now()
			if err := f.store.SaveFeedback(ctx, fb); err != nil {
				return nil, fmt.Errorf("saving note: %w", err)
			}
		}
	} else if err != store.ErrNotFound {
		return nil, fmt.Errorf("looking up feedback: %w", err)
	}

	if rating >= 3 && f.reviewLink != "" {
		text := "Thank you for your detailed feedback!\n\nWe appreciate you taking the time to share your experience.\n\nPlease also consider leaving a Google Review:\n" + f.reviewLink
		if err := logSystemMessage(ctx, f.store, f.logger, conv, feedbackFlowID, FeedbackStepGoogleReview, text, true); err != nil {
			return nil, err
		}
		return TextResponse(text), nil
	}
	return f.completeFlow(ctx, conv)
}

// completeFlow closes the conversation and thanks the guest
func (f *FeedbackFlow) completeFlow(ctx context.Context, conv *store.Conversation) (*Response, error) {
	if err := f.store.SetConversationStatus(ctx, conv.ID, store.ConversationClosed); err != nil {
		return nil, fmt.Errorf("closing feedback conversation: %w", err)
	}

	text := "Thank you for your feedback!\n\nWe appreciate you taking the time to share your experience with us. We hope to welcome you back again soon!"
	if err := logSystemMessage(ctx, f.store, f.logger, conv, feedbackFlowID, FeedbackStepCompleted, text, true); err != nil {
		return nil, err
	}

	f.logger.Info("feedback completed", "conversation_id", conv.ID)
	return TextResponse(text), nil
}
