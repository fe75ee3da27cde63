// ABOUTME: Check-in flow executor: document type, front/back capture, extraction
// ABOUTME: Extraction failures fall through to synthesized data and still complete

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

// Check-in flow steps
const (
	CheckinStepInitial      = 0
	CheckinStepIDType       = 1
	CheckinStepIDUpload     = 2
	CheckinStepIDBackUpload = 3
	CheckinStepCompleted    = 4
)

const checkinFlowID = "checkin"

// documentTypeOrder fixes the positional option_<n> mapping
var documentTypeOrder = []string{
	store.DocumentAadhar,
	store.DocumentDrivingLicense,
	store.DocumentNationalID,
	store.DocumentVoterID,
	store.DocumentOther,
}

// documentTypeLabels are the guest-facing names for each document type
var documentTypeLabels = map[string]string{
	store.DocumentAadhar:         "AADHAR",
	store.DocumentDrivingLicense: "License",
	store.DocumentNationalID:     "National ID",
	store.DocumentVoterID:        "Voter ID",
	store.DocumentOther:          "Other Govt ID",
}

// HotelDirectory validates hotel codes referenced by flow commands
type HotelDirectory interface {
	ValidHotel(hotelID string) bool
}

// StaticHotelDirectory accepts a fixed set of hotel ids.
// An empty set accepts every non-empty id.
type StaticHotelDirectory struct {
	ids map[string]struct{}
}

// NewStaticHotelDirectory builds a directory from the configured hotel ids
func NewStaticHotelDirectory(ids []string) *StaticHotelDirectory {
	d := &StaticHotelDirectory{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		d.ids[id] = struct{}{}
	}
	return d
}

// ValidHotel reports whether the hotel id is known
func (d *StaticHotelDirectory) ValidHotel(hotelID string) bool {
	if hotelID == "" {
		return false
	}
	if len(d.ids) == 0 {
		return true
	}
	_, ok := d.ids[hotelID]
	return ok
}

// CheckinFlow walks a guest through identity capture and creates the pending
// booking/stay pair on completion.
type CheckinFlow struct {
	store          store.Store
	steps          *StepResolver
	hotels         HotelDirectory
	media          MediaDownloader
	extractor      DocumentExtractor
	extractTimeout time.Duration
	logger         *slog.Logger
}

// NewCheckinFlow creates the check-in executor. Pass nil logger for default.
func NewCheckinFlow(s store.Store, steps *StepResolver, hotels HotelDirectory, media MediaDownloader, extractor DocumentExtractor, extractTimeout time.Duration, logger *slog.Logger) *CheckinFlow {
	if logger == nil {
		logger = slog.Default()
	}
	if extractTimeout <= 0 {
		extractTimeout = 15 * time.Second
	}
	return &CheckinFlow{
		store:          s,
		steps:          steps,
		hotels:         hotels,
		media:          media,
		extractor:      extractor,
		extractTimeout: extractTimeout,
		logger:         logger.With("component", "flow", "flow_id", checkinFlowID),
	}
}

func (f *CheckinFlow) ID() string      { return checkinFlowID }
func (f *CheckinFlow) Purpose() string { return store.PurposeCheckin }
func (f *CheckinFlow) Priority() int   { return 30 }

// Start handles a fresh /checkin-{hotelId} command. A returning guest (prior
// completed stay) sees a data confirmation; everyone else has stale pending
// records purged and goes straight to document type selection.
func (f *CheckinFlow) Start(ctx context.Context, guest *store.Guest, address, hotelID string) (*Response, error) {
	if !f.hotels.ValidHotel(hotelID) {
		return TextResponse("Invalid hotel code. Please try again."), nil
	}

	now := time.Now()
	if guest == nil {
		guest = &store.Guest{
			ID:        uuid.New().String(),
			Address:   address,
			Status:    store.GuestStatusPendingCheckin,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := f.store.CreateGuest(ctx, guest); err != nil {
			return nil, fmt.Errorf("creating guest: %w", err)
		}
	}

	returning, err := f.store.HasCompletedStay(ctx, guest.ID)
	if err != nil {
		return nil, fmt.Errorf("checking prior stays: %w", err)
	}

	if !returning {
		if err := f.purgeIncompleteData(ctx, guest); err != nil {
			return nil, err
		}
	}

	if err := f.store.ArchiveActiveConversations(ctx, guest.ID, store.PurposeCheckin); err != nil {
		return nil, fmt.Errorf("archiving old check-in conversations: %w", err)
	}

	conv := &store.Conversation{
		ID:            uuid.New().String(),
		GuestID:       guest.ID,
		HotelID:       hotelID,
		Department:    "reception",
		Purpose:       store.PurposeCheckin,
		Status:        store.ConversationActive,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	if err := f.store.CreateConversation(ctx, conv); err == store.ErrDuplicateConversation {
		// A concurrent command won the race; reuse its conversation.
		conv, err = f.store.GetActiveConversation(ctx, guest.ID, hotelID, "reception", store.PurposeCheckin)
		if err != nil {
			return nil, fmt.Errorf("re-reading check-in conversation: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("creating check-in conversation: %w", err)
	}

	f.logger.Info("check-in started",
		"guest_id", guest.ID, "hotel_id", hotelID, "conversation_id", conv.ID, "returning", returning)

	if returning {
		return f.showDataConfirmation(ctx, conv, guest)
	}
	return f.promptIDType(ctx, conv,
		"Please select your government-issued ID document type from the list below to begin verification.")
}

// purgeIncompleteData removes the leftovers of a failed prior check-in
func (f *CheckinFlow) purgeIncompleteData(ctx context.Context, guest *store.Guest) error {
	// Stays reference bookings, so they go first.
	if err := f.store.DeletePendingStays(ctx, guest.ID); err != nil {
		return fmt.Errorf("purging pending stays: %w", err)
	}
	if err := f.store.DeletePendingBookings(ctx, guest.ID); err != nil {
		return fmt.Errorf("purging pending bookings: %w", err)
	}
	if err := f.store.DeleteUnverifiedDocuments(ctx, guest.ID); err != nil {
		return fmt.Errorf("purging unverified documents: %w", err)
	}

	guest.FullName = ""
	guest.Email = ""
	guest.DateOfBirth = ""
	guest.Nationality = ""
	guest.Status = store.GuestStatusPendingCheckin
	guest.UpdatedAt = time.Now()
	if err := f.store.UpdateGuest(ctx, guest); err != nil {
		return fmt.Errorf("resetting guest profile: %w", err)
	}
	return nil
}

// Continue advances the check-in flow from the reconstructed current step
func (f *CheckinFlow) Continue(ctx context.Context, conv *store.Conversation, guest *store.Guest, ev *Event) (*Response, error) {
	step, err := f.steps.CurrentStep(ctx, conv.ID, checkinFlowID, CheckinStepInitial)
	if err != nil {
		return nil, err
	}

	if err := logGuestMessage(ctx, f.store, conv, checkinFlowID, step, ev); err != nil {
		return nil, err
	}

	switch step {
	case CheckinStepInitial:
		return f.handleInitial(ctx, conv, guest, ev)
	case CheckinStepIDType:
		return f.handleIDType(ctx, conv, guest, ev)
	case CheckinStepIDUpload:
		return f.handleIDUpload(ctx, conv, guest, ev)
	case CheckinStepIDBackUpload:
		return f.handleIDBackUpload(ctx, conv, guest, ev)
	default:
		// Stale or corrupted step marker reconstructed from historical data.
		f.logger.Warn("unknown check-in step", "conversation_id", conv.ID, "step", step)
		return TextResponse("Something went wrong. Please start again with /checkin-{hotel_id}"), nil
	}
}

// showDataConfirmation shows a returning guest their stored profile
func (f *CheckinFlow) showDataConfirmation(ctx context.Context, conv *store.Conversation, guest *store.Guest) (*Response, error) {
	var parts []string
	if guest.FullName != "" {
		parts = append(parts, "Name: "+guest.FullName)
	}
	if guest.Email != "" {
		parts = append(parts, "Email: "+guest.Email)
	}
	if guest.DateOfBirth != "" {
		parts = append(parts, "Date of Birth: "+guest.DateOfBirth)
	}
	if guest.Nationality != "" {
		parts = append(parts, "Nationality: "+guest.Nationality)
	}

	header := "Welcome Back!"
	var body string
	if len(parts) > 0 {
		body = "We found your previous information:\n\n" + strings.Join(parts, "\n") +
			"\n\nIs this information still correct?"
	} else {
		body = "Welcome back! We'll need to verify your identity for this check-in."
	}

	if err := logSystemMessage(ctx, f.store, f.logger, conv, checkinFlowID, CheckinStepInitial, header+"\n\n"+body, true); err != nil {
		return nil, err
	}

	return ButtonsResponse(header, body, []Option{
		{ID: "confirm", Title: "Yes, Correct"},
		{ID: "update", Title: "No, Update"},
	}), nil
}

// handleInitial processes the returning-guest confirmation response
func (f *CheckinFlow) handleInitial(ctx context.Context, conv *store.Conversation, guest *store.Guest, ev *Event) (*Response, error) {
	switch strings.ToLower(strings.TrimSpace(ev.Input())) {
	case "yes", "correct", "confirm", "1", "btn_0":
		return f.promptIDType(ctx, conv,
			"Perfect! Please select your government-issued ID document type from the list below to complete verification.")

	case "no", "incorrect", "update", "2", "btn_1":
		guest.FullName = ""
		guest.Email = ""
		guest.DateOfBirth = ""
		guest.Nationality = ""
		guest.UpdatedAt = time.Now()
		if err := f.store.UpdateGuest(ctx, guest); err != nil {
			return nil, fmt.Errorf("clearing guest profile: %w", err)
		}
		return f.promptIDType(ctx, conv,
			"Let's update your information. Please select your government-issued ID document type from the list below.")

	default:
		return f.showDataConfirmation(ctx, conv, guest)
	}
}

// promptIDType emits the document type list and advances to ID_TYPE
func (f *CheckinFlow) promptIDType(ctx context.Context, conv *store.Conversation, body string) (*Response, error) {
	header := "Select ID Document Type"
	if err := logSystemMessage(ctx, f.store, f.logger, conv, checkinFlowID, CheckinStepIDType, header+"\n\n"+body, true); err != nil {
		return nil, err
	}

	options := make([]Option, len(documentTypeOrder))
	for i, docType := range documentTypeOrder {
		options[i] = Option{ID: fmt.Sprintf("option_%d", i), Title: documentTypeLabels[docType]}
	}
	return ListResponse(header, body, options), nil
}

// parseDocumentType accepts positional option_<n> ids and free text
func parseDocumentType(input string) (string, bool) {
	input = strings.ToLower(strings.TrimSpace(input))

	if rest, ok := strings.CutPrefix(input, "option_"); ok {
		idx, err := strconv.Atoi(rest)
		if err == nil && idx >= 0 && idx < len(documentTypeOrder) {
			return documentTypeOrder[idx], true
		}
		return "", false
	}

	normalized := strings.ReplaceAll(input, " ", "_")
	if _, ok := documentTypeLabels[normalized]; ok {
		return normalized, true
	}
	return "", false
}

// handleIDType validates the selection and persists the primary document
func (f *CheckinFlow) handleIDType(ctx context.Context, conv *store.Conversation, guest *store.Guest, ev *Event) (*Response, error) {
	docType, ok := parseDocumentType(ev.Input())
	if !ok {
		if err := logSystemMessage(ctx, f.store, f.logger, conv, checkinFlowID, CheckinStepIDType,
			"Please select a valid ID document type from the list.", false); err != nil {
			return nil, err
		}
		options := make([]Option, len(documentTypeOrder))
		for i, dt := range documentTypeOrder {
			options[i] = Option{ID: fmt.Sprintf("option_%d", i), Title: documentTypeLabels[dt]}
		}
		return ListResponse("Select ID Document Type",
			"Invalid selection. Please select a valid ID document type from the list below.", options), nil
	}

	now := time.Now()
	doc := &store.IdentityDocument{
		ID:           uuid.New().String(),
		GuestID:      guest.ID,
		DocumentType: docType,
		IsPrimary:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if existing, err := f.store.GetPrimaryDocument(ctx, guest.ID); err == nil {
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
	} else if err != store.ErrNotFound {
		return nil, fmt.Errorf("looking up primary document: %w", err)
	}
	if err := f.store.UpsertPrimaryDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("saving document type: %w", err)
	}

	text := uploadInstructions(docType)
	if err := logSystemMessage(ctx, f.store, f.logger, conv, checkinFlowID, CheckinStepIDUpload, text, true); err != nil {
		return nil, err
	}
	return TextResponse(text), nil
}

func uploadInstructions(docType string) string {
	base := fmt.Sprintf("Please upload a clear photo of your %s.\n\nEnsure good lighting and that all text is clearly visible.", documentTypeLabels[docType])
	if docType == store.DocumentAadhar {
		return base + "\n\nKeep the QR code portion clear and visible. Please upload the front side first (the side with the QR code)."
	}
	return base + "\n\nPlease upload the front side first."
}

func backUploadInstructions(docType string) string {
	if docType == store.DocumentAadhar {
		return fmt.Sprintf("Now please upload the back side of your %s. If it carries a QR code, make sure it is clear and visible.", documentTypeLabels[docType])
	}
	return fmt.Sprintf("Now please upload the back side of your %s.", documentTypeLabels[docType])
}

// handleIDUpload captures the document front side
func (f *CheckinFlow) handleIDUpload(ctx context.Context, conv *store.Conversation, guest *store.Guest, ev *Event) (*Response, error) {
	if !ev.HasMedia() {
		return f.rePrompt(ctx, conv, CheckinStepIDUpload, "Please upload an image of your ID document.")
	}

	if _, err := f.media.DownloadMedia(ctx, ev.MediaRef); err != nil {
		f.logger.Warn("front media download failed", "error", err, "conversation_id", conv.ID)
		return f.rePrompt(ctx, conv, CheckinStepIDUpload, "Failed to download your ID image. Please try uploading again.")
	}

	doc, err := f.store.GetPrimaryDocument(ctx, guest.ID)
	if err == store.ErrNotFound {
		return f.rePrompt(ctx, conv, CheckinStepIDUpload, "Document record not found. Please restart the check-in process.")
	}
	if err != nil {
		return nil, fmt.Errorf("looking up primary document: %w", err)
	}

	doc.FrontRef = ev.MediaRef
	doc.UpdatedAt = time.Now()
	if err := f.store.UpsertPrimaryDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("saving document front: %w", err)
	}

	text := backUploadInstructions(doc.DocumentType)
	if err := logSystemMessage(ctx, f.store, f.logger, conv, checkinFlowID, CheckinStepIDBackUpload, text, true); err != nil {
		return nil, err
	}
	return TextResponse(text), nil
}

// handleIDBackUpload captures the back side, attempts extraction and completes
func (f *CheckinFlow) handleIDBackUpload(ctx context.Context, conv *store.Conversation, guest *store.Guest, ev *Event) (*Response, error) {
	if !ev.HasMedia() {
		return f.rePrompt(ctx, conv, CheckinStepIDBackUpload, "Please upload an image of the back side of your ID.")
	}

	back, err := f.media.DownloadMedia(ctx, ev.MediaRef)
	if err != nil {
		f.logger.Warn("back media download failed", "error", err, "conversation_id", conv.ID)
		return f.rePrompt(ctx, conv, CheckinStepIDBackUpload, "Failed to download your ID image. Please try uploading again.")
	}

	doc, err := f.store.GetPrimaryDocument(ctx, guest.ID)
	if err == store.ErrNotFound {
		return f.rePrompt(ctx, conv, CheckinStepIDBackUpload, "Document record not found. Please restart the check-in process.")
	}
	if err != nil {
		return nil, fmt.Errorf("looking up primary document: %w", err)
	}

	doc.BackRef = ev.MediaRef
	doc.UpdatedAt = time.Now()
	if err := f.store.UpsertPrimaryDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("saving document back: %w", err)
	}

	extracted := f.extractIdentity(ctx, conv, doc, back)
	return f.complete(ctx, conv, guest, extracted)
}

// extractIdentity runs one bounded recognition attempt. Any failure returns
// nil; completion proceeds with synthesized data either way.
func (f *CheckinFlow) extractIdentity(ctx context.Context, conv *store.Conversation, doc *store.IdentityDocument, back []byte) *ExtractedIdentity {
	extractCtx, cancel := context.WithTimeout(ctx, f.extractTimeout)
	defer cancel()

	front, err := f.media.DownloadMedia(extractCtx, doc.FrontRef)
	if err != nil {
		f.logger.Warn("front re-download failed before extraction", "error", err, "conversation_id", conv.ID)
		return nil
	}

	extracted, err := f.extractor.ExtractIdentityDocument(extractCtx, front, back, doc.DocumentType)
	if err != nil {
		f.logger.Warn("identity extraction failed", "error", err, "conversation_id", conv.ID)
		return nil
	}
	if extracted == nil || !extracted.Success {
		f.logger.Info("identity extraction returned no data", "conversation_id", conv.ID)
		return nil
	}
	return extracted
}

// complete fills the guest profile, creates the pending booking/stay pair and
// closes the conversation. Missing extracted fields are synthesized so the
// guest is never blocked on recognition quality.
func (f *CheckinFlow) complete(ctx context.Context, conv *store.Conversation, guest *store.Guest, extracted *ExtractedIdentity) (*Response, error) {
	now := time.Now()

	if extracted != nil {
		if extracted.FullName != "" {
			guest.FullName = extracted.FullName
		}
		if extracted.DateOfBirth != "" {
			guest.DateOfBirth = extracted.DateOfBirth
		}
		if extracted.IDNumber != "" {
			guest.IDNumber = extracted.IDNumber
		}
		if extracted.Nationality != "" {
			guest.Nationality = extracted.Nationality
		}
	}
	if guest.FullName == "" {
		guest.FullName = synthesizedName(guest.Address)
	}
	if guest.DateOfBirth == "" {
		guest.DateOfBirth = "01/01/1990"
	}
	if guest.Nationality == "" {
		guest.Nationality = "Unknown"
	}
	guest.Status = store.GuestStatusPendingCheckin
	guest.UpdatedAt = now
	if err := f.store.UpdateGuest(ctx, guest); err != nil {
		return nil, fmt.Errorf("saving guest profile: %w", err)
	}

	booking := &store.Booking{
		ID:           uuid.New().String(),
		GuestID:      guest.ID,
		HotelID:      conv.HotelID,
		Status:       store.BookingPending,
		CheckinDate:  now,
		CheckoutDate: now.Add(24 * time.Hour),
		CreatedAt:    now,
	}
	if err := f.store.CreateBooking(ctx, booking); err != nil {
		return nil, fmt.Errorf("creating booking: %w", err)
	}

	stay := &store.Stay{
		ID:        uuid.New().String(),
		GuestID:   guest.ID,
		HotelID:   conv.HotelID,
		BookingID: booking.ID,
		Status:    store.StayPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := f.store.CreateStay(ctx, stay); err != nil {
		return nil, fmt.Errorf("creating stay: %w", err)
	}

	if err := f.store.SetConversationStatus(ctx, conv.ID, store.ConversationClosed); err != nil {
		return nil, fmt.Errorf("closing check-in conversation: %w", err)
	}

	text := fmt.Sprintf("Check-in created successfully!\n\nDear %s, our receptionist will verify your details, assign you a room, and confirm your check-in shortly.\n\nBooking ID: %s\nWelcome!", guest.FullName, booking.ID)
	if err := logSystemMessage(ctx, f.store, f.logger, conv, checkinFlowID, CheckinStepCompleted, text, true); err != nil {
		return nil, err
	}

	f.logger.Info("check-in completed",
		"guest_id", guest.ID, "conversation_id", conv.ID, "booking_id", booking.ID, "stay_id", stay.ID)
	return TextResponse(text), nil
}

// synthesizedName builds a placeholder display name from the address tail
func synthesizedName(address string) string {
	if len(address) > 4 {
		address = address[len(address)-4:]
	}
	return "Guest " + address
}

// rePrompt logs a failed step attempt and repeats the instruction without
// advancing the step.
func (f *CheckinFlow) rePrompt(ctx context.Context, conv *store.Conversation, step int, text string) (*Response, error) {
	if err := logSystemMessage(ctx, f.store, f.logger, conv, checkinFlowID, step, text, false); err != nil {
		return nil, err
	}
	return TextResponse(text), nil
}
