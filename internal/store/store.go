// ABOUTME: Store interface and data types for concierge-gateway persistence
// ABOUTME: Defines Guest, Conversation, Message, WebhookAttempt and related records

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateAttempt is returned when a webhook attempt already exists for a
// (channel_type, external_id) pair
var ErrDuplicateAttempt = errors.New("webhook attempt already exists")

// ErrDuplicateConversation is returned when an active conversation already
// exists for the same (guest, hotel, department, purpose)
var ErrDuplicateConversation = errors.New("active conversation already exists")

// Guest lifecycle statuses
const (
	GuestStatusPendingCheckin = "pending_checkin"
	GuestStatusCheckedIn      = "checked_in"
	GuestStatusCheckedOut     = "checked_out"
)

// Guest is a channel identity keyed by a canonical digits-only address.
// Guests are never deleted, only status-transitioned.
type Guest struct {
	ID          string
	Address     string
	FullName    string
	Email       string
	DateOfBirth string
	Nationality string
	IDNumber    string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Conversation purposes
const (
	PurposeService     = "service"
	PurposeCheckin     = "checkin"
	PurposeDemo        = "demo"
	PurposeFeedback    = "feedback"
	PurposeGeneral     = "general"
	PurposePostCheckin = "post-checkin"
)

// Conversation statuses
const (
	ConversationActive   = "active"
	ConversationClosed   = "closed"
	ConversationArchived = "archived"
)

// Conversation is one thread between a guest and a department/purpose.
// At most one active conversation may exist per (guest, hotel, department,
// purpose); the partial unique index enforces this while leaving closed and
// archived history unbounded.
type Conversation struct {
	ID                 string
	GuestID            string // empty for purely anonymous threads
	HotelID            string
	Department         string
	Purpose            string
	Status             string
	LastMessageAt      time.Time
	LastMessagePreview string
	CreatedAt          time.Time
}

// Message sender classes
const (
	SenderGuest  = "guest"
	SenderStaff  = "staff"
	SenderSystem = "system"
)

// Message is an immutable append-only event within a conversation. Staff and
// system authored flow messages are the source of truth for the current step;
// guest messages are logged but never advance state.
type Message struct {
	ID             string
	ConversationID string
	Seq            int64 // assigned on insert, breaks timestamp ties
	Sender         string
	Content        string
	MediaRef       string
	IsFlow         bool
	FlowID         string
	FlowStep       int
	StepSuccess    bool
	CreatedAt      time.Time
}

// Webhook attempt statuses
const (
	AttemptProcessing       = "processing"
	AttemptSuccess          = "success"
	AttemptValidationFailed = "validation_failed"
	AttemptProcessingFailed = "processing_failed"
	AttemptDuplicate        = "duplicate"
)

// WebhookAttempt is one idempotency ledger row per (channel_type, external_id).
// Created exactly once under a unique constraint; updated in place as
// processing completes. The cached Response is replayed verbatim on redelivery.
type WebhookAttempt struct {
	ID             string
	ChannelType    string
	ExternalID     string
	Status         string
	Response       string // cached outbound payload, JSON
	MessageID      string
	ConversationID string
	ProcessingMS   int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Participant joins a staff member to a conversation for read tracking.
type Participant struct {
	ConversationID string
	StaffID        string
	LastReadAt     time.Time
	JoinedAt       time.Time
}

// Identity document types accepted by the check-in flow
const (
	DocumentAadhar         = "aadhar_id"
	DocumentDrivingLicense = "driving_license"
	DocumentNationalID     = "national_id"
	DocumentVoterID        = "voter_id"
	DocumentOther          = "other"
)

// IdentityDocument holds the captured front/back media for a guest document.
// At most one primary document per guest.
type IdentityDocument struct {
	ID           string
	GuestID      string
	DocumentType string
	FrontRef     string
	BackRef      string
	IsPrimary    bool
	IsVerified   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Booking statuses
const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
)

// Booking is a reservation created at check-in completion (pending, no room).
type Booking struct {
	ID           string
	GuestID      string
	HotelID      string
	Status       string
	CheckinDate  time.Time
	CheckoutDate time.Time
	CreatedAt    time.Time
}

// Stay statuses
const (
	StayPending   = "pending"
	StayActive    = "active"
	StayCompleted = "completed"
	StayCancelled = "cancelled"
)

// Stay tracks a guest's presence at a hotel. Room is assigned by staff later.
type Stay struct {
	ID        string
	GuestID   string
	HotelID   string
	BookingID string
	Room      string // empty until assigned
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Feedback is the rating (and optional note) collected by the feedback flow.
type Feedback struct {
	ID        string
	GuestID   string
	StayID    string
	HotelID   string
	Rating    int
	Note      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FlowPosition is the current-step snapshot per (conversation, flow). It is
// written alongside every system flow message; the message log remains the
// fallback/recovery source.
type FlowPosition struct {
	ConversationID string
	FlowID         string
	Step           int
	UpdatedAt      time.Time
}

// Store defines the persistence interface for the routing engine
type Store interface {
	// Guests
	CreateGuest(ctx context.Context, g *Guest) error
	GetGuest(ctx context.Context, id string) (*Guest, error)
	GetGuestByAddress(ctx context.Context, address string) (*Guest, error)
	UpdateGuest(ctx context.Context, g *Guest) error

	// Conversations
	CreateConversation(ctx context.Context, c *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	GetActiveConversation(ctx context.Context, guestID, hotelID, department, purpose string) (*Conversation, error)
	ListActiveConversationsByGuest(ctx context.Context, guestID string) ([]*Conversation, error)
	SetConversationStatus(ctx context.Context, id, status string) error
	ArchiveActiveConversations(ctx context.Context, guestID, purpose string) error

	// Messages
	AppendMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)
	LatestFlowMessage(ctx context.Context, conversationID, flowID string) (*Message, error)
	LatestGuestMessageAtStep(ctx context.Context, conversationID, flowID string, step int) (*Message, error)

	// Flow position snapshots
	UpsertFlowPosition(ctx context.Context, pos *FlowPosition) error
	GetFlowPosition(ctx context.Context, conversationID, flowID string) (*FlowPosition, error)

	// Idempotency ledger
	CreateAttempt(ctx context.Context, a *WebhookAttempt) error
	GetAttemptByExternalID(ctx context.Context, channelType, externalID string) (*WebhookAttempt, error)
	FinalizeAttempt(ctx context.Context, a *WebhookAttempt) error

	// Participants
	AddParticipant(ctx context.Context, p *Participant) error
	MarkConversationRead(ctx context.Context, conversationID, staffID string) error

	// Identity documents
	UpsertPrimaryDocument(ctx context.Context, doc *IdentityDocument) error
	GetPrimaryDocument(ctx context.Context, guestID string) (*IdentityDocument, error)
	DeleteUnverifiedDocuments(ctx context.Context, guestID string) error

	// Bookings and stays
	CreateBooking(ctx context.Context, b *Booking) error
	CreateStay(ctx context.Context, st *Stay) error
	GetStay(ctx context.Context, id string) (*Stay, error)
	HasCompletedStay(ctx context.Context, guestID string) (bool, error)
	GetActiveStay(ctx context.Context, guestID string) (*Stay, error)
	GetLatestCompletedStay(ctx context.Context, guestID string) (*Stay, error)
	DeletePendingBookings(ctx context.Context, guestID string) error
	DeletePendingStays(ctx context.Context, guestID string) error

	// Feedback
	SaveFeedback(ctx context.Context, f *Feedback) error
	GetFeedbackByStay(ctx context.Context, stayID string) (*Feedback, error)

	// Close releases any resources held by the store
	Close() error
}
