// ABOUTME: Tests for the webhook attempt ledger rows
// ABOUTME: Covers duplicate insert detection and finalize-in-place

package store

import (
	"context"
	"testing"
	"time"
)

func TestCreateAttempt_Duplicate(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	now := time.Now()
	a := &WebhookAttempt{
		ID:          "attempt-1",
		ChannelType: "whatsapp",
		ExternalID:  "wamid.123",
		Status:      AttemptProcessing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.CreateAttempt(ctx, a); err != nil {
		t.Fatalf("CreateAttempt failed: %v", err)
	}

	dup := &WebhookAttempt{
		ID:          "attempt-2",
		ChannelType: "whatsapp",
		ExternalID:  "wamid.123",
		Status:      AttemptProcessing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.CreateAttempt(ctx, dup); err != ErrDuplicateAttempt {
		t.Fatalf("expected ErrDuplicateAttempt, got %v", err)
	}

	// Different channel, same external id is a distinct attempt
	other := &WebhookAttempt{
		ID:          "attempt-3",
		ChannelType: "telegram",
		ExternalID:  "wamid.123",
		Status:      AttemptProcessing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.CreateAttempt(ctx, other); err != nil {
		t.Fatalf("CreateAttempt for other channel failed: %v", err)
	}
}

func TestFinalizeAttempt(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	now := time.Now()
	a := &WebhookAttempt{
		ID:          "attempt-1",
		ChannelType: "whatsapp",
		ExternalID:  "wamid.456",
		Status:      AttemptProcessing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.CreateAttempt(ctx, a); err != nil {
		t.Fatalf("CreateAttempt failed: %v", err)
	}

	a.Status = AttemptSuccess
	a.Response = `{"type":"text","text":"ok"}`
	a.MessageID = "msg-1"
	a.ConversationID = "conv-1"
	a.ProcessingMS = 42
	a.UpdatedAt = time.Now()
	if err := s.FinalizeAttempt(ctx, a); err != nil {
		t.Fatalf("FinalizeAttempt failed: %v", err)
	}

	got, err := s.GetAttemptByExternalID(ctx, "whatsapp", "wamid.456")
	if err != nil {
		t.Fatalf("GetAttemptByExternalID failed: %v", err)
	}
	if got.Status != AttemptSuccess {
		t.Errorf("Status mismatch: got %q", got.Status)
	}
	if got.Response != a.Response {
		t.Errorf("Response mismatch: got %q", got.Response)
	}
	if got.MessageID != "msg-1" || got.ConversationID != "conv-1" {
		t.Errorf("side effect refs mismatch: %q %q", got.MessageID, got.ConversationID)
	}
	if got.ProcessingMS != 42 {
		t.Errorf("ProcessingMS mismatch: got %d", got.ProcessingMS)
	}
}

func TestFinalizeAttempt_NotFound(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	a := &WebhookAttempt{ID: "missing", Status: AttemptSuccess, UpdatedAt: time.Now()}
	if err := s.FinalizeAttempt(context.Background(), a); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetAttemptByExternalID_NotFound(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	_, err := s.GetAttemptByExternalID(context.Background(), "whatsapp", "nope")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
