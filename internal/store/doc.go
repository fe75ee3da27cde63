// Package store provides persistent storage for the gateway using SQLite.
//
// # Data Models
//
//   - Guest: channel identity keyed by canonical digits-only address
//   - Conversation: one thread per guest x hotel x department x purpose
//   - Message: append-only log entries, doubling as the flow state log
//   - WebhookAttempt: idempotency ledger rows keyed by external message id
//   - FlowPosition: current-step snapshot per (conversation, flow)
//   - IdentityDocument, Booking, Stay, Feedback: check-in and feedback records
//   - Participant: staff read-tracking join
//
// # Invariants
//
// At most one active conversation exists per (guest, hotel, department,
// purpose); a partial unique index scoped to status='active' enforces it, so
// concurrent creators race on the insert and the loser reuses the winner's row.
// The same pattern backs the webhook_attempts unique (channel_type,
// external_id) pair, which is the system's only cross-request coordination
// primitive.
//
// Message appends update the owning conversation's activity inside one
// transaction, preserving per-conversation ordering. Timestamps are stored as
// fixed-width UTC nanosecond strings so lexicographic order equals time order.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// The schema is created on open; migrations are idempotent column additions.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateAttempt: webhook attempt already recorded for the external id
//   - ErrDuplicateConversation: active conversation already exists for the shape
//
// All methods accept context.Context for cancellation support.
package store
