// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Creates the schema on open and applies idempotent migrations

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is RFC3339 with fixed-width nanoseconds. Stored strings compare
// lexicographically in time order, which the recency queries rely on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Concurrent writers wait for the lock instead of failing
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS guests (
			id            TEXT PRIMARY KEY,
			address       TEXT NOT NULL UNIQUE,
			full_name     TEXT NOT NULL DEFAULT '',
			email         TEXT NOT NULL DEFAULT '',
			date_of_birth TEXT NOT NULL DEFAULT '',
			nationality   TEXT NOT NULL DEFAULT '',
			id_number     TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,

			CHECK (status IN ('pending_checkin', 'checked_in', 'checked_out'))
		);

		CREATE INDEX IF NOT EXISTS idx_guests_address ON guests(address);

		CREATE TABLE IF NOT EXISTS conversations (
			id                   TEXT PRIMARY KEY,
			guest_id             TEXT REFERENCES guests(id),
			hotel_id             TEXT NOT NULL DEFAULT '',
			department           TEXT NOT NULL DEFAULT '',
			purpose              TEXT NOT NULL,
			status               TEXT NOT NULL,
			last_message_at      TEXT NOT NULL,
			last_message_preview TEXT NOT NULL DEFAULT '',
			created_at           TEXT NOT NULL,

			CHECK (purpose IN ('service', 'checkin', 'demo', 'feedback', 'general', 'post-checkin')),
			CHECK (status IN ('active', 'closed', 'archived'))
		);

		-- At most one active conversation per (guest, hotel, department, purpose).
		-- Closed/archived history stays unbounded.
		CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_one_active
			ON conversations(guest_id, hotel_id, department, purpose)
			WHERE status = 'active';

		CREATE INDEX IF NOT EXISTS idx_conversations_guest_status
			ON conversations(guest_id, status, last_message_at);

		CREATE TABLE IF NOT EXISTS messages (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			sender          TEXT NOT NULL,
			content         TEXT NOT NULL,
			media_ref       TEXT,
			is_flow         INTEGER NOT NULL DEFAULT 0,
			flow_id         TEXT,
			flow_step       INTEGER NOT NULL DEFAULT 0,
			step_success    INTEGER NOT NULL DEFAULT 1,
			created_at      TEXT NOT NULL,

			CHECK (sender IN ('guest', 'staff', 'system'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, created_at, seq);

		CREATE INDEX IF NOT EXISTS idx_messages_flow
			ON messages(conversation_id, flow_id, sender, created_at);

		CREATE TABLE IF NOT EXISTS flow_positions (
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			flow_id         TEXT NOT NULL,
			step            INTEGER NOT NULL,
			updated_at      TEXT NOT NULL,

			PRIMARY KEY (conversation_id, flow_id)
		);

		CREATE TABLE IF NOT EXISTS webhook_attempts (
			id              TEXT PRIMARY KEY,
			channel_type    TEXT NOT NULL,
			external_id     TEXT NOT NULL,
			status          TEXT NOT NULL,
			response        TEXT NOT NULL DEFAULT '',
			message_id      TEXT,
			conversation_id TEXT,
			processing_ms   INTEGER NOT NULL DEFAULT 0,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL,

			UNIQUE(channel_type, external_id),
			CHECK (status IN ('processing', 'success', 'validation_failed', 'processing_failed', 'duplicate'))
		);

		CREATE INDEX IF NOT EXISTS idx_webhook_attempts_created ON webhook_attempts(created_at);

		CREATE TABLE IF NOT EXISTS participants (
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			staff_id        TEXT NOT NULL,
			last_read_at    TEXT NOT NULL,
			joined_at       TEXT NOT NULL,

			PRIMARY KEY (conversation_id, staff_id)
		);

		CREATE TABLE IF NOT EXISTS identity_documents (
			id            TEXT PRIMARY KEY,
			guest_id      TEXT NOT NULL REFERENCES guests(id),
			document_type TEXT NOT NULL,
			front_ref     TEXT NOT NULL DEFAULT '',
			back_ref      TEXT NOT NULL DEFAULT '',
			is_primary    INTEGER NOT NULL DEFAULT 0,
			is_verified   INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,

			CHECK (document_type IN ('aadhar_id', 'driving_license', 'national_id', 'voter_id', 'other'))
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_one_primary
			ON identity_documents(guest_id)
			WHERE is_primary = 1;

		CREATE TABLE IF NOT EXISTS bookings (
			id            TEXT PRIMARY KEY,
			guest_id      TEXT NOT NULL REFERENCES guests(id),
			hotel_id      TEXT NOT NULL,
			status        TEXT NOT NULL,
			checkin_date  TEXT NOT NULL,
			checkout_date TEXT NOT NULL,
			created_at    TEXT NOT NULL,

			CHECK (status IN ('pending', 'confirmed', 'cancelled'))
		);

		CREATE INDEX IF NOT EXISTS idx_bookings_guest ON bookings(guest_id, status);

		CREATE TABLE IF NOT EXISTS stays (
			id         TEXT PRIMARY KEY,
			guest_id   TEXT NOT NULL REFERENCES guests(id),
			hotel_id   TEXT NOT NULL,
			booking_id TEXT REFERENCES bookings(id),
			room       TEXT,
			status     TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			CHECK (status IN ('pending', 'active', 'completed', 'cancelled'))
		);

		CREATE INDEX IF NOT EXISTS idx_stays_guest ON stays(guest_id, status);

		CREATE TABLE IF NOT EXISTS feedback (
			id         TEXT PRIMARY KEY,
			guest_id   TEXT NOT NULL REFERENCES guests(id),
			stay_id    TEXT NOT NULL UNIQUE,
			hotel_id   TEXT NOT NULL DEFAULT '',
			rating     INTEGER NOT NULL,
			note       TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			CHECK (rating BETWEEN 1 AND 5)
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "messages",
			column: "media_ref",
			apply:  `ALTER TABLE messages ADD COLUMN media_ref TEXT`,
		},
		{
			table:  "webhook_attempts",
			column: "processing_ms",
			apply:  `ALTER TABLE webhook_attempts ADD COLUMN processing_ms INTEGER NOT NULL DEFAULT 0`,
		},
		{
			table:  "stays",
			column: "room",
			apply:  `ALTER TABLE stays ADD COLUMN room TEXT`,
		},
	}

	for _, m := range migrations {
		var exists int
		check := fmt.Sprintf(`SELECT 1 FROM pragma_table_info('%s') WHERE name = '%s'`, m.table, m.column)
		err := s.db.QueryRow(check).Scan(&exists)
		if err == nil {
			// Column already exists, skip
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Ping verifies the database connection is alive
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// fromNull returns the empty string for NULL columns
func fromNull(s sql.NullString) string {
	if s.Valid {
		return s.String
	}
	return ""
}

// formatTime renders a timestamp in the canonical stored form
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime parses a stored timestamp
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
