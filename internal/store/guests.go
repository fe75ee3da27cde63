// ABOUTME: Guest, identity document, booking, stay and feedback persistence
// ABOUTME: Guests are keyed by canonical address and only ever status-transitioned

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateGuest inserts a new guest record
func (s *SQLiteStore) CreateGuest(ctx context.Context, g *Guest) error {
	query := `
		INSERT INTO guests (id, address, full_name, email, date_of_birth, nationality, id_number, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		g.ID,
		g.Address,
		g.FullName,
		g.Email,
		g.DateOfBirth,
		g.Nationality,
		g.IDNumber,
		g.Status,
		formatTime(g.CreatedAt),
		formatTime(g.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting guest: %w", err)
	}

	s.logger.Debug("created guest", "id", g.ID, "status", g.Status)
	return nil
}

const guestColumns = `id, address, full_name, email, date_of_birth, nationality, id_number, status, created_at, updated_at`

func (s *SQLiteStore) scanGuest(row *sql.Row) (*Guest, error) {
	var g Guest
	var createdAt, updatedAt string

	err := row.Scan(&g.ID, &g.Address, &g.FullName, &g.Email, &g.DateOfBirth,
		&g.Nationality, &g.IDNumber, &g.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning guest: %w", err)
	}

	if g.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if g.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &g, nil
}

// GetGuest retrieves a guest by ID.
// Returns ErrNotFound if the guest doesn't exist.
func (s *SQLiteStore) GetGuest(ctx context.Context, id string) (*Guest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+guestColumns+` FROM guests WHERE id = ?`, id)
	return s.scanGuest(row)
}

// GetGuestByAddress retrieves a guest by canonical channel address.
// Returns ErrNotFound if no guest exists for the address.
func (s *SQLiteStore) GetGuestByAddress(ctx context.Context, address string) (*Guest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+guestColumns+` FROM guests WHERE address = ?`, address)
	return s.scanGuest(row)
}

// UpdateGuest updates an existing guest.
// Returns ErrNotFound if the guest doesn't exist.
func (s *SQLiteStore) UpdateGuest(ctx context.Context, g *Guest) error {
	query := `
		UPDATE guests
		SET full_name = ?, email = ?, date_of_birth = ?, nationality = ?, id_number = ?, status = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		g.FullName,
		g.Email,
		g.DateOfBirth,
		g.Nationality,
		g.IDNumber,
		g.Status,
		formatTime(g.UpdatedAt),
		g.ID,
	)
	if err != nil {
		return fmt.Errorf("updating guest: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated guest", "id", g.ID, "status", g.Status)
	return nil
}

// UpsertPrimaryDocument replaces the guest's primary identity document.
// Any previous primary is demoted so the one-primary-per-guest index holds.
func (s *SQLiteStore) UpsertPrimaryDocument(ctx context.Context, doc *IdentityDocument) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE identity_documents SET is_primary = 0, updated_at = ? WHERE guest_id = ? AND is_primary = 1`,
		formatTime(doc.UpdatedAt), doc.GuestID,
	); err != nil {
		return fmt.Errorf("demoting primary document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO identity_documents (id, guest_id, document_type, front_ref, back_ref, is_primary, is_verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_type = excluded.document_type,
			front_ref = excluded.front_ref,
			back_ref = excluded.back_ref,
			is_primary = 1,
			is_verified = excluded.is_verified,
			updated_at = excluded.updated_at
	`,
		doc.ID, doc.GuestID, doc.DocumentType, doc.FrontRef, doc.BackRef,
		boolToInt(doc.IsVerified), formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt),
	); err != nil {
		return fmt.Errorf("upserting primary document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing document upsert: %w", err)
	}

	s.logger.Debug("saved primary document", "guest_id", doc.GuestID, "type", doc.DocumentType)
	return nil
}

// GetPrimaryDocument retrieves the guest's primary identity document.
// Returns ErrNotFound if none exists.
func (s *SQLiteStore) GetPrimaryDocument(ctx context.Context, guestID string) (*IdentityDocument, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, guest_id, document_type, front_ref, back_ref, is_primary, is_verified, created_at, updated_at
		FROM identity_documents
		WHERE guest_id = ? AND is_primary = 1
	`, guestID)

	var doc IdentityDocument
	var isPrimary, isVerified int
	var createdAt, updatedAt string

	err := row.Scan(&doc.ID, &doc.GuestID, &doc.DocumentType, &doc.FrontRef, &doc.BackRef,
		&isPrimary, &isVerified, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.IsPrimary = isPrimary == 1
	doc.IsVerified = isVerified == 1
	if doc.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if doc.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &doc, nil
}

// DeleteUnverifiedDocuments removes unverified documents for a guest.
// Used when a fresh check-in restarts a failed prior attempt.
func (s *SQLiteStore) DeleteUnverifiedDocuments(ctx context.Context, guestID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM identity_documents WHERE guest_id = ? AND is_verified = 0`, guestID)
	if err != nil {
		return fmt.Errorf("deleting unverified documents: %w", err)
	}

	if n, _ := result.RowsAffected(); n > 0 {
		s.logger.Debug("deleted unverified documents", "guest_id", guestID, "count", n)
	}
	return nil
}

// CreateBooking inserts a booking record
func (s *SQLiteStore) CreateBooking(ctx context.Context, b *Booking) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookings (id, guest_id, hotel_id, status, checkin_date, checkout_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID, b.GuestID, b.HotelID, b.Status,
		formatTime(b.CheckinDate), formatTime(b.CheckoutDate), formatTime(b.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting booking: %w", err)
	}

	s.logger.Debug("created booking", "id", b.ID, "guest_id", b.GuestID, "status", b.Status)
	return nil
}

// CreateStay inserts a stay record
func (s *SQLiteStore) CreateStay(ctx context.Context, st *Stay) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stays (id, guest_id, hotel_id, booking_id, room, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		st.ID, st.GuestID, st.HotelID, nullString(st.BookingID), nullString(st.Room),
		st.Status, formatTime(st.CreatedAt), formatTime(st.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting stay: %w", err)
	}

	s.logger.Debug("created stay", "id", st.ID, "guest_id", st.GuestID, "status", st.Status)
	return nil
}

// HasCompletedStay reports whether the guest has at least one completed stay.
// A completed stay marks a returning guest in the check-in flow.
func (s *SQLiteStore) HasCompletedStay(ctx context.Context, guestID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM stays WHERE guest_id = ? AND status = ?`, guestID, StayCompleted,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("counting completed stays: %w", err)
	}
	return n > 0, nil
}

const stayColumns = `id, guest_id, hotel_id, booking_id, room, status, created_at, updated_at`

func scanStay(row *sql.Row) (*Stay, error) {
	var st Stay
	var bookingID, room sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&st.ID, &st.GuestID, &st.HotelID, &bookingID, &room, &st.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning stay: %w", err)
	}

	st.BookingID = fromNull(bookingID)
	st.Room = fromNull(room)
	if st.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if st.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &st, nil
}

// GetStay retrieves a stay by ID.
// Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) GetStay(ctx context.Context, id string) (*Stay, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stayColumns+` FROM stays WHERE id = ?`, id)
	return scanStay(row)
}

// GetActiveStay retrieves the guest's active stay.
// Returns ErrNotFound if none exists.
func (s *SQLiteStore) GetActiveStay(ctx context.Context, guestID string) (*Stay, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+stayColumns+`
		FROM stays
		WHERE guest_id = ? AND status = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, guestID, StayActive)
	return scanStay(row)
}

// GetLatestCompletedStay retrieves the guest's most recent completed stay.
// The feedback flow attaches the rating to this stay.
// Returns ErrNotFound if none exists.
func (s *SQLiteStore) GetLatestCompletedStay(ctx context.Context, guestID string) (*Stay, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+stayColumns+`
		FROM stays
		WHERE guest_id = ? AND status = ?
		ORDER BY updated_at DESC
		LIMIT 1
	`, guestID, StayCompleted)
	return scanStay(row)
}

// DeletePendingBookings purges pending bookings for a guest
func (s *SQLiteStore) DeletePendingBookings(ctx context.Context, guestID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM bookings WHERE guest_id = ? AND status = ?`, guestID, BookingPending)
	if err != nil {
		return fmt.Errorf("deleting pending bookings: %w", err)
	}

	if n, _ := result.RowsAffected(); n > 0 {
		s.logger.Debug("deleted pending bookings", "guest_id", guestID, "count", n)
	}
	return nil
}

// DeletePendingStays purges pending stays for a guest
func (s *SQLiteStore) DeletePendingStays(ctx context.Context, guestID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM stays WHERE guest_id = ? AND status = ?`, guestID, StayPending)
	if err != nil {
		return fmt.Errorf("deleting pending stays: %w", err)
	}

	if n, _ := result.RowsAffected(); n > 0 {
		s.logger.Debug("deleted pending stays", "guest_id", guestID, "count", n)
	}
	return nil
}

// SaveFeedback inserts or updates the feedback row for a stay.
// The feedback flow writes the rating as soon as it is chosen and fills the
// note in later if the guest leaves one.
func (s *SQLiteStore) SaveFeedback(ctx context.Context, f *Feedback) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, guest_id, stay_id, hotel_id, rating, note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(stay_id) DO UPDATE SET
			rating = excluded.rating,
			note = excluded.note,
			updated_at = excluded.updated_at
	`,
		f.ID, f.GuestID, f.StayID, f.HotelID, f.Rating, f.Note,
		formatTime(f.CreatedAt), formatTime(f.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving feedback: %w", err)
	}

	s.logger.Debug("saved feedback", "stay_id", f.StayID, "rating", f.Rating)
	return nil
}

// GetFeedbackByStay retrieves feedback for a stay.
// Returns ErrNotFound if none exists.
func (s *SQLiteStore) GetFeedbackByStay(ctx context.Context, stayID string) (*Feedback, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, guest_id, stay_id, hotel_id, rating, note, created_at, updated_at
		FROM feedback
		WHERE stay_id = ?
	`, stayID)

	var f Feedback
	var createdAt, updatedAt string

	err := row.Scan(&f.ID, &f.GuestID, &f.StayID, &f.HotelID, &f.Rating, &f.Note, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning feedback: %w", err)
	}

	if f.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if f.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &f, nil
}

// boolToInt converts a bool to SQLite's integer representation
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
