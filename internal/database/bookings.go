package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"campusbook/internal/models"

	"github.com/jmoiron/sqlx"
)

const bookingColumns = `id, resource_id, requester_id, start_time, end_time, status, notes, created_at, updated_at, version`

const conflictQuery = `SELECT ` + bookingColumns + ` FROM bookings
	WHERE resource_id = ? AND status IN (?, ?) AND start_time < ? AND end_time > ?
	ORDER BY start_time, id`

type queryer interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

func findConflicts(ctx context.Context, q queryer, resourceID int64, start, end time.Time) ([]models.Booking, error) {
	var conflicts []models.Booking
	err := q.SelectContext(ctx, &conflicts, conflictQuery,
		resourceID, models.StatusPending, models.StatusApproved, dbTime(end), dbTime(start))
	if err != nil {
		return nil, err
	}
	return conflicts, nil
}

// FindConflicts returns blocking bookings of the resource that overlap [start, end).
func (db *DB) FindConflicts(ctx context.Context, resourceID int64, start, end time.Time) ([]models.Booking, error) {
	conflicts, err := findConflicts(ctx, db, resourceID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to find conflicts: %w", err)
	}
	return conflicts, nil
}

// CreateBookingWithLock re-checks for conflicts and inserts the booking in one
// write transaction. A waitlist entry the requester holds for the same start
// is marked converted in the same transaction.
func (db *DB) CreateBookingWithLock(ctx context.Context, booking *models.Booking) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 1. Check conflicts inside transaction
	if models.IsBlockingStatus(booking.Status) {
		conflicts, err := findConflicts(ctx, tx, booking.ResourceID, booking.Start, booking.End)
		if err != nil {
			return fmt.Errorf("failed to check conflicts in tx: %w", err)
		}
		if len(conflicts) > 0 {
			return &DoubleBookingError{Conflicts: conflicts}
		}
	}

	// 2. Create booking
	now := dbTime(time.Now())
	booking.Start = dbTime(booking.Start)
	booking.End = dbTime(booking.End)
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1

	result, err := tx.NamedExecContext(ctx, `INSERT INTO bookings (
				resource_id, requester_id, start_time, end_time, status, notes, created_at, updated_at, version
			) VALUES (
				:resource_id, :requester_id, :start_time, :end_time, :status, :notes, :created_at, :updated_at, :version
			)`, booking)
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}
	booking.ID = id

	// 3. Convert the requester's waitlist entry for this slot
	_, err = tx.ExecContext(ctx, `UPDATE waitlist SET status = ?
		WHERE resource_id = ? AND user_id = ? AND requested_at = ? AND status IN (?, ?)`,
		models.WaitlistConverted, booking.ResourceID, booking.RequesterID, booking.Start,
		models.WaitlistActive, models.WaitlistNotified)
	if err != nil {
		return fmt.Errorf("failed to convert waitlist entry in tx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	var booking models.Booking
	err := db.GetContext(ctx, &booking, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// ListBookings returns bookings matching filter ordered by start time.
func (db *DB) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE 1 = 1`
	var args []any
	if filter.ResourceID != 0 {
		query += ` AND resource_id = ?`
		args = append(args, filter.ResourceID)
	}
	if filter.RequesterID != 0 {
		query += ` AND requester_id = ?`
		args = append(args, filter.RequesterID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if !filter.From.IsZero() {
		query += ` AND end_time > ?`
		args = append(args, dbTime(filter.From))
	}
	if !filter.To.IsZero() {
		query += ` AND start_time < ?`
		args = append(args, dbTime(filter.To))
	}
	query += ` ORDER BY start_time, id`

	var bookings []models.Booking
	if err := db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// GetBlockingBookings returns blocking bookings of the resources that overlap [from, to).
func (db *DB) GetBlockingBookings(ctx context.Context, resourceIDs []int64, from, to time.Time) ([]models.Booking, error) {
	if len(resourceIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+bookingColumns+` FROM bookings
		WHERE resource_id IN (?) AND status IN (?) AND start_time < ? AND end_time > ?
		ORDER BY resource_id, start_time`,
		resourceIDs, models.BlockingStatuses, dbTime(to), dbTime(from))
	if err != nil {
		return nil, fmt.Errorf("failed to build blocking bookings query: %w", err)
	}

	var bookings []models.Booking
	if err := db.SelectContext(ctx, &bookings, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get blocking bookings: %w", err)
	}
	return bookings, nil
}

// UpdateBookingStatusWithVersion moves a booking to status if it is still at
// fromVersion and currently in one of the allowed source statuses.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status string, from ...string) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := updateStatusTx(ctx, tx, id, fromVersion, status, from); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}
	return nil
}

func updateStatusTx(ctx context.Context, tx *sqlx.Tx, id, fromVersion int64, status string, from []string) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	args := []any{status, dbTime(time.Now()), id, fromVersion}
	if len(from) > 0 {
		in, inArgs, err := sqlx.In(` AND status IN (?)`, from)
		if err != nil {
			return fmt.Errorf("failed to build status filter: %w", err)
		}
		query += in
		args = append(args, inArgs...)
	}

	result, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// CancelBookingWithPromotion cancels the booking and, in the same transaction,
// moves the oldest active waitlist entry for the exact resource and start of
// the booking to notified. The promoted entry is returned, or nil when the
// waitlist for that slot is empty.
func (db *DB) CancelBookingWithPromotion(ctx context.Context, booking *models.Booking, now time.Time) (*models.WaitlistEntry, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := updateStatusTx(ctx, tx, booking.ID, booking.Version, models.StatusCancelled,
		[]string{models.StatusPending, models.StatusApproved}); err != nil {
		return nil, err
	}

	entry, err := nextWaitlistEntry(ctx, tx, booking.ResourceID, booking.Start)
	if err != nil {
		return nil, fmt.Errorf("failed to find next waitlist entry: %w", err)
	}
	if entry != nil {
		if err := promoteWaitlistEntry(ctx, tx, entry, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}
	return entry, nil
}
