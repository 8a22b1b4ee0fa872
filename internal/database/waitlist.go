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

const waitlistColumns = `id, resource_id, user_id, requested_at, status, notified_at, created_at`

// CreateWaitlistEntry inserts an active entry unless the user already holds
// an active entry for the resource.
func (db *DB) CreateWaitlistEntry(ctx context.Context, entry *models.WaitlistEntry) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var existing int
	err = tx.GetContext(ctx, &existing,
		`SELECT COUNT(*) FROM waitlist WHERE resource_id = ? AND user_id = ? AND status = ?`,
		entry.ResourceID, entry.UserID, models.WaitlistActive)
	if err != nil {
		return fmt.Errorf("failed to check waitlist in tx: %w", err)
	}
	if existing > 0 {
		return ErrAlreadyOnWaitlist
	}

	entry.RequestedAt = dbTime(entry.RequestedAt)
	entry.Status = models.WaitlistActive
	entry.NotifiedAt = nil
	entry.CreatedAt = dbTime(time.Now())

	result, err := tx.NamedExecContext(ctx, `INSERT INTO waitlist (
				resource_id, user_id, requested_at, status, created_at
			) VALUES (:resource_id, :user_id, :requested_at, :status, :created_at)`, entry)
	if err != nil {
		return fmt.Errorf("failed to insert waitlist entry in tx: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}
	entry.ID = id

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit waitlist entry: %w", err)
	}
	return nil
}

func (db *DB) GetWaitlistEntry(ctx context.Context, id int64) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry
	err := db.GetContext(ctx, &entry, `SELECT `+waitlistColumns+` FROM waitlist WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist entry: %w", err)
	}
	return &entry, nil
}

// GetActiveWaitlistEntry returns the user's active entry for the resource.
func (db *DB) GetActiveWaitlistEntry(ctx context.Context, resourceID, userID int64) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry
	err := db.GetContext(ctx, &entry, `SELECT `+waitlistColumns+` FROM waitlist
		WHERE resource_id = ? AND user_id = ? AND status = ?
		ORDER BY created_at, id LIMIT 1`,
		resourceID, userID, models.WaitlistActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active waitlist entry: %w", err)
	}
	return &entry, nil
}

// ListWaitlist returns the entries of a resource in queue order. An empty
// status returns every entry.
func (db *DB) ListWaitlist(ctx context.Context, resourceID int64, status string) ([]models.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist WHERE resource_id = ?`
	args := []any{resourceID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, id`

	var entries []models.WaitlistEntry
	if err := db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list waitlist: %w", err)
	}
	return entries, nil
}

// WaitlistPosition returns the 1-based rank of the user's active entry among
// active entries for the same resource and requested time, or 0 if the user
// has none.
func (db *DB) WaitlistPosition(ctx context.Context, resourceID, userID int64, requestedAt time.Time) (int, error) {
	var entry models.WaitlistEntry
	err := db.GetContext(ctx, &entry, `SELECT `+waitlistColumns+` FROM waitlist
		WHERE resource_id = ? AND user_id = ? AND requested_at = ? AND status = ?
		ORDER BY created_at, id LIMIT 1`,
		resourceID, userID, dbTime(requestedAt), models.WaitlistActive)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get waitlist entry: %w", err)
	}

	var ahead int
	err = db.GetContext(ctx, &ahead, `SELECT COUNT(*) FROM waitlist
		WHERE resource_id = ? AND requested_at = ? AND status = ?
		AND (created_at < ? OR (created_at = ? AND id < ?))`,
		resourceID, entry.RequestedAt, models.WaitlistActive, entry.CreatedAt, entry.CreatedAt, entry.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to count waitlist position: %w", err)
	}
	return ahead + 1, nil
}

type getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

func nextWaitlistEntry(ctx context.Context, q getter, resourceID int64, requestedAt time.Time) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry
	err := q.GetContext(ctx, &entry, `SELECT `+waitlistColumns+` FROM waitlist
		WHERE resource_id = ? AND requested_at = ? AND status = ?
		ORDER BY created_at, id LIMIT 1`,
		resourceID, dbTime(requestedAt), models.WaitlistActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// NextWaitlistEntry returns the oldest active entry for exactly this resource
// and requested time, or nil.
func (db *DB) NextWaitlistEntry(ctx context.Context, resourceID int64, requestedAt time.Time) (*models.WaitlistEntry, error) {
	entry, err := nextWaitlistEntry(ctx, db, resourceID, requestedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get next waitlist entry: %w", err)
	}
	return entry, nil
}

func promoteWaitlistEntry(ctx context.Context, tx *sqlx.Tx, entry *models.WaitlistEntry, now time.Time) error {
	notifiedAt := dbTime(now)
	result, err := tx.ExecContext(ctx, `UPDATE waitlist SET status = ?, notified_at = ? WHERE id = ? AND status = ?`,
		models.WaitlistNotified, notifiedAt, entry.ID, models.WaitlistActive)
	if err != nil {
		return fmt.Errorf("failed to promote waitlist entry: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrConcurrentModification
	}
	entry.Status = models.WaitlistNotified
	entry.NotifiedAt = &notifiedAt
	return nil
}

// PromoteWaitlistEntry moves an active entry to notified and stamps notified_at.
func (db *DB) PromoteWaitlistEntry(ctx context.Context, entry *models.WaitlistEntry, now time.Time) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := promoteWaitlistEntry(ctx, tx, entry, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit promotion: %w", err)
	}
	return nil
}

// UpdateWaitlistStatus moves an entry to status if it is in one of from.
func (db *DB) UpdateWaitlistStatus(ctx context.Context, id int64, status string, from ...string) error {
	query := `UPDATE waitlist SET status = ? WHERE id = ?`
	args := []any{status, id}
	if len(from) > 0 {
		in, inArgs, err := sqlx.In(` AND status IN (?)`, from)
		if err != nil {
			return fmt.Errorf("failed to build status filter: %w", err)
		}
		query += in
		args = append(args, inArgs...)
	}

	result, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update waitlist status: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (db *DB) DeleteWaitlistEntry(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM waitlist WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete waitlist entry: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}
