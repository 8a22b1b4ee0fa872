package database

import (
	"context"
	"fmt"
	"time"

	"campusbook/internal/models"
)

const notificationColumns = `id, user_id, event_type, booking_id, waitlist_id, body, status,
	retry_count, last_error, created_at, processed_at, next_retry_at`

func (db *DB) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.Status == "" {
		n.Status = models.NotificationPending
	}
	n.CreatedAt = dbTime(time.Now())
	n.NextRetryAt = dbTimePtr(n.NextRetryAt)

	result, err := db.NamedExecContext(ctx, `INSERT INTO notification_queue (
				user_id, event_type, booking_id, waitlist_id, body, status, retry_count, last_error, created_at, next_retry_at
			) VALUES (
				:user_id, :event_type, :booking_id, :waitlist_id, :body, :status, :retry_count, :last_error, :created_at, :next_retry_at
			)`, n)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	n.ID = id
	return nil
}

// GetPendingNotifications returns notifications due for delivery at now.
func (db *DB) GetPendingNotifications(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	var out []models.Notification
	err := db.SelectContext(ctx, &out, `SELECT `+notificationColumns+` FROM notification_queue
		WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at, id LIMIT ?`,
		models.NotificationPending, models.NotificationRetry, dbTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending notifications: %w", err)
	}
	return out, nil
}

// ClaimNotification moves a due notification to processing. It reports false
// when another delivery path already took it.
func (db *DB) ClaimNotification(ctx context.Context, id int64) (bool, error) {
	result, err := db.ExecContext(ctx, `UPDATE notification_queue SET status = ?
		WHERE id = ? AND status IN (?, ?)`,
		models.NotificationProcessing, id, models.NotificationPending, models.NotificationRetry)
	if err != nil {
		return false, fmt.Errorf("failed to claim notification: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n == 1, nil
}

// GetFailedNotifications returns notifications that exhausted their retries.
func (db *DB) GetFailedNotifications(ctx context.Context) ([]models.Notification, error) {
	var out []models.Notification
	err := db.SelectContext(ctx, &out, `SELECT `+notificationColumns+` FROM notification_queue
		WHERE status = ? ORDER BY created_at DESC`, models.NotificationFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed notifications: %w", err)
	}
	return out, nil
}

func (db *DB) UpdateNotificationStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []any
	now := dbTime(time.Now())

	var lastError *string
	if errMsg != "" {
		lastError = &errMsg
	}

	switch status {
	case models.NotificationRetry:
		query = `UPDATE notification_queue SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []any{status, lastError, dbTimePtr(nextRetryAt), id}
	case models.NotificationDelivered, models.NotificationFailed:
		query = `UPDATE notification_queue SET status = ?, last_error = ?, next_retry_at = NULL, processed_at = ? WHERE id = ?`
		args = []any{status, lastError, now, id}
	default:
		query = `UPDATE notification_queue SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []any{status, lastError, dbTimePtr(nextRetryAt), id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}
	return nil
}

// CreateMessage stores a delivered message in the user's inbox.
func (db *DB) CreateMessage(ctx context.Context, msg *models.Message) error {
	msg.CreatedAt = dbTime(time.Now())
	result, err := db.NamedExecContext(ctx,
		`INSERT INTO messages (user_id, body, is_read, created_at) VALUES (:user_id, :body, :is_read, :created_at)`, msg)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	msg.ID = id
	return nil
}

func (db *DB) ListMessages(ctx context.Context, userID int64) ([]models.Message, error) {
	var out []models.Message
	err := db.SelectContext(ctx, &out,
		`SELECT id, user_id, body, is_read, created_at FROM messages WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return out, nil
}
