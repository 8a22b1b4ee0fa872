package database

import (
	"context"
	"fmt"
	"time"

	"campusbook/internal/models"
)

const reviewColumns = `id, resource_id, reviewer_id, rating, comment, created_at`

// CreateReview inserts a review unless the reviewer already rated the resource.
func (db *DB) CreateReview(ctx context.Context, review *models.Review) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var existing int
	err = tx.GetContext(ctx, &existing,
		`SELECT COUNT(*) FROM reviews WHERE resource_id = ? AND reviewer_id = ?`,
		review.ResourceID, review.ReviewerID)
	if err != nil {
		return fmt.Errorf("failed to check reviews in tx: %w", err)
	}
	if existing > 0 {
		return ErrAlreadyReviewed
	}

	review.CreatedAt = dbTime(time.Now())
	result, err := tx.NamedExecContext(ctx, `INSERT INTO reviews (
				resource_id, reviewer_id, rating, comment, created_at
			) VALUES (:resource_id, :reviewer_id, :rating, :comment, :created_at)`, review)
	if err != nil {
		return fmt.Errorf("failed to insert review in tx: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}
	review.ID = id

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit review: %w", err)
	}
	return nil
}

// ListReviews returns the resource's reviews, newest first.
func (db *DB) ListReviews(ctx context.Context, resourceID int64) ([]models.Review, error) {
	var reviews []models.Review
	err := db.SelectContext(ctx, &reviews, `SELECT `+reviewColumns+` FROM reviews
		WHERE resource_id = ? ORDER BY created_at DESC, id DESC`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, nil
}

// ReviewStats returns the rating distribution of a resource. A resource
// without reviews yields zero values.
func (db *DB) ReviewStats(ctx context.Context, resourceID int64) (*models.RatingStats, error) {
	var stats models.RatingStats
	err := db.GetContext(ctx, &stats, `SELECT
			COUNT(*) AS total_reviews,
			COALESCE(ROUND(AVG(rating), 2), 0) AS average_rating,
			COALESCE(SUM(CASE WHEN rating = 5 THEN 1 ELSE 0 END), 0) AS five_star,
			COALESCE(SUM(CASE WHEN rating = 4 THEN 1 ELSE 0 END), 0) AS four_star,
			COALESCE(SUM(CASE WHEN rating = 3 THEN 1 ELSE 0 END), 0) AS three_star,
			COALESCE(SUM(CASE WHEN rating = 2 THEN 1 ELSE 0 END), 0) AS two_star,
			COALESCE(SUM(CASE WHEN rating = 1 THEN 1 ELSE 0 END), 0) AS one_star
		FROM reviews WHERE resource_id = ?`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get review stats: %w", err)
	}
	return &stats, nil
}
