package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"campusbook/internal/domain"
	"campusbook/internal/models"

	"github.com/rs/zerolog"
)

type ReviewService struct {
	repo   domain.Repository
	logger *zerolog.Logger
	now    func() time.Time
}

func NewReviewService(repo domain.Repository, logger *zerolog.Logger) *ReviewService {
	return &ReviewService{repo: repo, logger: logger, now: time.Now}
}

// CreateReview stores a rating from actor. The actor needs a booking on the
// resource that is completed, or approved and already over.
func (s *ReviewService) CreateReview(ctx context.Context, actor *models.User, resourceID int64, rating int, comment string) (*models.Review, error) {
	if rating < models.MinRating || rating > models.MaxRating {
		return nil, fmt.Errorf("%w: rating must be between %d and %d", ErrInvalidInput, models.MinRating, models.MaxRating)
	}
	if _, err := s.repo.GetResource(ctx, resourceID); err != nil {
		return nil, err
	}

	bookings, err := s.repo.ListBookings(ctx, models.BookingFilter{ResourceID: resourceID, RequesterID: actor.ID})
	if err != nil {
		return nil, err
	}
	now := s.now()
	used := false
	for i := range bookings {
		if bookings[i].IsProofOfUse(now) {
			used = true
			break
		}
	}
	if !used {
		return nil, ErrNoProofOfUse
	}

	review := &models.Review{
		ResourceID: resourceID,
		ReviewerID: actor.ID,
		Rating:     rating,
		Comment:    strings.TrimSpace(comment),
	}
	if err := s.repo.CreateReview(ctx, review); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("review_id", review.ID).Int64("resource_id", resourceID).Int64("actor_id", actor.ID).Int("rating", rating).Msg("Review created")
	return review, nil
}

// ListReviews returns the resource's reviews with their rating distribution.
func (s *ReviewService) ListReviews(ctx context.Context, resourceID int64) ([]models.Review, *models.RatingStats, error) {
	reviews, err := s.repo.ListReviews(ctx, resourceID)
	if err != nil {
		return nil, nil, err
	}
	stats, err := s.repo.ReviewStats(ctx, resourceID)
	if err != nil {
		return nil, nil, err
	}
	return reviews, stats, nil
}
