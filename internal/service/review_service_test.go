package service

import (
	"context"
	"io"
	"testing"
	"time"

	"campusbook/internal/database"
	"campusbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestReviewService_CreateReview(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ctx := context.Background()
	filter := models.BookingFilter{ResourceID: 10, RequesterID: student.ID}

	booking := func(status string, startH, endH int) models.Booking {
		return models.Booking{ID: 1, ResourceID: 10, RequesterID: student.ID, Start: at(startH, 0), End: at(endH, 0), Status: status}
	}

	tests := []struct {
		name      string
		rating    int
		bookings  []models.Booking
		insertErr error
		wantErr   error
	}{
		{name: "pending booking", rating: 4, bookings: []models.Booking{booking(models.StatusPending, 5, 6)}, wantErr: ErrNoProofOfUse},
		{name: "approved still running", rating: 4, bookings: []models.Booking{booking(models.StatusApproved, 7, 9)}, wantErr: ErrNoProofOfUse},
		{name: "approved in the future", rating: 4, bookings: []models.Booking{booking(models.StatusApproved, 10, 11)}, wantErr: ErrNoProofOfUse},
		{name: "cancelled after ending", rating: 4, bookings: []models.Booking{booking(models.StatusCancelled, 5, 6)}, wantErr: ErrNoProofOfUse},
		{name: "no bookings", rating: 4, wantErr: ErrNoProofOfUse},
		{name: "approved already ended", rating: 4, bookings: []models.Booking{booking(models.StatusApproved, 6, 7)}},
		{name: "completed", rating: 5, bookings: []models.Booking{booking(models.StatusCompleted, 7, 9)}},
		{
			name:     "one used booking among others",
			rating:   3,
			bookings: []models.Booking{booking(models.StatusPending, 10, 11), booking(models.StatusCompleted, 5, 6)},
		},
		{
			name:      "duplicate review",
			rating:    4,
			bookings:  []models.Booking{booking(models.StatusCompleted, 5, 6)},
			insertErr: database.ErrAlreadyReviewed,
			wantErr:   database.ErrAlreadyReviewed,
		},
		{name: "rating zero", rating: 0, wantErr: ErrInvalidInput},
		{name: "rating six", rating: 6, wantErr: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mockRepo)
			svc := NewReviewService(repo, &logger)
			svc.now = func() time.Time { return testNow }

			repo.On("GetResource", ctx, int64(10)).Return(testResource(), nil)
			repo.On("ListBookings", ctx, filter).Return(tt.bookings, nil)
			repo.On("CreateReview", ctx, mock.AnythingOfType("*models.Review")).Return(tt.insertErr)

			review, err := svc.CreateReview(ctx, student, 10, tt.rating, "  quiet room ")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, review)
				if tt.insertErr == nil {
					repo.AssertNotCalled(t, "CreateReview", mock.Anything, mock.Anything)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, student.ID, review.ReviewerID)
			assert.Equal(t, int64(10), review.ResourceID)
			assert.Equal(t, tt.rating, review.Rating)
			assert.Equal(t, "quiet room", review.Comment)
		})
	}
}

func TestReviewService_CreateReview_UnknownResource(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ctx := context.Background()
	repo := new(mockRepo)
	svc := NewReviewService(repo, &logger)

	repo.On("GetResource", ctx, int64(99)).Return(nil, database.ErrNotFound)

	_, err := svc.CreateReview(ctx, student, 99, 5, "")
	assert.ErrorIs(t, err, database.ErrNotFound)
	repo.AssertNotCalled(t, "ListBookings", mock.Anything, mock.Anything)
}

func TestReviewService_ListReviews(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ctx := context.Background()
	repo := new(mockRepo)
	svc := NewReviewService(repo, &logger)

	reviews := []models.Review{{ID: 2, ResourceID: 10, Rating: 5}, {ID: 1, ResourceID: 10, Rating: 3}}
	stats := &models.RatingStats{TotalReviews: 2, AverageRating: 4, FiveStar: 1, ThreeStar: 1}
	repo.On("ListReviews", ctx, int64(10)).Return(reviews, nil)
	repo.On("ReviewStats", ctx, int64(10)).Return(stats, nil)

	got, gotStats, err := svc.ListReviews(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, reviews, got)
	assert.Equal(t, stats, gotStats)
}
