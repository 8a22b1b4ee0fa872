package service

import (
	"context"
	"time"

	"campusbook/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *mockRepo) GetAllUsers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}
func (m *mockRepo) CreateUser(ctx context.Context, u *models.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockRepo) GetResource(ctx context.Context, id int64) (*models.Resource, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Resource), args.Error(1)
}
func (m *mockRepo) ListResources(ctx context.Context, c string) ([]models.Resource, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Resource), args.Error(1)
}
func (m *mockRepo) CreateResource(ctx context.Context, r *models.Resource) error {
	return m.Called(ctx, r).Error(0)
}
func (m *mockRepo) UpdateResourceStatus(ctx context.Context, id int64, s string) error {
	return m.Called(ctx, id, s).Error(0)
}
func (m *mockRepo) FindConflicts(ctx context.Context, id int64, s, e time.Time) ([]models.Booking, error) {
	args := m.Called(ctx, id, s, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}
func (m *mockRepo) CreateBookingWithLock(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockRepo) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockRepo) ListBookings(ctx context.Context, f models.BookingFilter) ([]models.Booking, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}
func (m *mockRepo) GetBlockingBookings(ctx context.Context, ids []int64, f, t time.Time) ([]models.Booking, error) {
	args := m.Called(ctx, ids, f, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}
func (m *mockRepo) UpdateBookingStatusWithVersion(ctx context.Context, id, v int64, s string, from ...string) error {
	return m.Called(ctx, id, v, s, from).Error(0)
}
func (m *mockRepo) CancelBookingWithPromotion(ctx context.Context, b *models.Booking, now time.Time) (*models.WaitlistEntry, error) {
	args := m.Called(ctx, b, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WaitlistEntry), args.Error(1)
}
func (m *mockRepo) CreateWaitlistEntry(ctx context.Context, e *models.WaitlistEntry) error {
	return m.Called(ctx, e).Error(0)
}
func (m *mockRepo) GetWaitlistEntry(ctx context.Context, id int64) (*models.WaitlistEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WaitlistEntry), args.Error(1)
}
func (m *mockRepo) ListWaitlist(ctx context.Context, id int64, s string) ([]models.WaitlistEntry, error) {
	args := m.Called(ctx, id, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.WaitlistEntry), args.Error(1)
}
func (m *mockRepo) WaitlistPosition(ctx context.Context, rid, uid int64, at time.Time) (int, error) {
	args := m.Called(ctx, rid, uid, at)
	return args.Int(0), args.Error(1)
}
func (m *mockRepo) NextWaitlistEntry(ctx context.Context, rid int64, at time.Time) (*models.WaitlistEntry, error) {
	args := m.Called(ctx, rid, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WaitlistEntry), args.Error(1)
}
func (m *mockRepo) PromoteWaitlistEntry(ctx context.Context, e *models.WaitlistEntry, now time.Time) error {
	return m.Called(ctx, e, now).Error(0)
}
func (m *mockRepo) UpdateWaitlistStatus(ctx context.Context, id int64, s string, from ...string) error {
	return m.Called(ctx, id, s, from).Error(0)
}
func (m *mockRepo) DeleteWaitlistEntry(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockRepo) ListMessages(ctx context.Context, id int64) ([]models.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}
func (m *mockRepo) CreateReview(ctx context.Context, r *models.Review) error {
	return m.Called(ctx, r).Error(0)
}
func (m *mockRepo) ListReviews(ctx context.Context, id int64) ([]models.Review, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Review), args.Error(1)
}
func (m *mockRepo) ReviewStats(ctx context.Context, id int64) (*models.RatingStats, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RatingStats), args.Error(1)
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p any) error { return m.Called(et, p).Error(0) }

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, userID, limit, window)
	return args.Bool(0), args.Error(1)
}
