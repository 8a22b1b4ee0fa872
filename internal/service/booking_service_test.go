package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"campusbook/internal/availability"
	"campusbook/internal/config"
	"campusbook/internal/database"
	"campusbook/internal/events"
	"campusbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	// a Monday
	testNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	owner   = &models.User{ID: 1, Name: "owner", Role: models.RoleStudent}
	student = &models.User{ID: 2, Name: "student", Role: models.RoleStudent}
	other   = &models.User{ID: 3, Name: "other", Role: models.RoleStudent}
	staff   = &models.User{ID: 4, Name: "staff", Role: models.RoleStaff}
)

func at(h, m int) time.Time {
	return time.Date(2025, 3, 10, h, m, 0, 0, time.UTC)
}

func testResource() *models.Resource {
	return &models.Resource{
		ID:                10,
		OwnerID:           owner.ID,
		Title:             "Room 101",
		AvailabilityRules: `{"monday":"09:00-17:00"}`,
		Status:            models.ResourcePublished,
	}
}

func testBookingConfig() config.BookingConfig {
	return config.BookingConfig{
		SlotMinutes:           30,
		LeadMinutes:           15,
		PastGraceMinutes:      15,
		MaxBookingDays:        365,
		MutationLimit:         30,
		MutationWindowSeconds: 60,
	}
}

func newTestBookingService(repo *mockRepo, bus *mockEventBus, limiter *mockLimiter) *BookingService {
	logger := zerolog.New(io.Discard)
	checker := availability.NewChecker(repo, time.UTC)
	svc := NewBookingService(repo, checker, bus, limiter, testBookingConfig(), &logger)
	svc.now = func() time.Time { return testNow }
	return svc
}

func allowAll(limiter *mockLimiter) {
	limiter.On("CheckRateLimit", mock.Anything, mock.Anything, 30, time.Minute).Return(true, nil)
}

func TestBookingService_ValidateBookingTime(t *testing.T) {
	svc := newTestBookingService(new(mockRepo), new(mockEventBus), new(mockLimiter))

	tests := []struct {
		name    string
		start   time.Time
		wantErr error
	}{
		{"future", testNow.Add(time.Hour), nil},
		{"within grace", testNow.Add(-10 * time.Minute), nil},
		{"past", testNow.Add(-time.Hour), ErrPastStart},
		{"too far", testNow.AddDate(2, 0, 0), ErrTooFarAhead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.ValidateBookingTime(tt.start)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestBookingService_CreateBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("approved without approval flag", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		allowAll(limiter)

		res := testResource()
		repo.On("GetResource", ctx, res.ID).Return(res, nil)
		repo.On("FindConflicts", ctx, res.ID, at(10, 0), at(11, 0)).Return([]models.Booking{}, nil)
		repo.On("CreateBookingWithLock", ctx, mock.AnythingOfType("*models.Booking")).
			Run(func(args mock.Arguments) { args.Get(1).(*models.Booking).ID = 100 }).
			Return(nil)
		bus.On("PublishJSON", events.EventBookingCreated, mock.Anything).Return(nil)

		booking, err := svc.CreateBooking(ctx, student, res.ID, at(10, 0), at(11, 0), "seminar")
		require.NoError(t, err)
		assert.Equal(t, int64(100), booking.ID)
		assert.Equal(t, models.StatusApproved, booking.Status)
		assert.Equal(t, student.ID, booking.RequesterID)
		assert.Equal(t, "seminar", booking.Notes)

		payload := bus.Calls[0].Arguments.Get(1).(events.BookingEventPayload)
		assert.Equal(t, owner.ID, payload.OwnerID)
		assert.Equal(t, "Room 101", payload.ResourceTitle)
		repo.AssertExpectations(t)
		bus.AssertExpectations(t)
	})

	t.Run("pending when approval required", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		allowAll(limiter)

		res := testResource()
		res.RequiresApproval = true
		repo.On("GetResource", ctx, res.ID).Return(res, nil)
		repo.On("FindConflicts", ctx, res.ID, at(10, 0), at(11, 0)).Return(nil, nil)
		repo.On("CreateBookingWithLock", ctx, mock.Anything).Return(nil)
		bus.On("PublishJSON", events.EventBookingCreated, mock.Anything).Return(nil)

		booking, err := svc.CreateBooking(ctx, student, res.ID, at(10, 0), at(11, 0), "")
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, booking.Status)
	})

	t.Run("pending from legacy rules flag", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		allowAll(limiter)

		res := testResource()
		res.AvailabilityRules = `{"monday":"09:00-17:00","_metadata":{"requires_approval":true}}`
		repo.On("GetResource", ctx, res.ID).Return(res, nil)
		repo.On("FindConflicts", ctx, res.ID, at(10, 0), at(11, 0)).Return(nil, nil)
		repo.On("CreateBookingWithLock", ctx, mock.Anything).Return(nil)
		bus.On("PublishJSON", events.EventBookingCreated, mock.Anything).Return(nil)

		booking, err := svc.CreateBooking(ctx, student, res.ID, at(10, 0), at(11, 0), "")
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, booking.Status)
	})

	t.Run("owner is approved immediately", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		allowAll(limiter)

		res := testResource()
		res.RequiresApproval = true
		repo.On("GetResource", ctx, res.ID).Return(res, nil)
		repo.On("FindConflicts", ctx, res.ID, at(10, 0), at(11, 0)).Return(nil, nil)
		repo.On("CreateBookingWithLock", ctx, mock.Anything).Return(nil)
		bus.On("PublishJSON", events.EventBookingCreated, mock.Anything).Return(nil)

		booking, err := svc.CreateBooking(ctx, owner, res.ID, at(10, 0), at(11, 0), "")
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, booking.Status)
	})

	t.Run("conflict", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		allowAll(limiter)

		res := testResource()
		existing := models.Booking{ID: 7, ResourceID: res.ID, Start: at(10, 0), End: at(11, 0), Status: models.StatusApproved}
		repo.On("GetResource", ctx, res.ID).Return(res, nil)
		repo.On("FindConflicts", ctx, res.ID, at(10, 30), at(11, 30)).Return([]models.Booking{existing}, nil)

		_, err := svc.CreateBooking(ctx, student, res.ID, at(10, 30), at(11, 30), "")
		require.ErrorIs(t, err, database.ErrDoubleBooking)

		var dbErr *database.DoubleBookingError
		require.True(t, errors.As(err, &dbErr))
		require.Len(t, dbErr.Conflicts, 1)
		assert.Equal(t, int64(7), dbErr.Conflicts[0].ID)
		repo.AssertNotCalled(t, "CreateBookingWithLock", mock.Anything, mock.Anything)
		bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
	})

	t.Run("outside window", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		allowAll(limiter)

		res := testResource()
		repo.On("GetResource", ctx, res.ID).Return(res, nil)

		_, err := svc.CreateBooking(ctx, student, res.ID, at(16, 30), at(17, 30), "")
		assert.ErrorIs(t, err, ErrResourceUnavailable)
		repo.AssertNotCalled(t, "FindConflicts", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("closed weekday", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		allowAll(limiter)

		res := testResource()
		repo.On("GetResource", ctx, res.ID).Return(res, nil)

		tuesday := at(10, 0).AddDate(0, 0, 1)
		_, err := svc.CreateBooking(ctx, student, res.ID, tuesday, tuesday.Add(time.Hour), "")
		assert.ErrorIs(t, err, ErrResourceUnavailable)
	})

	t.Run("invalid interval", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		allowAll(limiter)

		_, err := svc.CreateBooking(ctx, student, 10, at(11, 0), at(10, 0), "")
		assert.ErrorIs(t, err, availability.ErrInvalidInterval)
		repo.AssertNotCalled(t, "GetResource", mock.Anything, mock.Anything)
	})

	t.Run("past start", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		allowAll(limiter)

		_, err := svc.CreateBooking(ctx, student, 10, testNow.Add(-2*time.Hour), testNow.Add(-time.Hour), "")
		assert.ErrorIs(t, err, ErrPastStart)
	})

	t.Run("too far ahead", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		allowAll(limiter)

		start := at(10, 0).AddDate(2, 0, 0)
		_, err := svc.CreateBooking(ctx, student, 10, start, start.Add(time.Hour), "")
		assert.ErrorIs(t, err, ErrTooFarAhead)
	})

	t.Run("not published", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		allowAll(limiter)

		res := testResource()
		res.Status = models.ResourceDraft
		repo.On("GetResource", ctx, res.ID).Return(res, nil)

		_, err := svc.CreateBooking(ctx, student, res.ID, at(10, 0), at(11, 0), "")
		assert.ErrorIs(t, err, ErrResourceUnavailable)
	})

	t.Run("resource not found", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		allowAll(limiter)

		repo.On("GetResource", ctx, int64(99)).Return(nil, database.ErrNotFound)

		_, err := svc.CreateBooking(ctx, student, 99, at(10, 0), at(11, 0), "")
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("lost race in insert", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		allowAll(limiter)

		res := testResource()
		repo.On("GetResource", ctx, res.ID).Return(res, nil)
		repo.On("FindConflicts", ctx, res.ID, at(10, 0), at(11, 0)).Return(nil, nil)
		repo.On("CreateBookingWithLock", ctx, mock.Anything).Return(&database.DoubleBookingError{})

		_, err := svc.CreateBooking(ctx, student, res.ID, at(10, 0), at(11, 0), "")
		assert.ErrorIs(t, err, database.ErrDoubleBooking)
		bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
	})

	t.Run("rate limited", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		limiter.On("CheckRateLimit", ctx, student.ID, 30, time.Minute).Return(false, nil)

		_, err := svc.CreateBooking(ctx, student, 10, at(10, 0), at(11, 0), "")
		assert.ErrorIs(t, err, ErrRateLimited)
		repo.AssertNotCalled(t, "GetResource", mock.Anything, mock.Anything)
	})

	t.Run("limiter error fails open", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		limiter.On("CheckRateLimit", ctx, student.ID, 30, time.Minute).Return(false, errors.New("redis down"))

		res := testResource()
		repo.On("GetResource", ctx, res.ID).Return(res, nil)
		repo.On("FindConflicts", ctx, res.ID, at(10, 0), at(11, 0)).Return(nil, nil)
		repo.On("CreateBookingWithLock", ctx, mock.Anything).Return(nil)
		bus.On("PublishJSON", events.EventBookingCreated, mock.Anything).Return(errors.New("bus full"))

		_, err := svc.CreateBooking(ctx, student, res.ID, at(10, 0), at(11, 0), "")
		assert.NoError(t, err)
	})
}

func TestBookingService_Moderation(t *testing.T) {
	ctx := context.Background()

	pending := func() *models.Booking {
		return &models.Booking{
			ID: 5, ResourceID: 10, RequesterID: student.ID,
			Start: at(10, 0), End: at(11, 0), Status: models.StatusPending, Version: 1,
		}
	}

	t.Run("owner approves", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		allowAll(limiter)

		repo.On("GetBooking", ctx, int64(5)).Return(pending(), nil)
		repo.On("GetResource", ctx, int64(10)).Return(testResource(), nil)
		repo.On("UpdateBookingStatusWithVersion", ctx, int64(5), int64(1), models.StatusApproved, []string{models.StatusPending}).Return(nil)
		bus.On("PublishJSON", events.EventBookingApproved, mock.Anything).Return(nil)

		booking, err := svc.ApproveBooking(ctx, owner, 5)
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, booking.Status)
		assert.Equal(t, int64(2), booking.Version)

		payload := bus.Calls[0].Arguments.Get(1).(events.BookingEventPayload)
		assert.Equal(t, owner.ID, payload.ChangedByID)
		assert.Equal(t, student.ID, payload.RequesterID)
	})

	t.Run("staff rejects", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		allowAll(limiter)

		repo.On("GetBooking", ctx, int64(5)).Return(pending(), nil)
		repo.On("GetResource", ctx, int64(10)).Return(testResource(), nil)
		repo.On("UpdateBookingStatusWithVersion", ctx, int64(5), int64(1), models.StatusRejected, []string{models.StatusPending}).Return(nil)
		bus.On("PublishJSON", events.EventBookingRejected, mock.Anything).Return(nil)

		booking, err := svc.RejectBooking(ctx, staff, 5)
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, booking.Status)
	})

	t.Run("student cannot approve", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		allowAll(limiter)

		repo.On("GetBooking", ctx, int64(5)).Return(pending(), nil)
		repo.On("GetResource", ctx, int64(10)).Return(testResource(), nil)

		_, err := svc.ApproveBooking(ctx, other, 5)
		assert.ErrorIs(t, err, ErrForbidden)
		repo.AssertNotCalled(t, "UpdateBookingStatusWithVersion", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("approved cannot be approved again", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		allowAll(limiter)

		b := pending()
		b.Status = models.StatusApproved
		repo.On("GetBooking", ctx, int64(5)).Return(b, nil)
		repo.On("GetResource", ctx, int64(10)).Return(testResource(), nil)

		_, err := svc.ApproveBooking(ctx, owner, 5)
		assert.ErrorIs(t, err, ErrInvalidTransition)

		_, err = svc.RejectBooking(ctx, owner, 5)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("concurrent modification", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		allowAll(limiter)

		repo.On("GetBooking", ctx, int64(5)).Return(pending(), nil)
		repo.On("GetResource", ctx, int64(10)).Return(testResource(), nil)
		repo.On("UpdateBookingStatusWithVersion", ctx, int64(5), int64(1), models.StatusApproved, []string{models.StatusPending}).
			Return(database.ErrConcurrentModification)

		_, err := svc.ApproveBooking(ctx, owner, 5)
		assert.ErrorIs(t, err, database.ErrConcurrentModification)
		bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
	})
}

func TestBookingService_CancelBooking(t *testing.T) {
	ctx := context.Background()

	approved := func() *models.Booking {
		return &models.Booking{
			ID: 5, ResourceID: 10, RequesterID: student.ID,
			Start: at(10, 0), End: at(11, 0), Status: models.StatusApproved, Version: 2,
		}
	}

	t.Run("promotes first waiter", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		allowAll(limiter)

		entry := &models.WaitlistEntry{ID: 3, ResourceID: 10, UserID: other.ID, RequestedAt: at(10, 0), Status: models.WaitlistNotified}
		repo.On("GetBooking", ctx, int64(5)).Return(approved(), nil)
		repo.On("CancelBookingWithPromotion", ctx, mock.AnythingOfType("*models.Booking"), testNow).Return(entry, nil)
		repo.On("GetResource", ctx, int64(10)).Return(testResource(), nil)
		bus.On("PublishJSON", events.EventBookingCancelled, mock.Anything).Return(nil)
		bus.On("PublishJSON", events.EventWaitlistPromoted, mock.Anything).Return(nil)

		booking, err := svc.CancelBooking(ctx, student, 5)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, booking.Status)

		require.Len(t, bus.Calls, 2)
		promo := bus.Calls[1].Arguments.Get(1).(events.WaitlistEventPayload)
		assert.Equal(t, other.ID, promo.UserID)
		assert.Equal(t, "Room 101", promo.ResourceTitle)
		assert.True(t, promo.RequestedAt.Equal(at(10, 0)))
	})

	t.Run("without waiters", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		allowAll(limiter)

		repo.On("GetBooking", ctx, int64(5)).Return(approved(), nil)
		repo.On("CancelBookingWithPromotion", ctx, mock.Anything, testNow).Return(nil, nil)
		repo.On("GetResource", ctx, int64(10)).Return(testResource(), nil)
		bus.On("PublishJSON", events.EventBookingCancelled, mock.Anything).Return(nil)

		_, err := svc.CancelBooking(ctx, student, 5)
		require.NoError(t, err)
		bus.AssertNumberOfCalls(t, "PublishJSON", 1)
	})

	t.Run("only requester may cancel", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		allowAll(limiter)

		repo.On("GetBooking", ctx, int64(5)).Return(approved(), nil)

		_, err := svc.CancelBooking(ctx, owner, 5)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("terminal booking", func(t *testing.T) {
		repo, bus, limiter := new(mockRepo), new(mockEventBus), new(mockLimiter)
		svc := newTestBookingService(repo, bus, limiter)
		allowAll(limiter)

		b := approved()
		b.Status = models.StatusRejected
		repo.On("GetBooking", ctx, int64(5)).Return(b, nil)

		_, err := svc.CancelBooking(ctx, student, 5)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		repo.AssertNotCalled(t, "CancelBookingWithPromotion", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestBookingService_Visibility(t *testing.T) {
	ctx := context.Background()
	b := &models.Booking{ID: 5, ResourceID: 10, RequesterID: student.ID, Status: models.StatusApproved}

	repo := new(mockRepo)
	svc := newTestBookingService(repo, new(mockEventBus), new(mockLimiter))
	repo.On("GetBooking", ctx, int64(5)).Return(b, nil)
	repo.On("GetResource", ctx, int64(10)).Return(testResource(), nil)

	for _, u := range []*models.User{student, owner, staff} {
		got, err := svc.GetBooking(ctx, u, 5)
		require.NoError(t, err, u.Name)
		assert.Equal(t, int64(5), got.ID)
	}

	_, err := svc.GetBooking(ctx, other, 5)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestBookingService_ListBookings(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	svc := newTestBookingService(repo, new(mockEventBus), new(mockLimiter))

	repo.On("GetResource", ctx, int64(10)).Return(testResource(), nil)
	repo.On("ListBookings", ctx, mock.Anything).Return([]models.Booking{}, nil)

	_, err := svc.ListBookings(ctx, other, models.BookingFilter{ResourceID: 10})
	require.NoError(t, err)
	_, err = svc.ListBookings(ctx, owner, models.BookingFilter{ResourceID: 10})
	require.NoError(t, err)
	_, err = svc.ListBookings(ctx, staff, models.BookingFilter{})
	require.NoError(t, err)

	filters := make([]models.BookingFilter, 0, 3)
	for _, call := range repo.Calls {
		if call.Method == "ListBookings" {
			filters = append(filters, call.Arguments.Get(1).(models.BookingFilter))
		}
	}
	require.Len(t, filters, 3)
	assert.Equal(t, other.ID, filters[0].RequesterID)
	assert.Zero(t, filters[1].RequesterID)
	assert.Zero(t, filters[2].RequesterID)
}
