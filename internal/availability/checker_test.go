package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"campusbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFinder struct {
	bookings []models.Booking
	calls    int
	err      error
}

func (f *stubFinder) FindConflicts(_ context.Context, _ int64, start, end time.Time) ([]models.Booking, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return FindConflicts(f.bookings, Interval{Start: start, End: end}), nil
}

func TestChecker_IsAvailable(t *testing.T) {
	ctx := context.Background()
	tuesday := monday.AddDate(0, 0, 1)
	existing := []models.Booking{
		{ID: 1, Start: at(monday, 10, 0), End: at(monday, 11, 0), Status: models.StatusApproved},
		{ID: 2, Start: at(tuesday, 10, 0), End: at(tuesday, 11, 0), Status: models.StatusPending},
	}

	res := &models.Resource{ID: 7, AvailabilityRules: `{"monday": "09:00-17:00"}`}

	t.Run("FreeInsideWindow", func(t *testing.T) {
		c := NewChecker(&stubFinder{bookings: existing}, time.UTC)
		ok, err := c.IsAvailable(ctx, res, at(monday, 11, 0), at(monday, 12, 0), BookingPolicy)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Conflict", func(t *testing.T) {
		c := NewChecker(&stubFinder{bookings: existing}, time.UTC)
		result, err := c.Check(ctx, res, span(monday, 10, 30, 11, 30), BookingPolicy)
		require.NoError(t, err)
		assert.False(t, result.Available)
		assert.True(t, result.InWindow)
		require.Len(t, result.Conflicts, 1)
		assert.Equal(t, int64(1), result.Conflicts[0].ID)
	})

	t.Run("ClosedWeekdayIgnoresConflicts", func(t *testing.T) {
		finder := &stubFinder{}
		c := NewChecker(finder, time.UTC)
		ok, err := c.IsAvailable(ctx, res, at(tuesday, 12, 0), at(tuesday, 13, 0), BookingPolicy)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 0, finder.calls)
	})

	t.Run("OutsideWindow", func(t *testing.T) {
		c := NewChecker(&stubFinder{}, time.UTC)
		ok, err := c.IsAvailable(ctx, res, at(monday, 16, 30), at(monday, 17, 30), BookingPolicy)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("NoRulesChecksOnlyConflicts", func(t *testing.T) {
		open := &models.Resource{ID: 8}
		c := NewChecker(&stubFinder{bookings: existing}, time.UTC)

		ok, err := c.IsAvailable(ctx, open, at(tuesday, 22, 0), at(tuesday, 23, 0), BookingPolicy)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = c.IsAvailable(ctx, open, at(tuesday, 10, 30), at(tuesday, 11, 0), BookingPolicy)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("MalformedRulesFailOpen", func(t *testing.T) {
		broken := &models.Resource{ID: 9, AvailabilityRules: `{"monday": "all day"}`}
		c := NewChecker(&stubFinder{bookings: existing}, time.UTC)

		ok, err := c.IsAvailable(ctx, broken, at(tuesday, 20, 0), at(tuesday, 21, 0), BookingPolicy)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = c.IsAvailable(ctx, broken, at(monday, 10, 0), at(monday, 10, 30), BookingPolicy)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("MalformedRulesFailClosed", func(t *testing.T) {
		broken := &models.Resource{ID: 9, AvailabilityRules: `{"monday": "all day"}`}
		c := NewChecker(&stubFinder{}, time.UTC)
		ok, err := c.IsAvailable(ctx, broken, at(tuesday, 20, 0), at(tuesday, 21, 0), Closed)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("InvalidInterval", func(t *testing.T) {
		c := NewChecker(&stubFinder{}, time.UTC)
		_, err := c.IsAvailable(ctx, res, at(monday, 11, 0), at(monday, 10, 0), BookingPolicy)
		assert.ErrorIs(t, err, ErrInvalidInterval)
	})

	t.Run("StoreError", func(t *testing.T) {
		c := NewChecker(&stubFinder{err: errors.New("db down")}, time.UTC)
		_, err := c.IsAvailable(ctx, res, at(monday, 11, 0), at(monday, 12, 0), BookingPolicy)
		assert.Error(t, err)
	})

	t.Run("WindowEvaluatedInCheckerLocation", func(t *testing.T) {
		loc := time.FixedZone("campus", 3*60*60)
		c := NewChecker(&stubFinder{}, loc)
		// 06:00 UTC is 09:00 on campus.
		ok, err := c.IsAvailable(ctx, res, at(monday, 6, 0), at(monday, 7, 0), BookingPolicy)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
