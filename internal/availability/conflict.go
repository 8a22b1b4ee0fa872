package availability

import (
	"time"

	"campusbook/internal/models"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewInterval validates that end is after start.
func NewInterval(start, end time.Time) (Interval, error) {
	if !end.After(start) {
		return Interval{}, ErrInvalidInterval
	}
	return Interval{Start: start, End: end}, nil
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// In converts both bounds to loc.
func (iv Interval) In(loc *time.Location) Interval {
	return Interval{Start: iv.Start.In(loc), End: iv.End.In(loc)}
}

// Overlaps reports whether a and b share any instant. Touching endpoints do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// BookingInterval returns the interval a booking occupies.
func BookingInterval(b *models.Booking) Interval {
	return Interval{Start: b.Start, End: b.End}
}

// FindConflicts returns the blocking bookings among bookings that overlap iv.
func FindConflicts(bookings []models.Booking, iv Interval) []models.Booking {
	var conflicts []models.Booking
	for i := range bookings {
		if !bookings[i].IsBlocking() {
			continue
		}
		if Overlaps(BookingInterval(&bookings[i]), iv) {
			conflicts = append(conflicts, bookings[i])
		}
	}
	return conflicts
}

// BusyIntervals extracts the intervals held by blocking bookings.
func BusyIntervals(bookings []models.Booking) []Interval {
	busy := make([]Interval, 0, len(bookings))
	for i := range bookings {
		if bookings[i].IsBlocking() {
			busy = append(busy, BookingInterval(&bookings[i]))
		}
	}
	return busy
}

func overlapsAny(iv Interval, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(iv, b) {
			return true
		}
	}
	return false
}
