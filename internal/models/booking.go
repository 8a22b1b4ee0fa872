package models

import "time"

type Booking struct {
	ID          int64     `json:"id" db:"id"`
	ResourceID  int64     `json:"resource_id" db:"resource_id"`
	RequesterID int64     `json:"requester_id" db:"requester_id"`
	Start       time.Time `json:"start_datetime" db:"start_time"`
	End         time.Time `json:"end_datetime" db:"end_time"`
	Status      string    `json:"status" db:"status"` // pending, approved, rejected, cancelled, completed
	Notes       string    `json:"notes" db:"notes"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
	Version     int64     `json:"version" db:"version"`
}

// BlockingStatuses lists statuses that hold a resource interval.
var BlockingStatuses = []string{StatusPending, StatusApproved}

var transitions = map[string][]string{
	StatusPending:  {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved: {StatusCancelled, StatusCompleted},
}

// IsBlockingStatus reports whether a booking in status participates in conflict checks.
func IsBlockingStatus(status string) bool {
	return status == StatusPending || status == StatusApproved
}

// CanTransition reports whether a booking may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether no transition leaves status.
func IsTerminalStatus(status string) bool {
	return len(transitions[status]) == 0
}

func (b *Booking) IsBlocking() bool {
	return IsBlockingStatus(b.Status)
}

// HasEnded reports whether the booking interval is in the past.
func (b *Booking) HasEnded(now time.Time) bool {
	return b.End.Before(now)
}

// IsProofOfUse treats an explicitly completed booking and an approved booking
// whose end has passed as equivalent evidence that the resource was used.
func (b *Booking) IsProofOfUse(now time.Time) bool {
	if b.Status == StatusCompleted {
		return true
	}
	return b.Status == StatusApproved && b.HasEnded(now)
}

// BookingFilter narrows booking listings. Zero values match everything.
type BookingFilter struct {
	ResourceID  int64
	RequesterID int64
	Status      string
	From        time.Time
	To          time.Time
}
