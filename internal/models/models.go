package models

import "time"

type Resource struct {
	ID                int64     `json:"id" db:"id" yaml:"id"`
	OwnerID           int64     `json:"owner_id" db:"owner_id" yaml:"owner_id"`
	Title             string    `json:"title" db:"title" yaml:"title"`
	Description       string    `json:"description" db:"description" yaml:"description"`
	Category          string    `json:"category" db:"category" yaml:"category"`
	Location          string    `json:"location" db:"location" yaml:"location"`
	Capacity          int       `json:"capacity" db:"capacity" yaml:"capacity"`
	AvailabilityRules string    `json:"-" db:"availability_rules" yaml:"-"`
	RequiresApproval  bool      `json:"requires_approval" db:"requires_approval" yaml:"requires_approval"`
	Status            string    `json:"status" db:"status" yaml:"status"`
	CreatedAt         time.Time `json:"created_at" db:"created_at" yaml:"-"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at" yaml:"-"`
}

func (r *Resource) IsPublished() bool {
	return r.Status == ResourcePublished
}

func (r *Resource) IsOwnedBy(userID int64) bool {
	return r.OwnerID == userID
}

type WaitlistEntry struct {
	ID          int64      `json:"id" db:"id"`
	ResourceID  int64      `json:"resource_id" db:"resource_id"`
	UserID      int64      `json:"user_id" db:"user_id"`
	RequestedAt time.Time  `json:"requested_datetime" db:"requested_at"`
	Status      string     `json:"status" db:"status"` // active, notified, converted, cancelled
	NotifiedAt  *time.Time `json:"notified_at,omitempty" db:"notified_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

func (w *WaitlistEntry) IsActive() bool {
	return w.Status == WaitlistActive
}

// Notification is a queued message for a user produced by a booking or
// waitlist event.
type Notification struct {
	ID          int64      `json:"id" db:"id"`
	UserID      int64      `json:"user_id" db:"user_id"`
	EventType   string     `json:"event_type" db:"event_type"`
	BookingID   *int64     `json:"booking_id,omitempty" db:"booking_id"`
	WaitlistID  *int64     `json:"waitlist_id,omitempty" db:"waitlist_id"`
	Body        string     `json:"body" db:"body"`
	Status      string     `json:"status" db:"status"`
	RetryCount  int        `json:"retry_count" db:"retry_count"`
	LastError   *string    `json:"last_error" db:"last_error"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time `json:"processed_at" db:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at" db:"next_retry_at"`
}

// Message is a delivered inbox entry.
type Message struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Body      string    `json:"body" db:"body"`
	IsRead    bool      `json:"is_read" db:"is_read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Review is a rating left by a user who has used a resource.
type Review struct {
	ID         int64     `json:"id" db:"id"`
	ResourceID int64     `json:"resource_id" db:"resource_id"`
	ReviewerID int64     `json:"reviewer_id" db:"reviewer_id"`
	Rating     int       `json:"rating" db:"rating"`
	Comment    string    `json:"comment" db:"comment"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// RatingStats aggregates the reviews of one resource.
type RatingStats struct {
	TotalReviews  int     `json:"total_reviews" db:"total_reviews"`
	AverageRating float64 `json:"average_rating" db:"average_rating"`
	FiveStar      int     `json:"five_star" db:"five_star"`
	FourStar      int     `json:"four_star" db:"four_star"`
	ThreeStar     int     `json:"three_star" db:"three_star"`
	TwoStar       int     `json:"two_star" db:"two_star"`
	OneStar       int     `json:"one_star" db:"one_star"`
}
