package models

// Booking statuses.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// Waitlist entry statuses.
const (
	WaitlistActive    = "active"
	WaitlistNotified  = "notified"
	WaitlistConverted = "converted"
	WaitlistCancelled = "cancelled"
)

// Resource statuses.
const (
	ResourceDraft     = "draft"
	ResourcePublished = "published"
	ResourceArchived  = "archived"
)

// User roles.
const (
	RoleStudent = "student"
	RoleStaff   = "staff"
	RoleAdmin   = "admin"
)

// Notification queue statuses.
const (
	NotificationPending    = "pending"
	NotificationRetry      = "retry"
	NotificationProcessing = "processing"
	NotificationDelivered  = "delivered"
	NotificationFailed     = "failed"
)

const (
	// DefaultSlotMinutes is the slot grid step.
	DefaultSlotMinutes = 30

	// DefaultLeadMinutes hides today's slots starting before now+lead.
	DefaultLeadMinutes = 15

	// DefaultPastGraceMinutes is how far in the past a booking may start.
	DefaultPastGraceMinutes = 15

	// DefaultMaxBookingDays is the booking horizon.
	DefaultMaxBookingDays = 365

	// DefaultSummaryDays is the length of the resource week summary.
	DefaultSummaryDays = 7

	// DefaultRangeDays is the default day-range length.
	DefaultRangeDays = 21

	// MaxRangeDays caps day ranges and exports.
	MaxRangeDays = 60

	// SearchWindowMinutes is the interval the available_at filter checks.
	SearchWindowMinutes = 60

	// WorkerQueueSize is the in-memory notification queue size.
	WorkerQueueSize = 1000

	// MutationLimit is booking mutations per user per window.
	MutationLimit = 30

	// MutationWindow is the limiter window in seconds.
	MutationWindow = 60
)

const (
	MinRating = 1
	MaxRating = 5
)
