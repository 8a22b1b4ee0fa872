package domain

import (
	"context"
	"time"

	"campusbook/internal/availability"
	"campusbook/internal/models"
)

type Repository interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetAllUsers(ctx context.Context) ([]models.User, error)
	CreateUser(ctx context.Context, user *models.User) error

	GetResource(ctx context.Context, id int64) (*models.Resource, error)
	ListResources(ctx context.Context, category string) ([]models.Resource, error)
	CreateResource(ctx context.Context, res *models.Resource) error
	UpdateResourceStatus(ctx context.Context, id int64, status string) error

	FindConflicts(ctx context.Context, resourceID int64, start, end time.Time) ([]models.Booking, error)
	CreateBookingWithLock(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
	GetBlockingBookings(ctx context.Context, resourceIDs []int64, from, to time.Time) ([]models.Booking, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status string, from ...string) error
	CancelBookingWithPromotion(ctx context.Context, booking *models.Booking, now time.Time) (*models.WaitlistEntry, error)

	CreateWaitlistEntry(ctx context.Context, entry *models.WaitlistEntry) error
	GetWaitlistEntry(ctx context.Context, id int64) (*models.WaitlistEntry, error)
	ListWaitlist(ctx context.Context, resourceID int64, status string) ([]models.WaitlistEntry, error)
	WaitlistPosition(ctx context.Context, resourceID, userID int64, requestedAt time.Time) (int, error)
	NextWaitlistEntry(ctx context.Context, resourceID int64, requestedAt time.Time) (*models.WaitlistEntry, error)
	PromoteWaitlistEntry(ctx context.Context, entry *models.WaitlistEntry, now time.Time) error
	UpdateWaitlistStatus(ctx context.Context, id int64, status string, from ...string) error
	DeleteWaitlistEntry(ctx context.Context, id int64) error

	ListMessages(ctx context.Context, userID int64) ([]models.Message, error)

	CreateReview(ctx context.Context, review *models.Review) error
	ListReviews(ctx context.Context, resourceID int64) ([]models.Review, error)
	ReviewStats(ctx context.Context, resourceID int64) (*models.RatingStats, error)
}

// NotificationStore is the persistence the notification worker needs.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetPendingNotifications(ctx context.Context, now time.Time, limit int) ([]models.Notification, error)
	ClaimNotification(ctx context.Context, id int64) (bool, error)
	UpdateNotificationStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	CreateMessage(ctx context.Context, msg *models.Message) error
}

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

type BookingService interface {
	CreateBooking(ctx context.Context, actor *models.User, resourceID int64, start, end time.Time, notes string) (*models.Booking, error)
	ApproveBooking(ctx context.Context, actor *models.User, bookingID int64) (*models.Booking, error)
	RejectBooking(ctx context.Context, actor *models.User, bookingID int64) (*models.Booking, error)
	CancelBooking(ctx context.Context, actor *models.User, bookingID int64) (*models.Booking, error)
	GetBooking(ctx context.Context, actor *models.User, id int64) (*models.Booking, error)
	ListBookings(ctx context.Context, actor *models.User, filter models.BookingFilter) ([]models.Booking, error)
}

type AvailabilityService interface {
	Location() *time.Location
	Slots(ctx context.Context, res *models.Resource, date time.Time) (availability.Day, error)
	DayRange(ctx context.Context, res *models.Resource, start time.Time, days int) ([]availability.DayAvailability, error)
	WeekSummary(ctx context.Context, res *models.Resource) ([]availability.DayAvailability, error)
	Check(ctx context.Context, res *models.Resource, start, end time.Time) (availability.Result, error)
	FilterAvailableAt(ctx context.Context, resources []models.Resource, at time.Time) ([]models.Resource, error)
}

type WaitlistService interface {
	Join(ctx context.Context, actor *models.User, resourceID int64, requestedAt time.Time) (*models.WaitlistEntry, error)
	Leave(ctx context.Context, actor *models.User, entryID int64) error
	Delete(ctx context.Context, actor *models.User, entryID int64) error
	Position(ctx context.Context, actor *models.User, resourceID int64, requestedAt time.Time) (int, error)
	Next(ctx context.Context, resourceID int64, requestedAt time.Time) (*models.WaitlistEntry, error)
	Promote(ctx context.Context, entry *models.WaitlistEntry) error
	List(ctx context.Context, actor *models.User, resourceID int64) ([]models.WaitlistEntry, error)
}

type ResourceService interface {
	GetResource(ctx context.Context, id int64) (*models.Resource, error)
	GetVisibleResource(ctx context.Context, actor *models.User, id int64) (*models.Resource, error)
	ListResources(ctx context.Context, category string) ([]models.Resource, error)
	CreateResource(ctx context.Context, actor *models.User, res *models.Resource, schedule map[string]string) error
	SetStatus(ctx context.Context, actor *models.User, id int64, status string) error
}

type ReviewService interface {
	CreateReview(ctx context.Context, actor *models.User, resourceID int64, rating int, comment string) (*models.Review, error)
	ListReviews(ctx context.Context, resourceID int64) ([]models.Review, *models.RatingStats, error)
}

type UserService interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetAllUsers(ctx context.Context) ([]models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
	Messages(ctx context.Context, userID int64) ([]models.Message, error)
}
