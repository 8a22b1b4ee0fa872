package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campusbook/internal/availability"
	"campusbook/internal/config"
	"campusbook/internal/database"
	"campusbook/internal/domain"
	"campusbook/internal/events"
	"campusbook/internal/metrics"
	"campusbook/internal/models"

	"github.com/rs/zerolog"
)

type BookingService struct {
	repo     domain.Repository
	checker  *availability.Checker
	eventBus domain.EventPublisher
	limiter  domain.RateLimiter
	cfg      config.BookingConfig
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewBookingService(
	repo domain.Repository,
	checker *availability.Checker,
	eventBus domain.EventPublisher,
	limiter domain.RateLimiter,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *BookingService {
	if cfg.MaxBookingDays <= 0 {
		cfg.MaxBookingDays = models.DefaultMaxBookingDays
	}
	return &BookingService{
		repo:     repo,
		checker:  checker,
		eventBus: eventBus,
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// ValidateBookingTime checks the request horizon: the start may lie at most
// PastGrace in the past and MaxBookingDays in the future.
func (s *BookingService) ValidateBookingTime(start time.Time) error {
	now := s.now()

	// a slightly late start is still accepted
	if start.Before(now.Add(-s.cfg.PastGrace())) {
		return ErrPastStart
	}

	if start.After(now.AddDate(0, 0, s.cfg.MaxBookingDays)) {
		return ErrTooFarAhead
	}

	return nil
}

// CreateBooking validates the request, checks availability and inserts the
// booking with its initial status. The conflict check is repeated inside the
// insert transaction.
func (s *BookingService) CreateBooking(
	ctx context.Context,
	actor *models.User,
	resourceID int64,
	start, end time.Time,
	notes string,
) (*models.Booking, error) {
	if err := s.allow(ctx, actor); err != nil {
		return nil, err
	}

	iv, err := availability.NewInterval(start, end)
	if err != nil {
		metrics.IncBookingRefused("invalid_interval")
		return nil, err
	}
	if err := s.ValidateBookingTime(iv.Start); err != nil {
		metrics.IncBookingRefused("horizon")
		return nil, err
	}

	res, err := s.repo.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if !res.IsPublished() {
		metrics.IncBookingRefused("not_published")
		return nil, fmt.Errorf("%w: resource is %s", ErrResourceUnavailable, res.Status)
	}

	result, err := s.checker.Check(ctx, res, iv, availability.BookingPolicy)
	if err != nil {
		return nil, err
	}
	if !result.InWindow {
		metrics.IncBookingRefused("closed")
		return nil, ErrResourceUnavailable
	}
	if len(result.Conflicts) > 0 {
		metrics.IncBookingRefused("conflict")
		return nil, &database.DoubleBookingError{Conflicts: result.Conflicts}
	}

	booking := &models.Booking{
		ResourceID:  res.ID,
		RequesterID: actor.ID,
		Start:       iv.Start,
		End:         iv.End,
		Status:      initialStatus(actor, res),
		Notes:       notes,
	}

	// the insert repeats the conflict check under the write lock
	if err := s.repo.CreateBookingWithLock(ctx, booking); err != nil {
		if errors.Is(err, database.ErrDoubleBooking) {
			metrics.IncBookingRefused("conflict")
		}
		return nil, err
	}

	metrics.IncBookingCreated(booking.Status)
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("resource_id", res.ID).
		Int64("requester_id", actor.ID).
		Str("status", booking.Status).
		Msg("Booking created")

	s.publishEvent(events.EventBookingCreated, booking, res, actor.ID)
	return booking, nil
}

// initialStatus approves self-bookings and resources without approval;
// everything else waits for a moderator.
func initialStatus(actor *models.User, res *models.Resource) string {
	if res.IsOwnedBy(actor.ID) {
		return models.StatusApproved
	}
	if requiresApproval(res) {
		return models.StatusPending
	}
	return models.StatusApproved
}

// requiresApproval honors the column and the flag older rule blobs carry.
func requiresApproval(res *models.Resource) bool {
	return res.RequiresApproval || availability.RequiresApproval(res.AvailabilityRules)
}

func (s *BookingService) ApproveBooking(ctx context.Context, actor *models.User, bookingID int64) (*models.Booking, error) {
	return s.moderate(ctx, actor, bookingID, models.StatusApproved, events.EventBookingApproved)
}

func (s *BookingService) RejectBooking(ctx context.Context, actor *models.User, bookingID int64) (*models.Booking, error) {
	return s.moderate(ctx, actor, bookingID, models.StatusRejected, events.EventBookingRejected)
}

func (s *BookingService) moderate(ctx context.Context, actor *models.User, bookingID int64, status, eventType string) (*models.Booking, error) {
	if err := s.allow(ctx, actor); err != nil {
		return nil, err
	}

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	res, err := s.repo.GetResource(ctx, booking.ResourceID)
	if err != nil {
		return nil, err
	}
	if !actor.CanModerate(res) {
		return nil, ErrForbidden
	}
	if booking.Status != models.StatusPending || !models.CanTransition(booking.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, booking.Status, status)
	}

	if err := s.repo.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version, status, models.StatusPending); err != nil {
		return nil, err
	}
	booking.Status = status
	booking.Version++

	metrics.IncBookingTransition(status)
	s.logger.Info().Int64("booking_id", booking.ID).Int64("actor_id", actor.ID).Str("status", status).Msg("Booking moderated")

	s.publishEvent(eventType, booking, res, actor.ID)
	return booking, nil
}

// CancelBooking withdraws the requester's booking and offers the freed slot
// to the first active waitlist entry for the same start.
func (s *BookingService) CancelBooking(ctx context.Context, actor *models.User, bookingID int64) (*models.Booking, error) {
	if err := s.allow(ctx, actor); err != nil {
		return nil, err
	}

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.RequesterID != actor.ID {
		return nil, ErrForbidden
	}
	if !models.CanTransition(booking.Status, models.StatusCancelled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, booking.Status, models.StatusCancelled)
	}

	promoted, err := s.repo.CancelBookingWithPromotion(ctx, booking, s.now())
	if err != nil {
		return nil, err
	}
	booking.Status = models.StatusCancelled
	booking.Version++
	metrics.IncBookingTransition(models.StatusCancelled)

	res, err := s.repo.GetResource(ctx, booking.ResourceID)
	if err != nil {
		// The cancellation is committed; only the notifications are lost.
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("Failed to load resource for cancel notifications")
		return booking, nil
	}

	s.publishEvent(events.EventBookingCancelled, booking, res, actor.ID)
	if promoted != nil {
		metrics.IncWaitlistPromotion()
		s.logger.Info().Int64("waitlist_id", promoted.ID).Int64("user_id", promoted.UserID).Msg("Waitlist entry promoted")
		publishPromotion(s.eventBus, s.logger, promoted, res)
	}

	return booking, nil
}

// GetBooking returns a booking visible to the actor: its requester or anyone
// who may moderate the resource.
func (s *BookingService) GetBooking(ctx context.Context, actor *models.User, id int64) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.RequesterID == actor.ID || actor.IsModerator() {
		return booking, nil
	}
	res, err := s.repo.GetResource(ctx, booking.ResourceID)
	if err != nil {
		return nil, err
	}
	if !res.IsOwnedBy(actor.ID) {
		return nil, ErrForbidden
	}
	return booking, nil
}

// ListBookings narrows the filter to what the actor may see. Students see
// their own bookings unless they own the filtered resource.
func (s *BookingService) ListBookings(ctx context.Context, actor *models.User, filter models.BookingFilter) ([]models.Booking, error) {
	if !actor.IsModerator() {
		owns := false
		if filter.ResourceID != 0 {
			res, err := s.repo.GetResource(ctx, filter.ResourceID)
			if err != nil {
				return nil, err
			}
			owns = res.IsOwnedBy(actor.ID)
		}
		if !owns {
			filter.RequesterID = actor.ID
		}
	}
	return s.repo.ListBookings(ctx, filter)
}

func (s *BookingService) allow(ctx context.Context, actor *models.User) error {
	if s.limiter == nil || s.cfg.MutationLimit <= 0 {
		return nil
	}
	allowed, err := s.limiter.CheckRateLimit(ctx, actor.ID, s.cfg.MutationLimit, s.cfg.MutationWindow())
	if err != nil {
		s.logger.Warn().Err(err).Int64("user_id", actor.ID).Msg("rate limiter error, allowing request")
		return nil
	}
	if !allowed {
		return ErrRateLimited
	}
	return nil
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, res *models.Resource, changedByID int64) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:     booking.ID,
		ResourceID:    res.ID,
		ResourceTitle: res.Title,
		OwnerID:       res.OwnerID,
		RequesterID:   booking.RequesterID,
		Status:        booking.Status,
		Start:         booking.Start,
		End:           booking.End,
		ChangedByID:   changedByID,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}

func publishPromotion(bus domain.EventPublisher, logger *zerolog.Logger, entry *models.WaitlistEntry, res *models.Resource) {
	if bus == nil {
		return
	}
	payload := events.WaitlistEventPayload{
		EntryID:       entry.ID,
		ResourceID:    res.ID,
		ResourceTitle: res.Title,
		UserID:        entry.UserID,
		RequestedAt:   entry.RequestedAt,
	}
	if err := bus.PublishJSON(events.EventWaitlistPromoted, payload); err != nil {
		logger.Error().Err(err).Int64("waitlist_id", entry.ID).Msg("publish event error")
	}
}
