package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campusbook/internal/availability"
	"campusbook/internal/database"
	"campusbook/internal/domain"
	"campusbook/internal/metrics"
	"campusbook/internal/models"

	"github.com/rs/zerolog"
)

// WaitlistService keeps the FIFO queue of users waiting for a taken slot.
type WaitlistService struct {
	repo     domain.Repository
	checker  *availability.Checker
	eventBus domain.EventPublisher
	slot     time.Duration
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewWaitlistService(
	repo domain.Repository,
	checker *availability.Checker,
	eventBus domain.EventPublisher,
	slot time.Duration,
	logger *zerolog.Logger,
) *WaitlistService {
	if slot <= 0 {
		slot = models.DefaultSlotMinutes * time.Minute
	}
	return &WaitlistService{
		repo:     repo,
		checker:  checker,
		eventBus: eventBus,
		slot:     slot,
		logger:   logger,
		now:      time.Now,
	}
}

// Join queues the actor for the slot starting at requestedAt. Free slots and
// slots outside the resource's opening hours are refused.
func (s *WaitlistService) Join(ctx context.Context, actor *models.User, resourceID int64, requestedAt time.Time) (*models.WaitlistEntry, error) {
	res, err := s.repo.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if !res.IsPublished() {
		return nil, fmt.Errorf("%w: resource is %s", ErrResourceUnavailable, res.Status)
	}
	if requestedAt.Before(s.now()) {
		return nil, ErrPastStart
	}

	result, err := s.checker.Check(ctx, res, availability.Interval{Start: requestedAt, End: requestedAt.Add(s.slot)}, availability.BookingPolicy)
	if err != nil {
		return nil, err
	}
	if !result.InWindow {
		return nil, ErrResourceUnavailable
	}
	if result.Available {
		return nil, ErrSlotAvailable
	}

	entry := &models.WaitlistEntry{
		ResourceID:  res.ID,
		UserID:      actor.ID,
		RequestedAt: requestedAt,
	}
	if err := s.repo.CreateWaitlistEntry(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("waitlist_id", entry.ID).
		Int64("resource_id", res.ID).
		Int64("user_id", actor.ID).
		Time("requested_at", entry.RequestedAt).
		Msg("Joined waitlist")
	return entry, nil
}

// Position is the actor's 1-based rank for the slot, 0 when not queued.
func (s *WaitlistService) Position(ctx context.Context, actor *models.User, resourceID int64, requestedAt time.Time) (int, error) {
	return s.repo.WaitlistPosition(ctx, resourceID, actor.ID, requestedAt)
}

// Next returns the oldest active entry for exactly this start, or nil.
func (s *WaitlistService) Next(ctx context.Context, resourceID int64, requestedAt time.Time) (*models.WaitlistEntry, error) {
	return s.repo.NextWaitlistEntry(ctx, resourceID, requestedAt)
}

// Promote marks the entry notified and tells its user the slot is free.
func (s *WaitlistService) Promote(ctx context.Context, entry *models.WaitlistEntry) error {
	if !entry.IsActive() {
		return fmt.Errorf("%w: waitlist entry is %s", ErrInvalidTransition, entry.Status)
	}
	if err := s.repo.PromoteWaitlistEntry(ctx, entry, s.now()); err != nil {
		return err
	}
	metrics.IncWaitlistPromotion()

	res, err := s.repo.GetResource(ctx, entry.ResourceID)
	if err != nil {
		s.logger.Error().Err(err).Int64("waitlist_id", entry.ID).Msg("Failed to load resource for promotion notification")
		return nil
	}
	publishPromotion(s.eventBus, s.logger, entry, res)
	return nil
}

// Leave cancels the actor's own entry.
func (s *WaitlistService) Leave(ctx context.Context, actor *models.User, entryID int64) error {
	entry, err := s.repo.GetWaitlistEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.UserID != actor.ID {
		return ErrForbidden
	}

	err = s.repo.UpdateWaitlistStatus(ctx, entry.ID, models.WaitlistCancelled, models.WaitlistActive, models.WaitlistNotified)
	if errors.Is(err, database.ErrConcurrentModification) {
		return fmt.Errorf("%w: waitlist entry is %s", ErrInvalidTransition, entry.Status)
	}
	return err
}

// Delete removes an entry outright. Only moderators of the resource may do so.
func (s *WaitlistService) Delete(ctx context.Context, actor *models.User, entryID int64) error {
	entry, err := s.repo.GetWaitlistEntry(ctx, entryID)
	if err != nil {
		return err
	}
	res, err := s.repo.GetResource(ctx, entry.ResourceID)
	if err != nil {
		return err
	}
	if !actor.CanModerate(res) {
		return ErrForbidden
	}
	return s.repo.DeleteWaitlistEntry(ctx, entry.ID)
}

// List returns every entry of the resource in queue order.
func (s *WaitlistService) List(ctx context.Context, actor *models.User, resourceID int64) ([]models.WaitlistEntry, error) {
	res, err := s.repo.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if !actor.CanModerate(res) {
		return nil, ErrForbidden
	}
	return s.repo.ListWaitlist(ctx, resourceID, "")
}
