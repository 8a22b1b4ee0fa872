package service

import (
	"context"
	"time"

	"campusbook/internal/availability"
	"campusbook/internal/config"
	"campusbook/internal/domain"
	"campusbook/internal/models"

	"github.com/rs/zerolog"
)

// AvailabilityService serves slot grids, day overviews and point checks.
type AvailabilityService struct {
	repo      domain.Repository
	checker   *availability.Checker
	generator *availability.Generator
	cfg       config.BookingConfig
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewAvailabilityService(
	repo domain.Repository,
	checker *availability.Checker,
	generator *availability.Generator,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *AvailabilityService {
	return &AvailabilityService{
		repo:      repo,
		checker:   checker,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Location is the campus timezone.
func (s *AvailabilityService) Location() *time.Location {
	return s.checker.Location()
}

func (s *AvailabilityService) startOfDay(t time.Time) time.Time {
	return availability.Clock(0).On(t.In(s.Location()))
}

// loadRules resolves the rules of a slot-facing call site. Parse failures
// close every day.
func (s *AvailabilityService) loadRules(res *models.Resource) availability.Rules {
	rules := availability.Load(res.AvailabilityRules, availability.SlotPolicy)
	if err := rules.Err(); err != nil {
		s.logger.Warn().Err(err).Int64("resource_id", res.ID).Msg("Malformed availability rules, treating resource as closed")
	}
	return rules
}

func (s *AvailabilityService) busy(ctx context.Context, resourceID int64, from, to time.Time) ([]availability.Interval, error) {
	bookings, err := s.repo.GetBlockingBookings(ctx, []int64{resourceID}, from, to)
	if err != nil {
		return nil, err
	}
	return availability.BusyIntervals(bookings), nil
}

// Slots returns the slot grid of the resource on the calendar date of date.
func (s *AvailabilityService) Slots(ctx context.Context, res *models.Resource, date time.Time) (availability.Day, error) {
	day := s.startOfDay(date)
	busy, err := s.busy(ctx, res.ID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return availability.Day{}, err
	}
	return s.generator.Generate(s.loadRules(res), day, busy), nil
}

// DayRange summarizes days dates from start. days is clamped to
// [1, MaxRangeDays].
func (s *AvailabilityService) DayRange(ctx context.Context, res *models.Resource, start time.Time, days int) ([]availability.DayAvailability, error) {
	if days <= 0 {
		days = 1
	}
	if days > models.MaxRangeDays {
		days = models.MaxRangeDays
	}

	from := s.startOfDay(start)
	busy, err := s.busy(ctx, res.ID, from, from.AddDate(0, 0, days))
	if err != nil {
		return nil, err
	}
	return s.generator.GenerateRange(s.loadRules(res), from, days, busy), nil
}

// WeekSummary is the short overview shown with a resource, starting today.
func (s *AvailabilityService) WeekSummary(ctx context.Context, res *models.Resource) ([]availability.DayAvailability, error) {
	days := s.cfg.SummaryDays
	if days <= 0 {
		days = models.DefaultSummaryDays
	}
	return s.DayRange(ctx, res, s.now(), days)
}

// Check answers whether [start, end) can be booked right now. Unreadable
// rules do not restrict the window; conflicts always do.
func (s *AvailabilityService) Check(ctx context.Context, res *models.Resource, start, end time.Time) (availability.Result, error) {
	iv, err := availability.NewInterval(start, end)
	if err != nil {
		return availability.Result{}, err
	}
	return s.checker.Check(ctx, res, iv, availability.BookingPolicy)
}

// FilterAvailableAt keeps the resources that are free for SearchWindowMinutes
// from at. A resource with unreadable rules is never hidden by the window
// check.
func (s *AvailabilityService) FilterAvailableAt(ctx context.Context, resources []models.Resource, at time.Time) ([]models.Resource, error) {
	if len(resources) == 0 {
		return resources, nil
	}

	iv := availability.Interval{Start: at, End: at.Add(models.SearchWindowMinutes * time.Minute)}

	ids := make([]int64, len(resources))
	for i := range resources {
		ids[i] = resources[i].ID
	}
	bookings, err := s.repo.GetBlockingBookings(ctx, ids, iv.Start, iv.End)
	if err != nil {
		return nil, err
	}
	byResource := make(map[int64][]models.Booking, len(resources))
	for _, b := range bookings {
		byResource[b.ResourceID] = append(byResource[b.ResourceID], b)
	}

	local := iv.In(s.Location())
	out := make([]models.Resource, 0, len(resources))
	for i := range resources {
		rules := availability.Load(resources[i].AvailabilityRules, availability.SearchPolicy)
		if !rules.Admits(local) {
			continue
		}
		if len(availability.FindConflicts(byResource[resources[i].ID], iv)) > 0 {
			continue
		}
		out = append(out, resources[i])
	}
	return out, nil
}
