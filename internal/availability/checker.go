package availability

import (
	"context"
	"fmt"
	"time"

	"campusbook/internal/models"
)

// ConflictFinder returns blocking bookings of a resource overlapping [start, end).
type ConflictFinder interface {
	FindConflicts(ctx context.Context, resourceID int64, start, end time.Time) ([]models.Booking, error)
}

// Result explains an availability decision.
type Result struct {
	Available bool             `json:"available"`
	InWindow  bool             `json:"in_window"`
	Conflicts []models.Booking `json:"conflicts"`
}

// Checker answers whether an interval can be booked on a resource.
type Checker struct {
	finder ConflictFinder
	loc    *time.Location
}

func NewChecker(finder ConflictFinder, loc *time.Location) *Checker {
	if loc == nil {
		loc = time.Local
	}
	return &Checker{finder: finder, loc: loc}
}

// Location is the zone weekday windows are evaluated in.
func (c *Checker) Location() *time.Location {
	return c.loc
}

// Check applies the window rules of the resource, then looks for conflicts.
// A closed weekday or an interval outside the window is unavailable without
// consulting the store. Malformed rules are resolved by onErr and never
// reported as errors.
func (c *Checker) Check(ctx context.Context, res *models.Resource, iv Interval, onErr OnParseError) (Result, error) {
	if !iv.End.After(iv.Start) {
		return Result{}, ErrInvalidInterval
	}

	rules := Load(res.AvailabilityRules, onErr)
	if !rules.Admits(iv.In(c.loc)) {
		return Result{}, nil
	}

	conflicts, err := c.finder.FindConflicts(ctx, res.ID, iv.Start, iv.End)
	if err != nil {
		return Result{}, fmt.Errorf("failed to find conflicts: %w", err)
	}

	return Result{
		Available: len(conflicts) == 0,
		InWindow:  true,
		Conflicts: conflicts,
	}, nil
}

func (c *Checker) IsAvailable(ctx context.Context, res *models.Resource, start, end time.Time, onErr OnParseError) (bool, error) {
	result, err := c.Check(ctx, res, Interval{Start: start, End: end}, onErr)
	if err != nil {
		return false, err
	}
	return result.Available, nil
}
