package service

import (
	"context"
	"fmt"
	"strings"

	"campusbook/internal/availability"
	"campusbook/internal/database"
	"campusbook/internal/domain"
	"campusbook/internal/models"

	"github.com/rs/zerolog"
)

type ResourceService struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

func NewResourceService(repo domain.Repository, logger *zerolog.Logger) *ResourceService {
	return &ResourceService{repo: repo, logger: logger}
}

func (s *ResourceService) GetResource(ctx context.Context, id int64) (*models.Resource, error) {
	return s.repo.GetResource(ctx, id)
}

// GetVisibleResource hides draft and archived resources from anyone who
// cannot moderate them. actor may be nil for anonymous reads.
func (s *ResourceService) GetVisibleResource(ctx context.Context, actor *models.User, id int64) (*models.Resource, error) {
	res, err := s.repo.GetResource(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.IsPublished() || (actor != nil && actor.CanModerate(res)) {
		return res, nil
	}
	return nil, database.ErrNotFound
}

// ListResources returns published resources, optionally of one category.
func (s *ResourceService) ListResources(ctx context.Context, category string) ([]models.Resource, error) {
	return s.repo.ListResources(ctx, strings.TrimSpace(category))
}

// CreateResource validates the weekly schedule and stores it apart from the
// approval flag. The actor becomes the owner.
func (s *ResourceService) CreateResource(ctx context.Context, actor *models.User, res *models.Resource, schedule map[string]string) error {
	res.Title = strings.TrimSpace(res.Title)
	if res.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if res.Capacity < 0 {
		return fmt.Errorf("%w: capacity must not be negative", ErrInvalidInput)
	}
	if res.Status == "" {
		res.Status = models.ResourcePublished
	}
	if !validResourceStatus(res.Status) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, res.Status)
	}

	set, err := availability.ParseDays(schedule)
	if err != nil {
		return err
	}
	raw, err := set.Encode()
	if err != nil {
		return err
	}

	res.OwnerID = actor.ID
	res.AvailabilityRules = raw
	if err := s.repo.CreateResource(ctx, res); err != nil {
		return err
	}

	s.logger.Info().Int64("resource_id", res.ID).Int64("owner_id", res.OwnerID).Str("title", res.Title).Msg("Resource created")
	return nil
}

// SetStatus publishes, archives or drafts a resource.
func (s *ResourceService) SetStatus(ctx context.Context, actor *models.User, id int64, status string) error {
	if !validResourceStatus(status) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	res, err := s.repo.GetResource(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanModerate(res) {
		return ErrForbidden
	}
	return s.repo.UpdateResourceStatus(ctx, id, status)
}

func validResourceStatus(status string) bool {
	switch status {
	case models.ResourceDraft, models.ResourcePublished, models.ResourceArchived:
		return true
	}
	return false
}
