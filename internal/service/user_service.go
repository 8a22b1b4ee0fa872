package service

import (
	"context"
	"fmt"
	"strings"

	"campusbook/internal/domain"
	"campusbook/internal/models"

	"github.com/rs/zerolog"
)

type UserService struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

func NewUserService(repo domain.Repository, logger *zerolog.Logger) *UserService {
	return &UserService{
		repo:   repo,
		logger: logger,
	}
}

func (s *UserService) SaveUser(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	switch user.Role {
	case "":
		user.Role = models.RoleStudent
	case models.RoleStudent, models.RoleStaff, models.RoleAdmin:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, user.Role)
	}
	return s.repo.CreateUser(ctx, user)
}

func (s *UserService) GetAllUsers(ctx context.Context) ([]models.User, error) {
	return s.repo.GetAllUsers(ctx)
}

func (s *UserService) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// Messages returns the user's inbox, newest first.
func (s *UserService) Messages(ctx context.Context, userID int64) ([]models.Message, error) {
	return s.repo.ListMessages(ctx, userID)
}
