package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"campusbook/internal/api"
	"campusbook/internal/config"
	"campusbook/internal/database"
	"campusbook/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

type seedResource struct {
	models.Resource `yaml:",inline"`
	Availability    map[string]string `yaml:"availability"`
}

type seedFile struct {
	Users     []models.User  `yaml:"users"`
	Resources []seedResource `yaml:"resources"`
}

func seedFromConfig(ctx context.Context, cfg *config.Config, svc api.Services, logger *zerolog.Logger) error {
	path := os.Getenv("SEED_PATH")
	if path == "" {
		path = cfg.SeedPath
	}
	if path == "" {
		return nil
	}

	seed, err := loadSeed(path)
	if err != nil {
		logger.Error().Err(err).Str("seed_path", path).Msg("load seed")
		return err
	}
	return applySeed(ctx, seed, svc, logger)
}

func loadSeed(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &seed, nil
}

// applySeed inserts seed users and resources whose ids are not taken yet.
// Resources are created on behalf of their owner.
func applySeed(ctx context.Context, seed *seedFile, svc api.Services, logger *zerolog.Logger) error {
	for i := range seed.Users {
		u := seed.Users[i]
		if u.ID != 0 {
			if _, err := svc.Users.GetUserByID(ctx, u.ID); err == nil {
				continue
			} else if !errors.Is(err, database.ErrNotFound) {
				return err
			}
		}
		if err := svc.Users.SaveUser(ctx, &u); err != nil {
			return fmt.Errorf("seed user %q: %w", u.Email, err)
		}
		logger.Info().Int64("user_id", u.ID).Str("email", u.Email).Msg("seeded user")
	}

	for i := range seed.Resources {
		entry := seed.Resources[i]
		res := entry.Resource
		if res.ID != 0 {
			if _, err := svc.Resources.GetResource(ctx, res.ID); err == nil {
				continue
			} else if !errors.Is(err, database.ErrNotFound) {
				return err
			}
		}
		owner, err := svc.Users.GetUserByID(ctx, res.OwnerID)
		if err != nil {
			return fmt.Errorf("seed resource %q: owner %d: %w", res.Title, res.OwnerID, err)
		}
		if err := svc.Resources.CreateResource(ctx, owner, &res, entry.Availability); err != nil {
			return fmt.Errorf("seed resource %q: %w", res.Title, err)
		}
		logger.Info().Int64("resource_id", res.ID).Str("title", res.Title).Msg("seeded resource")
	}
	return nil
}
