package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"campusbook/internal/api"
	"campusbook/internal/availability"
	"campusbook/internal/database"
	"campusbook/internal/models"
	"campusbook/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
users:
  - id: 1
    name: Facilities Office
    email: Facilities@Campus.test
    role: staff
  - id: 2
    name: Ada
    email: ada@campus.test
resources:
  - id: 10
    owner_id: 1
    title: Seminar Room B
    category: rooms
    capacity: 24
    availability:
      monday: "09:00-17:00"
      tuesday: ""
  - id: 11
    owner_id: 1
    title: Recording Studio
    requires_approval: true
    availability:
      friday: "10:00-14:00"
`

func TestApplySeed(t *testing.T) {
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	defer db.Close()

	svc := api.Services{
		Users:     service.NewUserService(db, &logger),
		Resources: service.NewResourceService(db, &logger),
	}

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	seed, err := loadSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Users, 2)
	require.Len(t, seed.Resources, 2)

	ctx := context.Background()
	require.NoError(t, applySeed(ctx, seed, svc, &logger))
	// a second run leaves existing rows alone
	require.NoError(t, applySeed(ctx, seed, svc, &logger))

	users, err := db.GetAllUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	office, err := db.GetUserByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "facilities@campus.test", office.Email)
	assert.Equal(t, models.RoleStaff, office.Role)

	ada, err := db.GetUserByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, ada.Role)

	room, err := db.GetResource(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), room.OwnerID)
	assert.Equal(t, models.ResourcePublished, room.Status)

	set, err := availability.Parse(room.AvailabilityRules)
	require.NoError(t, err)
	assert.True(t, set.Declared)
	assert.Equal(t, map[string]string{"monday": "09:00-17:00"}, set.Schedule.Strings())

	studio, err := db.GetResource(ctx, 11)
	require.NoError(t, err)
	assert.True(t, studio.RequiresApproval)
}

func TestApplySeed_UnknownOwner(t *testing.T) {
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	defer db.Close()

	svc := api.Services{
		Users:     service.NewUserService(db, &logger),
		Resources: service.NewResourceService(db, &logger),
	}
	seed := &seedFile{Resources: []seedResource{{Resource: models.Resource{ID: 5, OwnerID: 42, Title: "Orphan"}}}}

	err = applySeed(context.Background(), seed, svc, &logger)
	assert.ErrorIs(t, err, database.ErrNotFound)
}
