package database

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"campusbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2025-03-10 is a Monday.
var monday = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return monday.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedUser(t *testing.T, db *DB, name string) *models.User {
	t.Helper()
	u := &models.User{Name: name, Email: fmt.Sprintf("%s@campus.test", name)}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

func seedResource(t *testing.T, db *DB, ownerID int64) *models.Resource {
	t.Helper()
	res := &models.Resource{
		OwnerID:           ownerID,
		Title:             "Seminar room",
		Category:          "rooms",
		AvailabilityRules: `{"monday":"09:00-17:00"}`,
	}
	require.NoError(t, db.CreateResource(context.Background(), res))
	return res
}

func seedBooking(t *testing.T, db *DB, resourceID, requesterID int64, start, end time.Time, status string) *models.Booking {
	t.Helper()
	b := &models.Booking{
		ResourceID:  resourceID,
		RequesterID: requesterID,
		Start:       start,
		End:         end,
		Status:      status,
	}
	require.NoError(t, db.CreateBookingWithLock(context.Background(), b))
	return b
}

func TestNewDB_Schema(t *testing.T) {
	db := setupTestDB(t)

	tables := []string{"users", "resources", "bookings", "waitlist", "notification_queue", "messages", "reviews"}
	for _, table := range tables {
		var name string
		err := db.Get(&name, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}

	assert.Equal(t, ":memory:", db.Path())
	assert.NoError(t, db.Ready(context.Background()))
}

func TestNewDB_File(t *testing.T) {
	logger := zerolog.New(io.Discard)
	path := t.TempDir() + "/nested/dir/campus.db"
	db, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, path)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "a.db?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on", dsn("a.db"))
	assert.Equal(t, "a.db?cache=shared&_txlock=immediate&_busy_timeout=5000&_foreign_keys=on", dsn("a.db?cache=shared"))
}

func TestDBTime(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	in := time.Date(2025, 3, 10, 12, 30, 15, 999, loc)
	out := dbTime(in)

	assert.Equal(t, time.UTC, out.Location())
	assert.True(t, out.Equal(time.Date(2025, 3, 10, 9, 30, 15, 0, time.UTC)))
	assert.Nil(t, dbTimePtr(nil))
}

func TestUsers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	u := seedUser(t, db, "alice")
	assert.NotZero(t, u.ID)
	assert.Equal(t, models.RoleStudent, u.Role)

	pinned := &models.User{ID: 42, Name: "bob", Email: "bob@campus.test", Role: models.RoleStaff}
	require.NoError(t, db.CreateUser(ctx, pinned))
	assert.Equal(t, int64(42), pinned.ID)

	got, err := db.GetUserByID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Name)
	assert.True(t, got.IsModerator())

	got, err = db.GetUserByEmail(ctx, "alice@campus.test")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = db.GetUserByID(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.GetUserByEmail(ctx, "nobody@campus.test")
	assert.ErrorIs(t, err, ErrNotFound)

	dup := &models.User{Name: "alice2", Email: "alice@campus.test"}
	assert.Error(t, db.CreateUser(ctx, dup))

	all, err := db.GetAllUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestResources(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	owner := seedUser(t, db, "owner")

	res := seedResource(t, db, owner.ID)
	assert.Equal(t, models.ResourcePublished, res.Status)

	draft := &models.Resource{OwnerID: owner.ID, Title: "Draft lab", Category: "labs", Status: models.ResourceDraft}
	require.NoError(t, db.CreateResource(ctx, draft))

	got, err := db.GetResource(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, `{"monday":"09:00-17:00"}`, got.AvailabilityRules)
	assert.Equal(t, owner.ID, got.OwnerID)

	list, err := db.ListResources(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, res.ID, list[0].ID)

	list, err = db.ListResources(ctx, "labs")
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, db.UpdateResourceStatus(ctx, draft.ID, models.ResourcePublished))
	list, err = db.ListResources(ctx, "labs")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, db.UpdateResourceStatus(ctx, 999, models.ResourceArchived), ErrNotFound)
	_, err = db.GetResource(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClosedDBErrors(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := db.GetUserByID(ctx, 1)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = db.FindConflicts(ctx, 1, at(9, 0), at(10, 0))
	assert.Error(t, err)

	err = db.CreateBookingWithLock(ctx, &models.Booking{ResourceID: 1, RequesterID: 1, Start: at(9, 0), End: at(10, 0), Status: models.StatusPending})
	assert.Error(t, err)

	_, err = db.ListBookings(ctx, models.BookingFilter{})
	assert.Error(t, err)

	_, err = db.ListWaitlist(ctx, 1, "")
	assert.Error(t, err)

	_, err = db.GetPendingNotifications(ctx, time.Now(), 10)
	assert.Error(t, err)

	assert.Error(t, db.Ready(ctx))
}
