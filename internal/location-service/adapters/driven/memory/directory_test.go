package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"bus-tracker/internal/location-service/core/domain/model"
	"bus-tracker/internal/location-service/core/myerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seed = `
users:
  - id: d1
    name: Rahim
    role: driver
    is_approved: true
    is_active: true
  - id: s1
    name: Student
    role: student
    is_approved: false
    is_active: true
trips:
  - id: t1
    driver_id: d1
    bus_number: BUS-12
    route_name: Campus Loop
    is_active: true
`

func TestLoadDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.yml")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	dir, err := LoadDirectory(path)
	require.NoError(t, err)

	ctx := context.Background()
	u, err := dir.User(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, model.RoleDriver, u.Role)
	assert.True(t, u.IsApproved)

	s, err := dir.User(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, s.IsApproved)

	trip, err := dir.Trip(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "d1", trip.DriverID)
	assert.Equal(t, "BUS-12", trip.BusNumber)

	_, err = dir.Trip(ctx, "missing")
	assert.ErrorIs(t, err, myerrors.ErrTripNotFound)
	_, err = dir.User(ctx, "missing")
	assert.ErrorIs(t, err, myerrors.ErrUnknownUser)
}

func TestLoadDirectoryRejectsUnknownRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.yml")
	require.NoError(t, os.WriteFile(path, []byte("users:\n  - id: x\n    role: pilot\n"), 0o644))

	_, err := LoadDirectory(path)
	assert.Error(t, err)
}
