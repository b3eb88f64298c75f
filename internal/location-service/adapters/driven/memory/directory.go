package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"bus-tracker/internal/location-service/core/domain/model"
	"bus-tracker/internal/location-service/core/myerrors"
	"bus-tracker/internal/location-service/core/ports/driven"

	"gopkg.in/yaml.v3"
)

// Directory is an in-memory user and trip directory, seeded from YAML for
// single-node deployments and tests.
type Directory struct {
	mu    sync.RWMutex
	users map[string]model.User
	trips map[string]model.Trip
}

var _ driven.Directory = (*Directory)(nil)

type seedFile struct {
	Users []model.User `yaml:"users"`
	Trips []model.Trip `yaml:"trips"`
}

func NewDirectory() *Directory {
	return &Directory{
		users: make(map[string]model.User),
		trips: make(map[string]model.Trip),
	}
}

// LoadDirectory reads a YAML seed file of users and trips.
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory file: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse directory file: %w", err)
	}

	d := NewDirectory()
	for _, u := range seed.Users {
		if !u.Role.Valid() {
			return nil, fmt.Errorf("user %s: unknown role %q", u.ID, u.Role)
		}
		d.PutUser(u)
	}
	for _, t := range seed.Trips {
		d.PutTrip(t)
	}
	return d, nil
}

func (d *Directory) PutUser(u model.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *Directory) PutTrip(t model.Trip) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trips[t.ID] = t
}

func (d *Directory) User(ctx context.Context, userID string) (model.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return model.User{}, myerrors.ErrUnknownUser
	}
	return u, nil
}

func (d *Directory) Trip(ctx context.Context, tripID string) (model.Trip, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.trips[tripID]
	if !ok {
		return model.Trip{}, myerrors.ErrTripNotFound
	}
	return t, nil
}
