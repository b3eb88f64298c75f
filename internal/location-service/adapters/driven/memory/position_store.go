package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"bus-tracker/internal/location-service/core/domain/model"
	"bus-tracker/internal/location-service/core/geo"
	"bus-tracker/internal/location-service/core/myerrors"
	"bus-tracker/internal/location-service/core/ports/driven"
)

// PositionStore keeps live positions in process memory. Every method holds
// the lock for its whole read-modify-write.
type PositionStore struct {
	mu        sync.Mutex
	positions map[string]model.LivePosition
}

var _ driven.PositionStore = (*PositionStore)(nil)

func NewPositionStore() *PositionStore {
	return &PositionStore{
		positions: make(map[string]model.LivePosition),
	}
}

func (s *PositionStore) Upsert(ctx context.Context, w model.PositionWrite) (model.LivePosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[w.TripID]
	if !ok {
		p = model.NewPosition(w)
		s.positions[w.TripID] = p
		return clone(p), nil
	}
	if p.DriverID != w.DriverID {
		return model.LivePosition{}, myerrors.ErrNotOwner
	}
	if !model.AcceptsSequence(p.Sequence, w.Sequence) {
		return model.LivePosition{}, myerrors.ErrStaleSequence
	}
	p.Apply(w)
	s.positions[w.TripID] = p
	return clone(p), nil
}

func (s *PositionStore) UpdateTripStatus(ctx context.Context, w model.TripStatusWrite) (model.LivePosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[w.TripID]
	if !ok {
		return model.LivePosition{}, myerrors.ErrPositionNotFound
	}
	if p.DriverID != w.DriverID {
		return model.LivePosition{}, myerrors.ErrNotOwner
	}
	p.TripStatus = w.Status
	if w.NearestStop != nil {
		stop := *w.NearestStop
		p.NearestStop = &stop
	}
	p.LastUpdated = w.At
	s.positions[w.TripID] = p
	return clone(p), nil
}

func (s *PositionStore) Get(ctx context.Context, tripID string) (model.LivePosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[tripID]
	if !ok {
		return model.LivePosition{}, myerrors.ErrPositionNotFound
	}
	return clone(p), nil
}

func (s *PositionStore) Delete(ctx context.Context, tripID, driverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[tripID]
	if !ok {
		return myerrors.ErrPositionNotFound
	}
	if p.DriverID != driverID {
		return myerrors.ErrNotOwner
	}
	delete(s.positions, tripID)
	return nil
}

func (s *PositionStore) ListUpdatedSince(ctx context.Context, since time.Time) ([]model.LivePosition, error) {
	return s.list(func(p model.LivePosition) bool {
		return !p.LastUpdated.Before(since)
	}), nil
}

func (s *PositionStore) ListInBox(ctx context.Context, box geo.Box, since time.Time) ([]model.LivePosition, error) {
	return s.list(func(p model.LivePosition) bool {
		return p.Status == model.StatusActive &&
			!p.LastUpdated.Before(since) &&
			box.Contains(p.Latitude, p.Longitude)
	}), nil
}

func (s *PositionStore) MarkDriverOffline(ctx context.Context, driverID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, p := range s.positions {
		if p.DriverID == driverID {
			p.Status = model.StatusOffline
			s.positions[id] = p
			n++
		}
	}
	return n, nil
}

func (s *PositionStore) DemoteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, p := range s.positions {
		if p.Status == model.StatusActive && p.LastUpdated.Before(cutoff) {
			p.Status = model.StatusInactive
			s.positions[id] = p
			n++
		}
	}
	return n, nil
}

func (s *PositionStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, p := range s.positions {
		if p.LastUpdated.Before(cutoff) {
			delete(s.positions, id)
			n++
		}
	}
	return n, nil
}

func (s *PositionStore) Ping(ctx context.Context) error {
	return nil
}

func (s *PositionStore) list(keep func(model.LivePosition) bool) []model.LivePosition {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.LivePosition, 0, len(s.positions))
	for _, p := range s.positions {
		if keep(p) {
			out = append(out, clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUpdated.After(out[j].LastUpdated)
	})
	return out
}

func clone(p model.LivePosition) model.LivePosition {
	if p.NearestStop != nil {
		stop := *p.NearestStop
		p.NearestStop = &stop
	}
	return p
}
