package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bus-tracker/internal/location-service/adapters/driven/memory"
	"bus-tracker/internal/location-service/core/domain/model"
	websocketdto "bus-tracker/internal/location-service/core/domain/websocket_dto"
	"bus-tracker/internal/location-service/core/myerrors"
	"bus-tracker/internal/location-service/core/ports/driven"
	"bus-tracker/internal/mylogger"
)

const everyone = "*"

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

var errStoreDown = myerrors.StoreUnavailable("test", errors.New("connection refused"))

type delivery struct {
	target   string
	priority bool
	event    websocketdto.Event
}

type recordingChannels struct {
	mu   sync.Mutex
	sent []delivery
}

func (r *recordingChannels) Broadcast(event websocketdto.Event) {
	r.record(delivery{target: everyone, event: event})
}

func (r *recordingChannels) SendToChannel(channel string, event websocketdto.Event) {
	r.record(delivery{target: channel, event: event})
}

func (r *recordingChannels) SendPriority(channel string, event websocketdto.Event) {
	r.record(delivery{target: channel, priority: true, event: event})
}

func (r *recordingChannels) record(d delivery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, d)
}

func (r *recordingChannels) deliveries() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.sent...)
}

// targets lists the targets that received eventType, in order.
func (r *recordingChannels) targets(eventType string) []string {
	var out []string
	for _, d := range r.deliveries() {
		if d.event.Type == eventType {
			out = append(out, d.target)
		}
	}
	return out
}

func (r *recordingChannels) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

type mirrorCall struct {
	routingKey string
	event      string
}

type recordingMirror struct {
	mu    sync.Mutex
	calls []mirrorCall
}

func (m *recordingMirror) Mirror(routingKey, event string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, mirrorCall{routingKey: routingKey, event: event})
}

// flakyStore fails the selected operations with a store error.
type flakyStore struct {
	driven.PositionStore
	failOffline bool
	failDemote  bool
}

func (f *flakyStore) MarkDriverOffline(ctx context.Context, driverID string) (int64, error) {
	if f.failOffline {
		return 0, errStoreDown
	}
	return f.PositionStore.MarkDriverOffline(ctx, driverID)
}

func (f *flakyStore) DemoteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	if f.failDemote {
		return 0, errStoreDown
	}
	return f.PositionStore.DemoteStale(ctx, cutoff)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	driverD = model.Identity{UserID: "d1", Name: "Rahim", Role: model.RoleDriver}
	driverE = model.Identity{UserID: "d2", Name: "Karim", Role: model.RoleDriver}
	student = model.Identity{UserID: "s1", Name: "Nadia", Role: model.RoleStudent}
)

func seededDirectory() *memory.Directory {
	dir := memory.NewDirectory()
	dir.PutUser(model.User{ID: "d1", Name: "Rahim", Role: model.RoleDriver, IsApproved: true, IsActive: true})
	dir.PutUser(model.User{ID: "d2", Name: "Karim", Role: model.RoleDriver, IsApproved: true, IsActive: true})
	dir.PutUser(model.User{ID: "s1", Name: "Nadia", Role: model.RoleStudent, IsApproved: true, IsActive: true})
	dir.PutUser(model.User{ID: "s2", Name: "Pending", Role: model.RoleStudent, IsApproved: false, IsActive: true})
	dir.PutTrip(model.Trip{ID: "T1", DriverID: "d1", BusNumber: "B-12", RouteName: "Campus Loop", IsActive: true})
	dir.PutTrip(model.Trip{ID: "T2", DriverID: "d2", BusNumber: "B-7", RouteName: "City Line", IsActive: true})
	dir.PutTrip(model.Trip{ID: "T3", DriverID: "d1", BusNumber: "B-12", RouteName: "Campus Loop", IsActive: false})
	return dir
}

type ingestFixture struct {
	store    *memory.PositionStore
	dir      *memory.Directory
	channels *recordingChannels
	mirror   *recordingMirror
	clock    *clock
	svc      *IngestService
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	f := &ingestFixture{
		store:    memory.NewPositionStore(),
		dir:      seededDirectory(),
		channels: &recordingChannels{},
		mirror:   &recordingMirror{},
		clock:    &clock{now: t0},
	}
	fanout := NewBroadcaster(mylogger.Discard(), f.channels, f.mirror)
	f.svc = NewIngestService(mylogger.Discard(), f.store, f.dir, fanout).WithClock(f.clock.Now)
	return f
}

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }
