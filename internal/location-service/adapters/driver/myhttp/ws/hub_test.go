package ws

import (
	"encoding/json"
	"testing"
	"time"

	"bus-tracker/internal/config"
	"bus-tracker/internal/location-service/core/domain/model"
	websocketdto "bus-tracker/internal/location-service/core/domain/websocket_dto"
	"bus-tracker/internal/mylogger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offlineClient(id string, role model.Role, buffer int) *Client {
	cfg := *config.Default().WS
	cfg.SendBuffer = buffer
	return NewClient(id, nil, model.Identity{UserID: "u-" + id, Role: role}, &cfg, mylogger.Discard())
}

func frameType(t *testing.T, frame []byte) string {
	t.Helper()
	var e websocketdto.Event
	require.NoError(t, json.Unmarshal(frame, &e))
	return e.Type
}

func mustEvent(t *testing.T, eventType string) websocketdto.Event {
	t.Helper()
	e, err := websocketdto.NewEvent(eventType, map[string]string{"tripId": "T1"})
	require.NoError(t, err)
	return e
}

func TestHubMembership(t *testing.T) {
	hub := NewHub(mylogger.Discard(), 10*time.Millisecond)
	c := offlineClient("c1", model.RoleStudent, 4)

	assert.False(t, hub.Join("c1", "students"), "unknown connection")

	hub.AddClient(c)
	require.True(t, hub.Join("c1", "students"))
	require.True(t, hub.Join("c1", "bus-T1"))
	assert.Equal(t, []string{"bus-T1", "students"}, hub.Channels("c1"))

	hub.Leave("c1", "bus-T1")
	hub.Leave("c1", "bus-T404")
	assert.Equal(t, []string{"students"}, hub.Channels("c1"))

	hub.RemoveClient(c)
	assert.Empty(t, hub.Channels("c1"))
	assert.Equal(t, 0, hub.Len())
}

func TestHubChannelDelivery(t *testing.T) {
	hub := NewHub(mylogger.Discard(), 10*time.Millisecond)
	student := offlineClient("s", model.RoleStudent, 4)
	admin := offlineClient("a", model.RoleAdmin, 4)
	hub.AddClient(student)
	hub.AddClient(admin)
	hub.Join("s", "students")
	hub.Join("a", "admins")

	hub.SendToChannel("admins", mustEvent(t, "busLocationUpdate"))
	assert.Len(t, student.egress, 0)
	require.Len(t, admin.egress, 1)
	assert.Equal(t, "busLocationUpdate", frameType(t, <-admin.egress))

	hub.Broadcast(mustEvent(t, "trackingStopped"))
	assert.Len(t, student.egress, 1)
	assert.Len(t, admin.egress, 1)

	hub.SendToChannel("bus-T1", mustEvent(t, "busLocationUpdate"))
	assert.Len(t, student.egress, 1, "nobody is subscribed to bus-T1")
}

func TestHubDropsWhenEgressFull(t *testing.T) {
	hub := NewHub(mylogger.Discard(), 10*time.Millisecond)
	slow := offlineClient("slow", model.RoleStudent, 2)
	fast := offlineClient("fast", model.RoleStudent, 8)
	hub.AddClient(slow)
	hub.AddClient(fast)

	for i := 0; i < 5; i++ {
		hub.Broadcast(mustEvent(t, "busLocationUpdate"))
	}
	assert.Len(t, slow.egress, 2)
	assert.Len(t, fast.egress, 5, "a slow client does not hold back the others")
}

func TestHubPriorityWaitsForRoom(t *testing.T) {
	hub := NewHub(mylogger.Discard(), 500*time.Millisecond)
	admin := offlineClient("a", model.RoleAdmin, 1)
	hub.AddClient(admin)
	hub.Join("a", "admins")

	hub.SendPriority("admins", mustEvent(t, "priorityAlert"))
	require.Len(t, admin.priority, 1)

	go func() {
		time.Sleep(20 * time.Millisecond)
		<-admin.priority
	}()
	hub.SendPriority("admins", mustEvent(t, "priorityAlert"))
	assert.Len(t, admin.priority, 1, "second alert delivered once room appeared")
}

func TestHubPriorityGivesUp(t *testing.T) {
	hub := NewHub(mylogger.Discard(), 20*time.Millisecond)
	admin := offlineClient("a", model.RoleAdmin, 1)
	hub.AddClient(admin)
	hub.Join("a", "admins")

	hub.SendPriority("admins", mustEvent(t, "priorityAlert"))
	start := time.Now()
	hub.SendPriority("admins", mustEvent(t, "priorityAlert"))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Len(t, admin.priority, 1)
}

func TestClosedClientReceivesNothing(t *testing.T) {
	c := offlineClient("c", model.RoleStudent, 4)
	c.close()
	c.close()

	assert.False(t, c.enqueue([]byte("{}")))
	assert.False(t, c.enqueuePriority([]byte("{}"), time.Millisecond))
}

func TestHubCloseAll(t *testing.T) {
	h := NewHub(mylogger.Discard(), 10*time.Millisecond)
	a := offlineClient("a", model.RoleStudent, 4)
	b := offlineClient("b", model.RoleAdmin, 4)
	h.AddClient(a)
	h.AddClient(b)

	h.CloseAll()

	assert.False(t, a.enqueue([]byte("{}")))
	assert.False(t, b.enqueuePriority([]byte("{}"), time.Millisecond))
	// Sessions remove themselves on disconnect.
	assert.Equal(t, 2, h.Len())
}
