package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bus-tracker/internal/config"
	"bus-tracker/internal/location-service/adapters/driven/memory"
	"bus-tracker/internal/location-service/core/domain/model"
	websocketdto "bus-tracker/internal/location-service/core/domain/websocket_dto"
	"bus-tracker/internal/location-service/core/services"
	"bus-tracker/internal/mylogger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const readTimeout = 2 * time.Second

type gatewayFixture struct {
	store  *memory.PositionStore
	auth   *services.AuthService
	hub    *Hub
	gw     *Gateway
	server *httptest.Server
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	log := mylogger.Discard()

	cfg := *config.Default().WS
	cfg.AuthTimeout = 200 * time.Millisecond

	dir := memory.NewDirectory()
	dir.PutUser(model.User{ID: "d1", Name: "Rahim", Role: model.RoleDriver, IsApproved: true, IsActive: true})
	dir.PutUser(model.User{ID: "s1", Name: "Nadia", Role: model.RoleStudent, IsApproved: true, IsActive: true})
	dir.PutUser(model.User{ID: "a1", Name: "Ops", Role: model.RoleAdmin, IsApproved: true, IsActive: true})
	dir.PutTrip(model.Trip{ID: "T1", DriverID: "d1", BusNumber: "B-12", RouteName: "Campus Loop", IsActive: true})

	f := &gatewayFixture{
		store: memory.NewPositionStore(),
		auth:  services.NewAuthService("ws-secret", "", "", dir),
		hub:   NewHub(log, cfg.PriorityWait),
	}
	fanout := services.NewBroadcaster(log, f.hub, nil)
	ingest := services.NewIngestService(log, f.store, dir, fanout)
	query := services.NewQueryService(log, f.store, dir, 5*time.Minute, 10*time.Minute)

	f.gw = NewGateway(context.Background(), f.hub, f.auth, ingest, query, &cfg, log)
	f.server = httptest.NewServer(f.gw)
	t.Cleanup(f.server.Close)
	return f
}

func (f *gatewayFixture) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := f.auth.IssueToken(userID, model.RoleStudent, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *gatewayFixture) dial(t *testing.T, query string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

// connect dials with a header credential and waits for the admission frame.
func (f *gatewayFixture) connect(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	conn := f.dial(t, "", http.Header{"Authorization": {"Bearer " + f.token(t, userID)}})
	readUntil(t, conn, websocketdto.EventAuthenticated)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, eventType string, payload any) {
	t.Helper()
	e, err := websocketdto.NewEvent(eventType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(e))
}

// readUntil skips frames until one of eventType arrives.
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) websocketdto.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	for {
		var e websocketdto.Event
		require.NoError(t, conn.ReadJSON(&e), "waiting for %s", eventType)
		if e.Type == eventType {
			return e
		}
	}
}

// assertNoEvent reads for d and fails if a frame of eventType arrives.
// Only the read deadline may end the wait, which leaves conn unusable.
func assertNoEvent(t *testing.T, conn *websocket.Conn, eventType string, d time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	for {
		var e websocketdto.Event
		err := conn.ReadJSON(&e)
		if err != nil {
			var netErr interface{ Timeout() bool }
			require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "unexpected read error: %v", err)
			break
		}
		assert.NotEqual(t, eventType, e.Type, "unexpected %s", eventType)
	}
}

func expectClose(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.True(t, errors.As(err, &ce), "expected close frame, got %v", err)
		return ce
	}
}

func TestGatewayRejects(t *testing.T) {
	f := newGatewayFixture(t)

	t.Run("no credential times out", func(t *testing.T) {
		conn := f.dial(t, "", nil)
		ce := expectClose(t, conn)
		assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)
		assert.Equal(t, "authentication timeout", ce.Text)
	})

	t.Run("bad header token", func(t *testing.T) {
		conn := f.dial(t, "", http.Header{"Authorization": {"Bearer nope"}})
		ce := expectClose(t, conn)
		assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)
		assert.Equal(t, "invalid token", ce.Text)
	})

	t.Run("first frame is not authenticate", func(t *testing.T) {
		conn := f.dial(t, "", nil)
		send(t, conn, websocketdto.EventPing, nil)
		ce := expectClose(t, conn)
		assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)
		assert.Equal(t, "authentication token required", ce.Text)
	})

	assert.Eventually(t, func() bool { return f.hub.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestGatewayAdmission(t *testing.T) {
	f := newGatewayFixture(t)

	t.Run("authenticate frame", func(t *testing.T) {
		conn := f.dial(t, "", nil)
		send(t, conn, websocketdto.EventAuthenticate, websocketdto.AuthMessage{Token: f.token(t, "s1")})

		e := readUntil(t, conn, websocketdto.EventAuthenticated)
		var got websocketdto.Authenticated
		require.NoError(t, json.Unmarshal(e.Data, &got))
		assert.Equal(t, "s1", got.UserID)
		assert.Equal(t, model.RoleStudent, got.Role)
		assert.Equal(t, []string{model.ChannelStudents}, got.Channels)
	})

	t.Run("query token", func(t *testing.T) {
		conn := f.dial(t, "?token="+f.token(t, "a1"), nil)
		e := readUntil(t, conn, websocketdto.EventAuthenticated)
		var got websocketdto.Authenticated
		require.NoError(t, json.Unmarshal(e.Data, &got))
		assert.Equal(t, []string{model.ChannelAdmins}, got.Channels)
	})
}

func TestGatewayLocationFanOut(t *testing.T) {
	f := newGatewayFixture(t)
	student := f.connect(t, "s1")
	driver := f.connect(t, "d1")

	send(t, student, websocketdto.EventSubscribeToBus, "T1")
	e := readUntil(t, student, websocketdto.EventSubscribed)
	var sub websocketdto.SubscriptionAck
	require.NoError(t, json.Unmarshal(e.Data, &sub))
	assert.Equal(t, "T1", sub.TripID)
	assert.Equal(t, "Subscribed to bus updates", sub.Message)

	send(t, driver, websocketdto.EventLocationUpdate, map[string]any{
		"tripId": "T1", "latitude": 23.78, "longitude": 90.40, "speed": 30,
	})
	ack := readUntil(t, driver, websocketdto.EventLocationUpdateAck)
	var a websocketdto.Ack
	require.NoError(t, json.Unmarshal(ack.Data, &a))
	assert.True(t, a.Success)

	e = readUntil(t, student, websocketdto.EventBusLocationUpdate)
	var view map[string]any
	require.NoError(t, json.Unmarshal(e.Data, &view))
	assert.Equal(t, "T1", view["tripId"])
	assert.Equal(t, "B-12", view["busNumber"])
	assert.Equal(t, true, view["isMoving"])

	send(t, student, websocketdto.EventGetActiveBuses, nil)
	e = readUntil(t, student, websocketdto.EventActiveBuses)
	var active []map[string]any
	require.NoError(t, json.Unmarshal(e.Data, &active))
	assert.Len(t, active, 1)
}

func TestGatewayStudentCannotReport(t *testing.T) {
	f := newGatewayFixture(t)
	student := f.connect(t, "s1")

	send(t, student, websocketdto.EventLocationUpdate, map[string]any{
		"tripId": "T1", "latitude": 23.78, "longitude": 90.40,
	})
	e := readUntil(t, student, websocketdto.EventError)
	var msg websocketdto.ErrorMessage
	require.NoError(t, json.Unmarshal(e.Data, &msg))
	assert.Equal(t, "only drivers can perform this action", msg.Message)
}

func TestGatewayErrorFrames(t *testing.T) {
	f := newGatewayFixture(t)
	driver := f.connect(t, "d1")

	require.NoError(t, driver.WriteMessage(websocket.TextMessage, []byte("not json")))
	e := readUntil(t, driver, websocketdto.EventError)
	var msg websocketdto.ErrorMessage
	require.NoError(t, json.Unmarshal(e.Data, &msg))
	assert.Equal(t, "invalid message format", msg.Message)

	send(t, driver, "teleport", nil)
	e = readUntil(t, driver, websocketdto.EventError)
	require.NoError(t, json.Unmarshal(e.Data, &msg))
	assert.Equal(t, "unknown event type: teleport", msg.Message)

	send(t, driver, websocketdto.EventLocationUpdate, map[string]any{"tripId": "T1", "latitude": 123})
	e = readUntil(t, driver, websocketdto.EventError)
	msg = websocketdto.ErrorMessage{}
	require.NoError(t, json.Unmarshal(e.Data, &msg))
	assert.Equal(t, "validation failed", msg.Message)
	assert.Contains(t, msg.Errors, "latitude")
	assert.Contains(t, msg.Errors, "longitude")

	send(t, driver, websocketdto.EventPing, nil)
	readUntil(t, driver, websocketdto.EventPong)
}

func TestGatewayEmergencyReachesAdmins(t *testing.T) {
	f := newGatewayFixture(t)
	admin := f.connect(t, "a1")
	student := f.connect(t, "s1")
	driver := f.connect(t, "d1")

	send(t, driver, websocketdto.EventEmergencyAlert, map[string]any{"tripId": "T1", "message": "brakes"})
	readUntil(t, driver, websocketdto.EventEmergencyAlertAck)

	e := readUntil(t, admin, websocketdto.EventPriorityAlert)
	var alert websocketdto.EmergencyAlert
	require.NoError(t, json.Unmarshal(e.Data, &alert))
	assert.Equal(t, "brakes", alert.Message)
	assert.Equal(t, "Rahim", alert.DriverName)

	readUntil(t, student, websocketdto.EventEmergencyAlert)
}

func TestGatewayDriverDisconnect(t *testing.T) {
	f := newGatewayFixture(t)
	student := f.connect(t, "s1")
	driver := f.connect(t, "d1")

	send(t, driver, websocketdto.EventLocationUpdate, map[string]any{
		"tripId": "T1", "latitude": 23.78, "longitude": 90.40,
	})
	readUntil(t, driver, websocketdto.EventLocationUpdateAck)

	require.NoError(t, driver.Close())

	e := readUntil(t, student, websocketdto.EventDriverOffline)
	var off websocketdto.DriverOffline
	require.NoError(t, json.Unmarshal(e.Data, &off))
	assert.Equal(t, "d1", off.DriverID)

	p, err := f.store.Get(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusOffline, p.Status)
	assert.Equal(t, 1, f.hub.Len())

	send(t, student, websocketdto.EventGetActiveBuses, nil)
	e = readUntil(t, student, websocketdto.EventActiveBuses)
	var buses []map[string]any
	require.NoError(t, json.Unmarshal(e.Data, &buses))
	assert.Empty(t, buses, "an offline bus is not listed")

	assertNoEvent(t, student, websocketdto.EventDriverOffline, 300*time.Millisecond)
}

func TestGatewayShutdownClosesSessions(t *testing.T) {
	f := newGatewayFixture(t)
	student := f.connect(t, "s1")
	driver := f.connect(t, "d1")

	send(t, driver, websocketdto.EventLocationUpdate, map[string]any{
		"tripId": "T1", "latitude": 23.78, "longitude": 90.40,
	})
	readUntil(t, driver, websocketdto.EventLocationUpdateAck)

	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()
	require.NoError(t, f.gw.Shutdown(ctx))

	assert.Equal(t, websocket.CloseNormalClosure, expectClose(t, student).Code)
	assert.Equal(t, websocket.CloseNormalClosure, expectClose(t, driver).Code)
	assert.Equal(t, 0, f.hub.Len())

	// disconnect handling finished before Shutdown returned
	p, err := f.store.Get(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusOffline, p.Status)

	late := f.dial(t, "", http.Header{"Authorization": {"Bearer " + f.token(t, "s1")}})
	ce := expectClose(t, late)
	assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)
	assert.Equal(t, "server shutting down", ce.Text)
}
