package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"bus-tracker/internal/config"
	"bus-tracker/internal/location-service/core/domain/model"
	websocketdto "bus-tracker/internal/location-service/core/domain/websocket_dto"
	"bus-tracker/internal/location-service/core/myerrors"
	"bus-tracker/internal/location-service/core/ports/driver"
	"bus-tracker/internal/mylogger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	messageTimeout    = 10 * time.Second
	disconnectTimeout = 5 * time.Second
)

var (
	errAuthTimeout  = errors.New("authentication timeout")
	errShuttingDown = errors.New("server shutting down")
)

// Gateway admits streaming connections. A connection must present a bearer
// credential before it joins any channel; a rejected one is closed with a
// reason string.
type Gateway struct {
	ctx      context.Context
	hub      *Hub
	auth     driver.IAuthService
	ingest   driver.IIngestService
	cfg      *config.WebSocketconfig
	log      mylogger.Logger
	upgrader websocket.Upgrader
	handlers map[string]EventHandle
	now      func() time.Time

	mu       sync.Mutex
	closing  bool
	sessions sync.WaitGroup
}

func NewGateway(ctx context.Context, hub *Hub, auth driver.IAuthService, ingest driver.IIngestService, query driver.IQueryService, cfg *config.WebSocketconfig, log mylogger.Logger) *Gateway {
	g := &Gateway{
		ctx:    ctx,
		hub:    hub,
		auth:   auth,
		ingest: ingest,
		cfg:    cfg,
		log:    log.Action("ws_gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		now: time.Now,
	}
	g.handlers = NewEventHandler(hub, ingest, query, g.now).Handlers()
	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Error("cannot upgrade", err)
		return
	}

	identity, err := g.handshake(r, conn)
	if err != nil {
		g.reject(conn, err)
		return
	}

	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		g.reject(conn, errShuttingDown)
		return
	}
	g.sessions.Add(1)
	g.mu.Unlock()
	defer g.sessions.Done()

	client := NewClient(uuid.NewString(), conn, identity, g.cfg, g.log)
	g.hub.AddClient(client)
	g.hub.Join(client.id, identity.Role.Channel())
	client.log.Info("connection admitted")

	client.send(websocketdto.EventAuthenticated, websocketdto.Authenticated{
		UserID:   identity.UserID,
		Name:     identity.Name,
		Role:     identity.Role,
		Channels: g.hub.Channels(client.id),
	})

	go client.WriteMessages()
	client.ReadMessages(g.dispatch)

	g.disconnect(client)
}

// Shutdown stops admitting connections, closes the open ones and waits
// for their disconnect handling to finish or for ctx to end.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()

	g.hub.CloseAll()

	done := make(chan struct{})
	go func() {
		g.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handshake takes the credential from the Authorization header, the
// token query parameter, or an authenticate frame sent within AuthTimeout.
func (g *Gateway) handshake(r *http.Request, conn *websocket.Conn) (model.Identity, error) {
	token := r.Header.Get("Authorization")
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	if strings.TrimSpace(token) == "" {
		var err error
		token, err = g.awaitAuthFrame(conn)
		if err != nil {
			return model.Identity{}, err
		}
	}

	ctx, cancel := context.WithTimeout(g.ctx, messageTimeout)
	defer cancel()
	return g.auth.Authenticate(ctx, token)
}

func (g *Gateway) awaitAuthFrame(conn *websocket.Conn) (string, error) {
	conn.SetReadLimit(g.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(g.cfg.AuthTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, payload, err := conn.ReadMessage()
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", errAuthTimeout
		}
		return "", myerrors.ErrMissingToken
	}

	var e websocketdto.Event
	if err := json.Unmarshal(payload, &e); err != nil || e.Type != websocketdto.EventAuthenticate {
		return "", myerrors.ErrMissingToken
	}
	var msg websocketdto.AuthMessage
	if err := json.Unmarshal(e.Data, &msg); err != nil {
		return "", myerrors.ErrMissingToken
	}
	return msg.Token, nil
}

func (g *Gateway) reject(conn *websocket.Conn, err error) {
	reason := myerrors.Public(err)
	if errors.Is(err, errAuthTimeout) || errors.Is(err, errShuttingDown) {
		reason = err.Error()
	}
	g.log.Warn("connection rejected", "reason", reason, "error", err.Error())

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(g.cfg.WriteWait))
	conn.Close()
}

func (g *Gateway) dispatch(c *Client, e websocketdto.Event) {
	handle, ok := g.handlers[e.Type]
	if !ok {
		c.send(websocketdto.EventError, websocketdto.ErrorMessage{Message: "unknown event type: " + e.Type})
		return
	}

	ctx, cancel := context.WithTimeout(g.ctx, messageTimeout)
	defer cancel()

	if err := handle(ctx, c, e); err != nil {
		if kind := myerrors.Classify(err); kind == myerrors.KindTransientStore || kind == myerrors.KindInternal {
			c.log.Error("event failed", err, "type", e.Type)
		}
		c.send(websocketdto.EventError, websocketdto.ErrorMessage{
			Message: myerrors.Public(err),
			Errors:  myerrors.FieldErrors(err),
		})
	}
}

func (g *Gateway) disconnect(c *Client) {
	g.hub.RemoveClient(c)
	c.close()
	c.log.Info("connection closed")

	ctx, cancel := context.WithTimeout(context.WithoutCancel(g.ctx), disconnectTimeout)
	defer cancel()
	if err := g.ingest.DriverDisconnected(ctx, c.identity); err != nil {
		c.log.Error("driver offline handling failed", err)
	}
}
