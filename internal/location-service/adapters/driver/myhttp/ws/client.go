package ws

import (
	"encoding/json"
	"sync"
	"time"

	"bus-tracker/internal/config"
	"bus-tracker/internal/location-service/core/domain/model"
	websocketdto "bus-tracker/internal/location-service/core/domain/websocket_dto"
	"bus-tracker/internal/mylogger"

	"github.com/gorilla/websocket"
)

type Client struct {
	id       string
	conn     *websocket.Conn
	identity model.Identity
	cfg      *config.WebSocketconfig
	log      mylogger.Logger

	egress   chan []byte
	priority chan []byte
	done     chan struct{}
	once     sync.Once
}

func NewClient(id string, conn *websocket.Conn, identity model.Identity, cfg *config.WebSocketconfig, log mylogger.Logger) *Client {
	return &Client{
		id:       id,
		conn:     conn,
		identity: identity,
		cfg:      cfg,
		log:      log.With("conn_id", id, "user_id", identity.UserID, "role", string(identity.Role)),
		egress:   make(chan []byte, cfg.SendBuffer),
		priority: make(chan []byte, cfg.SendBuffer),
		done:     make(chan struct{}),
	}
}

func (c *Client) ID() string               { return c.id }
func (c *Client) Identity() model.Identity { return c.identity }

// enqueue never blocks; a slow client misses frames.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.egress <- frame:
		return true
	default:
		c.log.Debug("egress full, frame dropped")
		return false
	}
}

func (c *Client) enqueuePriority(frame []byte, wait time.Duration) bool {
	select {
	case <-c.done:
		return false
	case c.priority <- frame:
		return true
	default:
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-c.done:
		return false
	case c.priority <- frame:
		return true
	case <-t.C:
		return false
	}
}

// send queues an event for this connection only.
func (c *Client) send(eventType string, payload any) {
	event, err := websocketdto.NewEvent(eventType, payload)
	if err != nil {
		c.log.Error("cannot encode event", err, "type", eventType)
		return
	}
	frame, err := json.Marshal(event)
	if err != nil {
		c.log.Error("cannot encode frame", err, "type", eventType)
		return
	}
	c.enqueue(frame)
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// ReadMessages reads frames until the connection fails, passing each to
// dispatch. The pong handler keeps extending the read deadline.
func (c *Client) ReadMessages(dispatch func(c *Client, e websocketdto.Event)) {
	defer c.close()

	c.conn.SetReadLimit(c.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("connection closed unexpectedly", "error", err.Error())
			}
			return
		}

		var e websocketdto.Event
		if err := json.Unmarshal(payload, &e); err != nil || e.Type == "" {
			c.send(websocketdto.EventError, websocketdto.ErrorMessage{Message: "invalid message format"})
			continue
		}
		dispatch(c, e)
	}
}

// WriteMessages drains the queues, priority first, and pings on every
// PingInterval. It closes the connection on exit.
func (c *Client) WriteMessages() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.priority:
			if !c.write(websocket.TextMessage, frame) {
				return
			}
			continue
		default:
		}

		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteWait))
			return
		case frame := <-c.priority:
			if !c.write(websocket.TextMessage, frame) {
				return
			}
		case frame := <-c.egress:
			if !c.write(websocket.TextMessage, frame) {
				return
			}
		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) write(messageType int, data []byte) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		c.log.Debug("write failed", "error", err.Error())
		c.close()
		return false
	}
	return true
}
