package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	websocketdto "bus-tracker/internal/location-service/core/domain/websocket_dto"

	"github.com/gorilla/websocket"
)

type WebSocketClient struct {
	conn   *websocket.Conn
	ctx    context.Context
	logger *Logger
	mu     sync.Mutex
}

func NewWebSocketClient(ctx context.Context, logger *Logger) *WebSocketClient {
	return &WebSocketClient{
		ctx:    ctx,
		logger: logger,
	}
}

// Connect dials url presenting token in the Authorization header.
func (w *WebSocketClient) Connect(url, token string) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: HandshakeTimeout,
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := dialer.DialContext(w.ctx, url, header)
	if err != nil {
		return fmt.Errorf("connecting to websocket: %w", err)
	}

	w.conn = conn
	w.logger.WebSocket("connected to %s", url)
	return nil
}

func (w *WebSocketClient) Close() error {
	if w.conn == nil {
		return nil
	}
	w.mu.Lock()
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "simulation finished"),
		time.Now().Add(time.Second))
	w.mu.Unlock()
	return w.conn.Close()
}

func (w *WebSocketClient) SendEvent(eventType string, payload interface{}) error {
	event, err := websocketdto.NewEvent(eventType, payload)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

func (w *WebSocketClient) ReadEvents(handler func(e websocketdto.Event)) error {
	for {
		_, payload, err := w.conn.ReadMessage()
		if err != nil {
			if w.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading message: %w", err)
		}

		var e websocketdto.Event
		if err := json.Unmarshal(payload, &e); err != nil {
			w.logger.Warn("undecodable frame: %s", string(payload))
			continue
		}
		handler(e)
	}
}
