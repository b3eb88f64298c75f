package ws

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	websocketdto "bus-tracker/internal/location-service/core/domain/websocket_dto"
	"bus-tracker/internal/location-service/core/ports/driven"
	"bus-tracker/internal/mylogger"
)

// ClientList maps a connection id to its client.
type ClientList map[string]*Client

// Hub owns the channel-membership map: connection id -> set of channel
// names. Every fan-out reads it; nothing else tracks membership.
type Hub struct {
	sync.RWMutex
	clients      ClientList
	members      map[string]map[string]struct{}
	priorityWait time.Duration
	log          mylogger.Logger
}

var _ driven.ChannelPublisher = (*Hub)(nil)

func NewHub(log mylogger.Logger, priorityWait time.Duration) *Hub {
	return &Hub{
		clients:      make(ClientList),
		members:      make(map[string]map[string]struct{}),
		priorityWait: priorityWait,
		log:          log.Action("hub"),
	}
}

func (h *Hub) AddClient(c *Client) {
	h.Lock()
	defer h.Unlock()

	h.clients[c.id] = c
	h.members[c.id] = make(map[string]struct{})
}

// RemoveClient drops the connection and all of its memberships.
func (h *Hub) RemoveClient(c *Client) {
	h.Lock()
	defer h.Unlock()

	delete(h.clients, c.id)
	delete(h.members, c.id)
}

func (h *Hub) Join(connID, channel string) bool {
	h.Lock()
	defer h.Unlock()

	set, ok := h.members[connID]
	if !ok {
		return false
	}
	set[channel] = struct{}{}
	return true
}

func (h *Hub) Leave(connID, channel string) {
	h.Lock()
	defer h.Unlock()

	if set, ok := h.members[connID]; ok {
		delete(set, channel)
	}
}

// Channels lists the channels connID belongs to, sorted.
func (h *Hub) Channels(connID string) []string {
	h.RLock()
	defer h.RUnlock()

	out := make([]string, 0, len(h.members[connID]))
	for ch := range h.members[connID] {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

func (h *Hub) Len() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

// CloseAll ends every connection. Each session then runs its own
// disconnect path.
func (h *Hub) CloseAll() {
	h.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.RUnlock()

	for _, c := range clients {
		c.close()
	}
	if len(clients) > 0 {
		h.log.Info("closed streaming connections", "count", len(clients))
	}
}

func (h *Hub) Broadcast(event websocketdto.Event) {
	frame, ok := h.encode(event)
	if !ok {
		return
	}
	for _, c := range h.targets("") {
		c.enqueue(frame)
	}
}

func (h *Hub) SendToChannel(channel string, event websocketdto.Event) {
	frame, ok := h.encode(event)
	if !ok {
		return
	}
	for _, c := range h.targets(channel) {
		c.enqueue(frame)
	}
}

// SendPriority delivers on each member's priority queue, waiting up to
// priorityWait per member for room.
func (h *Hub) SendPriority(channel string, event websocketdto.Event) {
	frame, ok := h.encode(event)
	if !ok {
		return
	}
	for _, c := range h.targets(channel) {
		if !c.enqueuePriority(frame, h.priorityWait) {
			h.log.Warn("priority frame dropped", "conn_id", c.id, "user_id", c.identity.UserID, "type", event.Type)
		}
	}
}

// targets snapshots the recipients so no send happens under the lock. An
// empty channel selects every connection.
func (h *Hub) targets(channel string) []*Client {
	h.RLock()
	defer h.RUnlock()

	out := make([]*Client, 0, len(h.clients))
	for id, c := range h.clients {
		if channel != "" {
			if _, ok := h.members[id][channel]; !ok {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

func (h *Hub) encode(event websocketdto.Event) ([]byte, bool) {
	frame, err := json.Marshal(event)
	if err != nil {
		h.log.Error("cannot encode frame", err, "type", event.Type)
		return nil, false
	}
	return frame, true
}
