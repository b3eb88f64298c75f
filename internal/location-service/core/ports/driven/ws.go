package driven

import websocketdto "bus-tracker/internal/location-service/core/domain/websocket_dto"

// ChannelPublisher delivers events to connected clients.
type ChannelPublisher interface {
	// Broadcast sends to every connection.
	Broadcast(event websocketdto.Event)
	// SendToChannel sends to every connection joined to channel.
	SendToChannel(channel string, event websocketdto.Event)
	// SendPriority sends to channel members on the priority path, which
	// waits briefly for queue space instead of dropping.
	SendPriority(channel string, event websocketdto.Event)
}
