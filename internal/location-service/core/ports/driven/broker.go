package driven

import "context"

// IEventBroker is the message broker behind the event mirror.
type IEventBroker interface {
	// PublishJSON publishes msg as JSON to exchange with routingKey.
	PublishJSON(ctx context.Context, exchange, routingKey string, msg any) error
	IsAlive() bool
	Close() error
}

// EventMirror republishes fan-out events for consumers outside this
// process. Implementations must not block the caller for long.
type EventMirror interface {
	Mirror(routingKey, event string, payload any)
}
