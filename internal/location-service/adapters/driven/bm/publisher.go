package bm

import (
	"context"
	"sync"
	"time"

	messagebrokerdto "bus-tracker/internal/location-service/core/domain/message_broker_dto"
	"bus-tracker/internal/location-service/core/ports/driven"
	"bus-tracker/internal/mylogger"
)

const mirrorQueueSize = 256

type mirrored struct {
	routingKey string
	envelope   messagebrokerdto.Envelope
}

// Publisher mirrors fan-out events to the broker from a single background
// goroutine. Mirror never blocks: when the queue is full the event is
// dropped and logged.
type Publisher struct {
	log      mylogger.Logger
	broker   driven.IEventBroker
	exchange string
	queue    chan mirrored
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
}

var _ driven.EventMirror = (*Publisher)(nil)

func NewPublisher(broker driven.IEventBroker, exchange string, log mylogger.Logger) *Publisher {
	return &Publisher{
		log:      log.Action("mirror"),
		broker:   broker,
		exchange: exchange,
		queue:    make(chan mirrored, mirrorQueueSize),
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

func (p *Publisher) Mirror(routingKey, event string, payload any) {
	msg := mirrored{
		routingKey: routingKey,
		envelope: messagebrokerdto.Envelope{
			Event:      event,
			OccurredAt: p.now().UTC(),
			Payload:    payload,
		},
	}
	select {
	case p.queue <- msg:
	default:
		p.log.Warn("mirror queue full, dropping event", "routing_key", routingKey)
	}
}

// Run drains the queue until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.queue:
			if err := p.broker.PublishJSON(ctx, p.exchange, msg.routingKey, msg.envelope); err != nil {
				p.log.Error("failed to publish message", err, "routing_key", msg.routingKey)
				continue
			}
			p.log.Debug("message published", "routing_key", msg.routingKey)
		}
	}
}

// Done is closed once Run returns.
func (p *Publisher) Done() <-chan struct{} {
	return p.done
}
