package bm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"bus-tracker/internal/config"
	"bus-tracker/internal/location-service/core/ports/driven"
	"bus-tracker/internal/mylogger"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	reconnInterval = 5 * time.Second
	publishTimeout = 3 * time.Second
)

var errBrokerClosed = errors.New("amqp closed")

type RabbitMQ struct {
	ctx          context.Context
	cfg          *config.RabbitMqconfig
	log          mylogger.Logger
	conn         *amqp.Connection
	ch           *amqp.Channel
	reconnecting bool
	mu           sync.Mutex
}

var _ driven.IEventBroker = (*RabbitMQ)(nil)

// New dials the broker and declares the configured topic exchange. The
// connection is re-established in the background after it drops.
func New(ctx context.Context, cfg *config.RabbitMqconfig, log mylogger.Logger) (*RabbitMQ, error) {
	r := &RabbitMQ{
		ctx: ctx,
		cfg: cfg,
		log: log,
	}
	if err := r.connect(); err != nil {
		return nil, fmt.Errorf("rabbit connect: %w", err)
	}
	return r, nil
}

func (r *RabbitMQ) PublishJSON(ctx context.Context, exchange, routingKey string, msg any) error {
	if !r.IsAlive() {
		go r.reconnect(r.ctx)
		return errBrokerClosed
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	pubctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	r.mu.Lock()
	ch := r.ch
	r.mu.Unlock()

	return ch.PublishWithContext(pubctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (r *RabbitMQ) IsAlive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil || r.conn.IsClosed() {
		return false
	}
	if r.ch == nil || r.ch.IsClosed() {
		return false
	}
	return true
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch != nil && !r.ch.IsClosed() {
		if err := r.ch.Close(); err != nil {
			return fmt.Errorf("close channel: %w", err)
		}
	}
	if r.conn != nil && !r.conn.IsClosed() {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("close connection: %w", err)
		}
	}
	return nil
}

func (r *RabbitMQ) connect() error {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		r.cfg.User, r.cfg.Password, r.cfg.Host, r.cfg.Port, r.cfg.VHost,
	)
	conn, err := amqp.Dial(url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := ch.ExchangeDeclare(r.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	r.mu.Lock()
	r.conn = conn
	r.ch = ch
	r.mu.Unlock()
	return nil
}

func (r *RabbitMQ) reconnect(ctx context.Context) {
	r.mu.Lock()
	if r.reconnecting {
		r.mu.Unlock()
		return
	}
	r.reconnecting = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.reconnecting = false
		r.mu.Unlock()
	}()

	t := time.NewTicker(reconnInterval)
	defer t.Stop()
	l := r.log.Action("mb_reconnecting")

	for {
		select {
		case <-t.C:
			if err := r.connect(); err != nil {
				l.Warn("reconnect failed", "error", err.Error())
				continue
			}
			l.Action("mb_reconnection_completed").Info("reconnected")
			return
		case <-ctx.Done():
			return
		}
	}
}
