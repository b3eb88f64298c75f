package bm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	messagebrokerdto "bus-tracker/internal/location-service/core/domain/message_broker_dto"
	"bus-tracker/internal/mylogger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange   string
	routingKey string
	msg        any
}

type fakeBroker struct {
	mu       sync.Mutex
	got      []published
	attempts int
	fail     bool
}

func (f *fakeBroker) PublishJSON(ctx context.Context, exchange, routingKey string, msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.fail {
		return errors.New("broker down")
	}
	f.got = append(f.got, published{exchange: exchange, routingKey: routingKey, msg: msg})
	return nil
}

func (f *fakeBroker) IsAlive() bool { return !f.fail }
func (f *fakeBroker) Close() error  { return nil }

func (f *fakeBroker) published() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.got...)
}

func TestPublisherMirrorsEnvelope(t *testing.T) {
	broker := &fakeBroker{}
	p := NewPublisher(broker, "location_topic", mylogger.Discard())
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	p.Mirror("location.update.t1", "busLocationUpdate", map[string]string{"tripId": "t1"})

	require.Eventually(t, func() bool { return len(broker.published()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-p.Done()

	got := broker.published()[0]
	assert.Equal(t, "location_topic", got.exchange)
	assert.Equal(t, "location.update.t1", got.routingKey)
	env, ok := got.msg.(messagebrokerdto.Envelope)
	require.True(t, ok)
	assert.Equal(t, "busLocationUpdate", env.Event)
	assert.True(t, env.OccurredAt.Equal(at))
}

func TestPublisherSurvivesBrokerFailure(t *testing.T) {
	broker := &fakeBroker{fail: true}
	p := NewPublisher(broker, "location_topic", mylogger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	p.Mirror("alert.emergency", "emergencyAlert", nil)
	require.Eventually(t, func() bool {
		broker.mu.Lock()
		defer broker.mu.Unlock()
		return broker.attempts == 1
	}, time.Second, 5*time.Millisecond)

	broker.mu.Lock()
	broker.fail = false
	broker.mu.Unlock()

	p.Mirror("driver.offline.d1", "driverOffline", nil)
	require.Eventually(t, func() bool { return len(broker.published()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "driver.offline.d1", broker.published()[0].routingKey)

	cancel()
	<-p.Done()
}

func TestMirrorNeverBlocks(t *testing.T) {
	p := NewPublisher(&fakeBroker{}, "location_topic", mylogger.Discard())

	done := make(chan struct{})
	go func() {
		for i := 0; i < mirrorQueueSize*2; i++ {
			p.Mirror("trip.status.t1", "tripStatusUpdate", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Mirror blocked with no consumer running")
	}
	assert.Len(t, p.queue, mirrorQueueSize)
}
