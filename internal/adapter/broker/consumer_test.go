package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/correlator/internal/core/service"
)

type settlement struct {
	tag     uint64
	action  string
	requeue bool
}

// fakeAcknowledger records how deliveries were settled.
type fakeAcknowledger struct {
	mu      sync.Mutex
	settled []settlement
}

func (f *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled = append(f.settled, settlement{tag: tag, action: "ack"})
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled = append(f.settled, settlement{tag: tag, action: "nack", requeue: requeue})
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled = append(f.settled, settlement{tag: tag, action: "reject", requeue: requeue})
	return nil
}

type stubHandler struct {
	err error
}

func (s stubHandler) Queue() string { return "test.queue" }

func (s stubHandler) Process(context.Context, []byte) error { return s.err }

func deliver(t *testing.T, handlerErr error) (settlement, Stats) {
	t.Helper()
	ack := &fakeAcknowledger{}
	c := NewConsumer(nil, stubHandler{err: handlerErr}, nil, ConsumerConfig{}, zap.NewNop())

	c.handleDelivery(context.Background(), amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  7,
		Body:         []byte(`{}`),
	})

	require.Len(t, ack.settled, 1)
	return ack.settled[0], c.Stats()
}

func TestHandleDelivery_AckOnSuccess(t *testing.T) {
	s, stats := deliver(t, nil)

	assert.Equal(t, settlement{tag: 7, action: "ack"}, s)
	assert.Equal(t, uint64(1), stats.Processed)
	assert.Equal(t, uint64(0), stats.Failed)
}

func TestHandleDelivery_RejectMalformed(t *testing.T) {
	s, stats := deliver(t, fmt.Errorf("%w: bad json", ErrMalformedMessage))

	assert.Equal(t, "reject", s.action)
	assert.False(t, s.requeue)
	assert.Equal(t, uint64(1), stats.Failed)
}

func TestHandleDelivery_RequeueTransient(t *testing.T) {
	s, stats := deliver(t, fmt.Errorf("%w: buffer products: connection refused", service.ErrTransientIO))

	assert.Equal(t, "nack", s.action)
	assert.True(t, s.requeue)
	assert.Equal(t, uint64(1), stats.Failed)
}

func TestHandleDelivery_RejectUnknownError(t *testing.T) {
	s, _ := deliver(t, errors.New("boom"))

	assert.Equal(t, "reject", s.action)
	assert.False(t, s.requeue)
}

func TestNewConsumer_Defaults(t *testing.T) {
	c := NewConsumer(nil, stubHandler{}, nil, ConsumerConfig{}, nil)

	assert.Equal(t, DefaultPrefetch, c.cfg.Prefetch)
	assert.Equal(t, defaultReconnectDelay, c.cfg.ReconnectDelay)
	assert.Equal(t, "test.queue", c.Stats().Queue)
}

func TestGate_PauseResume(t *testing.T) {
	g := NewGate()
	require.NoError(t, g.Wait(context.Background()))

	g.Pause()
	assert.True(t, g.Paused())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- g.Wait(context.Background()) }()

	g.Resume()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by Resume")
	}
	assert.False(t, g.Paused())
}

func TestGroup_PauseAndStats(t *testing.T) {
	gate := NewGate()
	c1 := NewConsumer(nil, stubHandler{}, gate, ConsumerConfig{}, nil)
	c2 := NewConsumer(nil, stubHandler{}, gate, ConsumerConfig{}, nil)
	g := NewGroup(nil, gate, c1, c2)

	g.Pause()
	assert.True(t, g.Paused())
	assert.True(t, gate.Paused())
	g.Resume()
	assert.False(t, g.Paused())

	assert.Len(t, g.Stats(), 2)
	assert.False(t, g.Connected())
	assert.NoError(t, g.Close())
}
