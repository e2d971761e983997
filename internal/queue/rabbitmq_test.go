package queue

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeChannel struct {
	declared   string
	durable    bool
	prefetch   int
	published  []amqp.Publishing
	routingKey string
	autoAck    bool
	declareErr error
	closed     bool
}

func (c *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.declared, c.durable = name, durable
	return amqp.Queue{Name: name}, c.declareErr
}

func (c *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.prefetch = prefetchCount
	return nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	c.routingKey = key
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Consume(_, _ string, autoAck, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	c.autoAck = autoAck
	return make(chan amqp.Delivery), nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestClientDeclaresDurableQueue(t *testing.T) {
	ch := &fakeChannel{}
	c, err := NewClientWithChannel(ch, "awb.tasks")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch.declared != "awb.tasks" || !ch.durable || ch.prefetch != 1 {
		t.Fatalf("unexpected declaration %+v", ch)
	}

	if err := c.Publish(context.Background(), []byte(`{"kind":"create"}`)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if ch.routingKey != "awb.tasks" || ch.published[0].DeliveryMode != amqp.Persistent {
		t.Fatalf("expected persistent message routed to the queue")
	}

	if _, err := c.Consume("worker-1"); err != nil || ch.autoAck {
		t.Fatalf("expected manual-ack consumer, err=%v", err)
	}
	if err := c.Close(); err != nil || !ch.closed {
		t.Fatalf("expected channel closed, err=%v", err)
	}
}

func TestClientDeclareFailure(t *testing.T) {
	boom := errors.New("access refused")
	if _, err := NewClientWithChannel(&fakeChannel{declareErr: boom}, "awb.tasks"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped declare error, got %v", err)
	}
}
