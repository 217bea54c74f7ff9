package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

type recordingAcker struct {
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *recordingAcker) Ack(tag uint64, _ bool) error {
	a.acked = append(a.acked, tag)
	return nil
}

func (a *recordingAcker) Nack(tag uint64, _ bool, requeue bool) error {
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *recordingAcker) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func TestSettleDeliveryAcksRequeuesAndDrops(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	acker := &recordingAcker{}
	var handled []string
	handler := func(_ context.Context, proposalID string) error {
		handled = append(handled, proposalID)
		if proposalID == "proposal-bad" {
			return errors.New("chain unavailable")
		}
		return nil
	}

	settleDelivery(context.Background(), quiet, handler, amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Body: []byte("proposal-ok\n")})
	settleDelivery(context.Background(), quiet, handler, amqp.Delivery{Acknowledger: acker, DeliveryTag: 2, Body: []byte("proposal-bad")})
	settleDelivery(context.Background(), quiet, handler, amqp.Delivery{Acknowledger: acker, DeliveryTag: 3, Body: []byte("   ")})

	if len(handled) != 2 || handled[0] != "proposal-ok" || handled[1] != "proposal-bad" {
		t.Fatalf("unexpected handled ids: %v", handled)
	}
	if len(acker.acked) != 2 || acker.acked[0] != 1 || acker.acked[1] != 3 {
		t.Fatalf("unexpected acks: %v", acker.acked)
	}
	if len(acker.nacked) != 1 || acker.nacked[0] != 2 || !acker.requeue[0] {
		t.Fatalf("expected delivery 2 to be requeued, got %v %v", acker.nacked, acker.requeue)
	}
}

func TestRabbitMQQueueRequiresURL(t *testing.T) {
	if _, err := NewRabbitMQQueue(RabbitMQConfig{}); err == nil {
		t.Fatal("expected error for empty url")
	}
	var q *RabbitMQQueue
	if err := q.Publish(context.Background(), "proposal-1"); err == nil {
		t.Fatal("expected error publishing on nil queue")
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close nil queue: %v", err)
	}
}
