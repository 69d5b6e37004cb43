package mailer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dmitrijs2005/bantx/internal/logging"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Worker drains queued messages into a Dispatcher. A message is acked once
// sent and requeued when delivery fails. Messages that cannot be decoded or
// that the dispatcher rejects as invalid are dropped.
type Worker struct {
	out Dispatcher
	log logging.Logger
}

func NewWorker(out Dispatcher, l logging.Logger) *Worker {
	return &Worker{out: out, log: l}
}

// Run processes deliveries until ctx is done or the channel closes.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Info(ctx, "mail worker stopping")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				w.log.Warn(ctx, "mail delivery channel closed")
				return nil
			}
			w.handle(ctx, d)
		}
	}
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	var m Message
	if err := json.Unmarshal(d.Body, &m); err != nil || m.validate() != nil {
		w.log.Error(ctx, "dropping malformed mail message", "delivery_tag", d.DeliveryTag, "error", err)
		if err := d.Nack(false, false); err != nil {
			w.log.Error(ctx, "nack failed", "error", err)
		}
		return
	}

	if err := w.out.Send(ctx, m.To, m.Subject, m.HTML); err != nil {
		requeue := !errors.Is(err, ErrInvalidMessage)
		if requeue {
			w.log.Error(ctx, "mail delivery failed, requeueing", "to", m.To, "error", err)
		} else {
			w.log.Error(ctx, "dropping undeliverable mail message", "to", m.To, "error", err)
		}
		if err := d.Nack(false, requeue); err != nil {
			w.log.Error(ctx, "nack failed", "error", err)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		w.log.Error(ctx, "ack failed", "error", err)
		return
	}
	w.log.Info(ctx, "mail delivered", "to", m.To, "subject", m.Subject)
}
