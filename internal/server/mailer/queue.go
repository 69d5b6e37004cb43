package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// Publisher is the part of *amqp.Channel the queue dispatcher needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// QueueDispatcher hands messages to the mailer worker through a durable
// RabbitMQ queue.
type QueueDispatcher struct {
	ch    Publisher
	queue string
}

func NewQueueDispatcher(ch Publisher, queue string) *QueueDispatcher {
	return &QueueDispatcher{ch: ch, queue: queue}
}

func (d *QueueDispatcher) Send(ctx context.Context, to, subject, htmlBody string) error {
	m := Message{To: to, Subject: subject, HTML: htmlBody}
	if err := m.validate(); err != nil {
		return err
	}

	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal mail message: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = d.ch.PublishWithContext(publishCtx, "", d.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish mail message: %w", err)
	}
	return nil
}

// Broker owns the AMQP connection and channel shared by the queue dispatcher
// and the worker.
type Broker struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
}

// DialBroker connects to RabbitMQ and declares the durable mail queue.
func DialBroker(url, queue string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare a queue: %w", err)
	}

	return &Broker{conn: conn, channel: ch, queue: q}, nil
}

func (b *Broker) Dispatcher() *QueueDispatcher {
	return NewQueueDispatcher(b.channel, b.queue.Name)
}

// Consume registers a manual-ack consumer on the mail queue.
func (b *Broker) Consume() (<-chan amqp.Delivery, error) {
	if err := b.channel.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}
	msgs, err := b.channel.Consume(b.queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register a consumer: %w", err)
	}
	return msgs, nil
}

func (b *Broker) Close() error {
	var firstErr error
	if b.channel != nil {
		if err := b.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
