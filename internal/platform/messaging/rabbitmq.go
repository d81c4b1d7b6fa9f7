// Package messaging publishes domain events to RabbitMQ.
package messaging

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQPublisher sends events to a durable queue via the default
// exchange. Publishing goes through a circuit breaker so an unreachable
// broker fails fast.
type RabbitMQPublisher struct {
	conn  *amqp.Connection
	ch    channel
	queue string
	cb    *gobreaker.CircuitBreaker
	now   func() time.Time
}

// Dial connects to url and declares queue.
func Dial(url, queue string, cb *gobreaker.CircuitBreaker) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	p := newPublisher(ch, queue, cb)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, queue string, cb *gobreaker.CircuitBreaker) *RabbitMQPublisher {
	return &RabbitMQPublisher{ch: ch, queue: queue, cb: cb, now: time.Now}
}

// Publish sends a persistent JSON message. The event type travels in the
// AMQP type property so consumers can route without parsing the body.
func (p *RabbitMQPublisher) Publish(ctx context.Context, eventType, messageID string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Type:         eventType,
		Timestamp:    p.now().UTC(),
		AppId:        "mcare",
		Body:         body,
	}
	publish := func() (interface{}, error) {
		return nil, p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg)
	}
	if p.cb == nil {
		_, err := publish()
		return err
	}
	_, err := p.cb.Execute(publish)
	return err
}

func (p *RabbitMQPublisher) Close() error {
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			return err
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
