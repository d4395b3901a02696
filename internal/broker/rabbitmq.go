// Package broker implements message-bus publishing over RabbitMQ.
package broker

import (
	"context"

	"github.com/go-faster/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher publishes outbox events to a durable topic exchange with
// publisher confirms enabled: Publish only returns nil once the broker has
// acknowledged the message, which is what allows the dispatcher to mark the
// event dispatched.
type Publisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	lg   *zap.Logger

	exchange string
}

// NewPublisher dials the broker, declares the exchange, and puts the channel
// into confirm mode.
func NewPublisher(url, exchange string, lg *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial broker")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}

	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // auto-delete
		false,    // internal
		false,    // no-wait
		nil,      // args
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.Wrap(err, "declare exchange")
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.Wrap(err, "enable publisher confirms")
	}

	return &Publisher{
		conn:     conn,
		ch:       ch,
		lg:       lg,
		exchange: exchange,
	}, nil
}

// Publish sends one persistent message with the given routing key (topic) and
// message id (key), then waits for the broker's confirmation.
func (p *Publisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	conf, err := p.ch.PublishWithDeferredConfirmWithContext(ctx,
		p.exchange, // exchange
		topic,      // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			MessageId:    key,
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		})
	if err != nil {
		return errors.Wrap(err, "publish")
	}

	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return errors.Wrap(err, "wait for confirm")
	}
	if !acked {
		return errors.New("broker nacked message")
	}

	p.lg.Debug("message confirmed",
		zap.String("message_id", key),
		zap.String("topic", topic),
	)
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return errors.Wrap(err, "close channel")
	}
	return p.conn.Close()
}
