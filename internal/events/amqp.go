package events

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPBridge forwards bus events to a topic exchange, routed by event type.
type AMQPBridge struct {
	conn     *amqp.Connection
	ch       amqpPublisher
	exchange string
	logger   *zerolog.Logger
}

// DialAMQP connects and declares a durable topic exchange.
func DialAMQP(url, exchange string, logger *zerolog.Logger) (*AMQPBridge, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	return &AMQPBridge{conn: conn, ch: ch, exchange: exchange, logger: logger}, nil
}

func newAMQPBridge(ch amqpPublisher, exchange string, logger *zerolog.Logger) *AMQPBridge {
	return &AMQPBridge{ch: ch, exchange: exchange, logger: logger}
}

// Attach subscribes the bridge to the given event types on bus.
func (a *AMQPBridge) Attach(bus *EventBus, eventTypes ...string) {
	for _, t := range eventTypes {
		bus.Subscribe(t, a.handle)
	}
}

func (a *AMQPBridge) handle(event *Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err := a.ch.PublishWithContext(ctx, a.exchange, event.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.CreatedAt,
		Type:         event.Type,
		Body:         event.Payload,
	})
	if err != nil {
		a.logger.Error().Err(err).Str("event_type", event.Type).Msg("amqp publish failed")
		return fmt.Errorf("amqp publish %s: %w", event.Type, err)
	}
	return nil
}

func (a *AMQPBridge) Close() error {
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
