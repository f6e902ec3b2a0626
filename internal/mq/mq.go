// Package mq carries post events over a message broker.
package mq

import (
	"context"
	"fmt"
	"strings"

	"github.com/inkwell-blog/apiserver/config"
)

// Message is a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to nack it for redelivery.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// Open connects the backend named by cfg.Driver. An empty driver yields
// a nil backend and no error: events are disabled.
func Open(ctx context.Context, cfg config.MQConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "none":
		return nil, nil
	case "rabbitmq", "amqp":
		client, err := NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "pubsub":
		client, err := NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown mq driver %q", cfg.Driver)
	}
}
