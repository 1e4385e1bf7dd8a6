package mq

import (
	"context"
	"fmt"

	"kidledger/internal/config"
)

// Publisher delivers one outbox message to the broker. Publish returns only
// after the broker accepted the message.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Close() error
}

// NewPublisher builds the publisher selected by broker.kind, or nil for "none".
func NewPublisher(cfg *config.BrokerConfig) (Publisher, error) {
	switch cfg.Kind {
	case config.BrokerKafka:
		p, err := NewKafkaPublisher(cfg.Kafka.Brokers)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.BrokerAMQP:
		p, err := NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.BrokerNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown broker kind %q", cfg.Kind)
	}
}
