// internal/events/kafka/publisher.go
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher writes JSON-encoded events to Kafka.
type Publisher struct {
	writer       *kafka.Writer
	defaultTopic string
}

// NewPublisher creates a Publisher. Events published without a topic go to defaultTopic.
func NewPublisher(brokers []string, defaultTopic string) *Publisher {
	return &Publisher{
		// Topic is left unset on the writer so each message can carry its own.
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		defaultTopic: defaultTopic,
	}
}

// keyed is implemented by events that carry a partition key.
type keyed interface {
	PartitionKey() string
}

// Publish marshals event and writes it to topic.
func (p *Publisher) Publish(ctx context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if topic == "" {
		topic = p.defaultTopic
	}

	msg := kafka.Message{Topic: topic, Value: data}
	if k, ok := event.(keyed); ok {
		msg.Key = []byte(k.PartitionKey())
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
