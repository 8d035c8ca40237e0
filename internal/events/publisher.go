// internal/events/publisher.go
package events

import "context"

// DefaultTopic receives journal events when KAFKA_TOPIC is unset.
const DefaultTopic = "ledger.journal"

// Publisher delivers analytics events to a downstream bus. Delivery is
// best-effort; the ledger never depends on it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// NoopPublisher discards every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }
