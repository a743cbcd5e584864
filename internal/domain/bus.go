package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro). The key carries the
// user id so downstream consumers can partition by user.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, key string, payload []byte) error

	// Subscribe registers a handler for a topic. Every subscriber
	// receives every message (broadcast).
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// QueueSubscribe registers a handler as a member of a named
	// consumer group. Each message on the topic is delivered to
	// exactly one member of the group, so a pool of workers can share
	// a topic without duplicating work.
	QueueSubscribe(ctx context.Context, topic string, group string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string `json:"id"`
	Topic     string `json:"topic"`
	Key       string `json:"key"`
	Payload   []byte `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (Community tier)
	ChannelBufferSize int

	// NATS settings (Pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Standard topic names for the scoring pipeline.
const (
	TopicIncoming  = "incoming-transactions"
	TopicProcessed = "processed-transactions"
	TopicAlerts    = "fraud-alerts"
	TopicHistory   = "transaction-history"
)
