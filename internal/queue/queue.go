// Package queue defines the message transport filter change notifications
// travel on. Kafka and in-process implementations live in subpackages.
package queue

import (
	"context"
)

// Message is one message on the queue.
type Message struct {
	// Key orders messages: messages with the same key are consumed in the
	// order they were published.
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Producer publishes messages. Implementations must be safe for concurrent use.
type Producer interface {
	Publish(ctx context.Context, msg *Message) error
	Close() error
}

// MessageHandler processes one consumed message.
type MessageHandler func(ctx context.Context, msg *Message) error

// Consumer hands consumed messages to a handler.
type Consumer interface {
	// Start blocks, calling handler for each message, until ctx is canceled
	// or the consumer is closed.
	Start(ctx context.Context, handler MessageHandler) error
	Close() error
}
