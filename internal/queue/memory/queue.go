// Package memory provides an in-process queue carrying filter change
// notifications when no Kafka cluster is configured.
package memory

import (
	"context"
	"errors"
	"sync"

	"alertscope/internal/queue"
)

// ErrQueueClosed is returned by Publish once the queue is closed.
var ErrQueueClosed = errors.New("filter change queue is closed")

// Queue implements both queue.Producer and queue.Consumer over a buffered
// channel. It is safe for concurrent use.
type Queue struct {
	messages  chan *queue.Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue creates a queue holding up to bufferSize unconsumed messages.
func NewQueue(bufferSize int) *Queue {
	return &Queue{
		messages: make(chan *queue.Message, bufferSize),
		done:     make(chan struct{}),
	}
}

// Publish enqueues msg, blocking while the buffer is full.
func (q *Queue) Publish(ctx context.Context, msg *queue.Message) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.messages <- msg:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start hands every message to handler until ctx is canceled or the queue is
// closed. Handler errors do not stop consumption.
func (q *Queue) Start(ctx context.Context, handler queue.MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			return nil
		case msg := <-q.messages:
			_ = handler(ctx, msg)
		}
	}
}

// Close stops publishers and consumers. Unconsumed messages are dropped.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

// Len returns the number of unconsumed messages.
func (q *Queue) Len() int {
	return len(q.messages)
}
