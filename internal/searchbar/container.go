package searchbar

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Container holds the current search bar state and publishes every new
// snapshot to its subscribers.
type Container struct {
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	subscribers map[string]chan State
}

// NewContainer creates a container holding initial.
func NewContainer(initial State, logger *slog.Logger) *Container {
	return &Container{
		logger:      logger,
		state:       initial.Clone(),
		subscribers: make(map[string]chan State),
	}
}

// State returns the current snapshot.
func (c *Container) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state.Clone()
}

// Update applies transition to the current state and publishes the result.
func (c *Container) Update(transition func(State) State) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = transition(c.state.Clone())
	for id, ch := range c.subscribers {
		publish(ch, c.state.Clone())
		c.logger.Debug("search bar state published", "subscriber", id)
	}
	return c.state.Clone()
}

// Subscribe returns a channel receiving the current state followed by every
// new state. Slow subscribers only see the latest state. The returned function
// unsubscribes and closes the channel.
func (c *Container) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan State, 1)
	ch <- c.state.Clone()
	c.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()

			delete(c.subscribers, id)
			close(ch)
		})
	}
}

// Watch calls fn with the current state and then every published state
// until ctx is done.
func (c *Container) Watch(ctx context.Context, fn func(State)) {
	ch, unsubscribe := c.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-ch:
			if !ok {
				return
			}
			fn(s)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (c *Container) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.subscribers)
}

// publish replaces any unread state in ch with s.
func publish(ch chan State, s State) {
	select {
	case <-ch:
	default:
	}
	ch <- s
}
