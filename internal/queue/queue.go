// Package queue provides the bounded press-event channel between the GPIO
// edge handler and the dispatch worker.
package queue

import (
	"context"
	"sync/atomic"

	"github.com/sweeney/press-notifier/internal/logic"
)

// DefaultCapacity matches the depth the device has always run with.
const DefaultCapacity = 20

// MinCapacity is the smallest capacity that survives a bounce train.
const MinCapacity = 10

// Channel is a bounded single-producer, single-consumer FIFO of press events.
//
// The producer side (TryPush) never blocks and never takes a lock. The
// consumer side may push a previously popped event back to the head with
// PushFront; that slot lives outside the bounded buffer so a retry can never
// be lost to a full channel. Pop and PushFront must only be called from the
// consumer goroutine.
type Channel struct {
	events chan logic.PressEvent

	// front is a stack of re-inserted events, owned by the consumer.
	front    []logic.PressEvent
	frontLen atomic.Int32
}

// New creates a channel with the given capacity. Capacities below
// MinCapacity are raised to MinCapacity.
func New(capacity int) *Channel {
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	return &Channel{
		events: make(chan logic.PressEvent, capacity),
		front:  make([]logic.PressEvent, 0, 1),
	}
}

// TryPush enqueues ev at the tail without blocking.
// It returns false and drops ev when the channel is full.
func (c *Channel) TryPush(ev logic.PressEvent) bool {
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

// PushFront re-inserts ev at the head so it is popped before anything else.
// The most recent re-insertion is popped first.
func (c *Channel) PushFront(ev logic.PressEvent) {
	c.front = append(c.front, ev)
	c.frontLen.Add(1)
}

// Pop removes and returns the head event, blocking while the channel is
// empty. It returns ctx.Err() if ctx is done first.
func (c *Channel) Pop(ctx context.Context) (logic.PressEvent, error) {
	if n := len(c.front); n > 0 {
		ev := c.front[n-1]
		c.front = c.front[:n-1]
		c.frontLen.Add(-1)
		return ev, nil
	}

	select {
	case ev := <-c.events:
		return ev, nil
	case <-ctx.Done():
		return logic.PressEvent{}, ctx.Err()
	}
}

// Len returns the number of queued events, including re-inserted ones.
func (c *Channel) Len() int {
	return len(c.events) + int(c.frontLen.Load())
}

// Cap returns the bounded capacity available to the producer.
func (c *Channel) Cap() int {
	return cap(c.events)
}
