package gpio

import (
	"sync/atomic"
	"time"

	"github.com/sweeney/press-notifier/internal/logic"
)

// Enqueuer accepts press events without blocking.
type Enqueuer interface {
	TryPush(ev logic.PressEvent) bool
}

// Capture is the edge handler body. It runs in the edge-event context, so it
// only builds the event and attempts a non-blocking enqueue. A full queue
// drops the new event.
type Capture struct {
	q        Enqueuer
	captured atomic.Uint64
	dropped  atomic.Uint64
}

// NewCapture creates a capture feeding q.
func NewCapture(q Enqueuer) *Capture {
	return &Capture{q: q}
}

// Edge records a rising edge on source observed at the monotonic tick at.
func (c *Capture) Edge(source logic.SourceID, at time.Duration) {
	c.captured.Add(1)
	if !c.q.TryPush(logic.PressEvent{Source: source, ObservedAt: at}) {
		c.dropped.Add(1)
	}
}

// Captured returns the number of edges seen, including dropped ones.
func (c *Capture) Captured() uint64 {
	return c.captured.Load()
}

// Dropped returns the number of edges lost to a full queue.
func (c *Capture) Dropped() uint64 {
	return c.dropped.Load()
}
