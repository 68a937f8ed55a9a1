// Package signals holds the two cross-task primitives besides the event
// channel: the connectivity gate and the response latch.
package signals

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sweeney/press-notifier/internal/logic"
)

// Gate publishes the connectivity state decided by the network bootstrap.
// It is written once; readers either poll State or block in Wait.
type Gate struct {
	state atomic.Value // logic.ConnectivityState
	once  sync.Once
	done  chan struct{}
}

// NewGate returns a gate in the Disconnected state.
func NewGate() *Gate {
	g := &Gate{done: make(chan struct{})}
	g.state.Store(logic.Disconnected)
	return g
}

// Set records the bootstrap outcome. Only the first terminal state
// (Connected or FailedPermanently) is kept; later calls and Disconnected
// are ignored. It reports whether the state was recorded.
func (g *Gate) Set(s logic.ConnectivityState) bool {
	if s == logic.Disconnected {
		return false
	}
	set := false
	g.once.Do(func() {
		g.state.Store(s)
		close(g.done)
		set = true
	})
	return set
}

// State returns the current connectivity state without blocking.
func (g *Gate) State() logic.ConnectivityState {
	return g.state.Load().(logic.ConnectivityState)
}

// Done is closed once the bootstrap outcome is known.
func (g *Gate) Done() <-chan struct{} {
	return g.done
}

// Wait blocks until the bootstrap outcome is known or ctx is done.
func (g *Gate) Wait(ctx context.Context) (logic.ConnectivityState, error) {
	select {
	case <-g.done:
		return g.State(), nil
	case <-ctx.Done():
		return g.State(), ctx.Err()
	}
}

// Latch is a one-shot, edge-triggered signal. Any number of Set calls before
// the consumer wakes collapse into a single wake.
type Latch struct {
	ch chan struct{}
}

// NewLatch returns a cleared latch.
func NewLatch() *Latch {
	return &Latch{ch: make(chan struct{}, 1)}
}

// Set raises the latch. It never blocks.
func (l *Latch) Set() {
	select {
	case l.ch <- struct{}{}:
	default:
	}
}

// IsSet reports whether the latch is raised and not yet consumed.
func (l *Latch) IsSet() bool {
	return len(l.ch) == 1
}

// Wait blocks until the latch is raised, then clears it.
func (l *Latch) Wait(ctx context.Context) error {
	select {
	case <-l.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
