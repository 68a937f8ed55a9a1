package logic

import "time"

// IsPress reports whether an edge observed at observedAt is a genuine press
// given the tick of the last accepted press. Ticks going backwards are
// treated as bounces.
func IsPress(observedAt, lastAcceptedAt, window time.Duration) bool {
	return observedAt-lastAcceptedAt >= window
}

// Debouncer holds the last accepted tick. It is owned by a single worker and
// is not safe for concurrent use.
type Debouncer struct {
	window   time.Duration
	last     time.Duration
	accepted bool
}

// NewDebouncer creates a debouncer with the given window. The first event it
// sees is always accepted.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Accept reports whether ev is a press and, if so, records it as the last
// accepted edge. Rejected events leave the state untouched.
func (d *Debouncer) Accept(ev PressEvent) bool {
	if d.accepted && !IsPress(ev.ObservedAt, d.last, d.window) {
		return false
	}
	d.last = ev.ObservedAt
	d.accepted = true
	return true
}

// LastAccepted returns the tick of the last accepted press and whether any
// press has been accepted yet.
func (d *Debouncer) LastAccepted() (time.Duration, bool) {
	return d.last, d.accepted
}

// Window returns the configured debounce window.
func (d *Debouncer) Window() time.Duration {
	return d.window
}
