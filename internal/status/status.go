// Package status provides a thread-safe status tracker for the press-notifier
// daemon. It is read by the HTTP handlers and the MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/press-notifier/internal/logic"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Button is one configured input as shown on the status page.
type Button struct {
	Pin  int
	Name string
}

// Config contains daemon configuration for display.
type Config struct {
	DebounceMs        int64
	BlinkMs           int64
	DispatchBackoffMs int64
	PollBackoffMs     int64
	HeartbeatMs       int64
	QueueCapacity     int
	MaxAttempts       int
	Buttons           []Button
	LEDPin            int
	Broker            string
	HTTPAddr          string
}

// Indicator mirrors the status LED.
type Indicator struct {
	Phase string
	Alert bool
	Busy  bool
	LED   bool
}

// Counts are running totals since start.
type Counts struct {
	Captured     uint64 // edges enqueued by the GPIO handler
	QueueDropped uint64 // edges lost to a full channel
	Accepted     uint64
	Rejected     uint64 // debounced
	Unknown      uint64
	Dispatched   uint64
	Retries      uint64
	Dropped      uint64 // presses given up on
	Responses    uint64 // positive replies seen by the poller
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Connectivity  logic.ConnectivityState
	Indicator     Indicator
	DispatchState logic.WorkerState
	PollState     logic.WorkerState
	Cursor        int64
	Queued        int
	Counts        Counts
	LastAction    string
	LastActionAt  time.Time
	LastResponse  time.Time
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether outbound actions can be sent.
func (s Snapshot) Ready() bool {
	return s.Connectivity == logic.Connected
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Connectivity:  logic.Disconnected,
			DispatchState: logic.StateIdle,
			PollState:     logic.StateIdle,
			StartTime:     startTime,
			Config:        cfg,
		},
		now: time.Now,
	}
}

// SetConnectivity records the bootstrap outcome.
func (t *Tracker) SetConnectivity(s logic.ConnectivityState) {
	t.mu.Lock()
	t.snap.Connectivity = s
	t.mu.Unlock()
}

// SetWorkers records the named state of both workers.
func (t *Tracker) SetWorkers(dispatch, poll logic.WorkerState) {
	t.mu.Lock()
	t.snap.DispatchState = dispatch
	t.snap.PollState = poll
	t.mu.Unlock()
}

// SetIndicator records the status LED state.
func (t *Tracker) SetIndicator(ind Indicator) {
	t.mu.Lock()
	t.snap.Indicator = ind
	t.mu.Unlock()
}

// SetCursor records the long-poll cursor.
func (t *Tracker) SetCursor(offset int64) {
	t.mu.Lock()
	t.snap.Cursor = offset
	t.mu.Unlock()
}

// SetCapture records the edge handler totals and the current channel depth.
func (t *Tracker) SetCapture(captured, dropped uint64, queued int) {
	t.mu.Lock()
	t.snap.Counts.Captured = captured
	t.snap.Counts.QueueDropped = dropped
	t.snap.Queued = queued
	t.mu.Unlock()
}

// Outcome kinds understood by RecordOutcome.
const (
	OutcomeRejected   = "REJECTED"
	OutcomeUnknown    = "UNKNOWN_SOURCE"
	OutcomeDispatched = "DISPATCHED"
	OutcomeRetry      = "RETRY"
	OutcomeDropped    = "DROPPED"
)

// RecordOutcome counts one dispatch worker decision. Only the first attempt
// of a press counts as accepted.
func (t *Tracker) RecordOutcome(kind, action string, attempt int, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := &t.snap.Counts
	if attempt == 1 || kind == OutcomeUnknown {
		c.Accepted++
	}
	switch kind {
	case OutcomeRejected:
		c.Rejected++
	case OutcomeUnknown:
		c.Unknown++
	case OutcomeDispatched:
		c.Dispatched++
		t.snap.LastAction = action
		t.snap.LastActionAt = at
	case OutcomeRetry:
		c.Retries++
	case OutcomeDropped:
		c.Dropped++
	}
}

// RecordResponse counts a positive reply.
func (t *Tracker) RecordResponse(at time.Time) {
	t.mu.Lock()
	t.snap.Counts.Responses++
	t.snap.LastResponse = at
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Config.Buttons = append([]Button(nil), t.snap.Config.Buttons...)
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
