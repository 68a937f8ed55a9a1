// Package logic contains the pure decision rules of the press notifier.
// This package has NO external dependencies (no GPIO, HTTP, MQTT, OS, or time.Sleep).
// Time is always injectable: ticks and time.Time values are passed in by the caller.
package logic

import "time"

// SourceID identifies a physical button. It is the GPIO line offset the
// button is wired to, which is stable for the life of the process.
type SourceID int

// PressEvent is a single rising edge captured from a button line.
type PressEvent struct {
	Source SourceID
	// ObservedAt is a monotonic tick (kernel CLOCK_MONOTONIC for real lines).
	// Only differences between ticks are meaningful.
	ObservedAt time.Duration
}

// ConnectivityState is the outcome of the network bootstrap.
type ConnectivityState string

const (
	Disconnected      ConnectivityState = "DISCONNECTED"
	Connected         ConnectivityState = "CONNECTED"
	FailedPermanently ConnectivityState = "FAILED"
)

// WorkerState is the named state of a network worker loop.
type WorkerState string

const (
	StateIdle             WorkerState = "IDLE"
	StateAwaitingResponse WorkerState = "AWAITING_RESPONSE"
	StateBackingOff       WorkerState = "BACKING_OFF"
	StateStopped          WorkerState = "STOPPED"
)

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
}
