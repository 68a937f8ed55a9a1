// Package mqtt publishes press-notifier telemetry to an MQTT broker, with an
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"
)

// Topic is the MQTT topic for press and response events.
const Topic = "home/press-notifier/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "home/press-notifier/system"

// Event types published on Topic.
const (
	EventDispatched = "DISPATCHED"
	EventDropped    = "DROPPED"
	EventResponse   = "RESPONSE"
)

// Publisher sends telemetry. A failed publish is reported, never fatal.
type Publisher interface {
	Publish(event Event) error
	PublishSystem(event SystemEvent) error
	Close() error
}

// ConnectionStatus is implemented by publishers backed by a live broker link.
type ConnectionStatus interface {
	IsConnected() bool
}

// Event is a press outcome or an inbound response.
type Event struct {
	Timestamp time.Time
	Type      string // EventDispatched, EventDropped or EventResponse
	Action    string // button action name; empty for responses
	Pin       int
	Attempts  int
	Error     string
	UpdateID  int64 // responses only
}

// SystemEvent is a daemon lifecycle message on TopicSystem.
type SystemEvent struct {
	Timestamp time.Time
	Event     string // STARTUP, SHUTDOWN, HEARTBEAT, RECONNECTED
	Reason    string

	// RawPayload, when set, is sent as is. Used for status snapshots.
	RawPayload []byte
	Retained   bool
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Press PressPayload `json:"press"`
}

// PressPayload contains the event details.
type PressPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Action    string `json:"action,omitempty"`
	Pin       int    `json:"pin,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
	Error     string `json:"error,omitempty"`
	UpdateID  int64  `json:"update_id,omitempty"`
}

// FormatPayload creates the JSON payload for an event.
func FormatPayload(event Event) ([]byte, error) {
	payload := Payload{
		Press: PressPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Type,
			Action:    event.Action,
			Pin:       event.Pin,
			Attempts:  event.Attempts,
			Error:     event.Error,
			UpdateID:  event.UpdateID,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the envelope for lifecycle messages without a snapshot,
// such as the will and RECONNECTED.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload encodes event, preferring its RawPayload.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// WillPayload is the last-will message the broker publishes if the
// connection drops without a clean shutdown.
func WillPayload(at time.Time) []byte {
	payload, _ := FormatSystemPayload(SystemEvent{
		Timestamp: at,
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	return payload
}
