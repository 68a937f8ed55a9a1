package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestFormatPayloadDispatched(t *testing.T) {
	event := Event{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Type:      EventDispatched,
		Action:    "heart",
		Pin:       18,
		Attempts:  3,
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"press":{"timestamp":"2026-02-02T22:18:12Z","event":"DISPATCHED","action":"heart","pin":18,"attempts":3}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatPayloadResponse(t *testing.T) {
	event := Event{
		Timestamp: time.Date(2026, 2, 2, 22, 20, 0, 0, time.UTC),
		Type:      EventResponse,
		UpdateID:  42,
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed map[string]map[string]any
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	press := parsed["press"]
	if press["event"] != "RESPONSE" || press["update_id"] != float64(42) {
		t.Errorf("unexpected payload: %s", payload)
	}
	for _, k := range []string{"action", "pin", "attempts", "error"} {
		if _, ok := press[k]; ok {
			t.Errorf("%s should be omitted for responses", k)
		}
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	event := Event{Timestamp: time.Date(2026, 2, 2, 23, 0, 0, 0, loc), Type: EventDropped, Error: "chat not found"}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatal(err)
	}
	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed.Press.Timestamp != "2026-02-02T22:00:00Z" {
		t.Errorf("timestamp not converted to UTC: %s", parsed.Press.Timestamp)
	}
	if parsed.Press.Error != "chat not found" {
		t.Errorf("error: got %q", parsed.Press.Error)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatal(err)
	}
	if string(payload) != string(raw) {
		t.Errorf("raw payload not passed through: %s", payload)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	payload := WillPayload(time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC))

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()
	ev := Event{Timestamp: time.Now(), Type: EventDispatched, Action: "chicken", Pin: 2, Attempts: 1}

	if err := f.Publish(ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true}); err != nil {
		t.Fatal(err)
	}

	if got := f.Events(); len(got) != 1 || got[0].Action != "chicken" {
		t.Errorf("events: got %+v", got)
	}
	if len(f.Payloads()) != 1 {
		t.Errorf("payloads: got %d", len(f.Payloads()))
	}
	if got := f.SystemEvents(); len(got) != 1 || !got[0].Retained {
		t.Errorf("system events: got %+v", got)
	}
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")
	f.PublishSystemError = errors.New("broker down")

	if err := f.Publish(Event{Type: EventDispatched}); err == nil {
		t.Error("expected publish error")
	}
	if err := f.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); err == nil {
		t.Error("expected publish system error")
	}
	if len(f.Events()) != 0 || len(f.SystemEvents()) != 0 {
		t.Error("failed publishes should not be recorded")
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.Publish(Event{Type: EventResponse})
	f.SetConnected(true)
	f.Close()

	f.Reset()
	if len(f.Events()) != 0 || f.Closed() || f.IsConnected() {
		t.Error("reset did not clear state")
	}
}

func TestTopics(t *testing.T) {
	if Topic != "home/press-notifier/events" {
		t.Errorf("unexpected topic: %s", Topic)
	}
	if TopicSystem != "home/press-notifier/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
}
