package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Connectivity  string        `json:"connectivity"`
	Ready         bool          `json:"ready"`
	LED           IndicatorJSON `json:"led"`
	Workers       WorkersJSON   `json:"workers"`
	Cursor        int64         `json:"poll_cursor"`
	Queued        int           `json:"queued"`
	LastAction    *ActionJSON   `json:"last_action,omitempty"`
	LastResponse  string        `json:"last_response,omitempty"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Counts        CountsJSON    `json:"event_counts"`
	Network       *NetworkJSON  `json:"network,omitempty"`
	Config        *ConfigJSON   `json:"config,omitempty"`
}

// IndicatorJSON reports the status LED.
type IndicatorJSON struct {
	Phase string `json:"phase"`
	On    bool   `json:"on"`
	Alert bool   `json:"alert"`
	Busy  bool   `json:"busy"`
}

// WorkersJSON reports the named state of each worker.
type WorkersJSON struct {
	Dispatch string `json:"dispatch"`
	Poll     string `json:"poll"`
}

// ActionJSON describes the last action that reached the API.
type ActionJSON struct {
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Captured     uint64 `json:"captured"`
	QueueDropped uint64 `json:"queue_dropped"`
	Accepted     uint64 `json:"accepted"`
	Rejected     uint64 `json:"rejected"`
	Unknown      uint64 `json:"unknown_source"`
	Dispatched   uint64 `json:"dispatched"`
	Retries      uint64 `json:"retries"`
	Dropped      uint64 `json:"dropped"`
	Responses    uint64 `json:"responses"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ButtonJSON is one configured input.
type ButtonJSON struct {
	Pin  int    `json:"pin"`
	Name string `json:"name"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	DebounceMs        int64        `json:"debounce_ms"`
	BlinkMs           int64        `json:"blink_ms"`
	DispatchBackoffMs int64        `json:"dispatch_backoff_ms"`
	PollBackoffMs     int64        `json:"poll_backoff_ms"`
	HeartbeatMs       int64        `json:"heartbeat_ms"`
	QueueCapacity     int          `json:"queue_capacity"`
	MaxAttempts       int          `json:"max_attempts"`
	Buttons           []ButtonJSON `json:"buttons"`
	LEDPin            int          `json:"led_pin"`
	Broker            string       `json:"broker"`
	HTTPAddr          string       `json:"http_addr"`
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Connectivity: orUnknown(string(snap.Connectivity)),
		Ready:        snap.Ready(),
		LED: IndicatorJSON{
			Phase: orUnknown(snap.Indicator.Phase),
			On:    snap.Indicator.LED,
			Alert: snap.Indicator.Alert,
			Busy:  snap.Indicator.Busy,
		},
		Workers: WorkersJSON{
			Dispatch: orUnknown(string(snap.DispatchState)),
			Poll:     orUnknown(string(snap.PollState)),
		},
		Cursor:        snap.Cursor,
		Queued:        snap.Queued,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Captured:     snap.Counts.Captured,
			QueueDropped: snap.Counts.QueueDropped,
			Accepted:     snap.Counts.Accepted,
			Rejected:     snap.Counts.Rejected,
			Unknown:      snap.Counts.Unknown,
			Dispatched:   snap.Counts.Dispatched,
			Retries:      snap.Counts.Retries,
			Dropped:      snap.Counts.Dropped,
			Responses:    snap.Counts.Responses,
		},
	}
	if snap.LastAction != "" {
		inner.LastAction = &ActionJSON{
			Name:      snap.LastAction,
			Timestamp: snap.LastActionAt.UTC().Format(time.RFC3339),
		}
	}
	if !snap.LastResponse.IsZero() {
		inner.LastResponse = snap.LastResponse.UTC().Format(time.RFC3339)
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

func buildConfig(cfg Config) *ConfigJSON {
	buttons := make([]ButtonJSON, 0, len(cfg.Buttons))
	for _, b := range cfg.Buttons {
		buttons = append(buttons, ButtonJSON{Pin: b.Pin, Name: b.Name})
	}
	return &ConfigJSON{
		DebounceMs:        cfg.DebounceMs,
		BlinkMs:           cfg.BlinkMs,
		DispatchBackoffMs: cfg.DispatchBackoffMs,
		PollBackoffMs:     cfg.PollBackoffMs,
		HeartbeatMs:       cfg.HeartbeatMs,
		QueueCapacity:     cfg.QueueCapacity,
		MaxAttempts:       cfg.MaxAttempts,
		Buttons:           buttons,
		LEDPin:            cfg.LEDPin,
		Broker:            cfg.Broker,
		HTTPAddr:          cfg.HTTPAddr,
	}
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	inner.Config = buildConfig(snap.Config)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
// Only STARTUP carries the config; later events would repeat it.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	if event == "STARTUP" {
		inner.Config = buildConfig(snap.Config)
	}

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
