package web

import (
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/press-notifier/internal/status"
)

const stampLayout = "2006-01-02T15:04:05Z"

type row struct {
	Label string
	Value string
	Class string
}

type section struct {
	Title string
	Rows  []row
}

type page struct {
	Title    string
	Sections []section
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>{{.Title}}</title>
<style>
body { font: 14px/1.4 sans-serif; max-width: 40em; margin: 1.5em auto; padding: 0 1em; color: #222; }
section { margin-bottom: 1.5em; }
dl { display: grid; grid-template-columns: 12em 1fr; gap: 2px 1em; margin: 0; }
dt { color: #666; }
dd { margin: 0; font-family: monospace; }
.good { color: #1a7f37; }
.bad { color: #cf222e; }
.lit { color: #bf8700; font-weight: bold; }
.dim { color: #999; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{range .Sections}}<section>
<h2>{{.Title}}</h2>
<dl>
{{range .Rows}}<dt>{{.Label}}</dt><dd{{if .Class}} class="{{.Class}}"{{end}}>{{.Value}}</dd>
{{end}}</dl>
</section>
{{end}}<footer><a href="/index.json">json</a> · <a href="/metrics">metrics</a></footer>
</body>
</html>
`))

func renderHTML(w io.Writer, snap status.Snapshot) error {
	return pageTmpl.Execute(w, buildPage(snap))
}

func buildPage(snap status.Snapshot) page {
	cfg := snap.Config
	ind := snap.Indicator

	led := row{Label: "LED", Value: "off (" + orUnknown(ind.Phase) + ")", Class: "dim"}
	if ind.LED {
		led = row{Label: "LED", Value: "on (" + orUnknown(ind.Phase) + ")", Class: "lit"}
	}
	alert := "none"
	if ind.Alert {
		alert = "pending"
	}
	last := "none"
	if snap.LastAction != "" {
		last = snap.LastAction + " at " + stamp(snap.LastActionAt)
	}

	device := section{Title: "Device", Rows: []row{
		{Label: "Bot API", Value: orUnknown(string(snap.Connectivity)), Class: goodBad(snap.Ready())},
		led,
		{Label: "Alert", Value: alert},
		{Label: "Dispatch worker", Value: orUnknown(string(snap.DispatchState))},
		{Label: "Poll worker", Value: orUnknown(string(snap.PollState))},
		{Label: "Poll cursor", Value: strconv.FormatInt(snap.Cursor, 10)},
		{Label: "Queued presses", Value: strconv.Itoa(snap.Queued)},
		{Label: "Last action", Value: last},
		{Label: "Last response", Value: stamp(snap.LastResponse)},
	}}

	mqttState := "disconnected"
	if snap.MQTTConnected {
		mqttState = "connected"
	}
	link := section{Title: "Links", Rows: []row{
		{Label: "MQTT", Value: mqttState, Class: goodBad(snap.MQTTConnected)},
		{Label: "Broker", Value: orNone(cfg.Broker)},
	}}
	if n := snap.Network; n != nil {
		desc := n.Status + " (" + n.Type
		if n.SSID != "" {
			desc += ", " + n.SSID
		}
		link.Rows = append(link.Rows,
			row{Label: "Network", Value: desc + ")"},
			row{Label: "IP", Value: n.IP},
		)
	}

	c := snap.Counts
	counts := section{Title: "Presses", Rows: []row{
		{Label: "Captured", Value: count(c.Captured)},
		{Label: "Queue full", Value: count(c.QueueDropped)},
		{Label: "Accepted", Value: count(c.Accepted)},
		{Label: "Debounced", Value: count(c.Rejected)},
		{Label: "Unknown pin", Value: count(c.Unknown)},
		{Label: "Dispatched", Value: count(c.Dispatched)},
		{Label: "Retries", Value: count(c.Retries)},
		{Label: "Dropped", Value: count(c.Dropped)},
		{Label: "Responses", Value: count(c.Responses)},
	}}

	retry := ms(cfg.DispatchBackoffMs)
	if cfg.MaxAttempts > 0 {
		retry += fmt.Sprintf(", max %d attempts", cfg.MaxAttempts)
	}
	heartbeat := "disabled"
	if cfg.HeartbeatMs > 0 {
		heartbeat = ms(cfg.HeartbeatMs)
	}
	sys := section{Title: "System", Rows: []row{
		{Label: "Uptime", Value: formatUptime(snap.Uptime())},
		{Label: "Started", Value: snap.StartTime.UTC().Format(stampLayout)},
	}}
	for _, b := range cfg.Buttons {
		sys.Rows = append(sys.Rows, row{Label: fmt.Sprintf("Button GPIO%d", b.Pin), Value: b.Name})
	}
	sys.Rows = append(sys.Rows,
		row{Label: "LED pin", Value: fmt.Sprintf("GPIO%d", cfg.LEDPin)},
		row{Label: "Debounce", Value: ms(cfg.DebounceMs)},
		row{Label: "Retry backoff", Value: retry},
		row{Label: "Poll backoff", Value: ms(cfg.PollBackoffMs)},
		row{Label: "Heartbeat", Value: heartbeat},
		row{Label: "HTTP", Value: orNone(cfg.HTTPAddr)},
	)

	return page{Title: "Press Notifier", Sections: []section{device, link, counts, sys}}
}

// formatUptime renders d as its non-zero leading units, e.g. "2d 3h 0m 5s".
func formatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	units := []struct {
		suffix string
		size   int64
	}{{"d", 86400}, {"h", 3600}, {"m", 60}, {"s", 1}}

	var parts []string
	for _, u := range units {
		n := secs / u.size
		secs %= u.size
		if n == 0 && len(parts) == 0 && u.suffix != "s" {
			continue
		}
		parts = append(parts, strconv.FormatInt(n, 10)+u.suffix)
	}
	return strings.Join(parts, " ")
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(stampLayout)
}

func count(n uint64) string { return strconv.FormatUint(n, 10) }

func ms(v int64) string { return strconv.FormatInt(v, 10) + "ms" }

func goodBad(ok bool) string {
	if ok {
		return "good"
	}
	return "bad"
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
