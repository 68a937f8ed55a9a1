// Command press-notifier sends a Bot API message for every button press and
// lights the status LED when the recipient replies.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/press-notifier/internal/config"
	"github.com/sweeney/press-notifier/internal/connect"
	"github.com/sweeney/press-notifier/internal/dispatch"
	"github.com/sweeney/press-notifier/internal/gpio"
	"github.com/sweeney/press-notifier/internal/indicator"
	"github.com/sweeney/press-notifier/internal/log"
	"github.com/sweeney/press-notifier/internal/logic"
	"github.com/sweeney/press-notifier/internal/metrics"
	"github.com/sweeney/press-notifier/internal/mqtt"
	"github.com/sweeney/press-notifier/internal/poll"
	"github.com/sweeney/press-notifier/internal/queue"
	"github.com/sweeney/press-notifier/internal/signals"
	"github.com/sweeney/press-notifier/internal/status"
	"github.com/sweeney/press-notifier/internal/telegram"
	"github.com/sweeney/press-notifier/internal/web"
)

const refreshInterval = time.Second

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults only if empty)")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", "HTTP status address (overrides config)")
	heartbeat := flag.Duration("heartbeat", 0, "Heartbeat interval (overrides config)")
	debounce := flag.Duration("debounce", 0, "Debounce window (overrides config)")
	pinLED := flag.Int("pin-led", gpio.DefaultPinLED, "BCM pin number for the status LED (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (overrides config)")
	printState := flag.Bool("print-state", false, "Print current button levels and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	// Flags win over the file, but only when given.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "broker":
			cfg.MQTT.Broker = *broker
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "heartbeat":
			cfg.Heartbeat = *heartbeat
		case "debounce":
			cfg.Dispatch.Debounce = *debounce
		case "pin-led":
			cfg.GPIO.LEDPin = *pinLED
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	log.Configure(log.Config{Level: cfg.LogLevel})
	logger := log.WithComponent("main")

	if err := run(cfg, *printState); err != nil {
		logger.Fatal().Err(err).Msg("fatal")
	}
}

func run(cfg config.Config, printState bool) error {
	logger := log.WithComponent("main")

	q := queue.New(cfg.Dispatch.QueueCapacity)
	capture := gpio.NewCapture(q)

	pins := make([]int, len(cfg.GPIO.Buttons))
	for i, b := range cfg.GPIO.Buttons {
		pins[i] = b.Pin
	}

	watcher, err := gpio.NewRealWatcher(cfg.GPIO.Chip, pins, capture)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer watcher.Close()

	if printState {
		return printLevels(os.Stdout, watcher, cfg.GPIO.Buttons)
	}

	if err := config.Validate(&cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	led, err := gpio.NewRealLED(cfg.GPIO.Chip, cfg.GPIO.LEDPin)
	if err != nil {
		return fmt.Errorf("init led: %w", err)
	}
	defer led.Close()

	if err := metrics.RegisterDropped(prometheus.DefaultRegisterer, capture.Dropped); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	var publisher interface {
		mqtt.Publisher
		mqtt.ConnectionStatus
	} = nopPublisher{}
	if cfg.MQTT.Broker != "" {
		publisher = mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			BufferSize: cfg.MQTT.BufferSize,
		})
	}
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	gate := signals.NewGate()
	latch := signals.NewLatch()
	ind := indicator.New(led, gate, latch, cfg.GPIO.Blink)

	d := &daemon{
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		now:        time.Now,
		log:        logger,
	}

	actions := make(map[logic.SourceID]dispatch.Action, len(cfg.GPIO.Buttons))
	for _, b := range cfg.GPIO.Buttons {
		actions[logic.SourceID(b.Pin)] = dispatch.Action{
			Name:    b.Name,
			Request: telegram.SendMessage(cfg.Telegram.ChatID, b.Message(), cfg.Dispatch.Timeout),
		}
	}
	dcfg := dispatch.Config{
		Actions:     actions,
		Debounce:    cfg.Dispatch.Debounce,
		Backoff:     cfg.Dispatch.Backoff,
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		Observe:     d.onOutcome,
	}
	if err := dcfg.Validate(); err != nil {
		return err
	}
	pcfg := poll.Config{
		Peer:        cfg.Telegram.Peer(),
		Wait:        cfg.Poll.Wait,
		Timeout:     cfg.Poll.Timeout,
		Backoff:     cfg.Poll.Backoff,
		StartOffset: cfg.Poll.StartOffset,
		Observe:     d.onPoll,
	}
	if err := pcfg.Validate(); err != nil {
		return err
	}

	// Each worker owns its connection so a reset never cuts another's call.
	dispatcher := dispatch.New(dcfg, q, telegram.New(cfg.Telegram.APIBase, cfg.Telegram.Token), ind, gate)
	poller := poll.New(pcfg, telegram.New(cfg.Telegram.APIBase, cfg.Telegram.Token), latch, gate)
	prober := connect.APIProber{
		Perf:    telegram.New(cfg.Telegram.APIBase, cfg.Telegram.Token),
		Timeout: cfg.Bootstrap.Timeout,
	}

	d.refresh = func() {
		tracker.SetConnectivity(gate.State())
		tracker.SetWorkers(dispatcher.State(), poller.State())
		tracker.SetCursor(poller.Cursor())
		s := ind.State()
		tracker.SetIndicator(status.Indicator{Phase: string(s.Phase), Alert: s.Alert, Busy: s.Busy, LED: s.LED})
		tracker.SetCapture(capture.Captured(), capture.Dropped(), q.Len())
		tracker.SetMQTTConnected(publisher.IsConnected())
	}
	ind.OnAlert(d.refresh)
	d.refresh()

	d.publishStatus("STARTUP", "", true)

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, nil)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("http status server listening")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ignoreCanceled(ind.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(dispatcher.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(poller.Run(gctx)) })
	g.Go(func() error {
		err := connect.Bootstrap(gctx, gate, prober, cfg.Bootstrap.Attempts, cfg.Bootstrap.Interval)
		d.refresh()
		return ignoreCanceled(err)
	})

	logger.Info().
		Int("buttons", len(cfg.GPIO.Buttons)).
		Dur("debounce", cfg.Dispatch.Debounce).
		Str("broker", cfg.MQTT.Broker).
		Dur("heartbeat", cfg.Heartbeat).
		Msg("started")

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	d.heartbeat = logic.NewHeartbeat(cfg.Heartbeat, time.Now())
	loopErr := d.runLoop(gctx, ticker.C, sigCh)

	cancel()
	return errors.Join(loopErr, g.Wait())
}

// daemon holds the pieces the run loop and the worker observers share.
type daemon struct {
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	heartbeat  *logic.Heartbeat
	refresh    func()
	now        func() time.Time
	log        zerolog.Logger
}

// runLoop refreshes the status tracker, emits heartbeats and publishes the
// shutdown event on SIGINT/SIGTERM. It returns nil on a signal and the
// context error if a worker failed.
func (d *daemon) runLoop(ctx context.Context, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			d.log.Info().Str("signal", s.String()).Msg("shutting down")
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			d.publishStatus("SHUTDOWN", signalName, true)
			return nil

		case <-ctx.Done():
			d.publishStatus("SHUTDOWN", "WORKER_FAILED", true)
			return ctx.Err()

		case <-tick:
			if d.refresh != nil {
				d.refresh()
			}
			if d.heartbeat == nil {
				continue
			}
			if hb := d.heartbeat.Check(d.now()); hb != nil {
				snap := d.tracker.Snapshot()
				d.log.Info().
					Dur("uptime", hb.Uptime).
					Uint64("dispatched", snap.Counts.Dispatched).
					Uint64("responses", snap.Counts.Responses).
					Msg("heartbeat")
				if net := readNetworkInfo(); net != nil {
					d.tracker.SetNetwork(net)
				}
				d.publishStatus("HEARTBEAT", "", false)
			}
		}
	}
}

func (d *daemon) publishStatus(event, reason string, retained bool) {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	snap := d.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := d.publisher.PublishSystem(ev); err != nil {
		d.log.Error().Err(err).Str("event", event).Msg("failed to publish system event")
		return
	}
	d.log.Debug().Str("event", event).Msg("published system event")
}

// onOutcome feeds dispatch results to the tracker and MQTT.
func (d *daemon) onOutcome(o dispatch.Outcome) {
	now := d.now()
	d.tracker.RecordOutcome(string(o.Kind), o.Action, o.Attempt, now)

	var typ string
	switch o.Kind {
	case dispatch.KindDispatched:
		typ = mqtt.EventDispatched
	case dispatch.KindDropped:
		typ = mqtt.EventDropped
	default:
		return
	}
	ev := mqtt.Event{
		Timestamp: now,
		Type:      typ,
		Action:    o.Action,
		Pin:       int(o.Event.Source),
		Attempts:  o.Attempt,
	}
	if o.Err != nil {
		ev.Error = o.Err.Error()
	}
	if err := d.publisher.Publish(ev); err != nil {
		d.log.Error().Err(err).Msg("publish error")
	}
}

// onPoll records positive responses.
func (d *daemon) onPoll(r poll.Result) {
	if !r.Outcome.Positive {
		return
	}
	now := d.now()
	d.tracker.RecordResponse(now)
	ev := mqtt.Event{
		Timestamp: now,
		Type:      mqtt.EventResponse,
		UpdateID:  r.Outcome.Offset - 1,
	}
	if err := d.publisher.Publish(ev); err != nil {
		d.log.Error().Err(err).Msg("publish error")
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// nopPublisher stands in when no broker is configured.
type nopPublisher struct{}

func (nopPublisher) Publish(mqtt.Event) error             { return nil }
func (nopPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (nopPublisher) Close() error                         { return nil }
func (nopPublisher) IsConnected() bool                    { return false }

func statusConfig(cfg config.Config) status.Config {
	buttons := make([]status.Button, len(cfg.GPIO.Buttons))
	for i, b := range cfg.GPIO.Buttons {
		buttons[i] = status.Button{Pin: b.Pin, Name: b.Name}
	}
	return status.Config{
		DebounceMs:        cfg.Dispatch.Debounce.Milliseconds(),
		BlinkMs:           cfg.GPIO.Blink.Milliseconds(),
		DispatchBackoffMs: cfg.Dispatch.Backoff.Milliseconds(),
		PollBackoffMs:     cfg.Poll.Backoff.Milliseconds(),
		HeartbeatMs:       cfg.Heartbeat.Milliseconds(),
		QueueCapacity:     cfg.Dispatch.QueueCapacity,
		MaxAttempts:       cfg.Dispatch.MaxAttempts,
		Buttons:           buttons,
		LEDPin:            cfg.GPIO.LEDPin,
		Broker:            cfg.MQTT.Broker,
		HTTPAddr:          cfg.HTTP.Addr,
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// printLevels writes one line per button with its current level.
func printLevels(w io.Writer, r gpio.Reader, buttons []config.ButtonConfig) error {
	levels, err := r.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	if len(levels) != len(buttons) {
		return fmt.Errorf("read gpio: got %d levels for %d buttons", len(levels), len(buttons))
	}
	for i, b := range buttons {
		fmt.Fprintf(w, "%s (GPIO%d): %s\n", b.Name, b.Pin, levelString(levels[i]))
	}
	return nil
}

func levelString(pressed bool) string {
	if pressed {
		return "PRESSED"
	}
	return "RELEASED"
}
