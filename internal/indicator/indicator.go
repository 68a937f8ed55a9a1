// Package indicator drives the status LED from three inputs: connectivity
// (blinking while bootstrapping), the response latch (alert) and the
// dispatch worker's transient busy indication.
package indicator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/press-notifier/internal/gpio"
	"github.com/sweeney/press-notifier/internal/log"
	"github.com/sweeney/press-notifier/internal/logic"
	"github.com/sweeney/press-notifier/internal/metrics"
	"github.com/sweeney/press-notifier/internal/signals"
)

// DefaultBlinkPeriod is the half-period of the bootstrap blink.
const DefaultBlinkPeriod = 500 * time.Millisecond

// Phase is the indicator's top-level state.
type Phase string

const (
	PhaseBootstrap Phase = "BOOTSTRAP"
	PhaseSteady    Phase = "STEADY"
)

// State is a point-in-time view of the indicator.
type State struct {
	Phase Phase
	Alert bool
	Busy  bool
	LED   bool
}

// Indicator composes the LED level. In the bootstrap phase the blink owns
// the LED; afterwards the level is alert || busy, so a busy call never
// erases a pending alert and always restores the prior baseline.
type Indicator struct {
	led   gpio.LED
	gate  *signals.Gate
	latch *signals.Latch
	blink time.Duration
	log   zerolog.Logger

	mu      sync.Mutex
	phase   Phase
	alert   bool
	busy    bool
	blinkOn bool
	level   bool
	onAlert func()
}

// New creates an indicator. A non-positive blink period uses DefaultBlinkPeriod.
func New(led gpio.LED, gate *signals.Gate, latch *signals.Latch, blink time.Duration) *Indicator {
	if blink <= 0 {
		blink = DefaultBlinkPeriod
	}
	return &Indicator{
		led:   led,
		gate:  gate,
		latch: latch,
		blink: blink,
		log:   log.WithComponent("indicator"),
		phase: PhaseBootstrap,
	}
}

// OnAlert registers a callback run (outside the lock) on every alert
// transition.
func (i *Indicator) OnAlert(fn func()) {
	i.mu.Lock()
	i.onAlert = fn
	i.mu.Unlock()
}

// Run blinks until the gate reports Connected, then waits on the response
// latch and raises the alert on each wake. It returns when ctx is done.
// If the bootstrap failed permanently it blinks until ctx is done.
func (i *Indicator) Run(ctx context.Context) error {
	i.log.Info().Msg("setup led and starting blink")
	if err := i.bootstrap(ctx); err != nil {
		return err
	}
	i.log.Info().Msg("connected, stop blinking led")

	for {
		if err := i.latch.Wait(ctx); err != nil {
			return err
		}
		i.log.Info().Msg("positive response, turn on led")
		i.raiseAlert()
	}
}

func (i *Indicator) bootstrap(ctx context.Context) error {
	ticker := time.NewTicker(i.blink)
	defer ticker.Stop()

	i.toggleBlink()
	done := i.gate.Done()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			if i.gate.State() == logic.Connected {
				i.enterSteady()
				return nil
			}
			i.log.Error().Str("connectivity", string(i.gate.State())).Msg("bootstrap failed, blinking indefinitely")
			done = nil
		case <-ticker.C:
			i.toggleBlink()
		}
	}
}

func (i *Indicator) toggleBlink() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.blinkOn = !i.blinkOn
	i.applyLocked()
}

func (i *Indicator) enterSteady() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.phase = PhaseSteady
	i.blinkOn = false
	i.applyLocked()
}

func (i *Indicator) raiseAlert() {
	i.mu.Lock()
	i.alert = true
	i.applyLocked()
	hook := i.onAlert
	i.mu.Unlock()

	metrics.RecordAlert()
	if hook != nil {
		hook()
	}
}

// Busy sets or clears the transient busy indication.
func (i *Indicator) Busy(on bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.busy = on
	i.applyLocked()
}

// Acknowledge clears a pending alert. It reports whether one was pending.
func (i *Indicator) Acknowledge() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	was := i.alert
	i.alert = false
	i.applyLocked()
	return was
}

// State returns a snapshot of the indicator.
func (i *Indicator) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return State{Phase: i.phase, Alert: i.alert, Busy: i.busy, LED: i.level}
}

// applyLocked drives the LED to the composed level. Caller holds i.mu.
func (i *Indicator) applyLocked() {
	level := i.blinkOn
	if i.phase == PhaseSteady {
		level = i.alert || i.busy
	}
	if err := i.led.Set(level); err != nil {
		i.log.Warn().Err(err).Bool("level", level).Msg("set led failed")
		return
	}
	i.level = level
}
