// Package dispatch implements the action dispatch worker: it consumes press
// events, filters bounces, turns each press into an outbound Bot API call and
// retries failed calls ahead of any newer press.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/press-notifier/internal/log"
	"github.com/sweeney/press-notifier/internal/logic"
	"github.com/sweeney/press-notifier/internal/metrics"
	"github.com/sweeney/press-notifier/internal/queue"
	"github.com/sweeney/press-notifier/internal/signals"
	"github.com/sweeney/press-notifier/internal/telegram"
)

// Defaults taken from the deployed device.
const (
	DefaultDebounce = 250 * time.Millisecond
	DefaultTimeout  = 60 * time.Second
	DefaultBackoff  = 3 * time.Second
)

// Action is the outbound call bound to one button.
type Action struct {
	Name    string
	Request telegram.Request
}

// Indicator is the part of the status LED the worker drives.
type Indicator interface {
	Busy(on bool)
	Acknowledge() bool
}

// Kind classifies what happened to a press event.
type Kind string

const (
	KindRejected   Kind = "REJECTED"
	KindUnknown    Kind = "UNKNOWN_SOURCE"
	KindDispatched Kind = "DISPATCHED"
	KindRetry      Kind = "RETRY"
	KindDropped    Kind = "DROPPED"
)

// Outcome is reported to the observer for every processed event.
type Outcome struct {
	Kind    Kind
	Event   logic.PressEvent
	Action  string
	Attempt int
	Err     error
}

// Config configures a Worker.
type Config struct {
	Actions  map[logic.SourceID]Action
	Debounce time.Duration
	Backoff  time.Duration

	// MaxAttempts bounds retries of one press. 0 retries until success.
	MaxAttempts int

	// Observe, if set, is called synchronously for every outcome.
	Observe func(Outcome)

	// Sleep waits out a backoff. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Worker is the single consumer of the event channel. It owns the debounce
// state and its own connection handle.
type Worker struct {
	q       *queue.Channel
	perf    telegram.Performer
	ind     Indicator
	gate    *signals.Gate
	actions map[logic.SourceID]Action
	backoff time.Duration
	max     int
	observe func(Outcome)
	sleep   func(context.Context, time.Duration) error
	log     zerolog.Logger

	debounce *logic.Debouncer
	replay   bool
	attempt  int

	state atomic.Value // logic.WorkerState
}

// New creates a dispatch worker.
func New(cfg Config, q *queue.Channel, perf telegram.Performer, ind Indicator, gate *signals.Gate) *Worker {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
	if cfg.Observe == nil {
		cfg.Observe = func(Outcome) {}
	}

	w := &Worker{
		q:        q,
		perf:     perf,
		ind:      ind,
		gate:     gate,
		actions:  cfg.Actions,
		backoff:  cfg.Backoff,
		max:      cfg.MaxAttempts,
		observe:  cfg.Observe,
		sleep:    cfg.Sleep,
		log:      log.WithComponent("dispatch"),
		debounce: logic.NewDebouncer(cfg.Debounce),
	}
	w.setState(logic.StateIdle)
	return w
}

// State returns the worker's current named state.
func (w *Worker) State() logic.WorkerState {
	return w.state.Load().(logic.WorkerState)
}

func (w *Worker) setState(s logic.WorkerState) {
	w.state.Store(s)
	metrics.SetWorkerState("dispatch", string(s))
}

// Run waits for connectivity, then processes events until ctx is done.
// If the bootstrap failed permanently no action is possible and Run returns nil.
func (w *Worker) Run(ctx context.Context) error {
	state, err := w.gate.Wait(ctx)
	if err != nil {
		return err
	}
	if state != logic.Connected {
		w.log.Error().Str("connectivity", string(state)).Msg("no connectivity, outbound actions disabled")
		w.setState(logic.StateStopped)
		return nil
	}

	for {
		w.setState(logic.StateIdle)
		ev, err := w.q.Pop(ctx)
		if err != nil {
			w.setState(logic.StateStopped)
			return err
		}
		if err := w.Step(ctx, ev); err != nil {
			w.setState(logic.StateStopped)
			return err
		}
	}
}

// Step processes one dequeued event. It only returns an error when ctx is
// done; every other failure is handled by logging, dropping or re-queueing.
func (w *Worker) Step(ctx context.Context, ev logic.PressEvent) error {
	replay := w.replay
	if replay {
		// Already passed debounce; the previous attempt failed on the network.
		w.replay = false
	} else {
		if !w.debounce.Accept(ev) {
			w.log.Info().Int("pin", int(ev.Source)).Dur("tick", ev.ObservedAt).Msg("rejected event")
			metrics.RecordPress("rejected")
			w.observe(Outcome{Kind: KindRejected, Event: ev})
			return nil
		}
		w.log.Info().Int("pin", int(ev.Source)).Dur("tick", ev.ObservedAt).Msg("accepted event")
		w.attempt = 0
	}

	action, ok := w.actions[ev.Source]
	if !ok {
		w.log.Error().Int("pin", int(ev.Source)).Msg("unexpected gpio num")
		metrics.RecordPress("unknown")
		w.observe(Outcome{Kind: KindUnknown, Event: ev})
		return nil
	}
	if !replay {
		metrics.RecordPress("accepted")
		if w.ind.Acknowledge() {
			w.log.Info().Msg("alert acknowledged")
		}
	}

	w.attempt++
	err := w.perform(ctx, action)
	if err == nil {
		w.log.Info().Str("action", action.Name).Int("attempt", w.attempt).Msg("action sent")
		metrics.RecordDispatch(action.Name, "success")
		w.observe(Outcome{Kind: KindDispatched, Event: ev, Action: action.Name, Attempt: w.attempt})
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if !telegram.IsRetryable(err) {
		w.log.Error().Err(err).Str("action", action.Name).Msg("request rejected, dropping press")
		return w.drop(ev, action, err)
	}
	if w.max > 0 && w.attempt >= w.max {
		w.log.Error().Err(err).Str("action", action.Name).Int("attempts", w.attempt).Msg("retries exhausted, dropping press")
		return w.drop(ev, action, fmt.Errorf("after %d attempts: %w", w.attempt, err))
	}

	w.log.Error().Err(err).Str("action", action.Name).Int("attempt", w.attempt).Dur("backoff", w.backoff).Msg("request failed, retrying")
	metrics.RecordDispatch(action.Name, "retry")
	w.observe(Outcome{Kind: KindRetry, Event: ev, Action: action.Name, Attempt: w.attempt, Err: err})

	w.perf.Reset()
	w.setState(logic.StateBackingOff)
	if err := w.sleep(ctx, w.backoff); err != nil {
		return err
	}
	w.q.PushFront(ev)
	w.replay = true
	return nil
}

// perform runs the call with the busy indication scoped to its duration.
func (w *Worker) perform(ctx context.Context, action Action) error {
	w.setState(logic.StateAwaitingResponse)
	w.ind.Busy(true)
	defer w.ind.Busy(false)

	start := time.Now()
	_, err := w.perf.Perform(ctx, action.Request)
	metrics.ObserveDispatchLatency(time.Since(start).Seconds())
	return err
}

func (w *Worker) drop(ev logic.PressEvent, action Action, err error) error {
	metrics.RecordDispatch(action.Name, "dropped")
	w.observe(Outcome{Kind: KindDropped, Event: ev, Action: action.Name, Attempt: w.attempt, Err: err})
	return nil
}

// ErrNoActions is returned by Validate when no button is mapped.
var ErrNoActions = errors.New("dispatch: no actions configured")

// Validate checks that cfg can drive a worker.
func (cfg Config) Validate() error {
	if len(cfg.Actions) == 0 {
		return ErrNoActions
	}
	for src, a := range cfg.Actions {
		if a.Request.Method == "" {
			return fmt.Errorf("dispatch: action for pin %d has no method", src)
		}
	}
	if cfg.MaxAttempts < 0 {
		return fmt.Errorf("dispatch: max attempts must be >= 0, got %d", cfg.MaxAttempts)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
