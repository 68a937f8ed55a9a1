// Package poll implements the long-poll worker that watches the Bot API for
// replies and raises the response latch when the watched peer answers.
package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/press-notifier/internal/log"
	"github.com/sweeney/press-notifier/internal/logic"
	"github.com/sweeney/press-notifier/internal/metrics"
	"github.com/sweeney/press-notifier/internal/signals"
	"github.com/sweeney/press-notifier/internal/telegram"
)

const (
	DefaultWait    = 58 * time.Second
	DefaultTimeout = 60 * time.Second
	DefaultBackoff = 10 * time.Second
)

// Result is reported to the observer after every poll.
type Result struct {
	Outcome logic.PollOutcome
	Updates []logic.Update
	Err     error
}

// Config configures a Worker.
type Config struct {
	// Peer is the user whose replies raise the alert. 0 accepts anyone.
	Peer int64

	Wait        time.Duration // server-side hold time of one poll
	Timeout     time.Duration // client-side bound of one poll
	Backoff     time.Duration
	StartOffset int64

	Observe func(Result)
	Sleep   func(ctx context.Context, d time.Duration) error
}

// Worker repeatedly long-polls for updates. It owns the cursor and its own
// connection handle.
type Worker struct {
	perf    telegram.Performer
	latch   *signals.Latch
	gate    *signals.Gate
	peer    int64
	wait    time.Duration
	timeout time.Duration
	backoff time.Duration
	observe func(Result)
	sleep   func(context.Context, time.Duration) error
	log     zerolog.Logger

	cursor *logic.Cursor
	offset atomic.Int64
	state  atomic.Value // logic.WorkerState
}

// New creates a long-poll worker.
func New(cfg Config, perf telegram.Performer, latch *signals.Latch, gate *signals.Gate) *Worker {
	if cfg.Wait <= 0 {
		cfg.Wait = DefaultWait
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Observe == nil {
		cfg.Observe = func(Result) {}
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}

	w := &Worker{
		perf:    perf,
		latch:   latch,
		gate:    gate,
		peer:    cfg.Peer,
		wait:    cfg.Wait,
		timeout: cfg.Timeout,
		backoff: cfg.Backoff,
		observe: cfg.Observe,
		sleep:   cfg.Sleep,
		log:     log.WithComponent("poll"),
		cursor:  logic.NewCursor(cfg.StartOffset),
	}
	w.offset.Store(w.cursor.Offset())
	w.setState(logic.StateIdle)
	return w
}

// Cursor returns the offset the next poll will request from.
func (w *Worker) Cursor() int64 {
	return w.offset.Load()
}

// State returns the worker's current named state.
func (w *Worker) State() logic.WorkerState {
	return w.state.Load().(logic.WorkerState)
}

func (w *Worker) setState(s logic.WorkerState) {
	w.state.Store(s)
	metrics.SetWorkerState("poll", string(s))
}

// Run waits for connectivity and polls until ctx is done. If the bootstrap
// failed permanently it returns nil without polling.
func (w *Worker) Run(ctx context.Context) error {
	state, err := w.gate.Wait(ctx)
	if err != nil {
		return err
	}
	if state != logic.Connected {
		w.log.Error().Str("connectivity", string(state)).Msg("no connectivity, polling disabled")
		w.setState(logic.StateStopped)
		return nil
	}

	for {
		if err := w.Step(ctx); err != nil {
			w.setState(logic.StateStopped)
			return err
		}
	}
}

// Step performs one poll, including the backoff after a transport failure.
// It only returns an error when ctx is done.
func (w *Worker) Step(ctx context.Context) error {
	w.setState(logic.StateAwaitingResponse)
	offset := w.cursor.Offset()
	w.log.Debug().Int64("offset", offset).Msg("polling")

	body, err := w.perf.Perform(ctx, telegram.GetUpdates(offset, w.wait, w.timeout))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.Error().Err(err).Dur("backoff", w.backoff).Msg("poll failed")
		metrics.RecordPoll("error")
		w.observe(Result{Outcome: logic.PollOutcome{Offset: offset}, Err: err})

		w.perf.Reset()
		w.setState(logic.StateBackingOff)
		return w.sleep(ctx, w.backoff)
	}

	updates, err := logic.ParseUpdates(body)
	if err != nil {
		w.log.Warn().Err(err).Msg("ignoring poll response")
		metrics.RecordPoll("malformed")
		w.observe(Result{Outcome: logic.PollOutcome{Offset: offset}, Err: err})
		w.setState(logic.StateIdle)
		return nil
	}

	out := logic.ApplyUpdates(w.cursor, updates, w.peer)
	w.offset.Store(out.Offset)
	metrics.SetPollCursor(out.Offset)

	switch {
	case out.New == 0:
		metrics.RecordPoll("empty")
	case out.Positive:
		metrics.RecordPoll("new")
		w.log.Info().Int("new", out.New).Int64("offset", out.Offset).Msg("positive response")
		w.latch.Set()
	default:
		metrics.RecordPoll("new")
		w.log.Info().Int("new", out.New).Int64("offset", out.Offset).Msg("updates from other senders")
	}

	w.observe(Result{Outcome: out, Updates: updates})
	w.setState(logic.StateIdle)
	return nil
}

// ErrNegativeOffset is returned by Validate for a negative start offset.
var ErrNegativeOffset = errors.New("poll: start offset must be >= 0")

// Validate checks cfg without modifying it.
func (cfg Config) Validate() error {
	if cfg.StartOffset < 0 {
		return ErrNegativeOffset
	}
	if cfg.Wait > 0 && cfg.Timeout > 0 && cfg.Timeout <= cfg.Wait {
		return errors.New("poll: client timeout must exceed the server wait")
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
