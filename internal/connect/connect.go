// Package connect runs the one-shot connectivity bootstrap and reports its
// outcome through the connectivity gate.
package connect

import (
	"context"
	"time"

	"github.com/sweeney/press-notifier/internal/log"
	"github.com/sweeney/press-notifier/internal/logic"
	"github.com/sweeney/press-notifier/internal/signals"
	"github.com/sweeney/press-notifier/internal/telegram"
)

const (
	DefaultAttempts = 5
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 10 * time.Second
)

// Prober checks whether the remote service is reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// APIProber probes the Bot API with getMe.
type APIProber struct {
	Perf    telegram.Performer
	Timeout time.Duration
}

// Probe calls getMe and resets the connection on failure.
func (p APIProber) Probe(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	_, err := p.Perf.Perform(ctx, telegram.GetMe(timeout))
	if err != nil {
		p.Perf.Reset()
	}
	return err
}

// Await probes up to attempts times, interval apart, and returns Connected
// on the first success or FailedPermanently once attempts are used up.
// attempts <= 0 uses DefaultAttempts. If ctx is done first it returns
// Disconnected with ctx.Err().
func Await(ctx context.Context, p Prober, attempts int, interval time.Duration) (logic.ConnectivityState, error) {
	logger := log.WithComponent("connect")
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	for i := 1; ; i++ {
		err := p.Probe(ctx)
		if err == nil {
			logger.Info().Int("attempt", i).Msg("connected")
			return logic.Connected, nil
		}
		if ctx.Err() != nil {
			return logic.Disconnected, ctx.Err()
		}
		if i >= attempts {
			logger.Error().Err(err).Int("attempts", i).Msg("failed to connect")
			return logic.FailedPermanently, nil
		}
		logger.Warn().Err(err).Int("attempt", i).Dur("retry_in", interval).Msg("retry to connect")

		t := time.NewTimer(interval)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return logic.Disconnected, ctx.Err()
		}
	}
}

// Bootstrap runs Await and writes a terminal outcome to gate.
func Bootstrap(ctx context.Context, gate *signals.Gate, p Prober, attempts int, interval time.Duration) error {
	state, err := Await(ctx, p, attempts, interval)
	if err != nil {
		return err
	}
	gate.Set(state)
	return nil
}
