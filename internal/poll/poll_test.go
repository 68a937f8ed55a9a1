package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/sweeney/press-notifier/internal/logic"
	"github.com/sweeney/press-notifier/internal/signals"
	"github.com/sweeney/press-notifier/internal/telegram"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const peer = 777

func body(s string) telegram.FakeResult {
	return telegram.FakeResult{Body: []byte(s)}
}

const reply42 = `{"ok":true,"result":[{"update_id":42,"message":{"from":{"id":777},"chat":{"id":1},"text":"ok"}}]}`

type harness struct {
	perf    *telegram.FakePerformer
	latch   *signals.Latch
	w       *Worker
	sleeps  []time.Duration
	results []Result
}

func newHarness(start int64, results ...telegram.FakeResult) *harness {
	h := &harness{
		perf:  telegram.NewFakePerformer(results...),
		latch: signals.NewLatch(),
	}
	h.w = New(Config{
		Peer:        peer,
		StartOffset: start,
		Observe:     func(r Result) { h.results = append(h.results, r) },
		Sleep: func(ctx context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return nil
		},
	}, h.perf, h.latch, signals.NewGate())
	return h
}

func (h *harness) step(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := h.w.Step(context.Background()); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
}

func (h *harness) offsets() []string {
	var out []string
	for _, r := range h.perf.Requests() {
		out = append(out, r.Params.Get("offset"))
	}
	return out
}

func TestNewReplyAdvancesCursorAndSignals(t *testing.T) {
	h := newHarness(40, body(reply42))
	h.step(t, 1)

	if got := h.w.Cursor(); got != 43 {
		t.Errorf("cursor: got %d, want 43", got)
	}
	if !h.latch.IsSet() {
		t.Error("latch should be raised")
	}
	req := h.perf.Requests()[0]
	if req.Method != "getUpdates" || req.Params.Get("timeout") != "58" {
		t.Errorf("request: got %+v", req)
	}
	if req.Timeout != DefaultTimeout {
		t.Errorf("client timeout: got %v, want %v", req.Timeout, DefaultTimeout)
	}
}

func TestRepeatedReplyDoesNotSignalAgain(t *testing.T) {
	h := newHarness(40, body(reply42), body(reply42))
	h.step(t, 1)
	if err := h.latch.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	h.step(t, 1)
	if h.latch.IsSet() {
		t.Error("already seen update raised the latch again")
	}
	if got := h.w.Cursor(); got != 43 {
		t.Errorf("cursor: got %d, want 43", got)
	}
	if diff := cmp.Diff([]string{"40", "43"}, h.offsets()); diff != "" {
		t.Errorf("offsets (-want +got):\n%s", diff)
	}
}

func TestOtherSenderAdvancesWithoutSignal(t *testing.T) {
	h := newHarness(0, body(`{"ok":true,"result":[{"update_id":5,"message":{"from":{"id":1},"chat":{"id":1},"text":"x"}}]}`))
	h.step(t, 1)

	if h.latch.IsSet() {
		t.Error("latch raised for a different sender")
	}
	if got := h.w.Cursor(); got != 6 {
		t.Errorf("cursor: got %d, want 6", got)
	}
}

func TestEmptyAndMalformedKeepCursor(t *testing.T) {
	h := newHarness(10,
		body(`{"ok":true,"result":[]}`),
		body(`not json`),
		body(`{"ok":false,"description":"Conflict"}`),
	)
	h.step(t, 3)

	if got := h.w.Cursor(); got != 10 {
		t.Errorf("cursor: got %d, want 10", got)
	}
	if h.latch.IsSet() {
		t.Error("latch should stay clear")
	}
	if len(h.sleeps) != 0 {
		t.Errorf("malformed responses should not back off, got %v", h.sleeps)
	}
	if !errors.Is(h.results[1].Err, logic.ErrMalformed) {
		t.Errorf("result err: got %v", h.results[1].Err)
	}
}

func TestTransportFailureBacksOffWithoutRegression(t *testing.T) {
	h := newHarness(40,
		body(reply42),
		telegram.FakeResult{Err: errors.New("i/o timeout")},
		telegram.FakeResult{Err: errors.New("i/o timeout")},
		body(`{"ok":true,"result":[]}`),
	)
	h.step(t, 4)

	if diff := cmp.Diff([]string{"40", "43", "43", "43"}, h.offsets()); diff != "" {
		t.Errorf("offsets (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]time.Duration{DefaultBackoff, DefaultBackoff}, h.sleeps); diff != "" {
		t.Errorf("backoffs (-want +got):\n%s", diff)
	}
	if h.perf.Resets() != 2 {
		t.Errorf("Resets: got %d, want 2", h.perf.Resets())
	}
}

func TestAnyPeerWhenUnset(t *testing.T) {
	latch := signals.NewLatch()
	w := New(Config{}, telegram.NewFakePerformer(body(reply42)), latch, signals.NewGate())
	if err := w.Step(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !latch.IsSet() {
		t.Error("peer 0 should accept any sender")
	}
}

func TestRunStopsWithoutConnectivity(t *testing.T) {
	gate := signals.NewGate()
	gate.Set(logic.FailedPermanently)
	perf := telegram.NewFakePerformer()
	w := New(Config{}, perf, signals.NewLatch(), gate)

	if err := w.Run(context.Background()); err != nil {
		t.Errorf("Run: got %v, want nil", err)
	}
	if len(perf.Requests()) != 0 {
		t.Error("no poll expected without connectivity")
	}
	if w.State() != logic.StateStopped {
		t.Errorf("state: got %s", w.State())
	}
}

func TestRunPollsUntilCancelled(t *testing.T) {
	gate := signals.NewGate()
	latch := signals.NewLatch()
	perf := telegram.NewFakePerformer(body(reply42)).BlockWhenExhausted()
	w := New(Config{}, perf, latch, gate)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	gate.Set(logic.Connected)
	wctx, wcancel := context.WithTimeout(ctx, 2*time.Second)
	defer wcancel()
	if err := latch.Wait(wctx); err != nil {
		t.Fatalf("latch never raised: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for w.State() != logic.StateAwaitingResponse && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Run: got %v, want context.Canceled", err)
	}
	if w.Cursor() != 43 {
		t.Errorf("cursor: got %d, want 43", w.Cursor())
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{StartOffset: -1}).Validate(); !errors.Is(err, ErrNegativeOffset) {
		t.Errorf("negative offset: got %v", err)
	}
	if err := (Config{Wait: time.Minute, Timeout: time.Second}).Validate(); err == nil {
		t.Error("timeout below wait should fail")
	}
	if err := (Config{Wait: DefaultWait, Timeout: DefaultTimeout}).Validate(); err != nil {
		t.Errorf("defaults: %v", err)
	}
}
