package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/sweeney/press-notifier/internal/logic"
	"github.com/sweeney/press-notifier/internal/queue"
	"github.com/sweeney/press-notifier/internal/signals"
	"github.com/sweeney/press-notifier/internal/telegram"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	pinHeart   logic.SourceID = 18
	pinChicken logic.SourceID = 2
)

var errReset = errors.New("connection reset by peer")

func actions() map[logic.SourceID]Action {
	return map[logic.SourceID]Action{
		pinHeart:   {Name: "heart", Request: telegram.SendMessage(1234, "heart", time.Second)},
		pinChicken: {Name: "chicken", Request: telegram.SendMessage(1234, "chicken", time.Second)},
	}
}

func press(src logic.SourceID, ms int) logic.PressEvent {
	return logic.PressEvent{Source: src, ObservedAt: time.Duration(ms) * time.Millisecond}
}

// fakeIndicator records busy transitions and acknowledgements.
type fakeIndicator struct {
	mu    sync.Mutex
	busy  []bool
	alert bool
	acks  int
}

func (f *fakeIndicator) Busy(on bool) {
	f.mu.Lock()
	f.busy = append(f.busy, on)
	f.mu.Unlock()
}

func (f *fakeIndicator) Acknowledge() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	was := f.alert
	f.alert = false
	return was
}

type harness struct {
	q        *queue.Channel
	perf     *telegram.FakePerformer
	ind      *fakeIndicator
	w        *Worker
	sleeps   []time.Duration
	outcomes []Outcome
}

func newHarness(t *testing.T, maxAttempts int, results ...telegram.FakeResult) *harness {
	t.Helper()
	h := &harness{
		q:    queue.New(10),
		perf: telegram.NewFakePerformer(results...),
		ind:  &fakeIndicator{},
	}
	cfg := Config{
		Actions:     actions(),
		Debounce:    250 * time.Millisecond,
		Backoff:     3 * time.Second,
		MaxAttempts: maxAttempts,
		Observe:     func(o Outcome) { h.outcomes = append(h.outcomes, o) },
		Sleep: func(ctx context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return nil
		},
	}
	h.w = New(cfg, h.q, h.perf, h.ind, signals.NewGate())
	return h
}

// drain steps the worker until the channel is empty.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for steps := 0; h.q.Len() > 0; steps++ {
		if steps > 100 {
			t.Fatal("worker did not drain the channel")
		}
		ev, err := h.q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if err := h.w.Step(ctx, ev); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
}

func (h *harness) texts() []string {
	var out []string
	for _, r := range h.perf.Requests() {
		out = append(out, r.Params.Get("text"))
	}
	return out
}

func (h *harness) kinds() []Kind {
	var out []Kind
	for _, o := range h.outcomes {
		out = append(out, o.Kind)
	}
	return out
}

func ok() telegram.FakeResult {
	return telegram.FakeResult{Body: []byte(`{"ok":true}`)}
}

func fail() telegram.FakeResult {
	return telegram.FakeResult{Err: errReset}
}

func TestBounceProducesOneAction(t *testing.T) {
	h := newHarness(t, 0, ok(), ok())
	h.q.TryPush(press(pinHeart, 0))
	h.q.TryPush(press(pinHeart, 100))

	h.drain(t)

	if diff := cmp.Diff([]string{"heart"}, h.texts()); diff != "" {
		t.Errorf("requests (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Kind{KindDispatched, KindRejected}, h.kinds()); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
}

func TestDistinctActionPerButton(t *testing.T) {
	h := newHarness(t, 0, ok(), ok())
	h.q.TryPush(press(pinHeart, 0))
	h.q.TryPush(press(pinChicken, 1000))

	h.drain(t)

	if diff := cmp.Diff([]string{"heart", "chicken"}, h.texts()); diff != "" {
		t.Errorf("requests (-want +got):\n%s", diff)
	}
}

func TestRetryKeepsEventAtHead(t *testing.T) {
	h := newHarness(t, 0, fail(), fail(), ok(), ok())
	h.q.TryPush(press(pinHeart, 0))
	h.q.TryPush(press(pinChicken, 1000))

	h.drain(t)

	// Three attempts for heart before chicken is looked at.
	if diff := cmp.Diff([]string{"heart", "heart", "heart", "chicken"}, h.texts()); diff != "" {
		t.Errorf("requests (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]time.Duration{3 * time.Second, 3 * time.Second}, h.sleeps); diff != "" {
		t.Errorf("backoffs (-want +got):\n%s", diff)
	}
	want := []Kind{KindRetry, KindRetry, KindDispatched, KindDispatched}
	if diff := cmp.Diff(want, h.kinds()); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
	if h.outcomes[2].Attempt != 3 || h.outcomes[2].Action != "heart" {
		t.Errorf("heart success: got %+v", h.outcomes[2])
	}
	if h.outcomes[3].Attempt != 1 {
		t.Errorf("chicken should succeed first time, got attempt %d", h.outcomes[3].Attempt)
	}
	if h.perf.Resets() != 2 {
		t.Errorf("Resets: got %d, want 2", h.perf.Resets())
	}
}

func TestReplaySkipsDebounce(t *testing.T) {
	// Held button: the bounce at 100ms arrives while the first press is
	// failing. The replay must not be debounced away and the bounce must not
	// become a second action.
	h := newHarness(t, 0, fail(), ok())
	h.q.TryPush(press(pinHeart, 0))
	h.q.TryPush(press(pinHeart, 100))

	h.drain(t)

	if diff := cmp.Diff([]string{"heart", "heart"}, h.texts()); diff != "" {
		t.Errorf("requests (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Kind{KindRetry, KindDispatched, KindRejected}, h.kinds()); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
}

func TestUnknownSourceDiscarded(t *testing.T) {
	h := newHarness(t, 0, ok())
	h.q.TryPush(press(27, 0))

	h.drain(t)

	if len(h.perf.Requests()) != 0 {
		t.Errorf("unknown source should not reach the network, got %d requests", len(h.perf.Requests()))
	}
	if diff := cmp.Diff([]Kind{KindUnknown}, h.kinds()); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
	if len(h.sleeps) != 0 {
		t.Error("unknown source should never back off")
	}
}

func TestPermanentRejectionDropped(t *testing.T) {
	h := newHarness(t, 0, telegram.FakeResult{Err: &telegram.StatusError{Code: 400, Description: "chat not found"}}, ok())
	h.q.TryPush(press(pinHeart, 0))
	h.q.TryPush(press(pinChicken, 1000))

	h.drain(t)

	if diff := cmp.Diff([]string{"heart", "chicken"}, h.texts()); diff != "" {
		t.Errorf("requests (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Kind{KindDropped, KindDispatched}, h.kinds()); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
}

func TestMaxAttemptsBoundsRetries(t *testing.T) {
	h := newHarness(t, 2, fail(), fail(), ok())
	h.q.TryPush(press(pinHeart, 0))

	h.drain(t)

	if len(h.perf.Requests()) != 2 {
		t.Errorf("requests: got %d, want 2", len(h.perf.Requests()))
	}
	if diff := cmp.Diff([]Kind{KindRetry, KindDropped}, h.kinds()); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
	if len(h.sleeps) != 1 {
		t.Errorf("backoffs: got %d, want 1", len(h.sleeps))
	}
}

func TestBusyScopedToCall(t *testing.T) {
	h := newHarness(t, 0, fail(), ok())
	h.q.TryPush(press(pinHeart, 0))

	h.drain(t)

	// on/off around each of the two calls, off during the backoff.
	if diff := cmp.Diff([]bool{true, false, true, false}, h.ind.busy); diff != "" {
		t.Errorf("busy transitions (-want +got):\n%s", diff)
	}
}

func TestAcceptedPressAcknowledgesOnce(t *testing.T) {
	h := newHarness(t, 0, fail(), ok())
	h.ind.alert = true
	h.q.TryPush(press(pinHeart, 0))

	h.drain(t)

	if h.ind.acks != 1 {
		t.Errorf("acks: got %d, want 1 (replays do not acknowledge)", h.ind.acks)
	}
	if h.ind.alert {
		t.Error("alert should be cleared")
	}
}

func TestStateAfterStep(t *testing.T) {
	h := newHarness(t, 0, fail())
	if h.w.State() != logic.StateIdle {
		t.Errorf("initial state: got %s", h.w.State())
	}
	h.q.TryPush(press(pinHeart, 0))
	ev, _ := h.q.Pop(context.Background())
	if err := h.w.Step(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if h.w.State() != logic.StateBackingOff {
		t.Errorf("state after failure: got %s, want BACKING_OFF", h.w.State())
	}
	if h.q.Len() != 1 {
		t.Errorf("failed event should be back in the channel, Len=%d", h.q.Len())
	}
}

func TestRunWaitsForConnectivity(t *testing.T) {
	q := queue.New(10)
	perf := telegram.NewFakePerformer(ok())
	gate := signals.NewGate()
	done := make(chan Outcome, 1)
	w := New(Config{
		Actions: actions(),
		Observe: func(o Outcome) { done <- o },
	}, q, perf, &fakeIndicator{}, gate)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	q.TryPush(press(pinHeart, 0))
	time.Sleep(20 * time.Millisecond)
	if len(perf.Requests()) != 0 {
		t.Fatal("worker dispatched before connectivity")
	}

	gate.Set(logic.Connected)
	select {
	case o := <-done:
		if o.Kind != KindDispatched {
			t.Errorf("outcome: got %s", o.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("press not dispatched after connect")
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Run: got %v, want context.Canceled", err)
	}
	if w.State() != logic.StateStopped {
		t.Errorf("state: got %s, want STOPPED", w.State())
	}
}

func TestRunStopsOnPermanentFailure(t *testing.T) {
	gate := signals.NewGate()
	gate.Set(logic.FailedPermanently)
	w := New(Config{Actions: actions()}, queue.New(10), telegram.NewFakePerformer(), &fakeIndicator{}, gate)

	if err := w.Run(context.Background()); err != nil {
		t.Errorf("Run: got %v, want nil", err)
	}
	if w.State() != logic.StateStopped {
		t.Errorf("state: got %s, want STOPPED", w.State())
	}
}

func TestBackoffInterruptedByShutdown(t *testing.T) {
	q := queue.New(10)
	gate := signals.NewGate()
	gate.Set(logic.Connected)
	w := New(Config{Actions: actions(), Backoff: time.Hour}, q, telegram.NewFakePerformer(fail()), &fakeIndicator{}, gate)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	q.TryPush(press(pinHeart, 0))
	deadline := time.Now().Add(2 * time.Second)
	for w.State() != logic.StateBackingOff && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if w.State() != logic.StateBackingOff {
		t.Fatalf("state: got %s, want BACKING_OFF", w.State())
	}

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run: got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return during backoff")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); !errors.Is(err, ErrNoActions) {
		t.Errorf("empty config: got %v", err)
	}
	if err := (Config{Actions: actions()}).Validate(); err != nil {
		t.Errorf("valid config: %v", err)
	}
	bad := Config{Actions: map[logic.SourceID]Action{1: {Name: "x"}}}
	if err := bad.Validate(); err == nil {
		t.Error("action without method should fail")
	}
	if err := (Config{Actions: actions(), MaxAttempts: -1}).Validate(); err == nil {
		t.Error("negative max attempts should fail")
	}
}
