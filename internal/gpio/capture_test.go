package gpio

import (
	"testing"
	"time"

	"github.com/sweeney/press-notifier/internal/logic"
	"github.com/sweeney/press-notifier/internal/queue"
)

func TestCaptureEnqueues(t *testing.T) {
	q := queue.New(10)
	c := NewCapture(q)

	c.Edge(18, 1500*time.Millisecond)

	if q.Len() != 1 {
		t.Fatalf("Len: got %d, want 1", q.Len())
	}
	if c.Captured() != 1 || c.Dropped() != 0 {
		t.Errorf("counters: captured=%d dropped=%d", c.Captured(), c.Dropped())
	}
}

func TestCaptureDropsWhenFull(t *testing.T) {
	q := queue.New(10)
	c := NewCapture(q)

	for i := 0; i < q.Cap(); i++ {
		c.Edge(18, time.Duration(i)*time.Second)
	}
	c.Edge(2, time.Hour)

	if q.Len() != q.Cap() {
		t.Errorf("Len: got %d, want %d", q.Len(), q.Cap())
	}
	if c.Dropped() != 1 {
		t.Errorf("Dropped: got %d, want 1", c.Dropped())
	}
	if c.Captured() != uint64(q.Cap()+1) {
		t.Errorf("Captured: got %d, want %d", c.Captured(), q.Cap()+1)
	}
}

type recordingQueue struct {
	events []logic.PressEvent
}

func (r *recordingQueue) TryPush(ev logic.PressEvent) bool {
	r.events = append(r.events, ev)
	return true
}

func TestCaptureEventFields(t *testing.T) {
	r := &recordingQueue{}
	c := NewCapture(r)
	c.Edge(2, 42*time.Millisecond)

	if len(r.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(r.events))
	}
	want := logic.PressEvent{Source: 2, ObservedAt: 42 * time.Millisecond}
	if r.events[0] != want {
		t.Errorf("event: got %+v, want %+v", r.events[0], want)
	}
}
