package telegram

import (
	"context"
	"errors"
	"sync"
)

// ErrExhausted is returned by FakePerformer when its script runs out and
// Block is false.
var ErrExhausted = errors.New("telegram: fake script exhausted")

// FakeResult is one scripted outcome of Perform.
type FakeResult struct {
	Body []byte
	Err  error
}

// FakePerformer replays scripted results and records every request.
// Safe for concurrent use.
type FakePerformer struct {
	mu       sync.Mutex
	results  []FakeResult
	requests []Request
	resets   int
	block    bool
	onCall   func(Request)
}

// NewFakePerformer creates a performer returning results in order.
func NewFakePerformer(results ...FakeResult) *FakePerformer {
	return &FakePerformer{results: results}
}

// BlockWhenExhausted makes Perform wait for ctx once the script is used up,
// like a long poll with nothing to report.
func (f *FakePerformer) BlockWhenExhausted() *FakePerformer {
	f.mu.Lock()
	f.block = true
	f.mu.Unlock()
	return f
}

// OnCall registers a hook run at the start of every Perform, outside the lock.
func (f *FakePerformer) OnCall(fn func(Request)) {
	f.mu.Lock()
	f.onCall = fn
	f.mu.Unlock()
}

// Push appends results to the script.
func (f *FakePerformer) Push(results ...FakeResult) {
	f.mu.Lock()
	f.results = append(f.results, results...)
	f.mu.Unlock()
}

// Perform records req and returns the next scripted result.
func (f *FakePerformer) Perform(ctx context.Context, req Request) ([]byte, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	hook := f.onCall
	f.mu.Unlock()

	if hook != nil {
		hook(req)
	}

	f.mu.Lock()
	if len(f.results) == 0 {
		block := f.block
		f.mu.Unlock()
		if block {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return nil, ErrExhausted
	}
	r := f.results[0]
	f.results = f.results[1:]
	f.mu.Unlock()

	return r.Body, r.Err
}

// Reset counts connection resets.
func (f *FakePerformer) Reset() {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
}

// Requests returns a copy of every request performed so far.
func (f *FakePerformer) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

// Resets returns how many times Reset was called.
func (f *FakePerformer) Resets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

var _ Performer = (*FakePerformer)(nil)
