package gpio

import (
	"errors"
	"sync"
)

// FakeReader is a test double that returns scripted button levels.
type FakeReader struct {
	// Samples contains scripted levels to return.
	// Each call to Read() consumes the next sample.
	Samples [][]bool

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples ...[]bool) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() ([]bool, error) {
	if f.ReadError != nil {
		return nil, f.ReadError
	}
	if len(f.Samples) == 0 {
		return nil, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return sample, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// FakeLED records every level it is driven to. Safe for concurrent use.
type FakeLED struct {
	// SetErr, if set, will be returned by Set.
	SetErr error

	mu     sync.Mutex
	levels []bool
	closed bool
	onSet  func(on bool)
}

// NewFakeLED creates an LED that starts off with no recorded levels.
func NewFakeLED() *FakeLED {
	return &FakeLED{}
}

// OnSet registers a hook called after every Set, outside the lock.
func (f *FakeLED) OnSet(fn func(on bool)) {
	f.mu.Lock()
	f.onSet = fn
	f.mu.Unlock()
}

// Set records the level.
func (f *FakeLED) Set(on bool) error {
	f.mu.Lock()
	if f.SetErr != nil {
		err := f.SetErr
		f.mu.Unlock()
		return err
	}
	f.levels = append(f.levels, on)
	hook := f.onSet
	f.mu.Unlock()

	if hook != nil {
		hook(on)
	}
	return nil
}

// On reports the last level set (false if never set).
func (f *FakeLED) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.levels) == 0 {
		return false
	}
	return f.levels[len(f.levels)-1]
}

// Levels returns a copy of every level set so far.
func (f *FakeLED) Levels() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.levels...)
}

// Close marks the LED as closed.
func (f *FakeLED) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeLED) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
