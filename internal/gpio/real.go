//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/press-notifier/internal/logic"
)

// RealWatcher watches button lines on the GPIO character device and feeds
// rising edges to a Capture.
type RealWatcher struct {
	lines *gpiocdev.Lines
	pins  []int
}

// NewRealWatcher requests pins as inputs with pull-down and rising-edge
// detection. Each edge is handed to capture from the library's event goroutine.
func NewRealWatcher(chip string, pins []int, capture *Capture) (*RealWatcher, error) {
	if len(pins) == 0 {
		return nil, errors.New("no button pins configured")
	}

	handler := func(evt gpiocdev.LineEvent) {
		capture.Edge(logic.SourceID(evt.Offset), evt.Timestamp)
	}

	lines, err := gpiocdev.RequestLines(chip, pins,
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(handler),
	)
	if err != nil {
		return nil, fmt.Errorf("request button pins %v: %w", pins, err)
	}

	return &RealWatcher{lines: lines, pins: pins}, nil
}

// Read returns the current level of each button line.
func (w *RealWatcher) Read() ([]bool, error) {
	raw := make([]int, len(w.pins))
	if err := w.lines.Values(raw); err != nil {
		return nil, fmt.Errorf("read button pins: %w", err)
	}
	levels := make([]bool, len(raw))
	for i, v := range raw {
		levels[i] = v == 1
	}
	return levels, nil
}

// Close stops edge detection and releases the lines.
// Lines are left as inputs with pull-down, matching Pi boot defaults.
func (w *RealWatcher) Close() error {
	var errs []error
	if err := w.lines.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure button pins: %w", err))
	}
	if err := w.lines.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close button pins: %w", err))
	}
	return errors.Join(errs...)
}

// RealLED drives the status LED output line.
type RealLED struct {
	line *gpiocdev.Line
}

// NewRealLED requests pin as an output, initially off.
func NewRealLED(chip string, pin int) (*RealLED, error) {
	line, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request LED pin %d: %w", pin, err)
	}
	return &RealLED{line: line}, nil
}

// Set turns the LED on or off.
func (l *RealLED) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		return fmt.Errorf("set LED: %w", err)
	}
	return nil
}

// Close turns the LED off and returns the line to an input with pull-down.
func (l *RealLED) Close() error {
	var errs []error
	if err := l.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("switch LED off: %w", err))
	}
	if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure LED pin: %w", err))
	}
	if err := l.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close LED pin: %w", err))
	}
	return errors.Join(errs...)
}
