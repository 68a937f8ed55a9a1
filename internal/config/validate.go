package config

import (
	"errors"
	"fmt"
)

// Validate checks configuration correctness.
// It performs declarative validation only and never mutates cfg.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Telegram.Token == "" {
		errs = append(errs, fmt.Errorf("telegram.token is required (or set %s)", EnvToken))
	}
	if cfg.Telegram.ChatID == 0 {
		errs = append(errs, errors.New("telegram.chat_id is required"))
	}

	if len(cfg.GPIO.Buttons) == 0 {
		errs = append(errs, errors.New("gpio.buttons: at least one button is required"))
	}
	pins := map[int]string{cfg.GPIO.LEDPin: "led_pin"}
	names := map[string]bool{}
	for i, b := range cfg.GPIO.Buttons {
		if b.Pin < 0 {
			errs = append(errs, fmt.Errorf("gpio.buttons[%d]: pin must be >= 0", i))
		}
		if prev, ok := pins[b.Pin]; ok {
			errs = append(errs, fmt.Errorf("gpio.buttons[%d]: pin %d already used by %s", i, b.Pin, prev))
		}
		pins[b.Pin] = fmt.Sprintf("buttons[%d]", i)
		if b.Name == "" {
			errs = append(errs, fmt.Errorf("gpio.buttons[%d]: name is required", i))
		} else if names[b.Name] {
			errs = append(errs, fmt.Errorf("gpio.buttons[%d]: duplicate name %q", i, b.Name))
		}
		names[b.Name] = true
	}
	if cfg.GPIO.LEDPin < 0 {
		errs = append(errs, errors.New("gpio.led_pin must be >= 0"))
	}
	if cfg.GPIO.Blink <= 0 {
		errs = append(errs, errors.New("gpio.blink must be positive"))
	}

	if cfg.Dispatch.Debounce < 0 {
		errs = append(errs, errors.New("dispatch.debounce must be >= 0"))
	}
	if cfg.Dispatch.Timeout <= 0 || cfg.Dispatch.Backoff <= 0 {
		errs = append(errs, errors.New("dispatch.timeout and dispatch.backoff must be positive"))
	}
	if cfg.Dispatch.MaxAttempts < 0 {
		errs = append(errs, errors.New("dispatch.max_attempts must be >= 0"))
	}
	if cfg.Dispatch.QueueCapacity < 10 {
		errs = append(errs, fmt.Errorf("dispatch.queue_capacity must be >= 10, got %d", cfg.Dispatch.QueueCapacity))
	}

	if cfg.Poll.Wait <= 0 || cfg.Poll.Backoff <= 0 {
		errs = append(errs, errors.New("poll.wait and poll.backoff must be positive"))
	}
	if cfg.Poll.Timeout <= cfg.Poll.Wait {
		errs = append(errs, fmt.Errorf("poll.timeout (%v) must exceed poll.wait (%v)", cfg.Poll.Timeout, cfg.Poll.Wait))
	}
	if cfg.Poll.StartOffset < 0 {
		errs = append(errs, errors.New("poll.start_offset must be >= 0"))
	}

	if cfg.Bootstrap.Attempts < 1 {
		errs = append(errs, errors.New("bootstrap.attempts must be >= 1"))
	}
	if cfg.Heartbeat < 0 {
		errs = append(errs, errors.New("heartbeat must be >= 0 (0 disables)"))
	}

	return errors.Join(errs...)
}
