// Package config loads the press-notifier YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvToken overrides telegram.token so the secret can stay out of the file.
const EnvToken = "TG_BOT_TOKEN"

type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	GPIO      GPIOConfig      `yaml:"gpio"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Poll      PollConfig      `yaml:"poll"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	HTTP      HTTPConfig      `yaml:"http"`
	Heartbeat time.Duration   `yaml:"heartbeat"`
	LogLevel  string          `yaml:"log_level"`
}

// ---- TELEGRAM ----

type TelegramConfig struct {
	APIBase string `yaml:"api_base"`
	Token   string `yaml:"token"`
	ChatID  int64  `yaml:"chat_id"`

	// PeerID is the user whose replies raise the alert. 0 means the chat id.
	PeerID  int64 `yaml:"peer_id"`
	AnyPeer bool  `yaml:"any_peer"`
}

// Peer resolves the watched sender; 0 accepts anyone.
func (t TelegramConfig) Peer() int64 {
	switch {
	case t.AnyPeer:
		return 0
	case t.PeerID != 0:
		return t.PeerID
	}
	return t.ChatID
}

// ---- GPIO ----

type GPIOConfig struct {
	Chip    string         `yaml:"chip"`
	LEDPin  int            `yaml:"led_pin"`
	Blink   time.Duration  `yaml:"blink"`
	Buttons []ButtonConfig `yaml:"buttons"`
}

type ButtonConfig struct {
	Pin  int    `yaml:"pin"`
	Name string `yaml:"name"`
	Text string `yaml:"text"` // message body; defaults to Name
}

// Message returns the text sent for a press.
func (b ButtonConfig) Message() string {
	if b.Text != "" {
		return b.Text
	}
	return b.Name
}

// ---- DISPATCH ----

type DispatchConfig struct {
	Debounce      time.Duration `yaml:"debounce"`
	Timeout       time.Duration `yaml:"timeout"`
	Backoff       time.Duration `yaml:"backoff"`
	MaxAttempts   int           `yaml:"max_attempts"` // 0 = retry until delivered
	QueueCapacity int           `yaml:"queue_capacity"`
}

// ---- POLL ----

type PollConfig struct {
	Wait        time.Duration `yaml:"wait"`
	Timeout     time.Duration `yaml:"timeout"`
	Backoff     time.Duration `yaml:"backoff"`
	StartOffset int64         `yaml:"start_offset"`
}

// ---- BOOTSTRAP ----

type BootstrapConfig struct {
	Attempts int           `yaml:"attempts"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ---- MQTT / HTTP ----

type MQTTConfig struct {
	Broker     string `yaml:"broker"` // empty disables telemetry
	ClientID   string `yaml:"client_id"`
	BufferSize int    `yaml:"buffer_size"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the status server
}

// Default returns the configuration the device ships with.
func Default() Config {
	return Config{
		Telegram: TelegramConfig{APIBase: "https://api.telegram.org"},
		GPIO: GPIOConfig{
			Chip:   "gpiochip0",
			LEDPin: 5,
			Blink:  500 * time.Millisecond,
			Buttons: []ButtonConfig{
				{Pin: 18, Name: "heart"},
				{Pin: 2, Name: "chicken"},
			},
		},
		Dispatch: DispatchConfig{
			Debounce:      250 * time.Millisecond,
			Timeout:       60 * time.Second,
			Backoff:       3 * time.Second,
			QueueCapacity: 20,
		},
		Poll: PollConfig{
			Wait:    58 * time.Second,
			Timeout: 60 * time.Second,
			Backoff: 10 * time.Second,
		},
		Bootstrap: BootstrapConfig{
			Attempts: 5,
			Interval: 5 * time.Second,
			Timeout:  10 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker:     "tcp://192.168.1.200:1883",
			ClientID:   "press-notifier",
			BufferSize: 100,
		},
		HTTP:      HTTPConfig{Addr: ":80"},
		Heartbeat: 15 * time.Minute,
		LogLevel:  "info",
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Unknown keys are rejected. The token from EnvToken, if set, wins over the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if tok := os.Getenv(EnvToken); tok != "" {
		cfg.Telegram.Token = tok
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	path = filepath.Clean(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config %s contains multiple documents or trailing content", path)
	}
	return nil
}
