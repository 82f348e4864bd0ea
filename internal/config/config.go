package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration of the sync service.
type Config struct {
	// EntryID names the configuration entry, i.e. the persistence slot.
	EntryID  string `yaml:"entry_id"`
	Timezone string `yaml:"timezone"`

	Storage       StorageConfig       `yaml:"storage"`
	HTTP          HTTPConfig          `yaml:"http"`
	HomeAssistant HomeAssistantConfig `yaml:"home_assistant"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	Timer         TimerConfig         `yaml:"timer"`
	Events        EventsConfig        `yaml:"events"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type StorageConfig struct {
	Backend string      `yaml:"backend"` // "file" or "redis"
	Dir     string      `yaml:"dir"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// PublicURL is the base URL the phone reaches us at; used for the shortcut QR code.
	PublicURL string `yaml:"public_url"`
}

type HomeAssistantConfig struct {
	Enabled   bool   `yaml:"enabled"`
	URL       string `yaml:"url"`
	Token     string `yaml:"token"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type TimerConfig struct {
	SettleDelayMS int `yaml:"settle_delay_ms"`
}

type EventsConfig struct {
	MaxRetained int `yaml:"max_retained"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// DefaultConfig returns a fully-populated Config.
func DefaultConfig() Config {
	return Config{
		EntryID:  "default",
		Timezone: "Local",
		Storage: StorageConfig{
			Backend: BackendFile,
			Dir:     DefaultDataDir(),
			Redis: RedisConfig{
				Addr:      "127.0.0.1:6379",
				KeyPrefix: "iphone_alarms_sync:entry:",
			},
		},
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:8124",
		},
		HomeAssistant: HomeAssistantConfig{
			URL:       "http://homeassistant.local:8123",
			TimeoutMS: 5000,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://127.0.0.1:1883",
			ClientID:    "iphone-alarms-sync",
			TopicPrefix: "iphone_alarms_sync",
		},
		Timer: TimerConfig{
			SettleDelayMS: 500,
		},
		Events: EventsConfig{
			MaxRetained: 500,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// Load reads path on top of the defaults. A missing file yields the defaults;
// unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, errors.New("decode config yaml: unexpected trailing document")
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(path string, cfg Config) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config yaml: %w", err)
	}
	return writeFileAtomic(ExpandPath(path), out)
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SettleDelay is the minimal re-check delay used when an occurrence is already due.
func (c Config) SettleDelay() time.Duration {
	return time.Duration(c.Timer.SettleDelayMS) * time.Millisecond
}

// HomeAssistantTimeout is the HTTP timeout for the Home Assistant event bus.
func (c Config) HomeAssistantTimeout() time.Duration {
	return time.Duration(c.HomeAssistant.TimeoutMS) * time.Millisecond
}
