package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"iphone-alarms-sync/internal/logging"
)

// Validate checks config invariants and returns a user-friendly error.
func (c Config) Validate() error {
	if c.EntryID == "" {
		return errors.New("entry_id must not be empty")
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.Storage.Backend {
	case BackendFile:
		if c.Storage.Dir == "" {
			return errors.New("storage.dir must not be empty for the file backend")
		}
	case BackendRedis:
		if c.Storage.Redis.Addr == "" {
			return errors.New("storage.redis.addr must not be empty for the redis backend")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q", BackendFile, BackendRedis)
	}

	if c.HTTP.Addr == "" {
		return errors.New("http.addr must not be empty")
	}

	if c.HomeAssistant.Enabled {
		if c.HomeAssistant.URL == "" {
			return errors.New("home_assistant.enabled is true but home_assistant.url is empty")
		}
		if c.HomeAssistant.Token == "" {
			return errors.New("home_assistant.enabled is true but home_assistant.token is empty")
		}
		if c.HomeAssistant.TimeoutMS <= 0 {
			return errors.New("home_assistant.timeout_ms must be > 0")
		}
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return errors.New("mqtt.enabled is true but mqtt.broker is empty")
	}

	if c.Timer.SettleDelayMS < 1 || c.Timer.SettleDelayMS > 5000 {
		return errors.New("timer.settle_delay_ms must be between 1 and 5000")
	}
	if c.Events.MaxRetained < 0 {
		return errors.New("events.max_retained must be >= 0")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return errors.New(`logging.format must be "console" or "json"`)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename tmp: %w", err)
	}
	return nil
}
