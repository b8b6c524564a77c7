// Package config loads daemon settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the settings of the sync queue daemon. Every field maps to a
// SYNC_* environment variable; defaults match the original deployment.
type Config struct {
	// DBPath is the sqlite database file.
	DBPath string `mapstructure:"db_path"`
	// ListenAddr is the REST listen address.
	ListenAddr string `mapstructure:"listen_addr"`
	// WebhookURL is where the replay worker delivers entries. Empty
	// disables the worker.
	WebhookURL string `mapstructure:"webhook_url"`
	// PollIntervalMS is the worker poll cadence in milliseconds.
	PollIntervalMS int `mapstructure:"poll_interval_ms"`
	// BatchSize is the worker per-poll claim size.
	BatchSize int `mapstructure:"batch_size"`
	// MaxAttempts is the replay attempt limit before ERROR.
	MaxAttempts int `mapstructure:"max_attempts"`
	// RefreshIntervalMS is the snapshot refresh cadence in milliseconds.
	RefreshIntervalMS int `mapstructure:"refresh_interval_ms"`
	// ListLimit is the page size per snapshot partition.
	ListLimit int `mapstructure:"list_limit"`
	// PurgeAfterHours is the age after which applied entries are purged,
	// zero disables purging.
	PurgeAfterHours int `mapstructure:"purge_after_hours"`
}

// PollInterval returns the worker poll cadence.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// RefreshInterval returns the snapshot refresh cadence.
func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMS) * time.Millisecond
}

// PurgeAfter returns the purge age, zero when purging is disabled.
func (c Config) PurgeAfter() time.Duration {
	return time.Duration(c.PurgeAfterHours) * time.Hour
}

// Load reads configuration from SYNC_* environment variables with defaults.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("sync")
	v.AutomaticEnv()

	v.SetDefault("db_path", "syncqueue.db")
	v.SetDefault("listen_addr", ":5000")
	v.SetDefault("webhook_url", "")
	v.SetDefault("poll_interval_ms", 15000)
	v.SetDefault("batch_size", 10)
	v.SetDefault("max_attempts", 5)
	v.SetDefault("refresh_interval_ms", 30000)
	v.SetDefault("list_limit", 50)
	v.SetDefault("purge_after_hours", 0)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("syncqueue: failed to unmarshal config: %w", err)
	}
	return cfg, nil
}
