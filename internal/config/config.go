// Package config loads bridge tunables from the environment.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config carries every tunable the bridge exposes. All fields have defaults
// and may be overridden through OBJBRIDGE_* environment variables.
type Config struct {
	// RetryInterval is the sleep between cross-thread enqueue attempts.
	RetryInterval time.Duration `envconfig:"RETRY_INTERVAL" default:"100ms"`
	// WarnAfter is the cumulative wait before scheduling emits diagnostics.
	WarnAfter time.Duration `envconfig:"WARN_AFTER" default:"60s"`
	// AbandonAfter is the cumulative wait before a release is abandoned.
	AbandonAfter time.Duration `envconfig:"ABANDON_AFTER" default:"120s"`
	// QueueCapacity bounds the pending cross-thread callback queue.
	QueueCapacity int `envconfig:"QUEUE_CAPACITY" default:"64"`

	// MaxMessageLen caps rendered error messages before middle truncation.
	MaxMessageLen int `envconfig:"MAX_MESSAGE_LEN" default:"1000"`
	// TruncateReserve is the slack subtracted from MaxMessageLen so the
	// truncation marker and tail fit under the cap.
	TruncateReserve int `envconfig:"TRUNCATE_RESERVE" default:"20"`

	// Debug switches the logger to development output.
	Debug bool `envconfig:"DEBUG" default:"false"`
}

// Load reads OBJBRIDGE_* environment variables over the defaults.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("objbridge", &c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Default returns the built-in defaults without consulting the environment.
func Default() Config {
	return Config{
		RetryInterval:   100 * time.Millisecond,
		WarnAfter:       60 * time.Second,
		AbandonAfter:    120 * time.Second,
		QueueCapacity:   64,
		MaxMessageLen:   1000,
		TruncateReserve: 20,
	}
}
