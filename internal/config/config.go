// Package config loads service configuration from JOINARR_* environment
// variables.
package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the binaries need.
type Config struct {
	Addr  string `env:"JOINARR_ADDR" envDefault:":8080"`
	PGDSN string `env:"JOINARR_PG_DSN"`

	MediaURL     string        `env:"JOINARR_MEDIA_URL"`
	MediaToken   string        `env:"JOINARR_MEDIA_TOKEN"`
	MediaTimeout time.Duration `env:"JOINARR_MEDIA_TIMEOUT" envDefault:"10s"`

	NtfyURL   string `env:"JOINARR_NTFY_URL"`
	NtfyTopic string `env:"JOINARR_NTFY_TOPIC" envDefault:"joinarr"`

	// CompensateRemote deletes the freshly created remote account when a
	// later join step fails. Off by default: the historical behavior
	// leaves the remote account behind.
	CompensateRemote bool `env:"JOINARR_COMPENSATE_REMOTE" envDefault:"false"`

	// SyncInterval schedules periodic directory syncs; zero disables them.
	SyncInterval time.Duration `env:"JOINARR_SYNC_INTERVAL" envDefault:"0"`

	RateBurst  int `env:"JOINARR_RATE_BURST" envDefault:"20"`
	RatePerSec int `env:"JOINARR_RATE_PER_SEC" envDefault:"10"`
}

// Load parses the environment and checks the required settings.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.MediaURL == "" {
		return Config{}, errors.New("config: JOINARR_MEDIA_URL is required")
	}
	if cfg.MediaToken == "" {
		return Config{}, errors.New("config: JOINARR_MEDIA_TOKEN is required")
	}
	return cfg, nil
}
