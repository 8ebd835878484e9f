// Package config loads the small set of environment-driven settings the
// CLI shell needs: the IANA timezone sent with every recognition request,
// and the recognition client's self-throttle interval. Grounded on the
// joho/godotenv convention used across the pack's service-style repos for
// loading a local .env before falling back to the process environment.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the settings resolved from .env / the process environment.
type Config struct {
	Timezone         string
	RequestInterval  time.Duration
	MicrophoneDevice string
}

// Load reads .env if present (silently ignoring its absence, since a
// deployed binary has no reason to ship one) and resolves Config from the
// environment, applying defaults for anything unset.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Timezone:         envOr("TUNEWIRE_TIMEZONE", defaultTimezone()),
		RequestInterval:  3 * time.Second,
		MicrophoneDevice: os.Getenv("TUNEWIRE_MIC_DEVICE"),
	}
	if raw := os.Getenv("TUNEWIRE_REQUEST_INTERVAL_MS"); raw != "" {
		if ms, err := time.ParseDuration(raw + "ms"); err == nil {
			cfg.RequestInterval = ms
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// defaultTimezone falls back to the TZ environment variable, which on
// most Unix systems already holds an IANA zone name (e.g.
// "America/New_York"); Shazam's discovery endpoint expects exactly that
// format, so anything else is better left as UTC than guessed at.
func defaultTimezone() string {
	if tz := os.Getenv("TZ"); tz != "" {
		return tz
	}
	return "UTC"
}
