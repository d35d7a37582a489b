// Package config holds the runtime configuration for the server
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every tunable the server reads at startup. Values come
// from flags and the environment; see Load for the variable names.
type Config struct {
	Debug bool
	Port  string

	RedisURL string

	// InitialClock is each player's starting time budget in seconds.
	InitialClock int64

	// RequeueDelay is how long an unmatched player waits before the
	// worker looks at them again.
	RequeueDelay time.Duration

	// DrawOfferTTL bounds how long a draw offer stays answerable. Zero
	// means offers never expire.
	DrawOfferTTL time.Duration

	// WaitingSessionTTL bounds how long a session may sit in the
	// waiting state before it is abandoned. Zero disables the sweep.
	WaitingSessionTTL time.Duration

	// SweepInterval is how often abandoned waiting sessions are checked.
	SweepInterval time.Duration

	APIKeys []string
}

// Load fills a Config from the environment on top of the given flag
// values. Missing variables fall back to defaults that match the
// original deployment (10 minute clocks, 3 second requeue backoff).
func Load(debug bool, port string) *Config {
	cfg := &Config{
		Debug:         debug,
		Port:          port,
		InitialClock:  600,
		RequeueDelay:  3 * time.Second,
		SweepInterval: time.Minute,
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	if cfg.RedisURL == "" {
		cfg.RedisURL = "redis://localhost:6379/0"
	}

	if v := strings.TrimSpace(os.Getenv("INITIAL_CLOCK_SECONDS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.InitialClock = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("REQUEUE_DELAY")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.RequeueDelay = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("DRAW_OFFER_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.DrawOfferTTL = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("WAITING_SESSION_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.WaitingSessionTTL = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("SWEEP_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SweepInterval = d
		}
	}

	if envAPIKeys := os.Getenv("API_KEYS"); envAPIKeys != "" {
		keys := strings.Split(envAPIKeys, ",")
		for i, key := range keys {
			keys[i] = strings.TrimSpace(key)
		}
		cfg.APIKeys = keys
	}

	return cfg
}
