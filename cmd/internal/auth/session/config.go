package session

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// TTL is the lifetime of a regular login.
	TTL time.Duration

	// RememberTTL is the lifetime of a remember-me login. Never below TTL.
	RememberTTL time.Duration

	// TokenBytes is the random byte count of a session token.
	TokenBytes int

	// SweepInterval is the period of the expired-session sweep. Zero disables it.
	SweepInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		TTL:           24 * time.Hour,
		RememberTTL:   30 * 24 * time.Hour,
		TokenBytes:    32,
		SweepInterval: 10 * time.Minute,
	}
}

// LoadConfigFromEnv overlays the environment on DefaultConfig:
//
//   - TODOLIST_SESSION_TTL
//   - TODOLIST_SESSION_REMEMBER_TTL
//   - TODOLIST_SESSION_TOKEN_BYTES (32..64)
//   - TODOLIST_SESSION_SWEEP_INTERVAL (0 disables)
//
// Any invalid value yields ErrConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("TODOLIST_SESSION_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.TTL = d
	}

	if v := strings.TrimSpace(os.Getenv("TODOLIST_SESSION_REMEMBER_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RememberTTL = d
	}

	if v := strings.TrimSpace(os.Getenv("TODOLIST_SESSION_TOKEN_BYTES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.TokenBytes = n
	}

	if v := strings.TrimSpace(os.Getenv("TODOLIST_SESSION_SWEEP_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.SweepInterval = d
	}

	if cfg.RememberTTL < cfg.TTL {
		return Config{}, ErrConfig
	}
	return cfg, nil
}
