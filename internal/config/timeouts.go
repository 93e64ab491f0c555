package config

import "time"

// TimeoutConfig holds timeout settings for pool operations.
type TimeoutConfig struct {
	// Acquire bounds how long a caller waits for a free connection when the
	// pool is at capacity. Default: 30s
	Acquire time.Duration

	// Connect bounds dialing a new physical connection. Default: 10s
	Connect time.Duration
}

// DefaultTimeoutConfig returns the default timeout configuration
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Acquire: 30 * time.Second,
		Connect: 10 * time.Second,
	}
}

// LoadTimeoutConfig reads DB_ACQUIRE_TIMEOUT and DB_CONNECT_TIMEOUT,
// keeping the defaults for unset or non-positive values.
func LoadTimeoutConfig(l *Loader) TimeoutConfig {
	cfg := DefaultTimeoutConfig()
	if d := l.Duration("DB_ACQUIRE_TIMEOUT", cfg.Acquire); d > 0 {
		cfg.Acquire = d
	}
	if d := l.Duration("DB_CONNECT_TIMEOUT", cfg.Connect); d > 0 {
		cfg.Connect = d
	}
	return cfg
}
