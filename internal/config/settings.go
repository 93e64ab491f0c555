package config

import (
	"os"
	"strconv"
	"time"
)

// SettingsGetter is an interface for retrieving raw settings by key
type SettingsGetter interface {
	GetSetting(key string) (string, error)
}

// EnvSource reads settings from the process environment
type EnvSource struct{}

// GetSetting returns the environment variable named key, or "" when unset
func (EnvSource) GetSetting(key string) (string, error) {
	return os.Getenv(key), nil
}

// MapSource serves settings from a fixed map. Handy for tests and for
// callers that already hold their settings in memory.
type MapSource map[string]string

// GetSetting returns the value stored under key, or "" when absent
func (m MapSource) GetSetting(key string) (string, error) {
	return m[key], nil
}

// Loader provides typed access to settings with default values
type Loader struct {
	src SettingsGetter
}

// NewLoader creates a new settings loader
func NewLoader(src SettingsGetter) *Loader {
	return &Loader{src: src}
}

// NewEnvLoader creates a loader backed by the process environment
func NewEnvLoader() *Loader {
	return NewLoader(EnvSource{})
}

func (l *Loader) raw(key string) string {
	if l == nil || l.src == nil {
		return ""
	}
	val, _ := l.src.GetSetting(key)
	return val
}

// Int retrieves an integer setting, returning defaultVal if not found or invalid
func (l *Loader) Int(key string, defaultVal int) int {
	if val := l.raw(key); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			return v
		}
	}
	return defaultVal
}

// Bool retrieves a boolean setting, returning defaultVal if not found
// Recognizes "true" as true, anything else (including "false") as false
func (l *Loader) Bool(key string, defaultVal bool) bool {
	if val := l.raw(key); val != "" {
		return val == "true"
	}
	return defaultVal
}

// String retrieves a string setting, returning defaultVal if not found or empty
func (l *Loader) String(key, defaultVal string) string {
	if val := l.raw(key); val != "" {
		return val
	}
	return defaultVal
}

// Duration retrieves a duration setting, returning defaultVal if not found or invalid
// Expects the value to be in Go duration format (e.g., "1h30m", "5s")
func (l *Loader) Duration(key string, defaultVal time.Duration) time.Duration {
	if val := l.raw(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
