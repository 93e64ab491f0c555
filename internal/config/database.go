package config

import (
	"net"
	"net/url"
	"strconv"
)

// Supported database drivers
const (
	DriverPostgres    = "postgres"
	DriverPostgresSQL = "postgres-sql"
	DriverSQLite      = "sqlite"
)

// Defaults applied when the environment leaves a value unset
const (
	DefaultDriver         = DriverPostgres
	DefaultHost           = "localhost"
	DefaultPort           = 5432
	DefaultUser           = "postgres"
	DefaultName           = "postgres"
	DefaultSQLitePath     = "./dbquery.db"
	DefaultMaxConns       = 10
	DefaultHealthSchedule = "@every 30s"
)

// DatabaseConfig holds everything needed to build a connection pool.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// AcceptAnyServerCert turns on TLS without validating the server's
	// certificate chain. Only suitable on trusted networks. When false the
	// connection is made without TLS.
	AcceptAnyServerCert bool

	// Path is the database file for the sqlite driver.
	Path string

	// MaxConns caps the number of connections open at once.
	MaxConns int

	// HealthSchedule is a cron spec for periodic pool checks.
	HealthSchedule string

	Timeouts TimeoutConfig
}

// LoadDatabaseConfig reads DB_* settings through the loader.
func LoadDatabaseConfig(l *Loader) DatabaseConfig {
	cfg := DatabaseConfig{
		Driver:              l.String("DB_DRIVER", DefaultDriver),
		Host:                l.String("DB_HOST", DefaultHost),
		Port:                l.Int("DB_PORT", DefaultPort),
		User:                l.String("DB_USER", DefaultUser),
		Password:            l.String("DB_PASSWORD", ""),
		Name:                l.String("DB_NAME", DefaultName),
		AcceptAnyServerCert: l.Bool("DB_SSL", false),
		Path:                l.String("DB_PATH", DefaultSQLitePath),
		MaxConns:            l.Int("DB_MAX_CONNS", DefaultMaxConns),
		HealthSchedule:      l.String("DB_HEALTH_SCHEDULE", DefaultHealthSchedule),
		Timeouts:            LoadTimeoutConfig(l),
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = DefaultMaxConns
	}
	return cfg
}

// URL builds a postgres:// connection URL. TLS is negotiated with
// sslmode=require when AcceptAnyServerCert is set, which in libpq terms
// encrypts without verifying the server.
func (c DatabaseConfig) URL() string {
	return c.url(url.UserPassword(c.User, c.Password))
}

// Redacted returns URL with the password masked, for logs.
func (c DatabaseConfig) Redacted() string {
	if c.Driver == DriverSQLite {
		return c.Path
	}
	if c.Password == "" {
		return c.url(url.User(c.User))
	}
	return c.url(url.UserPassword(c.User, "xxxxx"))
}

func (c DatabaseConfig) url(user *url.Userinfo) string {
	sslMode := "disable"
	if c.AcceptAnyServerCert {
		sslMode = "require"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     user,
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}
