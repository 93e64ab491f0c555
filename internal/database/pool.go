package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/saltyorg/dbquery/internal/config"
)

// ErrPoolClosed is returned (wrapped in a ConnectionError) by Acquire after Close.
var ErrPoolClosed = errors.New("pool is closed")

// Row is a single result row keyed by column name.
type Row = map[string]any

// Conn is a connection checked out of a Pool. It is owned by one caller
// until Release, and must not be used after that.
type Conn interface {
	// Query runs statement with args bound positionally by the driver.
	Query(ctx context.Context, statement string, args ...any) ([]Row, error)

	// Release returns the connection to the pool. Calling it again is a no-op.
	Release()
}

// Pool hands out exclusive connections from a bounded set.
type Pool interface {
	// Acquire checks out a connection, dialing a new one while below
	// capacity or waiting for a release otherwise. All failures are
	// *ConnectionError.
	Acquire(ctx context.Context) (Conn, error)

	// Ping acquires a connection and verifies the server responds.
	Ping(ctx context.Context) error

	// Stats returns a snapshot of pool bookkeeping.
	Stats() Stats

	// Close closes idle connections and rejects further acquires.
	Close() error
}

// Stats describes pool usage at a point in time.
type Stats struct {
	Driver       string        `json:"driver"`
	MaxConns     int           `json:"max_conns"`
	Open         int           `json:"open"`
	InUse        int           `json:"in_use"`
	Idle         int           `json:"idle"`
	WaitCount    int64         `json:"wait_count"`
	WaitDuration time.Duration `json:"wait_duration"`
}

// Open builds a lazy pool for cfg.Driver. No connection is dialed until the
// first Acquire.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Pool, error) {
	switch cfg.Driver {
	case config.DriverPostgres, "":
		return newPgxPool(ctx, cfg)
	case config.DriverPostgresSQL:
		return newPostgresSQLPool(cfg)
	case config.DriverSQLite:
		return newSQLitePool(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
