package database

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/dbquery/internal/config"
)

// pgxPool is the native Postgres Pool built on pgxpool.
type pgxPool struct {
	pool           *pgxpool.Pool
	target         string
	acquireTimeout time.Duration
	closed         atomic.Bool
}

func newPgxPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxPool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %s", sanitize(err.Error()))
	}

	configureTLS(&poolConfig.ConnConfig.Config, cfg)
	poolConfig.ConnConfig.ConnectTimeout = cfg.Timeouts.Connect
	poolConfig.MaxConns = int32(cfg.MaxConns) //nolint:gosec // bounded by config
	poolConfig.MinConns = 0
	poolConfig.MaxConnLifetime = connMaxLifetime
	poolConfig.MaxConnIdleTime = connMaxIdleTime

	// NewWithConfig does not dial while MinConns is zero
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %s", sanitize(err.Error()))
	}

	log.Debug().
		Str("driver", config.DriverPostgres).
		Str("target", cfg.Redacted()).
		Int("max_conns", cfg.MaxConns).
		Msg("Database pool configured")

	return &pgxPool{
		pool:           pool,
		target:         cfg.Redacted(),
		acquireTimeout: cfg.Timeouts.Acquire,
	}, nil
}

func (p *pgxPool) Acquire(ctx context.Context) (Conn, error) {
	return p.acquire(ctx)
}

func (p *pgxPool) acquire(ctx context.Context) (*pgxConn, error) {
	if p.closed.Load() {
		return nil, newConnectionError("acquire", ErrPoolClosed)
	}

	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		cerr := newConnectionError("acquire", err)
		log.Error().Str("driver", config.DriverPostgres).Str("target", p.target).Str("error", cerr.Error()).Msg("Error connecting to database")
		return nil, cerr
	}

	log.Debug().Str("driver", config.DriverPostgres).Msg("Successfully connected to database")
	return &pgxConn{conn: conn}, nil
}

func (p *pgxPool) Ping(ctx context.Context) error {
	c, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer c.Release()

	if err := c.conn.Ping(ctx); err != nil {
		return newConnectionError("ping", err)
	}
	return nil
}

func (p *pgxPool) Stats() Stats {
	s := p.pool.Stat()
	return Stats{
		Driver:       config.DriverPostgres,
		MaxConns:     int(s.MaxConns()),
		Open:         int(s.TotalConns()),
		InUse:        int(s.AcquiredConns()),
		Idle:         int(s.IdleConns()),
		WaitCount:    s.EmptyAcquireCount(),
		WaitDuration: s.AcquireDuration(),
	}
}

func (p *pgxPool) Close() error {
	if p.closed.CompareAndSwap(false, true) {
		p.pool.Close()
	}
	return nil
}

type pgxConn struct {
	conn *pgxpool.Conn
	once sync.Once
}

func (c *pgxConn) Query(ctx context.Context, statement string, args ...any) ([]Row, error) {
	rows, err := c.conn.Query(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToMap)
}

func (c *pgxConn) Release() {
	c.once.Do(c.conn.Release)
}
