package database

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/saltyorg/dbquery/internal/config"
)

const (
	connMaxLifetime = 30 * time.Minute
	connMaxIdleTime = 5 * time.Minute
)

// sqlPool is a Pool backed by database/sql. database/sql does the
// idle/in-use bookkeeping under its own lock; this type adds the acquire
// timeout, logging and error typing.
type sqlPool struct {
	db             *sql.DB
	driver         string
	target         string
	maxConns       int
	acquireTimeout time.Duration
	closed         atomic.Bool
}

func newSQLitePool(cfg config.DatabaseConfig) (*sqlPool, error) {
	// WAL lets readers proceed alongside the single writer
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return newSQLPool(db, cfg), nil
}

func newPostgresSQLPool(cfg config.DatabaseConfig) (*sqlPool, error) {
	connConfig, err := postgresConnConfig(cfg)
	if err != nil {
		return nil, err
	}
	return newSQLPool(stdlib.OpenDB(*connConfig), cfg), nil
}

func postgresConnConfig(cfg config.DatabaseConfig) (*pgx.ConnConfig, error) {
	connConfig, err := pgx.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %s", sanitize(err.Error()))
	}
	configureTLS(&connConfig.Config, cfg)
	connConfig.ConnectTimeout = cfg.Timeouts.Connect
	return connConfig, nil
}

func newSQLPool(db *sql.DB, cfg config.DatabaseConfig) *sqlPool {
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	log.Debug().
		Str("driver", cfg.Driver).
		Str("target", cfg.Redacted()).
		Int("max_conns", cfg.MaxConns).
		Msg("Database pool configured")

	return &sqlPool{
		db:             db,
		driver:         cfg.Driver,
		target:         cfg.Redacted(),
		maxConns:       cfg.MaxConns,
		acquireTimeout: cfg.Timeouts.Acquire,
	}
}

func (p *sqlPool) Acquire(ctx context.Context) (Conn, error) {
	return p.acquire(ctx)
}

func (p *sqlPool) acquire(ctx context.Context) (*sqlConn, error) {
	if p.closed.Load() {
		return nil, newConnectionError("acquire", ErrPoolClosed)
	}

	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		cerr := newConnectionError("acquire", err)
		log.Error().Str("driver", p.driver).Str("target", p.target).Str("error", cerr.Error()).Msg("Error connecting to database")
		return nil, cerr
	}

	log.Debug().Str("driver", p.driver).Msg("Successfully connected to database")
	return &sqlConn{conn: conn}, nil
}

func (p *sqlPool) Ping(ctx context.Context) error {
	c, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer c.Release()

	if err := c.conn.PingContext(ctx); err != nil {
		return newConnectionError("ping", err)
	}
	return nil
}

func (p *sqlPool) Stats() Stats {
	s := p.db.Stats()
	return Stats{
		Driver:       p.driver,
		MaxConns:     p.maxConns,
		Open:         s.OpenConnections,
		InUse:        s.InUse,
		Idle:         s.Idle,
		WaitCount:    s.WaitCount,
		WaitDuration: s.WaitDuration,
	}
}

func (p *sqlPool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.db.Close()
}

type sqlConn struct {
	conn *sql.Conn
	once sync.Once
}

func (c *sqlConn) Query(ctx context.Context, statement string, args ...any) ([]Row, error) {
	rows, err := c.conn.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func (c *sqlConn) Release() {
	c.once.Do(func() {
		if err := c.conn.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to return connection to pool")
		}
	})
}

// configureTLS applies the transport mode. With AcceptAnyServerCert the
// handshake skips chain and hostname checks; otherwise TLS is off.
func configureTLS(pc *pgconn.Config, cfg config.DatabaseConfig) {
	pc.Fallbacks = nil
	if !cfg.AcceptAnyServerCert {
		pc.TLSConfig = nil
		return
	}
	pc.TLSConfig = &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec // opt-in via DB_SSL
		ServerName:         cfg.Host,
		MinVersion:         tls.VersionTLS12,
	}
}
