package database

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/saltyorg/dbquery/internal/config"
)

func newTestPool(t *testing.T, maxConns int, acquireTimeout time.Duration) *sqlPool {
	t.Helper()

	cfg := config.DatabaseConfig{
		Driver:   config.DriverSQLite,
		Path:     filepath.Join(t.TempDir(), "test.db"),
		MaxConns: maxConns,
		Timeouts: config.TimeoutConfig{Acquire: acquireTimeout, Connect: time.Second},
	}

	pool, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to open pool: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })

	p, ok := pool.(*sqlPool)
	if !ok {
		t.Fatalf("expected *sqlPool for sqlite driver, got %T", pool)
	}

	if _, err := p.db.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	if _, err := p.db.Exec(`INSERT INTO t (id, name) VALUES (1, 'alpha'), (2, 'beta'), (5, 'gamma')`); err != nil {
		t.Fatalf("failed to seed table: %v", err)
	}

	return p
}

func assertNoneCheckedOut(t *testing.T, pool Pool) {
	t.Helper()
	if inUse := pool.Stats().InUse; inUse != 0 {
		t.Fatalf("expected no connections checked out, got %d", inUse)
	}
}

func TestExecute_ReturnsRows(t *testing.T) {
	pool := newTestPool(t, 2, time.Second)
	exec := NewExecutor(pool)

	rows, err := exec.Execute(context.Background(), "SELECT id, name FROM t ORDER BY id")
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0]["id"] != int64(1) || rows[0]["name"] != "alpha" {
		t.Fatalf("unexpected first row: %v", rows[0])
	}
	if rows[2]["id"] != int64(5) || rows[2]["name"] != "gamma" {
		t.Fatalf("unexpected last row: %v", rows[2])
	}
	assertNoneCheckedOut(t, pool)
}

func TestExecute_PositionalParameters(t *testing.T) {
	pool := newTestPool(t, 2, time.Second)
	exec := NewExecutor(pool)

	rows, err := exec.Execute(context.Background(), "SELECT name FROM t WHERE id = $1", 5)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(rows) != 1 || rows[0]["name"] != "gamma" {
		t.Fatalf("expected single gamma row, got %v", rows)
	}

	rows, err = exec.Execute(context.Background(), "SELECT name FROM t WHERE id > $1 AND id < $2 ORDER BY id", 0, 3)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %v", rows)
	}
}

func TestExecute_ParametersAreNeverSyntax(t *testing.T) {
	pool := newTestPool(t, 2, time.Second)
	exec := NewExecutor(pool)
	ctx := context.Background()

	adversarial := []any{
		"5; DROP TABLE t",
		"5 OR 1=1",
		"alpha' OR '1'='1",
		"'; DELETE FROM t; --",
	}

	for _, param := range adversarial {
		rows, err := exec.Execute(ctx, "SELECT * FROM t WHERE id = $1", param)
		if err != nil {
			t.Fatalf("param %q: unexpected error: %v", param, err)
		}
		if len(rows) != 0 {
			t.Fatalf("param %q: expected no rows, got %v", param, rows)
		}

		rows, err = exec.Execute(ctx, "SELECT * FROM t WHERE name = $1", param)
		if err != nil {
			t.Fatalf("param %q: unexpected error: %v", param, err)
		}
		if len(rows) != 0 {
			t.Fatalf("param %q: expected no rows, got %v", param, rows)
		}
	}

	rows, err := exec.Execute(ctx, "SELECT COUNT(*) AS n FROM t")
	if err != nil {
		t.Fatalf("table should still exist: %v", err)
	}
	if rows[0]["n"] != int64(3) {
		t.Fatalf("expected 3 rows to survive, got %v", rows[0]["n"])
	}
}

func TestExecute_EngineErrorBecomesQueryError(t *testing.T) {
	pool := newTestPool(t, 2, time.Second)
	exec := NewExecutor(pool)

	rows, err := exec.Execute(context.Background(), "SELECT * FROM nope")
	if err == nil {
		t.Fatal("expected an error for a missing table")
	}
	if rows != nil {
		t.Fatalf("expected no rows on failure, got %v", rows)
	}

	var qe *QueryError
	if !errors.As(err, &qe) {
		t.Fatalf("expected *QueryError, got %T: %v", err, err)
	}
	if !strings.Contains(qe.Message, "no such table: nope") {
		t.Fatalf("expected engine message to be kept, got %q", qe.Message)
	}
	if qe.Code == "" {
		t.Fatal("expected sqlite result code to be recorded")
	}
	if qe.Unwrap() == nil {
		t.Fatal("expected the original error to be preserved")
	}

	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		t.Fatal("query failure must not be reported as a connection failure")
	}
	assertNoneCheckedOut(t, pool)
}

func TestExecute_MalformedStatement(t *testing.T) {
	pool := newTestPool(t, 1, time.Second)
	exec := NewExecutor(pool)

	_, err := exec.Execute(context.Background(), "SELEC 1")
	var qe *QueryError
	if !errors.As(err, &qe) {
		t.Fatalf("expected *QueryError for malformed statement, got %v", err)
	}
	if !strings.Contains(qe.Message, "syntax error") {
		t.Fatalf("expected syntax error message, got %q", qe.Message)
	}
	assertNoneCheckedOut(t, pool)
}

func TestExecute_EmptyResult(t *testing.T) {
	pool := newTestPool(t, 1, time.Second)
	exec := NewExecutor(pool)

	rows, err := exec.Execute(context.Background(), "SELECT * FROM t WHERE 1 = 0")
	if err != nil {
		t.Fatalf("expected no error for empty result, got %v", err)
	}
	if rows == nil {
		t.Fatal("expected an empty slice, got nil")
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %v", rows)
	}
}

func TestExecute_ReleasesOnEveryPath(t *testing.T) {
	pool := newTestPool(t, 2, time.Second)
	exec := NewExecutor(pool)
	ctx := context.Background()

	statements := []string{
		"SELECT * FROM t",
		"SELECT * FROM nope",
		"SELECT * FROM t WHERE 1 = 0",
		"SELEC broken",
		"SELECT name FROM t WHERE id = $1",
	}

	for i := 0; i < 20; i++ {
		stmt := statements[i%len(statements)]
		if strings.Contains(stmt, "$1") {
			_, _ = exec.Execute(ctx, stmt, i)
		} else {
			_, _ = exec.Execute(ctx, stmt)
		}
	}

	assertNoneCheckedOut(t, pool)
}

func TestAcquire_ConcurrentCallersGetDistinctConnections(t *testing.T) {
	const n = 4
	pool := newTestPool(t, n, 5*time.Second)
	ctx := context.Background()

	conns := make([]*sqlConn, n)
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := pool.acquire(ctx)
			if err != nil {
				errs <- err
				return
			}
			conns[i] = c
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("acquire failed: %v", err)
	}

	if inUse := pool.Stats().InUse; inUse != n {
		t.Fatalf("expected %d connections checked out, got %d", n, inUse)
	}

	// Temp tables are per physical connection, so a shared connection
	// would fail the second CREATE.
	for i, c := range conns {
		if _, err := c.conn.ExecContext(ctx, "CREATE TEMP TABLE marker (v INTEGER)"); err != nil {
			t.Fatalf("conn %d: create marker: %v", i, err)
		}
		if _, err := c.conn.ExecContext(ctx, "INSERT INTO marker (v) VALUES (?)", i); err != nil {
			t.Fatalf("conn %d: insert marker: %v", i, err)
		}
	}
	for i, c := range conns {
		rows, err := c.Query(ctx, "SELECT v FROM marker")
		if err != nil {
			t.Fatalf("conn %d: read marker: %v", i, err)
		}
		if len(rows) != 1 || rows[0]["v"] != int64(i) {
			t.Fatalf("conn %d: expected only its own marker, got %v", i, rows)
		}
	}

	for _, c := range conns {
		c.Release()
	}
	assertNoneCheckedOut(t, pool)
}

func TestExecute_WaitsWhenPoolExhausted(t *testing.T) {
	pool := newTestPool(t, 1, 5*time.Second)
	exec := NewExecutor(pool)
	ctx := context.Background()

	held, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	type result struct {
		rows []Row
		err  error
	}
	done := make(chan result, 1)
	go func() {
		rows, err := exec.Execute(ctx, "SELECT name FROM t WHERE id = $1", 2)
		done <- result{rows, err}
	}()

	select {
	case r := <-done:
		t.Fatalf("expected Execute to wait for a free connection, returned %v / %v", r.rows, r.err)
	case <-time.After(100 * time.Millisecond):
	}

	held.Release()

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("expected success once a connection freed, got %v", r.err)
		}
		if len(r.rows) != 1 || r.rows[0]["name"] != "beta" {
			t.Fatalf("unexpected rows: %v", r.rows)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not resume after release")
	}

	if pool.Stats().WaitCount == 0 {
		t.Fatal("expected the pool to record a wait")
	}
	assertNoneCheckedOut(t, pool)
}

func TestExecute_ManyConcurrentCallersShareSmallPool(t *testing.T) {
	const maxConns = 2
	pool := newTestPool(t, maxConns, 10*time.Second)
	exec := NewExecutor(pool)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 25)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rows, err := exec.Execute(ctx, "SELECT id FROM t WHERE id = $1", i%3+1)
			if err != nil {
				errs <- err
				return
			}
			if rows == nil {
				errs <- errors.New("nil rows")
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent Execute failed: %v", err)
	}
	if open := pool.Stats().Open; open > maxConns {
		t.Fatalf("pool exceeded capacity: %d open", open)
	}
	assertNoneCheckedOut(t, pool)
}

func TestAcquire_TimeoutIsConnectionError(t *testing.T) {
	pool := newTestPool(t, 1, 50*time.Millisecond)
	ctx := context.Background()

	held, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer held.Release()

	_, err = NewExecutor(pool).Execute(ctx, "SELECT 1")
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected *ConnectionError, got %T: %v", err, err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded cause, got %v", err)
	}
}

func TestRelease_IsIdempotent(t *testing.T) {
	pool := newTestPool(t, 1, time.Second)
	ctx := context.Background()

	c, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	c.Release()
	c.Release()
	assertNoneCheckedOut(t, pool)

	rows, err := NewExecutor(pool).Execute(ctx, "SELECT 1 AS one")
	if err != nil {
		t.Fatalf("pool unusable after double release: %v", err)
	}
	if rows[0]["one"] != int64(1) {
		t.Fatalf("unexpected row %v", rows[0])
	}
}

func TestClosedPoolRejectsAcquire(t *testing.T) {
	pool := newTestPool(t, 1, time.Second)
	if err := pool.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}

	_, err := NewExecutor(pool).Execute(context.Background(), "SELECT 1")
	if !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected *ConnectionError, got %T", err)
	}
}

func TestPingAndStats(t *testing.T) {
	pool := newTestPool(t, 3, time.Second)

	if err := pool.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	stats := pool.Stats()
	if stats.Driver != config.DriverSQLite {
		t.Fatalf("expected sqlite driver in stats, got %q", stats.Driver)
	}
	if stats.MaxConns != 3 {
		t.Fatalf("expected max conns 3, got %d", stats.MaxConns)
	}
	if stats.Open < 1 || stats.Idle < 1 {
		t.Fatalf("expected an idle connection after ping, got %+v", stats)
	}
	assertNoneCheckedOut(t, pool)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "oracle"})
	if err == nil || !strings.Contains(err.Error(), "unsupported database driver") {
		t.Fatalf("expected unsupported driver error, got %v", err)
	}
}

func TestAcquire_UnreachablePostgres(t *testing.T) {
	for _, driver := range []string{config.DriverPostgres, config.DriverPostgresSQL} {
		t.Run(driver, func(t *testing.T) {
			cfg := config.DatabaseConfig{
				Driver:   driver,
				Host:     "127.0.0.1",
				Port:     1,
				User:     "app",
				Password: "hunter2",
				Name:     "db",
				MaxConns: 1,
				Timeouts: config.TimeoutConfig{Acquire: 3 * time.Second, Connect: 2 * time.Second},
			}

			pool, err := Open(context.Background(), cfg)
			if err != nil {
				t.Fatalf("Open should be lazy and succeed, got %v", err)
			}
			defer pool.Close()

			_, err = NewExecutor(pool).Execute(context.Background(), "SELECT 1")
			var connErr *ConnectionError
			if !errors.As(err, &connErr) {
				t.Fatalf("expected *ConnectionError, got %T: %v", err, err)
			}
			if strings.Contains(err.Error(), "hunter2") {
				t.Fatalf("password leaked in error: %v", err)
			}
			assertNoneCheckedOut(t, pool)
		})
	}
}
