package database

import "context"

// Executor runs one statement per call on its own pooled connection.
type Executor struct {
	pool Pool
}

// NewExecutor returns an executor that draws connections from pool.
func NewExecutor(pool Pool) *Executor {
	return &Executor{pool: pool}
}

// Execute acquires a connection, runs statement with params bound
// positionally ($1, $2, ... for Postgres), and releases the connection
// before returning.
//
// Acquisition failures are returned as *ConnectionError without running
// anything. Engine failures are returned as *QueryError and yield no rows.
// A statement matching nothing returns an empty, non-nil slice.
func (e *Executor) Execute(ctx context.Context, statement string, params ...any) ([]Row, error) {
	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, statement, params...)
	if err != nil {
		return nil, newQueryError(err)
	}
	if rows == nil {
		rows = []Row{}
	}
	return rows, nil
}
