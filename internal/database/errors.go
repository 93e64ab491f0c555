package database

import (
	"errors"
	"regexp"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
)

var (
	urlCredentialsPattern = regexp.MustCompile(`://[^@\s/]+@`)
	passwordParamPattern  = regexp.MustCompile(`(?i)(password=)([^\s&]+)`)
)

// ConnectionError reports a failure to obtain a connection: the server is
// unreachable, rejected the credentials, the pool is closed, or the acquire
// timeout elapsed.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	msg := "database connection failed"
	if e.Op != "" {
		msg += " (" + e.Op + ")"
	}
	if e.Err != nil {
		msg += ": " + sanitize(e.Err.Error())
	}
	return msg
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// QueryError reports that the engine rejected or failed a statement.
// Message is the engine's own message; Err keeps the original error.
type QueryError struct {
	Message string
	// Code is the engine's error code: a SQLSTATE for Postgres, the
	// numeric result code for SQLite. Empty when unknown.
	Code   string
	Detail string
	Err    error
}

func (e *QueryError) Error() string {
	if e.Code != "" {
		return "query failed: " + e.Message + " (" + e.Code + ")"
	}
	return "query failed: " + e.Message
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func newQueryError(err error) *QueryError {
	qe := &QueryError{Message: err.Error(), Err: err}

	var pgErr *pgconn.PgError
	var sqliteErr *sqlite.Error
	switch {
	case errors.As(err, &pgErr):
		qe.Message = pgErr.Message
		qe.Code = pgErr.Code
		qe.Detail = pgErr.Detail
	case errors.As(err, &sqliteErr):
		qe.Code = strconv.Itoa(sqliteErr.Code())
	}

	return qe
}

func newConnectionError(op string, err error) *ConnectionError {
	return &ConnectionError{Op: op, Err: err}
}

// sanitize masks credentials that drivers may echo back in error text.
func sanitize(s string) string {
	s = urlCredentialsPattern.ReplaceAllString(s, "://***@")
	return passwordParamPattern.ReplaceAllString(s, "${1}***")
}
