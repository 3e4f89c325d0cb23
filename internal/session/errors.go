package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned by operations that need a session
	// configured by a successful Configure call.
	ErrNotInitialized = errors.New("session is not initialized, call Configure first")

	// ErrConnectionUnavailable is returned when a read or write is
	// attempted while the connection is closed, or the server did not
	// answer the liveness probe.
	ErrConnectionUnavailable = errors.New("connection is offline")

	// ErrNoRows is returned when a query succeeded but matched nothing.
	ErrNoRows = errors.New("unable to locate any data using this statement")

	// ErrDuplicateImport is returned when a table is imported twice.
	ErrDuplicateImport = errors.New("table is already imported")

	// ErrTableNotFound is returned when a table is not in the cache.
	ErrTableNotFound = errors.New("table is not imported")

	// ErrInvalidTableName is returned for names that are not plain MySQL
	// identifiers.
	ErrInvalidTableName = errors.New("invalid table name")

	// ErrInvalidParams is returned by Configure for unusable connection
	// parameters.
	ErrInvalidParams = errors.New("invalid connection parameters")

	// ErrCursorClosed is returned when reading from a closed cursor.
	ErrCursorClosed = errors.New("cursor is closed")
)

// DriverError wraps a failure surfaced by the MySQL driver. The driver's
// message is preserved and the cause stays reachable through errors.As.
type DriverError struct {
	Op  string
	Err error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

func driverError(op string, err error) error {
	return &DriverError{Op: op, Err: err}
}
