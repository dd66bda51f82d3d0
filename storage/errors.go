package storage

import (
	"errors"
	"fmt"
)

var (
	ErrNoAdapter        = errors.New("no adapter registered for connection type")
	ErrNoDialect        = errors.New("no dialect registered for engine")
	ErrNotInTransaction = errors.New("not in a transaction")
	ErrFinished         = errors.New("transaction scope already closed")
	ErrNoSavepoints     = errors.New("dialect does not support savepoints")
)

// ConnectionError reports a failure to establish or keep a physical
// connection. The single automatic reconnect in Conn.Do has already
// happened by the time callers see one of these.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// UnsupportedPaginationError means the requested rows/offset
// combination is not expressible in the negotiated dialect. Retrying
// cannot help, the dialect is fixed for the connection.
type UnsupportedPaginationError struct {
	Engine string
	Rows   int
	Offset int
}

func (e *UnsupportedPaginationError) Error() string {
	return fmt.Sprintf("dialect %s cannot paginate rows=%d offset=%d", e.Engine, e.Rows, e.Offset)
}

// IdentityResolutionError means no mechanism produced a generated key
// for an inserted row.
type IdentityResolutionError struct {
	Table  string
	Column string
	Err    error
}

func (e *IdentityResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot resolve identity for %s.%s: %v", e.Table, e.Column, e.Err)
	}
	return fmt.Sprintf("cannot resolve identity for %s.%s", e.Table, e.Column)
}

func (e *IdentityResolutionError) Unwrap() error { return e.Err }

// TransactionDisciplineError means a scope tried to close a
// transaction or savepoint it did not open, or closed one while a
// nested scope was still open. The outer transaction has been rolled
// back by the time this is returned.
type TransactionDisciplineError struct {
	Op    string
	Level int
	Depth int
}

func (e *TransactionDisciplineError) Error() string {
	return fmt.Sprintf("transaction %s out of order: scope level %d, stack depth %d", e.Op, e.Level, e.Depth)
}
