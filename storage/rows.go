package storage

import (
	"database/sql"
)

// Rows is a lazy, finite sequence of result rows. It is not
// restartable; re-issue the query instead. The underlying statement
// handle is a scoped resource: it is released on full consumption or
// Close, and engines without multiple active statements need it
// released before the next statement on the same connection.
type Rows struct {
	rows   *sql.Rows
	closed bool
}

// Next advances to the next row. It returns false at the end of the
// sequence or on error; check Err after a false return.
func (r *Rows) Next() bool {
	if r.closed {
		return false
	}
	ok := r.rows.Next()
	if !ok {
		r.closed = true
	}
	return ok
}

// Scan copies the current row's columns into dest.
func (r *Rows) Scan(dest ...any) error {
	return r.rows.Scan(dest...)
}

// Columns returns the result column names.
func (r *Rows) Columns() ([]string, error) {
	return r.rows.Columns()
}

// Err returns the error, if any, that ended the sequence early.
func (r *Rows) Err() error {
	return r.rows.Err()
}

// Close releases the statement handle. Safe to call more than once.
func (r *Rows) Close() error {
	r.closed = true
	return r.rows.Close()
}
