package ormi

import (
	"context"
	"database/sql"

	"ormigo/storage"
)

// ResultSet incrementally builds a Query descriptor. Builders are held
// in variables and extended call by call; terminal methods hand the
// descriptor to the storage layer.
type ResultSet struct {
	s *Session
	q storage.Query
}

// Select sets the projection. Without it the engine's full column set
// comes back.
func (rs *ResultSet) Select(columns ...string) *ResultSet {
	rs.q.Columns = append(rs.q.Columns, columns...)
	return rs
}

// Where adds filter predicates; all predicates are ANDed.
func (rs *ResultSet) Where(conds ...storage.Cond) *ResultSet {
	rs.q.Conds = append(rs.q.Conds, conds...)
	return rs
}

// OrderBy adds an ascending order term.
func (rs *ResultSet) OrderBy(column string) *ResultSet {
	rs.q.Order = append(rs.q.Order, storage.Asc(column))
	return rs
}

// OrderByDesc adds a descending order term.
func (rs *ResultSet) OrderByDesc(column string) *ResultSet {
	rs.q.Order = append(rs.q.Order, storage.Desc(column))
	return rs
}

// Limit caps the number of rows returned.
func (rs *ResultSet) Limit(rows int) *ResultSet {
	rs.q.Rows = rows
	return rs
}

// Offset skips rows from the start of the ordering.
func (rs *ResultSet) Offset(offset int) *ResultSet {
	rs.q.Offset = offset
	return rs
}

// Query returns the descriptor built so far.
func (rs *ResultSet) Query() storage.Query {
	return rs.q
}

// All executes the query and returns the row sequence.
func (rs *ResultSet) All(ctx context.Context) (*storage.Rows, error) {
	conn, err := rs.s.Conn()
	if err != nil {
		return nil, err
	}
	return conn.Execute(ctx, rs.q)
}

// First executes the query limited to one row and scans it into dest.
// Returns sql.ErrNoRows when nothing matches.
func (rs *ResultSet) First(ctx context.Context, dest ...any) error {
	q := rs.q
	q.Rows = 1
	conn, err := rs.s.Conn()
	if err != nil {
		return err
	}
	rows, err := conn.Execute(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	return rows.Scan(dest...)
}

// Count executes the filter as a COUNT(*).
func (rs *ResultSet) Count(ctx context.Context) (int64, error) {
	conn, err := rs.s.Conn()
	if err != nil {
		return 0, err
	}
	return conn.Count(ctx, rs.q)
}
