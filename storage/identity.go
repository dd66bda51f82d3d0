package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Insert writes one row and resolves the generated value of idColumn
// using the dialect's mechanism. An empty idColumn skips resolution
// and returns 0.
func (c *Conn) Insert(ctx context.Context, table string, values map[string]any, idColumn string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, err := c.dialectLocked(ctx)
	if err != nil {
		return 0, err
	}
	columns := make([]string, 0, len(values))
	for col := range values {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	ordered := make([]any, len(columns))
	for i, col := range columns {
		ordered[i] = values[col]
	}

	returning := ""
	if idColumn != "" && d.Identity == IdentityReturning {
		returning = idColumn
	}
	text, args, err := RenderInsert(table, columns, ordered, d, returning)
	if err != nil {
		return 0, err
	}

	var id int64
	err = c.do(ctx, func(ctx context.Context, _ *sql.DB) error {
		var ierr error
		id, ierr = c.insertResolve(ctx, d, table, idColumn, text, args)
		return ierr
	})
	if err != nil {
		c.metrics.QueryFail.Inc(1)
		return 0, err
	}
	return id, nil
}

func (c *Conn) insertResolve(ctx context.Context, d *Dialect, table, idColumn, text string, args []any) (int64, error) {
	if idColumn == "" {
		_, err := c.execContext(ctx, text, args)
		return 0, err
	}
	switch d.Identity {
	case IdentityReturning:
		c.debugSQL(text, args)
		var id int64
		if err := c.querier().QueryRowContext(ctx, text, args...).Scan(&id); err != nil {
			return 0, &IdentityResolutionError{Table: table, Column: idColumn, Err: err}
		}
		c.metrics.Query.Inc(1)
		return id, nil
	case IdentityLastInsertID:
		res, err := c.execContext(ctx, text, args)
		if err != nil {
			return 0, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, &IdentityResolutionError{Table: table, Column: idColumn, Err: err}
		}
		return id, nil
	case IdentityScopeQuery:
		return c.insertScopeQuery(ctx, d, table, idColumn, text, args)
	case IdentityGeneratorTrigger:
		return c.insertGeneratorTrigger(ctx, d, table, idColumn, text, args)
	}
	return 0, &IdentityResolutionError{Table: table, Column: idColumn}
}

// insertScopeQuery runs the insert and the identity lookup on the same
// physical session. The last-identity value is scoped to a connection;
// letting the pool pick different sessions for the two statements
// would read someone else's key.
func (c *Conn) insertScopeQuery(ctx context.Context, d *Dialect, table, idColumn, text string, args []any) (int64, error) {
	var id int64
	read := func(q querier) error {
		c.debugSQL(text, args)
		if _, err := q.ExecContext(ctx, text, args...); err != nil {
			return err
		}
		c.metrics.Query.Inc(1)
		return q.QueryRowContext(ctx, d.IdentityQuery).Scan(&id)
	}
	if c.tx != nil {
		if err := read(c.tx); err != nil {
			return 0, &IdentityResolutionError{Table: table, Column: idColumn, Err: err}
		}
		return id, nil
	}
	sc, err := c.db.Conn(ctx)
	if err != nil {
		return 0, err
	}
	defer sc.Close()
	if err := read(sc); err != nil {
		return 0, &IdentityResolutionError{Table: table, Column: idColumn, Err: err}
	}
	return id, nil
}

// insertGeneratorTrigger is the Firebird 2.x path: find out which
// generator the table's before-insert trigger uses for the column,
// insert, then read the generator's current value on the same session.
func (c *Conn) insertGeneratorTrigger(ctx context.Context, d *Dialect, table, idColumn, text string, args []any) (int64, error) {
	gen, err := c.generatorFor(ctx, d, table, idColumn)
	if err != nil {
		return 0, &IdentityResolutionError{Table: table, Column: idColumn, Err: err}
	}
	genQuery := fmt.Sprintf("SELECT GEN_ID(%s, 0) FROM RDB$DATABASE", gen)
	var id int64
	read := func(q querier) error {
		c.debugSQL(text, args)
		if _, err := q.ExecContext(ctx, text, args...); err != nil {
			return err
		}
		c.metrics.Query.Inc(1)
		return q.QueryRowContext(ctx, genQuery).Scan(&id)
	}
	if c.tx != nil {
		err = read(c.tx)
	} else {
		var sc *sql.Conn
		sc, err = c.db.Conn(ctx)
		if err != nil {
			return 0, err
		}
		defer sc.Close()
		err = read(sc)
	}
	if err != nil {
		return 0, &IdentityResolutionError{Table: table, Column: idColumn, Err: err}
	}
	return id, nil
}

// generatorFor introspects the trigger definitions on table and
// pattern-matches the body for the generator that populates column.
// The mapping is cached on the Conn for the lifetime of the schema
// metadata (until Invalidate or reconnect).
func (c *Conn) generatorFor(ctx context.Context, d *Dialect, table, column string) (string, error) {
	key := table + "." + column
	if gen, ok := c.generators[key]; ok {
		return gen, nil
	}
	// The relation name is inlined: this path only runs on dialects
	// that do not bind.
	rows, err := c.querier().QueryContext(ctx,
		"SELECT RDB$TRIGGER_SOURCE FROM RDB$TRIGGERS "+
			"WHERE RDB$RELATION_NAME = "+d.QuoteString(strings.ToUpper(table))+
			" AND RDB$TRIGGER_TYPE = 1 AND RDB$TRIGGER_INACTIVE = 0")
	if err != nil {
		return "", err
	}
	defer rows.Close()
	for rows.Next() {
		var source sql.NullString
		if err := rows.Scan(&source); err != nil {
			return "", err
		}
		if !source.Valid {
			continue
		}
		if gen, ok := parseGeneratorSource(source.String, column); ok {
			c.generators[key] = gen
			return gen, nil
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no generator trigger found for %s.%s", table, column)
}

var genIDPattern = regexp.MustCompile(`(?is)new\."?([\w$]+)"?\s*=\s*gen_id\s*\(\s*([\w$]+)`)

// parseGeneratorSource scans a trigger body for an assignment of
// GEN_ID(<generator>, ...) to the target column.
func parseGeneratorSource(source, column string) (string, bool) {
	for _, m := range genIDPattern.FindAllStringSubmatch(source, -1) {
		if strings.EqualFold(m[1], column) {
			return strings.ToUpper(m[2]), true
		}
	}
	return "", false
}
