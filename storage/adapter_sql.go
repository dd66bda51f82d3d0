package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// SQLAdapter adopts a database/sql handle the application opened
// itself. The engine name is detected from the registered driver type,
// best effort; callers with exotic drivers can wrap explicitly via
// NewSQLAdapter.
type SQLAdapter struct {
	DB     *sql.DB
	engine string
}

func (a *SQLAdapter) Engine() string { return a.engine }

func NewSQLAdapter(db *sql.DB, engine string) *SQLAdapter {
	return &SQLAdapter{DB: db, engine: engine}
}

func isSQLDB(conn any) bool {
	_, ok := conn.(*sql.DB)
	return ok
}

func newSQLAdapter(conn any) (Adapter, error) {
	db := conn.(*sql.DB)
	engine, err := detectEngine(db)
	if err != nil {
		return nil, err
	}
	return &SQLAdapter{DB: db, engine: engine}, nil
}

func isSQLXDB(conn any) bool {
	_, ok := conn.(*sqlx.DB)
	return ok
}

// sqlx handles unwrap to the embedded *sql.DB; the sqlx driver name is
// authoritative and skips type-name sniffing.
func newSQLXAdapter(conn any) (Adapter, error) {
	db := conn.(*sqlx.DB)
	engine, err := engineForDriverName(db.DriverName())
	if err != nil {
		return nil, err
	}
	return &SQLAdapter{DB: db.DB, engine: engine}, nil
}

func detectEngine(db *sql.DB) (string, error) {
	name := strings.ToLower(fmt.Sprintf("%T", db.Driver()))
	switch {
	case strings.Contains(name, "sqlite"):
		return "sqlite", nil
	case strings.Contains(name, "pgx"), strings.Contains(name, "postgres"), strings.Contains(name, "pq."):
		return "postgres", nil
	case strings.Contains(name, "mysql"):
		return "mysql", nil
	case strings.Contains(name, "mssql"), strings.Contains(name, "sqlserver"):
		return "sqlserver", nil
	case strings.Contains(name, "firebird"):
		return "firebird", nil
	}
	return "", fmt.Errorf("cannot detect engine from driver %s", name)
}

func engineForDriverName(driver string) (string, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return "sqlite", nil
	case "pgx", "postgres":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	case "mssql", "sqlserver":
		return "sqlserver", nil
	case "firebirdsql", "firebird":
		return "firebird", nil
	}
	return "", fmt.Errorf("unknown driver name %q", driver)
}
