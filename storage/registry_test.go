package storage

import (
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestWrapSQLDB(t *testing.T) {
	db, err := sql.Open("sqlite", "file:wrap_sql?mode=memory&cache=shared")
	require.NoError(t, err)
	defer db.Close()

	c, err := Wrap(db, Params{})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", c.Engine())
}

func TestWrapSQLXDB(t *testing.T) {
	db, err := sqlx.Open("sqlite", "file:wrap_sqlx?mode=memory&cache=shared")
	require.NoError(t, err)
	defer db.Close()

	c, err := Wrap(db, Params{})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", c.Engine())
}

func TestWrapUnknownHandle(t *testing.T) {
	_, err := Wrap(42, Params{})
	assert.ErrorIs(t, err, ErrNoAdapter)
}

func TestEngineForDriverName(t *testing.T) {
	cases := map[string]string{
		"sqlite":      "sqlite",
		"sqlite3":     "sqlite",
		"pgx":         "postgres",
		"postgres":    "postgres",
		"mysql":       "mysql",
		"sqlserver":   "sqlserver",
		"mssql":       "sqlserver",
		"firebirdsql": "firebird",
	}
	for driver, engine := range cases {
		got, err := engineForDriverName(driver)
		require.NoError(t, err)
		assert.Equal(t, engine, got, driver)
	}
	_, err := engineForDriverName("oracle")
	assert.Error(t, err)
}
