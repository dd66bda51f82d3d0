package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

var connSeq atomic.Int64

func testConn(t *testing.T) *Conn {
	t.Helper()
	dsn := fmt.Sprintf("file:storage_test_%d?mode=memory&cache=shared", connSeq.Add(1))
	c, err := Connect(Params{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { c.Disconnect() })
	return c
}

func mustExec(t *testing.T, c *Conn, text string, args ...any) {
	t.Helper()
	_, err := c.Exec(context.Background(), text, args...)
	require.NoError(t, err)
}

func seedArtists(t *testing.T, c *Conn, names ...string) {
	t.Helper()
	mustExec(t, c, "CREATE TABLE artist (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, rank INTEGER DEFAULT 13)")
	for _, name := range names {
		mustExec(t, c, "INSERT INTO artist (name) VALUES (?)", name)
	}
}

// Connect does not dial; the first operation does.
func TestOpInducedAutoconnect(t *testing.T) {
	c := testConn(t)
	assert.Equal(t, StateDisconnected, c.State())

	mustExec(t, c, "SELECT 1")
	assert.Equal(t, StateConnected, c.State())
}

func TestConnectBadDriver(t *testing.T) {
	_, err := Connect(Params{Driver: "nosuch", DSN: "x"})
	assert.Error(t, err)

	_, err = Connect(Params{Driver: "sqlite"})
	assert.Error(t, err)
}

func TestDisconnectIdempotent(t *testing.T) {
	c := testConn(t)
	mustExec(t, c, "SELECT 1")

	require.NoError(t, c.Disconnect())
	assert.Equal(t, StateDisconnected, c.State())
	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Disconnect())
}

// An operation after an explicit disconnect re-establishes the
// connection from the stored parameters.
func TestReconnectAfterDisconnect(t *testing.T) {
	c := testConn(t)
	mustExec(t, c, "SELECT 1")
	require.NoError(t, c.Disconnect())

	mustExec(t, c, "SELECT 1")
	assert.Equal(t, StateConnected, c.State())
}

func TestPing(t *testing.T) {
	ctx := context.Background()
	c := testConn(t)
	// No connection yet: the probe reports false without raising.
	assert.False(t, c.Ping(ctx))

	mustExec(t, c, "SELECT 1")
	assert.True(t, c.Ping(ctx))

	c.Disconnect()
	assert.False(t, c.Ping(ctx))
}

// A wrapped handle whose pool was closed underneath surfaces a
// ConnectionError rather than a driver error.
func TestWrappedHandleBroken(t *testing.T) {
	db, err := sql.Open("sqlite", "file:wrapped_broken?mode=memory&cache=shared")
	require.NoError(t, err)

	c, err := Wrap(db, Params{})
	require.NoError(t, err)
	mustExec(t, c, "SELECT 1")

	db.Close()
	_, err = c.Exec(context.Background(), "SELECT 1")
	var ce *ConnectionError
	assert.ErrorAs(t, err, &ce)
}

func TestOnConnectHook(t *testing.T) {
	dsn := fmt.Sprintf("file:onconnect_%d?mode=memory&cache=shared", connSeq.Add(1))
	pin, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer pin.Close()
	_, err = pin.Exec("CREATE TABLE hooked (n INTEGER)")
	require.NoError(t, err)

	c, err := Connect(Params{
		Driver:    "sqlite",
		DSN:       dsn,
		OnConnect: []string{"INSERT INTO hooked (n) VALUES (1)"},
	})
	require.NoError(t, err)
	defer c.Disconnect()

	mustExec(t, c, "SELECT 1")
	var n int
	require.NoError(t, pin.QueryRow("SELECT COUNT(*) FROM hooked").Scan(&n))
	assert.Equal(t, 1, n)

	// The hook replays on reconnect, so session flags survive it.
	require.NoError(t, c.Disconnect())
	mustExec(t, c, "SELECT 1")
	require.NoError(t, pin.QueryRow("SELECT COUNT(*) FROM hooked").Scan(&n))
	assert.Equal(t, 2, n)
}

func TestExecuteAndRows(t *testing.T) {
	ctx := context.Background()
	c := testConn(t)
	seedArtists(t, c, "a", "b", "c", "d", "e", "f")

	rows, err := c.Execute(ctx, Query{
		Table:   "artist",
		Columns: []string{"id", "name"},
		Order:   []Order{Asc("id")},
		Rows:    3,
		Offset:  2,
	})
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var id int64
		var name string
		require.NoError(t, rows.Scan(&id, &name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"c", "d", "e"}, names)
}

func TestExecuteExactWindow(t *testing.T) {
	ctx := context.Background()
	c := testConn(t)
	seedArtists(t, c, "a", "b", "c", "d")

	// rows=3 offset=2 against 4 rows: max(0, min(3, 4-2)) = 2.
	rows, err := c.Execute(ctx, Query{Table: "artist", Order: []Order{Asc("id")}, Rows: 3, Offset: 2})
	require.NoError(t, err)
	defer rows.Close()
	n := 0
	for rows.Next() {
		n++
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, 2, n)
}

func TestCount(t *testing.T) {
	ctx := context.Background()
	c := testConn(t)
	seedArtists(t, c, "a", "b", "c")

	n, err := c.Count(ctx, Query{Table: "artist"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = c.Count(ctx, Query{Table: "artist", Conds: []Cond{Eq("name", "b")}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestDialectSticky(t *testing.T) {
	ctx := context.Background()
	c := testConn(t)

	d1, err := c.Dialect(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d1.Engine)
	assert.NotEmpty(t, d1.Version)

	d2, err := c.Dialect(ctx)
	require.NoError(t, err)
	assert.Same(t, d1, d2)

	c.Invalidate()
	d3, err := c.Dialect(ctx)
	require.NoError(t, err)
	assert.NotSame(t, d1, d3)
	assert.Equal(t, d1.Engine, d3.Engine)
}

func TestQuoteOverride(t *testing.T) {
	ctx := context.Background()
	dsn := fmt.Sprintf("file:quote_override_%d?mode=memory&cache=shared", connSeq.Add(1))
	c, err := Connect(Params{Driver: "sqlite", DSN: dsn, QuoteChar: '`'})
	require.NoError(t, err)
	defer c.Disconnect()

	d, err := c.Dialect(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte('`'), d.QuoteChar)
	assert.Equal(t, "`artist`", d.QuoteIdent("artist"))
}

func TestStatementCacheDisabled(t *testing.T) {
	dsn := fmt.Sprintf("file:nocache_%d?mode=memory&cache=shared", connSeq.Add(1))
	c, err := Connect(Params{Driver: "sqlite", DSN: dsn, DisableStatementCache: true})
	require.NoError(t, err)
	defer c.Disconnect()

	mustExec(t, c, "SELECT 1")
	mustExec(t, c, "SELECT 1")
	c.mu.Lock()
	assert.Empty(t, c.stmts)
	c.mu.Unlock()
}
