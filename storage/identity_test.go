package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestInsertLastInsertID(t *testing.T) {
	ctx := context.Background()
	c := testConn(t)
	seedArtists(t, c)

	id, err := c.Insert(ctx, "artist", map[string]any{"name": "frank"}, "id")
	require.NoError(t, err)
	assert.EqualValues(t, 1, id)

	id, err = c.Insert(ctx, "artist", map[string]any{"name": "dizzy"}, "id")
	require.NoError(t, err)
	assert.EqualValues(t, 2, id)
}

func TestInsertNoIdentity(t *testing.T) {
	ctx := context.Background()
	c := testConn(t)
	seedArtists(t, c)

	id, err := c.Insert(ctx, "artist", map[string]any{"name": "frank"}, "")
	require.NoError(t, err)
	assert.EqualValues(t, 0, id)
	assert.EqualValues(t, 1, countArtists(t, c))
}

func TestInsertInsideTransaction(t *testing.T) {
	ctx := context.Background()
	c := testConn(t)
	seedArtists(t, c)

	err := c.Transaction(ctx, func(ctx context.Context, s *Scope) error {
		id, err := c.Insert(ctx, "artist", map[string]any{"name": "frank"}, "id")
		require.NoError(t, err)
		assert.EqualValues(t, 1, id)
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, countArtists(t, c))
}

// Inserting a value that looks like a bind marker must store the
// literal text.
func TestInsertMarkerCharacter(t *testing.T) {
	ctx := context.Background()
	c := testConn(t)
	seedArtists(t, c)

	_, err := c.Insert(ctx, "artist", map[string]any{"name": "100% ? sure"}, "id")
	require.NoError(t, err)

	var name string
	rows, err := c.Execute(ctx, Query{Table: "artist", Columns: []string{"name"}})
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	require.NoError(t, rows.Scan(&name))
	assert.Equal(t, "100% ? sure", name)
}

// The trigger lookup runs with the dialect captured when the insert
// started; a mid-operation reconnect clears the connection's cached
// dialect and must not take the lookup down with it.
func TestGeneratorLookupUsesCapturedDialect(t *testing.T) {
	ctx := context.Background()
	c := testConn(t)
	mustExec(t, c, "CREATE TABLE rdb$triggers (rdb$relation_name TEXT, rdb$trigger_source TEXT, rdb$trigger_type INTEGER, rdb$trigger_inactive INTEGER)")
	mustExec(t, c, "INSERT INTO rdb$triggers VALUES ('ARTIST', 'AS BEGIN NEW.ID = GEN_ID(GEN_ARTIST_ID, 1); END', 1, 0)")

	d := firebirdDialect("2.5.9", 2)
	c.mu.Lock()
	c.dialect = nil
	gen, err := c.generatorFor(ctx, d, "artist", "id")
	c.mu.Unlock()
	require.NoError(t, err)
	assert.Equal(t, "GEN_ARTIST_ID", gen)

	// Second lookup hits the cache.
	c.mu.Lock()
	gen, err = c.generatorFor(ctx, d, "artist", "id")
	c.mu.Unlock()
	require.NoError(t, err)
	assert.Equal(t, "GEN_ARTIST_ID", gen)
}

func TestParseGeneratorSource(t *testing.T) {
	source := `
AS BEGIN
  IF (NEW.ID IS NULL) THEN
    NEW.ID = GEN_ID(GEN_ARTIST_ID, 1);
END`
	gen, ok := parseGeneratorSource(source, "id")
	require.True(t, ok)
	assert.Equal(t, "GEN_ARTIST_ID", gen)

	// Quoted column, mixed case, extra whitespace.
	source = `as begin new."Id" = gen_id ( seq_artist , 1 ); end`
	gen, ok = parseGeneratorSource(source, "ID")
	require.True(t, ok)
	assert.Equal(t, "SEQ_ARTIST", gen)

	// Trigger feeds a different column.
	_, ok = parseGeneratorSource(source, "other_id")
	assert.False(t, ok)

	_, ok = parseGeneratorSource("BEGIN END", "id")
	assert.False(t, ok)
}
