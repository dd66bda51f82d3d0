package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdent(t *testing.T) {
	pg := postgresDialect("")
	assert.Equal(t, `"artist"`, pg.QuoteIdent("artist"))
	assert.Equal(t, `"public"."artist"`, pg.QuoteIdent("public.artist"))
	assert.Equal(t, `"wei""rd"`, pg.QuoteIdent(`wei"rd`))

	my := mysqlDialect("")
	assert.Equal(t, "`artist`", my.QuoteIdent("artist"))

	ms := sqlserverDialect("", 11)
	assert.Equal(t, "[artist]", ms.QuoteIdent("artist"))
	assert.Equal(t, "[dbo].[artist]", ms.QuoteIdent("dbo.artist"))
	assert.Equal(t, "[a]]b]", ms.QuoteIdent("a]b"))
}

func TestQuoteIdentCaseFold(t *testing.T) {
	unquoted := &Dialect{Fold: FoldUpper}
	assert.Equal(t, "ARTIST", unquoted.QuoteIdent("Artist"))

	lower := &Dialect{Fold: FoldLower}
	assert.Equal(t, "artist", lower.QuoteIdent("Artist"))

	none := &Dialect{}
	assert.Equal(t, "Artist", none.QuoteIdent("Artist"))
}

func TestMark(t *testing.T) {
	assert.Equal(t, "?", sqliteDialect("").Mark(1))
	assert.Equal(t, "?", mysqlDialect("").Mark(7))
	assert.Equal(t, "$1", postgresDialect("").Mark(1))
	assert.Equal(t, "$12", postgresDialect("").Mark(12))
	assert.Equal(t, "", firebirdDialect("", 2).Mark(1))
	assert.False(t, firebirdDialect("", 2).Binds())
	assert.True(t, postgresDialect("").Binds())
}

func TestQuoteString(t *testing.T) {
	d := sqliteDialect("")
	assert.Equal(t, `'it''s'`, d.QuoteString("it's"))
	assert.Equal(t, `''`, d.QuoteString(""))
}

func TestCapabilities(t *testing.T) {
	assert.True(t, postgresDialect("").Has(CapReturning))
	assert.True(t, postgresDialect("").Has(CapWindowFunctions))
	assert.False(t, mysqlDialect("").Has(CapReturning))
	assert.True(t, sqliteDialect("").Has(CapSavepoints))

	fb2 := firebirdDialect("2.5.9", 2)
	assert.False(t, fb2.Has(CapReturning))
	assert.Equal(t, IdentityGeneratorTrigger, fb2.Identity)

	fb3 := firebirdDialect("3.0.7", 3)
	assert.True(t, fb3.Has(CapReturning))
	assert.Equal(t, IdentityReturning, fb3.Identity)
}
