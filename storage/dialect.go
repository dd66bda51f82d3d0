package storage

import (
	"strconv"
	"strings"
)

// Capability indicates optional features of a negotiated engine.
type Capability int

const (
	// No capabilities
	CapNone Capability = 0
	// Can create named savepoints inside a transaction
	CapSavepoints = 1 << iota
	// Understands INSERT ... RETURNING
	CapReturning
	// Understands ROW_NUMBER() OVER
	CapWindowFunctions
	// Bind parameters carry no type annotation and accept any value
	CapTypelessPlaceholders
	// Can keep several statements active on one connection
	CapMultipleActiveStatements
	// Can apply database level column defaults
	CapDefaults
)

// PaginationMode selects the SQL construct used for row-limit/offset.
type PaginationMode int

const (
	PaginationNone PaginationMode = iota
	PaginationLimitOffset
	PaginationTop
	PaginationRowNumberOver
	PaginationFirstSkip
	PaginationOffsetFetch
)

// PlaceholderStyle selects how bind parameters are written. StyleNone
// means the engine cannot bind safely and values are inlined as
// escaped literals.
type PlaceholderStyle int

const (
	PlaceholderQuestion PlaceholderStyle = iota
	PlaceholderDollar
	PlaceholderNone
)

// IdentityMode selects how a generated primary key is read back after
// an insert.
type IdentityMode int

const (
	IdentityLastInsertID IdentityMode = iota
	IdentityReturning
	IdentityScopeQuery
	IdentityGeneratorTrigger
)

// CaseFold is applied to identifiers the dialect leaves unquoted.
type CaseFold int

const (
	FoldNone CaseFold = iota
	FoldLower
	FoldUpper
)

// Dialect describes the SQL generation rules negotiated for one
// engine/version pair. Values are immutable once returned by the
// negotiator; a Conn holds exactly one until reconnect or explicit
// invalidation.
type Dialect struct {
	Engine  string
	Version string

	Pagination  PaginationMode
	Placeholder PlaceholderStyle
	Identity    IdentityMode

	// IdentityQuery is the post-insert key lookup for
	// IdentityScopeQuery engines.
	IdentityQuery string

	QuoteChar   byte
	NameSep     string
	StringQuote byte
	Fold        CaseFold

	// NoLimitToken is the LIMIT value meaning "all rows" when an
	// OFFSET is present without a row limit.
	NoLimitToken string

	// DatetimeFormat is the layout used when a time value has to be
	// inlined as a literal.
	DatetimeFormat string

	Caps Capability
}

func (d *Dialect) Has(c Capability) bool {
	return d.Caps&c != 0
}

// QuoteIdent quotes an identifier with the dialect's quote character,
// splitting on NameSep so qualified names stay qualified. Dialects
// without a quote character fold case instead, matching what the
// engine's catalog does to unquoted names.
func (d *Dialect) QuoteIdent(name string) string {
	if d.QuoteChar == 0 {
		return d.foldCase(name)
	}
	sep := d.NameSep
	if sep == "" {
		sep = "."
	}
	open, clos := string(d.QuoteChar), string(d.QuoteChar)
	if d.QuoteChar == '[' {
		// SQL Server bracket quoting
		clos = "]"
	}
	parts := strings.Split(name, sep)
	for i, p := range parts {
		parts[i] = open + strings.ReplaceAll(p, clos, clos+clos) + clos
	}
	return strings.Join(parts, sep)
}

func (d *Dialect) foldCase(name string) string {
	switch d.Fold {
	case FoldLower:
		return strings.ToLower(name)
	case FoldUpper:
		return strings.ToUpper(name)
	}
	return name
}

// QuoteString quotes a string literal, doubling embedded quote
// characters. Used by the generator when the dialect cannot bind.
func (d *Dialect) QuoteString(s string) string {
	q := string(d.StringQuote)
	return q + strings.ReplaceAll(s, q, q+q) + q
}

// Mark returns the bind marker for the n'th parameter (1-based).
func (d *Dialect) Mark(n int) string {
	switch d.Placeholder {
	case PlaceholderDollar:
		return "$" + strconv.Itoa(n)
	case PlaceholderNone:
		return ""
	}
	return "?"
}

// Binds reports whether the dialect uses bind parameters at all.
func (d *Dialect) Binds() bool {
	return d.Placeholder != PlaceholderNone
}

const defaultDatetimeFormat = "2006-01-02 15:04:05"

func sqliteDialect(version string) *Dialect {
	return &Dialect{
		Engine:         "sqlite",
		Version:        version,
		Pagination:     PaginationLimitOffset,
		Placeholder:    PlaceholderQuestion,
		Identity:       IdentityLastInsertID,
		QuoteChar:      '"',
		NameSep:        ".",
		StringQuote:    '\'',
		NoLimitToken:   "-1",
		DatetimeFormat: defaultDatetimeFormat,
		Caps: CapSavepoints | CapReturning | CapWindowFunctions |
			CapTypelessPlaceholders | CapDefaults,
	}
}

func postgresDialect(version string) *Dialect {
	return &Dialect{
		Engine:         "postgres",
		Version:        version,
		Pagination:     PaginationLimitOffset,
		Placeholder:    PlaceholderDollar,
		Identity:       IdentityReturning,
		QuoteChar:      '"',
		NameSep:        ".",
		StringQuote:    '\'',
		Fold:           FoldLower,
		NoLimitToken:   "ALL",
		DatetimeFormat: defaultDatetimeFormat,
		Caps: CapSavepoints | CapReturning | CapWindowFunctions |
			CapMultipleActiveStatements | CapDefaults,
	}
}

func mysqlDialect(version string) *Dialect {
	return &Dialect{
		Engine:         "mysql",
		Version:        version,
		Pagination:     PaginationLimitOffset,
		Placeholder:    PlaceholderQuestion,
		Identity:       IdentityLastInsertID,
		QuoteChar:      '`',
		NameSep:        ".",
		StringQuote:    '\'',
		NoLimitToken:   "18446744073709551615",
		DatetimeFormat: defaultDatetimeFormat,
		Caps:           CapSavepoints | CapTypelessPlaceholders | CapDefaults,
	}
}

// sqlserverDialect returns the strategy for the given major version.
// 11 (2012) introduced OFFSET/FETCH, 9 (2005) introduced
// ROW_NUMBER() OVER. Anything older, or an unknown version, gets the
// conservative TOP-N strategy.
func sqlserverDialect(version string, major int) *Dialect {
	d := &Dialect{
		Engine:         "sqlserver",
		Version:        version,
		Pagination:     PaginationTop,
		Placeholder:    PlaceholderQuestion,
		Identity:       IdentityScopeQuery,
		IdentityQuery:  "SELECT SCOPE_IDENTITY()",
		QuoteChar:      '[',
		NameSep:        ".",
		StringQuote:    '\'',
		NoLimitToken:   "",
		DatetimeFormat: defaultDatetimeFormat,
		Caps:           CapSavepoints | CapDefaults,
	}
	switch {
	case major >= 11:
		d.Pagination = PaginationOffsetFetch
		d.Caps |= CapWindowFunctions
	case major >= 9:
		d.Pagination = PaginationRowNumberOver
		d.Caps |= CapWindowFunctions
	}
	return d
}

// firebirdDialect returns the strategy for the given major version.
// Firebird 3 has identity columns and a trustworthy RETURNING; 2.x
// relies on FIRST/SKIP plus generator triggers, and its typeless
// placeholders cannot carry strings containing the marker character,
// so values are inlined as literals.
func firebirdDialect(version string, major int) *Dialect {
	d := &Dialect{
		Engine:         "firebird",
		Version:        version,
		Pagination:     PaginationFirstSkip,
		Placeholder:    PlaceholderNone,
		Identity:       IdentityGeneratorTrigger,
		QuoteChar:      '"',
		NameSep:        ".",
		StringQuote:    '\'',
		Fold:           FoldUpper,
		NoLimitToken:   "",
		DatetimeFormat: defaultDatetimeFormat,
		Caps:           CapSavepoints | CapDefaults,
	}
	if major >= 3 {
		d.Identity = IdentityReturning
		d.Caps |= CapReturning | CapWindowFunctions
	}
	return d
}
