package storage

import (
	"context"
	"strconv"
	"strings"
)

// negotiateDialect probes the engine version over the live handle and
// hands the string to the engine's negotiator. A failing or
// unparseable probe is not an error: the negotiator falls back to the
// most conservative strategy for its engine.
func (c *Conn) negotiateDialect(ctx context.Context) (*Dialect, error) {
	n, err := engineNegotiator(c.engine)
	if err != nil {
		return nil, err
	}
	version := ""
	if vq, ok := versionQueries[c.engine]; ok {
		// Best effort; version stays empty on any failure.
		_ = c.querier().QueryRowContext(ctx, vq).Scan(&version)
	}
	d := n(version)
	if c.params.QuoteChar != 0 {
		quirk := *d
		quirk.QuoteChar = c.params.QuoteChar
		if c.params.NameSep != "" {
			quirk.NameSep = c.params.NameSep
		}
		d = &quirk
	} else if c.params.NameSep != "" {
		quirk := *d
		quirk.NameSep = c.params.NameSep
		d = &quirk
	}
	c.log.WithField("engine", d.Engine).WithField("version", d.Version).
		Debug("negotiated dialect")
	return d, nil
}

func negotiateSQLite(version string) *Dialect {
	return sqliteDialect(version)
}

func negotiatePostgres(version string) *Dialect {
	return postgresDialect(version)
}

func negotiateMySQL(version string) *Dialect {
	return mysqlDialect(version)
}

// negotiateSQLServer maps a product version like "11.0.2100.60" to the
// pagination strategy that version understands. No parseable major
// version means TOP-N, the one strategy every release accepts.
func negotiateSQLServer(version string) *Dialect {
	return sqlserverDialect(version, majorVersion(version))
}

// negotiateFirebird maps an engine version like "3.0.7" to either the
// identity/RETURNING strategy (3+) or the generator-trigger one. An
// unreadable version is treated as 2.x: FIRST/SKIP and trigger
// introspection work on everything still in the field.
func negotiateFirebird(version string) *Dialect {
	return firebirdDialect(version, majorVersion(version))
}

// majorVersion extracts the leading integer of a dotted version
// string, tolerating vendor prefixes like "PostgreSQL 16.2". Returns 0
// when nothing parses.
func majorVersion(version string) int {
	fields := strings.FieldsFunc(version, func(r rune) bool {
		return r == ' ' || r == '-' || r == '/'
	})
	for _, f := range fields {
		head, _, _ := strings.Cut(f, ".")
		if n, err := strconv.Atoi(head); err == nil && n > 0 {
			return n
		}
	}
	return 0
}
