package storage

import (
	"fmt"
)

// Adapter wraps a raw connection handle the caller already owns and
// names the engine behind it.
type Adapter interface {
	Engine() string
}

type adapterMatcher func(conn any) bool
type adapterFactory func(conn any) (Adapter, error)

// negotiator turns a probed version string into a concrete dialect.
// It must be a pure function of the version string so two connections
// to the same engine/version always negotiate the same strategy.
type negotiator func(version string) *Dialect

var (
	adapterRegistry = make([]struct {
		match   adapterMatcher
		factory adapterFactory
	}, 0)
	negotiatorRegistry = make(map[string]negotiator)
	versionQueries     = make(map[string]string)
)

func RegisterAdapter(match adapterMatcher, factory adapterFactory) {
	adapterRegistry = append(adapterRegistry, struct {
		match   adapterMatcher
		factory adapterFactory
	}{match: match, factory: factory})
}

// RegisterEngine wires a negotiator and its version probe for an
// engine name. versionQuery may be empty for engines whose strategy
// does not depend on version.
func RegisterEngine(engine string, versionQuery string, n negotiator) {
	negotiatorRegistry[engine] = n
	if versionQuery != "" {
		versionQueries[engine] = versionQuery
	}
}

func matchAdapter(conn any) (Adapter, error) {
	for _, entry := range adapterRegistry {
		if entry.match(conn) {
			return entry.factory(conn)
		}
	}
	return nil, fmt.Errorf("%w: %T", ErrNoAdapter, conn)
}

func engineNegotiator(engine string) (negotiator, error) {
	n, ok := negotiatorRegistry[engine]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoDialect, engine)
	}
	return n, nil
}
