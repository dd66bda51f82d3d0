// Package ormi is the application-facing surface of the storage
// layer: session construction, configuration and the fluent result-set
// builder. The heavy lifting — dialect negotiation, SQL generation,
// transactions, identity resolution — lives in ormigo/storage; this
// package only builds query descriptors and hands them over.
package ormi

import (
	"context"
	"errors"

	"ormigo/storage"
)

type Session struct {
	Config *Config

	conn    *storage.Conn
	wrapped any
}

type Option func(*Session)

// WithConn adopts a connection handle the application already opened
// (a *sql.DB or *sqlx.DB).
func WithConn(conn any) Option {
	return func(s *Session) { s.wrapped = conn }
}

// WithDSN configures a driver name and DSN; the physical connection is
// established on first use.
func WithDSN(driver, dsn string) Option {
	return func(s *Session) { s.Config.SetDSN(driver, dsn) }
}

// WithOnConnect appends session SQL run after every (re)connect.
func WithOnConnect(stmts ...string) Option {
	return func(s *Session) { s.Config.OnConnect = append(s.Config.OnConnect, stmts...) }
}

// WithQuoting overrides the identifier quote character and name
// separator chosen by negotiation.
func WithQuoting(quoteChar byte, nameSep string) Option {
	return func(s *Session) {
		s.Config.QuoteChar = quoteChar
		s.Config.NameSep = nameSep
	}
}

func WithoutStatementCache() Option {
	return func(s *Session) { s.Config.DisableStatementCache = true }
}

func New(opts ...Option) *Session {
	s := &Session{Config: newConfig()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Conn returns the session's storage connection, creating it on first
// use from the configured handle or DSN.
func (s *Session) Conn() (*storage.Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	params := storage.Params{
		Driver:                s.Config.Driver,
		DSN:                   s.Config.DSN,
		OnConnect:             s.Config.OnConnect,
		QuoteChar:             s.Config.QuoteChar,
		NameSep:               s.Config.NameSep,
		DisableStatementCache: s.Config.DisableStatementCache,
		Logger:                s.Config.Logger,
		Metrics:               s.Config.Metrics,
	}
	var (
		conn *storage.Conn
		err  error
	)
	if s.wrapped != nil {
		conn, err = storage.Wrap(s.wrapped, params)
	} else if s.Config.Driver != "" {
		conn, err = storage.Connect(params)
	} else {
		err = errors.New("session has neither a connection handle nor a DSN")
	}
	if err != nil {
		return nil, err
	}
	s.conn = conn
	return conn, nil
}

// Table starts a fluent result set over the named table.
func (s *Session) Table(name string) *ResultSet {
	return &ResultSet{s: s, q: storage.Query{Table: name}}
}

// Insert writes one row and returns the generated value of idColumn
// (0 when idColumn is empty).
func (s *Session) Insert(ctx context.Context, table string, values map[string]any, idColumn string) (int64, error) {
	conn, err := s.Conn()
	if err != nil {
		return 0, err
	}
	return conn.Insert(ctx, table, values, idColumn)
}

// Transaction runs body inside a transaction scope; nested calls get
// savepoints. See storage.Conn.Transaction for the rollback rules.
func (s *Session) Transaction(ctx context.Context, body func(ctx context.Context, tx *storage.Scope) error) error {
	conn, err := s.Conn()
	if err != nil {
		return err
	}
	return conn.Transaction(ctx, body)
}

// Exec runs raw SQL through the session's connection, for schema
// setup and other statements the descriptor model does not cover.
func (s *Session) Exec(ctx context.Context, text string, args ...any) error {
	conn, err := s.Conn()
	if err != nil {
		return err
	}
	_, err = conn.Exec(ctx, text, args...)
	return err
}

// Close disconnects the underlying connection.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Disconnect()
}
