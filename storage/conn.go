package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
)

// ConnState is the liveness state of a Conn.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnected
	StateBroken
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateBroken:
		return "broken"
	}
	return "disconnected"
}

// Params configures a Conn. Driver and DSN are only used when the Conn
// owns its handle (Connect); wrapped handles keep whatever the caller
// opened.
type Params struct {
	Driver string
	DSN    string

	// OnConnect is session SQL replayed after every successful
	// connect, including reconnects. Session-level flags set here
	// survive the automatic reconnect in Do.
	OnConnect []string

	// QuoteChar and NameSep override the negotiated dialect's
	// identifier quoting.
	QuoteChar byte
	NameSep   string

	// DisableStatementCache forces fresh statement preparation on
	// every call.
	DisableStatementCache bool

	MaxConns     int
	MaxIdleConns int

	Logger  *logrus.Logger
	Metrics tally.Scope
}

// Conn owns one logical link to a database engine: the physical
// handle, its liveness state, the negotiated dialect and the
// transaction stack. A Conn is safe for use from one goroutine at a
// time; use independent Conns for concurrency.
type Conn struct {
	mu     sync.Mutex
	id     uuid.UUID
	params Params
	engine string

	db    *sql.DB
	owned bool
	state ConnState

	dialect    *Dialect
	stmts      map[string]*sql.Stmt
	generators map[string]string

	tx         *sql.Tx
	savepoints []string
	svpSeq     int

	log     *logrus.Entry
	metrics Metrics
}

// Connect builds a Conn from driver name and DSN. The physical
// connection is established lazily, on the first operation that needs
// one.
func Connect(params Params) (*Conn, error) {
	engine, err := engineForDriverName(params.Driver)
	if err != nil {
		return nil, err
	}
	if params.DSN == "" {
		return nil, errors.New("connect: empty DSN")
	}
	c := newConn(params, engine)
	c.owned = true
	return c, nil
}

// Wrap adopts a connection handle the application already opened. The
// adapter registry decides what handle types are understood; see
// RegisterAdapter.
func Wrap(conn any, params Params) (*Conn, error) {
	a, err := matchAdapter(conn)
	if err != nil {
		return nil, err
	}
	sa, ok := a.(*SQLAdapter)
	if !ok {
		return nil, fmt.Errorf("adapter %T is not a SQL adapter", a)
	}
	c := newConn(params, sa.Engine())
	c.db = sa.DB
	return c, nil
}

func newConn(params Params, engine string) *Conn {
	id := uuid.New()
	logger := params.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	scope := params.Metrics
	if scope == nil {
		scope = tally.NoopScope
	}
	return &Conn{
		id:         id,
		params:     params,
		engine:     engine,
		stmts:      make(map[string]*sql.Stmt),
		generators: make(map[string]string),
		log: logger.WithFields(logrus.Fields{
			"conn":   id.String()[:8],
			"engine": engine,
		}),
		metrics: NewMetrics(scope),
	}
}

func (c *Conn) ID() uuid.UUID  { return c.id }
func (c *Conn) Engine() string { return c.engine }

func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ping issues a liveness probe. It never returns an error: a failed
// probe downgrades the connection to broken and reports false.
func (c *Conn) Ping(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ping(ctx)
}

func (c *Conn) ping(ctx context.Context) bool {
	if c.db == nil || c.state == StateDisconnected {
		return false
	}
	if err := c.db.PingContext(ctx); err != nil {
		c.log.WithError(err).Warn("ping failed, marking connection broken")
		c.state = StateBroken
		return false
	}
	return true
}

// Do runs op against the live connection, establishing one first if
// needed. After a failure that a ping attributes to a lost connection
// it reconnects and retries the op exactly once; inside a transaction
// it never retries, a reconnect could not preserve the transaction.
func (c *Conn) Do(ctx context.Context, op func(ctx context.Context, db *sql.DB) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.do(ctx, op)
}

func (c *Conn) do(ctx context.Context, op func(ctx context.Context, db *sql.DB) error) error {
	if err := c.ensure(ctx); err != nil {
		return err
	}
	err := op(ctx, c.db)
	if err == nil {
		return nil
	}
	if c.tx != nil {
		return err
	}
	if c.ping(ctx) {
		// Connection is fine, the failure is the statement's.
		return err
	}
	if rerr := c.ensure(ctx); rerr != nil {
		return rerr
	}
	return op(ctx, c.db)
}

// ensure is the op-induced autoconnect: establish or re-establish the
// physical connection from stored parameters. Idempotent while
// connected.
func (c *Conn) ensure(ctx context.Context) error {
	if c.state == StateConnected && c.db != nil {
		return nil
	}
	reconnect := c.state == StateBroken
	if c.owned {
		if c.db != nil {
			c.db.Close()
			c.db = nil
		}
		db, err := sql.Open(c.params.Driver, c.params.DSN)
		if err != nil {
			return &ConnectionError{Op: "connect", Err: err}
		}
		if c.params.MaxConns > 0 {
			db.SetMaxOpenConns(c.params.MaxConns)
		}
		if c.params.MaxIdleConns > 0 {
			db.SetMaxIdleConns(c.params.MaxIdleConns)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return &ConnectionError{Op: "connect", Err: err}
		}
		c.db = db
	} else {
		if c.db == nil {
			return &ConnectionError{Op: "connect", Err: errors.New("no handle to reconnect")}
		}
		// Wrapped handles redial inside database/sql; verify it worked.
		if err := c.db.PingContext(ctx); err != nil {
			c.state = StateBroken
			return &ConnectionError{Op: "connect", Err: err}
		}
	}
	c.state = StateConnected
	c.tx = nil
	c.savepoints = nil
	c.clearStmts()
	// Engine identity could have changed with the parameters; the
	// next operation renegotiates.
	c.dialect = nil
	for _, stmt := range c.params.OnConnect {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return &ConnectionError{Op: "on_connect", Err: err}
		}
	}
	if reconnect {
		c.metrics.Reconnect.Inc(1)
		c.log.Info("reconnected")
	} else {
		c.metrics.Connect.Inc(1)
		c.log.Debug("connected")
	}
	return nil
}

// Disconnect releases the physical connection. Calling it on an
// already-disconnected Conn is a no-op.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisconnected {
		return nil
	}
	if c.tx != nil {
		c.tx.Rollback()
		c.tx = nil
		c.savepoints = nil
	}
	c.clearStmts()
	var err error
	if c.owned && c.db != nil {
		err = c.db.Close()
		c.db = nil
	}
	c.dialect = nil
	c.state = StateDisconnected
	c.metrics.Disconnect.Inc(1)
	c.log.Debug("disconnected")
	return err
}

// Dialect returns the negotiated dialect strategy for this
// connection, negotiating on first use. The choice is sticky until
// Invalidate or reconnect.
func (c *Conn) Dialect(ctx context.Context) (*Dialect, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialectLocked(ctx)
}

func (c *Conn) dialectLocked(ctx context.Context) (*Dialect, error) {
	if c.dialect != nil {
		return c.dialect, nil
	}
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	d, err := c.negotiateDialect(ctx)
	if err != nil {
		return nil, err
	}
	c.dialect = d
	return d, nil
}

// Invalidate clears cached negotiation state: the dialect and the
// schema metadata caches. The next operation re-runs negotiation.
func (c *Conn) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialect = nil
	c.generators = make(map[string]string)
}

// Execute renders the query for the negotiated dialect and runs it,
// returning a lazy row sequence. The sequence must be fully consumed
// or closed before the next statement on engines without multiple
// active statements.
func (c *Conn) Execute(ctx context.Context, q Query) (*Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, err := c.dialectLocked(ctx)
	if err != nil {
		return nil, err
	}
	text, args, err := Render(q, d)
	if err != nil {
		return nil, err
	}
	var rows *sql.Rows
	err = c.do(ctx, func(ctx context.Context, _ *sql.DB) error {
		var qerr error
		rows, qerr = c.queryContext(ctx, text, args)
		return qerr
	})
	if err != nil {
		c.metrics.QueryFail.Inc(1)
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

// Count runs the query's filter as a COUNT(*).
func (c *Conn) Count(ctx context.Context, q Query) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, err := c.dialectLocked(ctx)
	if err != nil {
		return 0, err
	}
	text, args, err := RenderCount(q, d)
	if err != nil {
		return 0, err
	}
	var n int64
	err = c.do(ctx, func(ctx context.Context, _ *sql.DB) error {
		c.debugSQL(text, args)
		return c.querier().QueryRowContext(ctx, text, args...).Scan(&n)
	})
	if err != nil {
		c.metrics.QueryFail.Inc(1)
		return 0, err
	}
	c.metrics.Query.Inc(1)
	return n, nil
}

// Exec runs arbitrary SQL through the connection manager, with the
// same autoconnect and retry semantics as Execute.
func (c *Conn) Exec(ctx context.Context, text string, args ...any) (sql.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var res sql.Result
	err := c.do(ctx, func(ctx context.Context, _ *sql.DB) error {
		var xerr error
		res, xerr = c.execContext(ctx, text, args)
		return xerr
	})
	if err != nil {
		c.metrics.QueryFail.Inc(1)
		return nil, err
	}
	return res, nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// querier routes statements through the open transaction when there
// is one.
func (c *Conn) querier() querier {
	if c.tx != nil {
		return c.tx
	}
	return c.db
}

func (c *Conn) queryContext(ctx context.Context, text string, args []any) (*sql.Rows, error) {
	c.debugSQL(text, args)
	sw := c.metrics.QueryDuration.Start()
	defer sw.Stop()
	if c.tx == nil && !c.params.DisableStatementCache {
		st, err := c.stmt(ctx, text)
		if err != nil {
			return nil, err
		}
		rows, err := st.QueryContext(ctx, args...)
		if err == nil {
			c.metrics.Query.Inc(1)
		}
		return rows, err
	}
	rows, err := c.querier().QueryContext(ctx, text, args...)
	if err == nil {
		c.metrics.Query.Inc(1)
	}
	return rows, err
}

func (c *Conn) execContext(ctx context.Context, text string, args []any) (sql.Result, error) {
	c.debugSQL(text, args)
	sw := c.metrics.QueryDuration.Start()
	defer sw.Stop()
	if c.tx == nil && !c.params.DisableStatementCache {
		st, err := c.stmt(ctx, text)
		if err != nil {
			return nil, err
		}
		res, err := st.ExecContext(ctx, args...)
		if err == nil {
			c.metrics.Query.Inc(1)
		}
		return res, err
	}
	res, err := c.querier().ExecContext(ctx, text, args...)
	if err == nil {
		c.metrics.Query.Inc(1)
	}
	return res, err
}

// stmt returns a cached prepared statement for text, preparing one on
// first use. Statements belong to the current handle; the cache is
// dropped on reconnect.
func (c *Conn) stmt(ctx context.Context, text string) (*sql.Stmt, error) {
	if st, ok := c.stmts[text]; ok {
		return st, nil
	}
	st, err := c.db.PrepareContext(ctx, text)
	if err != nil {
		return nil, err
	}
	c.stmts[text] = st
	return st, nil
}

func (c *Conn) clearStmts() {
	for _, st := range c.stmts {
		st.Close()
	}
	c.stmts = make(map[string]*sql.Stmt)
}

func (c *Conn) debugSQL(text string, args []any) {
	if len(args) > 0 {
		c.log.WithField("args", args).Debug(text)
	} else {
		c.log.Debug(text)
	}
}
