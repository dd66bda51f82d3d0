package storage

import (
	"github.com/uber-go/tally"
)

// Metrics tracks the counters that have relevance to the storage
// layer: statements issued, reconnects, transaction outcomes.
type Metrics struct {
	Query     tally.Counter
	QueryFail tally.Counter

	Connect    tally.Counter
	Reconnect  tally.Counter
	Disconnect tally.Counter

	TxBegin     tally.Counter
	TxCommit    tally.Counter
	TxRollback  tally.Counter
	SavepointOp tally.Counter

	QueryDuration tally.Timer
}

// NewMetrics returns a Metrics struct with all metrics initialized and
// rooted at the given tally.Scope.
func NewMetrics(scope tally.Scope) Metrics {
	queryScope := scope.SubScope("query")
	querySuccessScope := queryScope.Tagged(map[string]string{"type": "success"})
	queryFailScope := queryScope.Tagged(map[string]string{"type": "fail"})

	connScope := scope.SubScope("connection")
	txScope := scope.SubScope("transaction")

	return Metrics{
		Query:     querySuccessScope.Counter("issued"),
		QueryFail: queryFailScope.Counter("issued"),

		Connect:    connScope.Counter("connect"),
		Reconnect:  connScope.Counter("reconnect"),
		Disconnect: connScope.Counter("disconnect"),

		TxBegin:     txScope.Counter("begin"),
		TxCommit:    txScope.Counter("commit"),
		TxRollback:  txScope.Counter("rollback"),
		SavepointOp: txScope.Counter("savepoint"),

		QueryDuration: queryScope.Timer("duration"),
	}
}
