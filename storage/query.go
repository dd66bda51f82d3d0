package storage

// Query is the engine-agnostic description of a read: target table,
// projection, filter, ordering and an optional window. It is a plain
// value; the generator never mutates one.
type Query struct {
	Table   string
	Columns []string
	Conds   []Cond
	Order   []Order

	// Rows limits the result; 0 means unlimited. Offset skips rows
	// from the start of the ordering.
	Rows   int
	Offset int
}

// Cond is a single filter predicate. Conds on a Query are ANDed.
type Cond struct {
	Column string
	Op     CondOp
	Value  any
}

type CondOp string

const (
	OpEq      CondOp = "="
	OpNeq     CondOp = "!="
	OpLt      CondOp = "<"
	OpLte     CondOp = "<="
	OpGt      CondOp = ">"
	OpGte     CondOp = ">="
	OpIn      CondOp = "IN"
	OpLike    CondOp = "LIKE"
	OpNull    CondOp = "IS NULL"
	OpNotNull CondOp = "IS NOT NULL"
)

func Eq(column string, v any) Cond  { return Cond{Column: column, Op: OpEq, Value: v} }
func Neq(column string, v any) Cond { return Cond{Column: column, Op: OpNeq, Value: v} }
func Lt(column string, v any) Cond  { return Cond{Column: column, Op: OpLt, Value: v} }
func Lte(column string, v any) Cond { return Cond{Column: column, Op: OpLte, Value: v} }
func Gt(column string, v any) Cond  { return Cond{Column: column, Op: OpGt, Value: v} }
func Gte(column string, v any) Cond { return Cond{Column: column, Op: OpGte, Value: v} }
func In(column string, vs ...any) Cond {
	return Cond{Column: column, Op: OpIn, Value: vs}
}
func Like(column string, v any) Cond { return Cond{Column: column, Op: OpLike, Value: v} }
func Null(column string) Cond        { return Cond{Column: column, Op: OpNull} }
func NotNull(column string) Cond     { return Cond{Column: column, Op: OpNotNull} }

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

func Asc(column string) Order  { return Order{Column: column} }
func Desc(column string) Order { return Order{Column: column, Desc: true} }
