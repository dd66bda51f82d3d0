package storage

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// rowNumAlias is the helper column added by the windowed pagination
// rewrite. Star projections on windowed dialects carry it as a
// trailing column; callers that care enumerate their projection.
const rowNumAlias = "__rownum"

// Render translates a Query into dialect-correct SQL text plus the
// ordered bind parameter list. Dialects whose placeholder mechanism
// cannot carry arbitrary data get every value inlined as an escaped
// literal and an empty parameter list.
func Render(q Query, d *Dialect) (string, []any, error) {
	if q.Table == "" {
		return "", nil, fmt.Errorf("query has no table")
	}
	mode := d.Pagination
	paged := q.Rows > 0 || q.Offset > 0
	if paged {
		switch mode {
		case PaginationNone:
			return "", nil, &UnsupportedPaginationError{Engine: d.Engine, Rows: q.Rows, Offset: q.Offset}
		case PaginationTop:
			if q.Offset > 0 {
				// TOP cannot skip rows. Escalate to the windowed
				// rewrite when the engine understands it.
				if !d.Has(CapWindowFunctions) {
					return "", nil, &UnsupportedPaginationError{Engine: d.Engine, Rows: q.Rows, Offset: q.Offset}
				}
				mode = PaginationRowNumberOver
			}
		}
	}

	r := &renderer{d: d}
	if paged && mode == PaginationRowNumberOver {
		if err := r.selectRowNumber(q); err != nil {
			return "", nil, err
		}
		return r.buf.String(), r.args, nil
	}

	top := 0
	if paged && mode == PaginationTop {
		top = q.Rows
	}
	first, skip := 0, 0
	if paged && mode == PaginationFirstSkip {
		first, skip = q.Rows, q.Offset
	}
	if err := r.selectBase(q, top, first, skip); err != nil {
		return "", nil, err
	}
	r.orderBy(q.Order, mode == PaginationOffsetFetch && paged)
	if paged {
		switch mode {
		case PaginationLimitOffset:
			r.buf.WriteString(" LIMIT ")
			if q.Rows > 0 {
				r.buf.WriteString(strconv.Itoa(q.Rows))
			} else {
				r.buf.WriteString(d.NoLimitToken)
			}
			if q.Offset > 0 {
				r.buf.WriteString(" OFFSET ")
				r.buf.WriteString(strconv.Itoa(q.Offset))
			}
		case PaginationOffsetFetch:
			r.buf.WriteString(" OFFSET ")
			r.buf.WriteString(strconv.Itoa(q.Offset))
			r.buf.WriteString(" ROWS")
			if q.Rows > 0 {
				r.buf.WriteString(" FETCH NEXT ")
				r.buf.WriteString(strconv.Itoa(q.Rows))
				r.buf.WriteString(" ROWS ONLY")
			}
		}
	}
	return r.buf.String(), r.args, nil
}

// RenderCount translates a Query into a COUNT(*) over the same filter.
// Ordering and the row window do not apply to a count.
func RenderCount(q Query, d *Dialect) (string, []any, error) {
	if q.Table == "" {
		return "", nil, fmt.Errorf("query has no table")
	}
	r := &renderer{d: d}
	r.buf.WriteString("SELECT COUNT(*) FROM ")
	r.buf.WriteString(d.QuoteIdent(q.Table))
	if err := r.where(q.Conds); err != nil {
		return "", nil, err
	}
	return r.buf.String(), r.args, nil
}

// RenderInsert builds an INSERT for the given columns and values, in
// order. When returning is non-empty the dialect's RETURNING clause is
// appended; callers only ask for that on CapReturning dialects.
func RenderInsert(table string, columns []string, values []any, d *Dialect, returning string) (string, []any, error) {
	if len(columns) != len(values) {
		return "", nil, fmt.Errorf("insert into %s: %d columns, %d values", table, len(columns), len(values))
	}
	r := &renderer{d: d}
	r.buf.WriteString("INSERT INTO ")
	r.buf.WriteString(d.QuoteIdent(table))
	if len(columns) == 0 {
		r.buf.WriteString(" DEFAULT VALUES")
	} else {
		r.buf.WriteString(" (")
		for i, c := range columns {
			if i > 0 {
				r.buf.WriteByte(',')
			}
			r.buf.WriteString(d.QuoteIdent(c))
		}
		r.buf.WriteString(") VALUES (")
		for i, v := range values {
			if i > 0 {
				r.buf.WriteByte(',')
			}
			if err := r.value(v); err != nil {
				return "", nil, err
			}
		}
		r.buf.WriteByte(')')
	}
	if returning != "" {
		r.buf.WriteString(" RETURNING ")
		r.buf.WriteString(d.QuoteIdent(returning))
	}
	return r.buf.String(), r.args, nil
}

type renderer struct {
	d    *Dialect
	buf  bytes.Buffer
	args []any
}

func (r *renderer) selectBase(q Query, top, first, skip int) error {
	r.buf.WriteString("SELECT ")
	if top > 0 {
		r.buf.WriteString("TOP ")
		r.buf.WriteString(strconv.Itoa(top))
		r.buf.WriteByte(' ')
	}
	if first > 0 {
		r.buf.WriteString("FIRST ")
		r.buf.WriteString(strconv.Itoa(first))
		r.buf.WriteByte(' ')
	}
	if skip > 0 {
		r.buf.WriteString("SKIP ")
		r.buf.WriteString(strconv.Itoa(skip))
		r.buf.WriteByte(' ')
	}
	r.columns(q.Columns)
	r.buf.WriteString(" FROM ")
	r.buf.WriteString(r.d.QuoteIdent(q.Table))
	return r.where(q.Conds)
}

// selectRowNumber wraps the base query in a derived table assigning
// sequential row numbers per the requested ordering, then filters the
// window. With no ordering given the numbering is only deterministic
// per query plan; ORDER BY (SELECT NULL) keeps the engine from
// rejecting the OVER clause but promises nothing more.
func (r *renderer) selectRowNumber(q Query) error {
	r.buf.WriteString("SELECT ")
	r.columns(q.Columns)
	r.buf.WriteString(" FROM (SELECT ")
	r.columns(q.Columns)
	r.buf.WriteString(", ROW_NUMBER() OVER (")
	r.orderByInner(q.Order)
	r.buf.WriteString(") AS ")
	r.buf.WriteString(rowNumAlias)
	r.buf.WriteString(" FROM ")
	r.buf.WriteString(r.d.QuoteIdent(q.Table))
	if err := r.where(q.Conds); err != nil {
		return err
	}
	r.buf.WriteString(") AS ")
	r.buf.WriteString(r.d.QuoteIdent("__paged"))
	r.buf.WriteString(" WHERE ")
	r.buf.WriteString(rowNumAlias)
	if q.Rows > 0 {
		r.buf.WriteString(" BETWEEN ")
		r.buf.WriteString(strconv.Itoa(q.Offset + 1))
		r.buf.WriteString(" AND ")
		r.buf.WriteString(strconv.Itoa(q.Offset + q.Rows))
	} else {
		r.buf.WriteString(" >= ")
		r.buf.WriteString(strconv.Itoa(q.Offset + 1))
	}
	r.buf.WriteString(" ORDER BY ")
	r.buf.WriteString(rowNumAlias)
	return nil
}

func (r *renderer) columns(cols []string) {
	if len(cols) == 0 {
		r.buf.WriteByte('*')
		return
	}
	for i, c := range cols {
		if i > 0 {
			r.buf.WriteByte(',')
		}
		r.buf.WriteString(r.d.QuoteIdent(c))
	}
}

func (r *renderer) where(conds []Cond) error {
	for i, c := range conds {
		if i == 0 {
			r.buf.WriteString(" WHERE ")
		} else {
			r.buf.WriteString(" AND ")
		}
		if err := r.cond(c); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) cond(c Cond) error {
	r.buf.WriteString(r.d.QuoteIdent(c.Column))
	switch c.Op {
	case OpNull, OpNotNull:
		r.buf.WriteByte(' ')
		r.buf.WriteString(string(c.Op))
		return nil
	case OpIn:
		vs, ok := c.Value.([]any)
		if !ok || len(vs) == 0 {
			return fmt.Errorf("IN on %s needs a non-empty value list", c.Column)
		}
		r.buf.WriteString(" IN (")
		for i, v := range vs {
			if i > 0 {
				r.buf.WriteByte(',')
			}
			if err := r.value(v); err != nil {
				return err
			}
		}
		r.buf.WriteByte(')')
		return nil
	}
	if c.Value == nil {
		// Equality against nil degrades to the IS NULL forms so the
		// engine's three-valued logic does not eat the row.
		switch c.Op {
		case OpEq:
			r.buf.WriteString(" IS NULL")
			return nil
		case OpNeq:
			r.buf.WriteString(" IS NOT NULL")
			return nil
		}
	}
	r.buf.WriteByte(' ')
	r.buf.WriteString(string(c.Op))
	r.buf.WriteByte(' ')
	return r.value(c.Value)
}

func (r *renderer) orderBy(order []Order, required bool) {
	if len(order) == 0 {
		if required {
			// OFFSET/FETCH will not parse without an ORDER BY.
			r.buf.WriteString(" ORDER BY (SELECT NULL)")
		}
		return
	}
	r.buf.WriteString(" ORDER BY ")
	r.orderTerms(order)
}

func (r *renderer) orderByInner(order []Order) {
	if len(order) == 0 {
		r.buf.WriteString("ORDER BY (SELECT NULL)")
		return
	}
	r.buf.WriteString("ORDER BY ")
	r.orderTerms(order)
}

func (r *renderer) orderTerms(order []Order) {
	for i, o := range order {
		if i > 0 {
			r.buf.WriteByte(',')
		}
		r.buf.WriteString(r.d.QuoteIdent(o.Column))
		if o.Desc {
			r.buf.WriteString(" DESC")
		}
	}
}

// value emits one parameter, either as a bind marker or as an inlined
// literal when the dialect cannot bind safely.
func (r *renderer) value(v any) error {
	if r.d.Binds() {
		r.args = append(r.args, v)
		r.buf.WriteString(r.d.Mark(len(r.args)))
		return nil
	}
	lit, err := r.d.literal(v)
	if err != nil {
		return err
	}
	r.buf.WriteString(lit)
	return nil
}

// literal renders a Go value as an engine literal with exact escaping.
// This path exists for engines whose placeholders cannot carry data
// containing the marker character; the escaping, not binding, is what
// keeps such data intact.
func (d *Dialect) literal(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return d.QuoteString(x), nil
	case []byte:
		return "x'" + hex.EncodeToString(x) + "'", nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case time.Time:
		return d.QuoteString(x.Format(d.DatetimeFormat)), nil
	}
	return "", fmt.Errorf("cannot inline %T as a literal", v)
}
