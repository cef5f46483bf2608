package store

import (
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Op is a comparison operator in a filter condition.
type Op int

const (
	OpEq Op = iota
	OpPrefix
	OpGte
	OpLte
	OpContains
)

// Direction represents ORDER BY direction.
type Direction int

const (
	// Asc represents ascending order.
	Asc Direction = iota
	// Desc represents descending order.
	Desc
)

// Condition is one column comparison. Conditions are combined with AND.
type Condition struct {
	Column string
	Op     Op
	Value  any
}

type order struct {
	column string
	dir    Direction
}

// Filter selects rows. The zero value matches every row.
// Methods return copies so a Filter can be shared and extended safely.
type Filter struct {
	conds  []Condition
	orders []order
	limit  int
	offset int
}

// All matches every row.
func All() Filter { return Filter{} }

// Where starts a filter with an equality condition.
func Where(column string, value any) Filter {
	return Filter{}.Where(column, value)
}

// Where adds column = value.
func (f Filter) Where(column string, value any) Filter {
	return f.with(Condition{Column: column, Op: OpEq, Value: value})
}

// HasPrefix adds column LIKE 'prefix%'.
func (f Filter) HasPrefix(column, prefix string) Filter {
	return f.with(Condition{Column: column, Op: OpPrefix, Value: prefix})
}

// Contains adds a case-insensitive substring match.
func (f Filter) Contains(column, needle string) Filter {
	return f.with(Condition{Column: column, Op: OpContains, Value: needle})
}

// Gte adds column >= value.
func (f Filter) Gte(column string, value any) Filter {
	return f.with(Condition{Column: column, Op: OpGte, Value: value})
}

// Lte adds column <= value.
func (f Filter) Lte(column string, value any) Filter {
	return f.with(Condition{Column: column, Op: OpLte, Value: value})
}

// OrderBy appends a sort key.
func (f Filter) OrderBy(column string, dir Direction) Filter {
	out := f.clone()
	out.orders = append(out.orders, order{column: column, dir: dir})
	return out
}

// Limit caps the number of returned rows. Zero means no limit.
func (f Filter) Limit(n int) Filter {
	out := f.clone()
	out.limit = n
	return out
}

// Offset skips n rows.
func (f Filter) Offset(n int) Filter {
	out := f.clone()
	out.offset = n
	return out
}

// Conditions exposes the filter conditions.
func (f Filter) Conditions() []Condition {
	return append([]Condition(nil), f.conds...)
}

func (f Filter) with(c Condition) Filter {
	out := f.clone()
	out.conds = append(out.conds, c)
	return out
}

func (f Filter) clone() Filter {
	return Filter{
		conds:  append([]Condition(nil), f.conds...),
		orders: append([]order(nil), f.orders...),
		limit:  f.limit,
		offset: f.offset,
	}
}

func (f Filter) columns() []string {
	cols := make([]string, 0, len(f.conds)+len(f.orders))
	for _, c := range f.conds {
		cols = append(cols, c.Column)
	}
	for _, o := range f.orders {
		cols = append(cols, o.column)
	}
	return cols
}

// whereSQL renders the WHERE clause with positional parameters starting after argOffset.
func (f Filter) whereSQL(argOffset int) (string, []any) {
	if len(f.conds) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(f.conds))
	args := make([]any, 0, len(f.conds))
	for _, c := range f.conds {
		ident := quote(c.Column)
		placeholder := "$" + strconv.Itoa(argOffset+len(args)+1)
		switch c.Op {
		case OpPrefix:
			parts = append(parts, ident+" LIKE "+placeholder)
			args = append(args, escapeLike(toString(c.Value))+"%")
		case OpContains:
			parts = append(parts, ident+" ILIKE "+placeholder)
			args = append(args, "%"+escapeLike(toString(c.Value))+"%")
		case OpGte:
			parts = append(parts, ident+" >= "+placeholder)
			args = append(args, encodeArg(c.Value))
		case OpLte:
			parts = append(parts, ident+" <= "+placeholder)
			args = append(args, encodeArg(c.Value))
		default:
			parts = append(parts, ident+" = "+placeholder)
			args = append(args, encodeArg(c.Value))
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

func (f Filter) orderSQL() string {
	if len(f.orders) == 0 {
		return ""
	}
	parts := make([]string, 0, len(f.orders))
	for _, o := range f.orders {
		dir := " ASC"
		if o.dir == Desc {
			dir = " DESC"
		}
		parts = append(parts, quote(o.column)+dir)
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

// matches evaluates the conditions against an in-memory row.
func (f Filter) matches(r Row) bool {
	for _, c := range f.conds {
		v, ok := r[c.Column]
		if !ok {
			return false
		}
		switch c.Op {
		case OpPrefix:
			if !strings.HasPrefix(toString(v), toString(c.Value)) {
				return false
			}
		case OpContains:
			if !strings.Contains(strings.ToLower(toString(v)), strings.ToLower(toString(c.Value))) {
				return false
			}
		case OpGte:
			if compare(v, c.Value) < 0 {
				return false
			}
		case OpLte:
			if compare(v, c.Value) > 0 {
				return false
			}
		default:
			if compare(v, c.Value) != 0 {
				return false
			}
		}
	}
	return true
}

func quote(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return keyPart(v)
}

// encodeArg converts values the driver would otherwise guess at.
func encodeArg(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		return d.String()
	}
	return v
}

// compare orders two column values of the same kind.
func compare(a, b any) int {
	switch x := a.(type) {
	case time.Time:
		y, _ := b.(time.Time)
		return x.Compare(y)
	case decimal.Decimal:
		switch y := b.(type) {
		case decimal.Decimal:
			return x.Cmp(y)
		case string:
			d, _ := decimal.NewFromString(y)
			return x.Cmp(d)
		}
	case int64:
		y := Row{"v": b}.Int("v")
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case bool:
		y, _ := b.(bool)
		if x == y {
			return 0
		}
		if !x {
			return -1
		}
		return 1
	}
	return strings.Compare(toString(a), toString(b))
}
