// Package store is the data access layer. It issues single-table reads and
// writes against a remote tabular store and maps store failures onto the
// shared error taxonomy. No caching happens here.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Client is the contract every store backend satisfies.
type Client interface {
	Select(ctx context.Context, table string, f Filter) ([]Row, error)
	Count(ctx context.Context, table string, f Filter) (int64, error)
	Insert(ctx context.Context, table string, rows ...Row) error
	// Update applies patch to every row matching f and reports how many rows changed.
	Update(ctx context.Context, table string, patch Row, f Filter) (int64, error)
	// Delete removes every row matching f. Deleting nothing is not an error.
	Delete(ctx context.Context, table string, f Filter) (int64, error)
}

// Transactor is implemented by backends able to run several calls atomically.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Client) error) error
}

// SupportsTx reports whether c can run calls inside a transaction.
func SupportsTx(c Client) (Transactor, bool) {
	t, ok := c.(Transactor)
	return t, ok
}

// Row is one record keyed by column name.
type Row map[string]any

// String returns the text value of col, or "" when absent.
func (r Row) String(col string) string {
	if v, ok := r[col].(string); ok {
		return v
	}
	return ""
}

// Time returns the date/time value of col.
func (r Row) Time(col string) time.Time {
	if v, ok := r[col].(time.Time); ok {
		return v
	}
	return time.Time{}
}

// Decimal returns the numeric value of col.
func (r Row) Decimal(col string) decimal.Decimal {
	switch v := r[col].(type) {
	case decimal.Decimal:
		return v
	case string:
		d, err := decimal.NewFromString(v)
		if err == nil {
			return d
		}
	}
	return decimal.Zero
}

// Int returns the integer value of col.
func (r Row) Int(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	}
	return 0
}

// Bool returns the boolean value of col.
func (r Row) Bool(col string) bool {
	v, _ := r[col].(bool)
	return v
}

func (r Row) clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ColumnType drives how a backend encodes and scans a column.
type ColumnType int

const (
	Text ColumnType = iota
	Date
	Numeric
	Int
	Bool
	Timestamp
)

// Column describes one table column.
type Column struct {
	Name string
	Type ColumnType
}

// Reference is a foreign key from Column to Table.RefColumn. References never cascade.
type Reference struct {
	Column    string
	Table     string
	RefColumn string
}

// Table describes a persisted table.
type Table struct {
	Name    string
	Columns []Column
	Key     []string
	Refs    []Reference
}

func (t Table) column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (t Table) keyOf(r Row) string {
	key := ""
	for i, col := range t.Key {
		if i > 0 {
			key += "|"
		}
		key += keyPart(r[col])
	}
	return key
}

func keyPart(v any) string {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format("2006-01-02T15:04:05.999999999")
	case decimal.Decimal:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Schema indexes the tables a backend accepts. Unknown tables and columns are rejected.
type Schema map[string]Table

// NewSchema builds a Schema from table definitions.
func NewSchema(tables ...Table) Schema {
	s := make(Schema, len(tables))
	for _, t := range tables {
		s[t.Name] = t
	}
	return s
}

func (s Schema) table(name string) (Table, error) {
	t, ok := s[name]
	if !ok {
		return Table{}, fmt.Errorf("store: unknown table %q", name)
	}
	return t, nil
}

func (s Schema) check(t Table, cols ...string) error {
	for _, c := range cols {
		if _, ok := t.column(c); !ok {
			return fmt.Errorf("store: unknown column %q on %s", c, t.Name)
		}
	}
	return nil
}
