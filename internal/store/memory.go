package store

import (
	"context"
	"sort"
	"sync"

	"github.com/pricebook/pricebook/internal/shared"
)

// Fault lets tests fail a specific operation. Returning nil lets the call proceed.
type Fault func(op, table string, row Row) error

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithFault installs a fault hook consulted before every write.
func WithFault(f Fault) MemoryOption {
	return func(m *Memory) { m.fault = f }
}

// Memory is an in-process Client used by tests and ephemeral runs.
// It enforces primary keys and non-cascading references like the SQL schema does.
type Memory struct {
	mu     sync.Mutex
	schema Schema
	tables map[string][]Row
	fault  Fault
}

// NewMemory constructs an empty in-memory store.
func NewMemory(schema Schema, opts ...MemoryOption) *Memory {
	m := &Memory{schema: schema, tables: make(map[string][]Row, len(schema))}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetFault replaces the fault hook.
func (m *Memory) SetFault(f Fault) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = f
}

func (m *Memory) Select(ctx context.Context, table string, f Filter) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectRows(ctx, table, f)
}

func (m *Memory) Count(ctx context.Context, table string, f Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, err := m.selectRows(ctx, table, Filter{conds: f.conds})
	return int64(len(rows)), err
}

func (m *Memory) Insert(ctx context.Context, table string, rows ...Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertRows(ctx, table, rows)
}

func (m *Memory) Update(ctx context.Context, table string, patch Row, f Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateRows(ctx, table, patch, f)
}

func (m *Memory) Delete(ctx context.Context, table string, f Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteRows(ctx, table, f)
}

// WithTx runs fn against a snapshot that is restored when fn fails.
func (m *Memory) WithTx(ctx context.Context, fn func(ctx context.Context, tx Client) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.snapshot()
	if err := fn(ctx, &memoryTx{m: m}); err != nil {
		m.tables = snapshot
		return err
	}
	return nil
}

func (m *Memory) snapshot() map[string][]Row {
	out := make(map[string][]Row, len(m.tables))
	for name, rows := range m.tables {
		copied := make([]Row, len(rows))
		for i, r := range rows {
			copied[i] = r.clone()
		}
		out[name] = copied
	}
	return out
}

func (m *Memory) selectRows(ctx context.Context, table string, f Filter) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(err, 0)
	}
	t, err := m.schema.table(table)
	if err != nil {
		return nil, err
	}
	if err := m.schema.check(t, f.columns()...); err != nil {
		return nil, err
	}
	var out []Row
	for _, r := range m.tables[table] {
		if f.matches(r) {
			out = append(out, r.clone())
		}
	}
	if len(f.orders) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range f.orders {
				c := compare(out[i][o.column], out[j][o.column])
				if c == 0 {
					continue
				}
				if o.dir == Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if f.offset > 0 {
		if f.offset >= len(out) {
			return nil, nil
		}
		out = out[f.offset:]
	}
	if f.limit > 0 && len(out) > f.limit {
		out = out[:f.limit]
	}
	return out, nil
}

func (m *Memory) insertRows(ctx context.Context, table string, rows []Row) error {
	if err := ctx.Err(); err != nil {
		return classify(err, 0)
	}
	t, err := m.schema.table(table)
	if err != nil {
		return err
	}
	pending := make([]Row, 0, len(rows))
	seen := make(map[string]bool, len(m.tables[table])+len(rows))
	for _, r := range m.tables[table] {
		seen[t.keyOf(r)] = true
	}
	for _, r := range rows {
		if err := m.schema.check(t, orderedColumns(t, r)...); err != nil {
			return err
		}
		if m.fault != nil {
			if err := m.fault("insert", table, r); err != nil {
				return err
			}
		}
		key := t.keyOf(r)
		if seen[key] {
			return shared.Errorf(shared.ErrConflict, "duplicate key value violates unique constraint %q", t.Name+"_pkey")
		}
		if err := m.checkParents(t, r); err != nil {
			return err
		}
		seen[key] = true
		pending = append(pending, r.clone())
	}
	m.tables[table] = append(m.tables[table], pending...)
	return nil
}

func (m *Memory) updateRows(ctx context.Context, table string, patch Row, f Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, classify(err, 0)
	}
	t, err := m.schema.table(table)
	if err != nil {
		return 0, err
	}
	if err := m.schema.check(t, append(orderedColumns(t, patch), f.columns()...)...); err != nil {
		return 0, err
	}
	rows := m.tables[table]
	updated := make([]Row, len(rows))
	var n int64
	for i, r := range rows {
		if !f.matches(r) {
			updated[i] = r
			continue
		}
		next := r.clone()
		for k, v := range patch {
			next[k] = v
		}
		if m.fault != nil {
			if err := m.fault("update", table, next); err != nil {
				return 0, err
			}
		}
		if err := m.checkParents(t, next); err != nil {
			return 0, err
		}
		updated[i] = next
		n++
	}
	seen := make(map[string]bool, len(updated))
	for _, r := range updated {
		key := t.keyOf(r)
		if seen[key] {
			return 0, shared.Errorf(shared.ErrConflict, "duplicate key value violates unique constraint %q", t.Name+"_pkey")
		}
		seen[key] = true
	}
	m.tables[table] = updated
	return n, nil
}

func (m *Memory) deleteRows(ctx context.Context, table string, f Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, classify(err, 0)
	}
	t, err := m.schema.table(table)
	if err != nil {
		return 0, err
	}
	if err := m.schema.check(t, f.columns()...); err != nil {
		return 0, err
	}
	kept := make([]Row, 0, len(m.tables[table]))
	var n int64
	for _, r := range m.tables[table] {
		if !f.matches(r) {
			kept = append(kept, r)
			continue
		}
		if m.fault != nil {
			if err := m.fault("delete", table, r); err != nil {
				return 0, err
			}
		}
		if err := m.checkChildren(t, r); err != nil {
			return 0, err
		}
		n++
	}
	m.tables[table] = kept
	return n, nil
}

func (m *Memory) checkParents(t Table, r Row) error {
	for _, ref := range t.Refs {
		found := false
		for _, parent := range m.tables[ref.Table] {
			if compare(parent[ref.RefColumn], r[ref.Column]) == 0 {
				found = true
				break
			}
		}
		if !found {
			return shared.Errorf(shared.ErrConflict, "insert or update on table %q violates foreign key: %s=%v is not present in %q",
				t.Name, ref.Column, r[ref.Column], ref.Table)
		}
	}
	return nil
}

func (m *Memory) checkChildren(t Table, r Row) error {
	for _, child := range m.schema {
		for _, ref := range child.Refs {
			if ref.Table != t.Name {
				continue
			}
			for _, c := range m.tables[child.Name] {
				if compare(c[ref.Column], r[ref.RefColumn]) == 0 {
					return shared.Errorf(shared.ErrConflict, "update or delete on table %q violates foreign key: %s=%v is still referenced from %q",
						t.Name, ref.RefColumn, r[ref.RefColumn], child.Name)
				}
			}
		}
	}
	return nil
}

type memoryTx struct {
	m *Memory
}

func (tx *memoryTx) Select(ctx context.Context, table string, f Filter) ([]Row, error) {
	return tx.m.selectRows(ctx, table, f)
}

func (tx *memoryTx) Count(ctx context.Context, table string, f Filter) (int64, error) {
	rows, err := tx.m.selectRows(ctx, table, Filter{conds: f.conds})
	return int64(len(rows)), err
}

func (tx *memoryTx) Insert(ctx context.Context, table string, rows ...Row) error {
	return tx.m.insertRows(ctx, table, rows)
}

func (tx *memoryTx) Update(ctx context.Context, table string, patch Row, f Filter) (int64, error) {
	return tx.m.updateRows(ctx, table, patch, f)
}

func (tx *memoryTx) Delete(ctx context.Context, table string, f Filter) (int64, error) {
	return tx.m.deleteRows(ctx, table, f)
}

func (tx *memoryTx) WithTx(ctx context.Context, fn func(ctx context.Context, tx Client) error) error {
	return fn(ctx, tx)
}

var (
	_ Client     = (*Memory)(nil)
	_ Transactor = (*Memory)(nil)
	_ Client     = (*Postgres)(nil)
	_ Transactor = (*Postgres)(nil)
)
