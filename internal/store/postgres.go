package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// DefaultTimeout bounds every store call when no explicit timeout is configured.
const DefaultTimeout = 10 * time.Second

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres implements Client over a pgx pool.
type Postgres struct {
	pool    *pgxpool.Pool
	db      querier
	schema  Schema
	timeout time.Duration
	inTx    bool
}

// NewPostgres constructs a PostgreSQL backed client.
func NewPostgres(pool *pgxpool.Pool, schema Schema, timeout time.Duration) *Postgres {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Postgres{pool: pool, db: pool, schema: schema, timeout: timeout}
}

// Select implements Client.
func (p *Postgres) Select(ctx context.Context, table string, f Filter) ([]Row, error) {
	t, err := p.schema.table(table)
	if err != nil {
		return nil, err
	}
	if err := p.schema.check(t, f.columns()...); err != nil {
		return nil, err
	}

	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Type == Numeric {
			cols = append(cols, quote(c.Name)+"::text AS "+quote(c.Name))
			continue
		}
		cols = append(cols, quote(c.Name))
	}
	where, args := f.whereSQL(0)
	query := "SELECT " + strings.Join(cols, ", ") + " FROM " + quote(t.Name) + where + f.orderSQL()
	if f.limit > 0 {
		args = append(args, f.limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if f.offset > 0 {
		args = append(args, f.offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err, p.timeout)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		dest := scanTargets(t)
		if err := rows.Scan(dest...); err != nil {
			return nil, classify(err, p.timeout)
		}
		row, err := decodeRow(t, dest)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, p.timeout)
	}
	return out, nil
}

// Count implements Client.
func (p *Postgres) Count(ctx context.Context, table string, f Filter) (int64, error) {
	t, err := p.schema.table(table)
	if err != nil {
		return 0, err
	}
	if err := p.schema.check(t, f.columns()...); err != nil {
		return 0, err
	}
	where, args := f.whereSQL(0)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var total int64
	if err := p.db.QueryRow(ctx, "SELECT COUNT(*) FROM "+quote(t.Name)+where, args...).Scan(&total); err != nil {
		return 0, classify(err, p.timeout)
	}
	return total, nil
}

// Insert implements Client. All rows must carry the same columns.
func (p *Postgres) Insert(ctx context.Context, table string, rows ...Row) error {
	if len(rows) == 0 {
		return nil
	}
	t, err := p.schema.table(table)
	if err != nil {
		return err
	}
	cols := orderedColumns(t, rows[0])
	if err := p.schema.check(t, cols...); err != nil {
		return err
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}
	args := make([]any, 0, len(rows)*len(cols))
	tuples := make([]string, 0, len(rows))
	for _, r := range rows {
		if len(r) != len(cols) {
			return fmt.Errorf("store: insert into %s: rows carry different columns", t.Name)
		}
		ph := make([]string, len(cols))
		for i, c := range cols {
			v, ok := r[c]
			if !ok {
				return fmt.Errorf("store: insert into %s: row missing %q", t.Name, c)
			}
			args = append(args, encodeArg(v))
			ph[i] = "$" + strconv.Itoa(len(args))
		}
		tuples = append(tuples, "("+strings.Join(ph, ", ")+")")
	}
	query := "INSERT INTO " + quote(t.Name) + " (" + strings.Join(quoted, ", ") + ") VALUES " + strings.Join(tuples, ", ")

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if _, err := p.db.Exec(ctx, query, args...); err != nil {
		return classify(err, p.timeout)
	}
	return nil
}

// Update implements Client.
func (p *Postgres) Update(ctx context.Context, table string, patch Row, f Filter) (int64, error) {
	if len(patch) == 0 {
		return 0, nil
	}
	t, err := p.schema.table(table)
	if err != nil {
		return 0, err
	}
	cols := orderedColumns(t, patch)
	if err := p.schema.check(t, append(cols, f.columns()...)...); err != nil {
		return 0, err
	}

	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		args = append(args, encodeArg(patch[c]))
		sets = append(sets, quote(c)+" = $"+strconv.Itoa(len(args)))
	}
	where, whereArgs := f.whereSQL(len(args))
	args = append(args, whereArgs...)
	query := "UPDATE " + quote(t.Name) + " SET " + strings.Join(sets, ", ") + where

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tag, err := p.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, classify(err, p.timeout)
	}
	return tag.RowsAffected(), nil
}

// Delete implements Client.
func (p *Postgres) Delete(ctx context.Context, table string, f Filter) (int64, error) {
	t, err := p.schema.table(table)
	if err != nil {
		return 0, err
	}
	if err := p.schema.check(t, f.columns()...); err != nil {
		return 0, err
	}
	where, args := f.whereSQL(0)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tag, err := p.db.Exec(ctx, "DELETE FROM "+quote(t.Name)+where, args...)
	if err != nil {
		return 0, classify(err, p.timeout)
	}
	return tag.RowsAffected(), nil
}

// WithTx runs fn inside a single PostgreSQL transaction.
func (p *Postgres) WithTx(ctx context.Context, fn func(ctx context.Context, tx Client) error) error {
	if p.inTx {
		return fn(ctx, p)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(err, p.timeout)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	scoped := &Postgres{pool: p.pool, db: tx, schema: p.schema, timeout: p.timeout, inTx: true}
	if err := fn(ctx, scoped); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(err, p.timeout)
	}
	return nil
}

func orderedColumns(t Table, r Row) []string {
	cols := make([]string, 0, len(r))
	for _, c := range t.Columns {
		if _, ok := r[c.Name]; ok {
			cols = append(cols, c.Name)
		}
	}
	if len(cols) != len(r) {
		for name := range r {
			if _, ok := t.column(name); !ok {
				cols = append(cols, name)
			}
		}
	}
	return cols
}

func scanTargets(t Table) []any {
	dest := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		switch c.Type {
		case Date:
			dest[i] = new(pgtype.Date)
		case Int:
			dest[i] = new(pgtype.Int8)
		case Bool:
			dest[i] = new(pgtype.Bool)
		case Timestamp:
			dest[i] = new(pgtype.Timestamptz)
		default:
			dest[i] = new(pgtype.Text)
		}
	}
	return dest
}

func decodeRow(t Table, dest []any) (Row, error) {
	row := make(Row, len(t.Columns))
	for i, c := range t.Columns {
		switch v := dest[i].(type) {
		case *pgtype.Date:
			if v.Valid {
				row[c.Name] = v.Time
			}
		case *pgtype.Int8:
			if v.Valid {
				row[c.Name] = v.Int64
			}
		case *pgtype.Bool:
			if v.Valid {
				row[c.Name] = v.Bool
			}
		case *pgtype.Timestamptz:
			if v.Valid {
				row[c.Name] = v.Time
			}
		case *pgtype.Text:
			if !v.Valid {
				continue
			}
			if c.Type == Numeric {
				d, err := decimal.NewFromString(v.String)
				if err != nil {
					return nil, fmt.Errorf("store: decode %s.%s: %w", t.Name, c.Name, err)
				}
				row[c.Name] = d
				continue
			}
			row[c.Name] = v.String
		}
	}
	return row, nil
}
