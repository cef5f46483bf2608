package pricehist

import (
	"context"
	"time"

	"github.com/pricebook/pricebook/internal/store"
)

// Repository reads and writes pricehist rows.
type Repository struct {
	client store.Client
}

// NewRepository constructs a Repository over a store client.
func NewRepository(client store.Client) *Repository {
	return &Repository{client: client}
}

// Client returns the underlying store client.
func (r *Repository) Client() store.Client {
	return r.client
}

// List returns the prices of code ordered by effective date descending.
func (r *Repository) List(ctx context.Context, code string) ([]Record, error) {
	return r.selectRecords(ctx, store.Where(store.ColProdCode, code).OrderBy(store.ColEffDate, store.Desc))
}

// Latest returns the newest price of code with an effective date on or before asOf.
// A zero asOf means no upper bound.
func (r *Repository) Latest(ctx context.Context, code string, asOf time.Time) (Record, bool, error) {
	f := store.Where(store.ColProdCode, code)
	if !asOf.IsZero() {
		f = f.Lte(store.ColEffDate, Day(asOf))
	}
	records, err := r.selectRecords(ctx, f.OrderBy(store.ColEffDate, store.Desc).Limit(1))
	if err != nil || len(records) == 0 {
		return Record{}, false, err
	}
	return records[0], true, nil
}

// Exists reports whether the composite key is taken.
func (r *Repository) Exists(ctx context.Context, code string, date time.Time) (bool, error) {
	n, err := r.client.Count(ctx, store.PriceHistTable, keyFilter(code, date))
	return n > 0, err
}

// Recent returns the newest n price records across all products.
func (r *Repository) Recent(ctx context.Context, n int) ([]Record, error) {
	return r.selectRecords(ctx, store.All().OrderBy(store.ColEffDate, store.Desc).OrderBy(store.ColProdCode, store.Asc).Limit(n))
}

// All returns every price record ordered by product then date descending.
func (r *Repository) All(ctx context.Context) ([]Record, error) {
	return r.selectRecords(ctx, store.All().OrderBy(store.ColProdCode, store.Asc).OrderBy(store.ColEffDate, store.Desc))
}

// Count returns the number of price records.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	return r.client.Count(ctx, store.PriceHistTable, store.All())
}

// Insert stores a new record.
func (r *Repository) Insert(ctx context.Context, rec Record) error {
	return r.client.Insert(ctx, store.PriceHistTable, toRow(rec))
}

// UpdatePrice changes the unit price of an existing key.
func (r *Repository) UpdatePrice(ctx context.Context, rec Record) (int64, error) {
	return r.client.Update(ctx, store.PriceHistTable,
		store.Row{store.ColUnitPrice: rec.UnitPrice}, keyFilter(rec.ProductCode, rec.EffectiveDate))
}

// Delete removes a key. Removing an absent key is not an error.
func (r *Repository) Delete(ctx context.Context, code string, date time.Time) (int64, error) {
	return r.client.Delete(ctx, store.PriceHistTable, keyFilter(code, date))
}

// DeleteAll removes every price of code.
func (r *Repository) DeleteAll(ctx context.Context, code string) (int64, error) {
	return r.client.Delete(ctx, store.PriceHistTable, store.Where(store.ColProdCode, code))
}

func (r *Repository) selectRecords(ctx context.Context, f store.Filter) ([]Record, error) {
	rows, err := r.client.Select(ctx, store.PriceHistTable, f)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

func keyFilter(code string, date time.Time) store.Filter {
	return store.Where(store.ColProdCode, code).Where(store.ColEffDate, Day(date))
}

func toRow(rec Record) store.Row {
	return store.Row{
		store.ColProdCode:  rec.ProductCode,
		store.ColEffDate:   Day(rec.EffectiveDate),
		store.ColUnitPrice: rec.UnitPrice,
	}
}

func fromRow(row store.Row) Record {
	return Record{
		ProductCode:   row.String(store.ColProdCode),
		EffectiveDate: Day(row.Time(store.ColEffDate)),
		UnitPrice:     row.Decimal(store.ColUnitPrice),
	}
}
