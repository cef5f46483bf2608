package products

import (
	"context"
	"strings"

	"github.com/pricebook/pricebook/internal/shared"
	"github.com/pricebook/pricebook/internal/store"
)

// Repository reads and writes product rows.
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

// With returns a repository bound to another client, typically a transaction.
func (r *Repository) With(client store.Client) *Repository {
	return &Repository{client: client}
}

// List returns a page of products matching filters and the total match count.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Product, int64, error) {
	f := listFilter(filters)
	total, err := r.client.Count(ctx, store.ProductTable, f)
	if err != nil {
		return nil, 0, err
	}
	dir := store.Asc
	if filters.SortDir == SortDesc {
		dir = store.Desc
	}
	col := sortColumn(filters.SortBy)
	f = f.OrderBy(col, dir)
	if col != store.ColProdCode {
		f = f.OrderBy(store.ColProdCode, store.Asc)
	}
	if filters.Limit > 0 {
		f = f.Limit(filters.Limit).Offset((filters.Page - 1) * filters.Limit)
	}
	items, err := r.selectProducts(ctx, f)
	return items, total, err
}

// All returns every product in code order.
func (r *Repository) All(ctx context.Context) ([]Product, error) {
	return r.selectProducts(ctx, store.All().OrderBy(store.ColProdCode, store.Asc))
}

// Get loads one product.
func (r *Repository) Get(ctx context.Context, code string) (Product, error) {
	items, err := r.selectProducts(ctx, store.Where(store.ColProdCode, code).Limit(1))
	if err != nil {
		return Product{}, err
	}
	if len(items) == 0 {
		return Product{}, shared.Errorf(shared.ErrNotFound, "product %s not found", code)
	}
	return items[0], nil
}

// Exists reports whether code is taken.
func (r *Repository) Exists(ctx context.Context, code string) (bool, error) {
	n, err := r.client.Count(ctx, store.ProductTable, store.Where(store.ColProdCode, code))
	return n > 0, err
}

// Count returns the number of products.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	return r.client.Count(ctx, store.ProductTable, store.All())
}

// Create inserts p. A taken code is a conflict.
func (r *Repository) Create(ctx context.Context, p Product) error {
	return r.client.Insert(ctx, store.ProductTable, store.Row{
		store.ColProdCode:    p.Code,
		store.ColDescription: p.Description,
		store.ColUnit:        p.Unit,
	})
}

// Update changes description and unit of p.Code.
func (r *Repository) Update(ctx context.Context, p Product) error {
	n, err := r.client.Update(ctx, store.ProductTable,
		store.Row{store.ColDescription: p.Description, store.ColUnit: p.Unit},
		store.Where(store.ColProdCode, p.Code))
	if err != nil {
		return err
	}
	if n == 0 {
		return shared.Errorf(shared.ErrNotFound, "product %s not found", p.Code)
	}
	return nil
}

// Delete removes the product row. The store refuses while price rows still reference it.
func (r *Repository) Delete(ctx context.Context, code string) (int64, error) {
	return r.client.Delete(ctx, store.ProductTable, store.Where(store.ColProdCode, code))
}

func (r *Repository) selectProducts(ctx context.Context, f store.Filter) ([]Product, error) {
	rows, err := r.client.Select(ctx, store.ProductTable, f)
	if err != nil {
		return nil, err
	}
	out := make([]Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, Product{
			Code:        row.String(store.ColProdCode),
			Description: row.String(store.ColDescription),
			Unit:        row.String(store.ColUnit),
		})
	}
	return out, nil
}

func listFilter(filters ListFilters) store.Filter {
	f := store.All()
	if c := strings.ToUpper(strings.TrimSpace(filters.Category)); c != "" {
		f = f.HasPrefix(store.ColProdCode, c)
	}
	if s := strings.TrimSpace(filters.Search); s != "" {
		f = f.Contains(store.ColDescription, s)
	}
	return f
}

func sortColumn(sortBy string) string {
	switch sortBy {
	case "description":
		return store.ColDescription
	case "unit":
		return store.ColUnit
	default:
		return store.ColProdCode
	}
}
