package products

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricebook/pricebook/internal/catalog/pricehist"
	"github.com/pricebook/pricebook/internal/shared"
	"github.com/pricebook/pricebook/internal/store"
)

func newService(t *testing.T) *Service {
	t.Helper()
	mem := store.NewMemory(store.CatalogSchema())
	repo := NewRepository(mem)
	ctx := context.Background()
	for _, p := range []Product{
		{Code: "AD0001", Description: "Seagate 1TB Drive", Unit: "pc"},
		{Code: "AD0002", Description: "WD 2TB Drive", Unit: "pc"},
		{Code: "NB0001", Description: "ThinkPad Notebook", Unit: "unit"},
		{Code: "MS0001", Description: "Wireless Mouse", Unit: "pc"},
	} {
		require.NoError(t, repo.Create(ctx, p))
	}
	prices := pricehist.NewRepository(mem)
	for _, rec := range []pricehist.Record{
		{ProductCode: "AD0001", EffectiveDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), UnitPrice: decimal.RequireFromString("10.00")},
		{ProductCode: "AD0001", EffectiveDate: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), UnitPrice: decimal.RequireFromString("12.50")},
		{ProductCode: "NB0001", EffectiveDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), UnitPrice: decimal.RequireFromString("999.99")},
	} {
		require.NoError(t, prices.Insert(ctx, rec))
	}
	return NewService(repo, prices)
}

func TestListPagesAndCurrentPrice(t *testing.T) {
	svc := newService(t)
	page, err := svc.List(context.Background(), ListFilters{Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 4, page.Total)
	assert.Equal(t, 2, page.Pages())
	require.Len(t, page.Items, 2)
	assert.Equal(t, "AD0001", page.Items[0].Code)
	require.NotNil(t, page.Items[0].Current)
	assert.True(t, page.Items[0].Current.UnitPrice.Equal(decimal.RequireFromString("12.5")))
	assert.Nil(t, page.Items[1].Current)

	page, err = svc.List(context.Background(), ListFilters{Limit: 2, Page: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "MS0001", page.Items[0].Code)
}

func TestListFiltersAndSorts(t *testing.T) {
	svc := newService(t)
	page, err := svc.List(context.Background(), ListFilters{Category: "ad", SortDir: SortDesc})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "AD0002", page.Items[0].Code)

	page, err = svc.List(context.Background(), ListFilters{Search: "drive", SortBy: "description"})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Seagate 1TB Drive", page.Items[0].Description)
}

func TestGetWithHistory(t *testing.T) {
	svc := newService(t)
	d, err := svc.Get(context.Background(), " ad0001 ")
	require.NoError(t, err)
	require.Len(t, d.History, 2)
	latest, ok := d.Latest()
	require.True(t, ok)
	assert.Equal(t, "2023-06-01", latest.Key())

	_, err = svc.Get(context.Background(), "VC0001")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSnapshotGroupsHistory(t *testing.T) {
	svc := newService(t)
	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap, 4)
	assert.Equal(t, []string{"AD0001", "AD0002", "MS0001", "NB0001"},
		[]string{snap[0].Code, snap[1].Code, snap[2].Code, snap[3].Code})
	assert.Len(t, snap[0].History, 2)
	assert.Empty(t, snap[1].History)
}

func TestValidatorCleansAndChecks(t *testing.T) {
	pv := NewValidator(nil, nil)
	p, err := pv.Validate(ProductForm{Code: " nb0002", Description: " Laptop ", Unit: "unit "})
	require.NoError(t, err)
	assert.Equal(t, Product{Code: "NB0002", Description: "Laptop", Unit: "unit"}, p)

	_, err = pv.Validate(ProductForm{Code: "ZZ0001", Description: "x", Unit: "pc"})
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Equal(t, "code", shared.FieldOf(err))

	_, err = pv.Validate(ProductForm{Code: "NB0002"})
	require.ErrorIs(t, err, shared.ErrValidation)
	fields := shared.FormErrors(err)
	assert.Contains(t, fields, "description")
	assert.Contains(t, fields, "unit")

	_, err = pv.ValidateUnit("  ")
	require.ErrorIs(t, err, shared.ErrValidation)
}
