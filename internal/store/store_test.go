package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pricebook/pricebook/internal/shared"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func seeded(t *testing.T, opts ...MemoryOption) *Memory {
	t.Helper()
	m := NewMemory(CatalogSchema(), opts...)
	ctx := context.Background()
	require.NoError(t, m.Insert(ctx, ProductTable,
		Row{ColProdCode: "AD0001", ColDescription: "Drive", ColUnit: "pc"},
		Row{ColProdCode: "AD0003", ColDescription: "SSD", ColUnit: "pc"},
		Row{ColProdCode: "NB0001", ColDescription: "Notebook", ColUnit: "unit"},
	))
	require.NoError(t, m.Insert(ctx, PriceHistTable,
		Row{ColProdCode: "AD0001", ColEffDate: day("2023-01-01"), ColUnitPrice: decimal.RequireFromString("10.00")},
		Row{ColProdCode: "AD0001", ColEffDate: day("2023-06-01"), ColUnitPrice: decimal.RequireFromString("12.50")},
	))
	return m
}

func TestMemorySelectFilterAndOrder(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	rows, err := m.Select(ctx, ProductTable, All().HasPrefix(ColProdCode, "AD").OrderBy(ColProdCode, Desc).Limit(1))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "AD0003", rows[0].String(ColProdCode))

	prices, err := m.Select(ctx, PriceHistTable, Where(ColProdCode, "AD0001").OrderBy(ColEffDate, Desc))
	require.NoError(t, err)
	require.Len(t, prices, 2)
	require.True(t, prices[0].Time(ColEffDate).Equal(day("2023-06-01")))
	require.Equal(t, "12.5", prices[0].Decimal(ColUnitPrice).String())

	n, err := m.Count(ctx, PriceHistTable, Where(ColProdCode, "AD0001").Gte(ColEffDate, day("2023-03-01")))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestMemoryEnforcesKeysAndReferences(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	err := m.Insert(ctx, PriceHistTable, Row{ColProdCode: "AD0001", ColEffDate: day("2023-01-01"), ColUnitPrice: decimal.NewFromInt(9)})
	require.ErrorIs(t, err, shared.ErrConflict)

	err = m.Insert(ctx, PriceHistTable, Row{ColProdCode: "ZZ9999", ColEffDate: day("2023-01-01"), ColUnitPrice: decimal.NewFromInt(9)})
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = m.Delete(ctx, ProductTable, Where(ColProdCode, "AD0001"))
	require.ErrorIs(t, err, shared.ErrConflict, "product with price rows must not be deletable")

	n, err := m.Delete(ctx, ProductTable, Where(ColProdCode, "AD0003"))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = m.Delete(ctx, ProductTable, Where(ColProdCode, "AD0003"))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestMemoryUpdateRejectsKeyCollision(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	_, err := m.Update(ctx, PriceHistTable, Row{ColEffDate: day("2023-06-01")},
		Where(ColProdCode, "AD0001").Where(ColEffDate, day("2023-01-01")))
	require.ErrorIs(t, err, shared.ErrConflict)

	n, err := m.Update(ctx, PriceHistTable, Row{ColUnitPrice: decimal.NewFromInt(11)},
		Where(ColProdCode, "AD0001").Where(ColEffDate, day("2023-01-01")))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestMemoryWithTxRollsBack(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.WithTx(ctx, func(ctx context.Context, tx Client) error {
		if _, err := tx.Delete(ctx, PriceHistTable, Where(ColProdCode, "AD0001")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := m.Count(ctx, PriceHistTable, Where(ColProdCode, "AD0001"))
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestMemoryFaultHook(t *testing.T) {
	m := seeded(t)
	m.SetFault(func(op, table string, row Row) error {
		if op == "insert" && table == PriceHistTable {
			return shared.Errorf(shared.ErrTransport, "network down")
		}
		return nil
	})
	err := m.Insert(context.Background(), PriceHistTable, Row{ColProdCode: "NB0001", ColEffDate: day("2024-01-01"), ColUnitPrice: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, shared.ErrTransport)
}

func TestMemoryCancelledContextIsTransportError(t *testing.T) {
	m := seeded(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Select(ctx, ProductTable, All())
	require.ErrorIs(t, err, shared.ErrTransport)
}

func TestUnknownTableOrColumnRejected(t *testing.T) {
	m := seeded(t)
	_, err := m.Select(context.Background(), "users", All())
	require.Error(t, err)
	_, err = m.Select(context.Background(), ProductTable, Where("price", 1))
	require.Error(t, err)
}

func TestFilterSQL(t *testing.T) {
	f := Where(ColProdCode, "AD0001").HasPrefix(ColDescription, "50%_off").Gte(ColEffDate, day("2023-01-01")).OrderBy(ColEffDate, Desc)
	where, args := f.whereSQL(1)
	require.Equal(t, ` WHERE "prodcode" = $2 AND "description" LIKE $3 AND "effdate" >= $4`, where)
	require.Equal(t, []any{"AD0001", `50\%\_off%`, day("2023-01-01")}, args)
	require.Equal(t, ` ORDER BY "effdate" DESC`, f.orderSQL())

	base := Where(ColProdCode, "AD0001")
	_ = base.Where(ColUnit, "pc")
	require.Len(t, base.Conditions(), 1, "filters must not share backing arrays")
}

func TestContainsIsCaseInsensitive(t *testing.T) {
	m := seeded(t)
	rows, err := m.Select(context.Background(), ProductTable, All().Contains(ColDescription, "note"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "NB0001", rows[0].String(ColProdCode))

	where, args := All().Contains(ColDescription, "ssd").whereSQL(0)
	require.Equal(t, ` WHERE "description" ILIKE $1`, where)
	require.Equal(t, []any{"%ssd%"}, args)
}
