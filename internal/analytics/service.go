// Package analytics derives price trends and category statistics from the catalog.
package analytics

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pricebook/pricebook/internal/catalog/codes"
	"github.com/pricebook/pricebook/internal/catalog/pricehist"
	"github.com/pricebook/pricebook/internal/catalog/products"
	"github.com/pricebook/pricebook/internal/viewcache"
)

// MoverLimit caps the number of movers in the overview.
const MoverLimit = 10

// Catalog is the read side the analytics are computed from.
type Catalog interface {
	Get(ctx context.Context, code string) (products.Detail, error)
	Snapshot(ctx context.Context) ([]products.Detail, error)
}

// Service coordinates analytics computation with the view cache.
type Service struct {
	catalog    Catalog
	categories *codes.Categories
	cache      *viewcache.Cache
	now        func() time.Time
}

// NewService wires the catalog with a cache. A nil cache computes on every call.
func NewService(catalog Catalog, categories *codes.Categories, cache *viewcache.Cache) *Service {
	if categories == nil {
		categories = codes.DefaultCategories()
	}
	return &Service{catalog: catalog, categories: categories, cache: cache, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// Overview returns the category averages and biggest movers.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	today := s.today()
	var out Overview
	err := s.cache.Load(ctx, []string{viewcache.ScopeAnalytics}, []string{"overview", today.Format(pricehist.DateLayout)}, &out,
		func(ctx context.Context) (any, error) {
			details, err := s.catalog.Snapshot(ctx)
			if err != nil {
				return nil, err
			}
			return Overview{
				AsOf:       today,
				Categories: s.categoryAverages(details, today),
				Movers:     movers(details, today, MoverLimit),
			}, nil
		})
	return out, err
}

// Trend returns the price history of one product, oldest first.
func (s *Service) Trend(ctx context.Context, code string) (Trend, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	var out Trend
	err := s.cache.Load(ctx, []string{viewcache.ScopeProducts, viewcache.PriceHistScope(code)}, []string{"trend", code}, &out,
		func(ctx context.Context) (any, error) {
			detail, err := s.catalog.Get(ctx, code)
			if err != nil {
				return nil, err
			}
			history := ascending(detail.History)
			points := make([]TrendPoint, 0, len(history))
			for _, rec := range history {
				points = append(points, TrendPoint{Date: rec.EffectiveDate, Price: rec.UnitPrice})
			}
			return Trend{Code: detail.Code, Description: detail.Description, Unit: detail.Unit, Points: points}, nil
		})
	return out, err
}

// Warm fills the overview cache entry for today.
func (s *Service) Warm(ctx context.Context) error {
	_, err := s.Overview(ctx)
	return err
}

func (s *Service) today() time.Time {
	return pricehist.Day(s.now())
}

func (s *Service) categoryAverages(details []products.Detail, today time.Time) []CategoryAverage {
	type acc struct {
		sum   decimal.Decimal
		count int
		total int
	}
	byCat := map[string]*acc{}
	for _, d := range details {
		a := byCat[d.Category()]
		if a == nil {
			a = &acc{}
			byCat[d.Category()] = a
		}
		a.total++
		if rec, ok := currentAsOf(d.History, today); ok {
			a.sum = a.sum.Add(rec.UnitPrice)
			a.count++
		}
	}
	out := make([]CategoryAverage, 0, len(byCat))
	for cat, a := range byCat {
		avg := CategoryAverage{Category: cat, Name: s.categories.Name(cat), Products: a.total, Priced: a.count}
		if a.count > 0 {
			avg.Average = a.sum.Div(decimal.NewFromInt(int64(a.count))).Round(2)
		}
		out = append(out, avg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// movers ranks products by the absolute change between their current and previous price.
func movers(details []products.Detail, today time.Time, limit int) []Mover {
	var out []Mover
	for _, d := range details {
		history := ascending(d.History)
		idx := -1
		for i, rec := range history {
			if !rec.EffectiveDate.After(today) {
				idx = i
			}
		}
		if idx < 1 {
			continue
		}
		prev, cur := history[idx-1], history[idx]
		if prev.UnitPrice.IsZero() {
			continue
		}
		pct, _ := cur.UnitPrice.Sub(prev.UnitPrice).Div(prev.UnitPrice).Mul(decimal.NewFromInt(100)).Round(2).Float64()
		out = append(out, Mover{
			Code:        d.Code,
			Description: d.Description,
			Previous:    prev.UnitPrice,
			Current:     cur.UnitPrice,
			Since:       cur.EffectiveDate,
			ChangePct:   pct,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].ChangePct), math.Abs(out[j].ChangePct)
		if ai != aj {
			return ai > aj
		}
		return out[i].Code < out[j].Code
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func ascending(history []pricehist.Record) []pricehist.Record {
	out := append([]pricehist.Record(nil), history...)
	sort.Slice(out, func(i, j int) bool { return out[i].EffectiveDate.Before(out[j].EffectiveDate) })
	return out
}

// currentAsOf picks the newest record effective on or before day.
func currentAsOf(history []pricehist.Record, day time.Time) (pricehist.Record, bool) {
	var best pricehist.Record
	found := false
	for _, rec := range history {
		if rec.EffectiveDate.After(day) {
			continue
		}
		if !found || rec.EffectiveDate.After(best.EffectiveDate) {
			best, found = rec, true
		}
	}
	return best, found
}
