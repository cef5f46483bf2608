// Package dashboard computes the catalog summary shown on the home page.
package dashboard

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/pricebook/pricebook/internal/catalog/codes"
	"github.com/pricebook/pricebook/internal/catalog/pricehist"
	"github.com/pricebook/pricebook/internal/catalog/products"
	"github.com/pricebook/pricebook/internal/viewcache"
)

// RecentLimit is the number of price changes listed on the dashboard.
const RecentLimit = 10

// CategoryCount is the number of products in one category.
type CategoryCount struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Count    int    `json:"count"`
}

// Change is a recorded price together with the product it belongs to.
type Change struct {
	Code          string          `json:"code"`
	Description   string          `json:"description"`
	EffectiveDate time.Time       `json:"effective_date"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

// Stats is the dashboard summary.
type Stats struct {
	Products     int64              `json:"products"`
	PriceRecords int64              `json:"price_records"`
	Categories   []CategoryCount    `json:"categories"`
	Unpriced     []products.Product `json:"unpriced"`
	Recent       []Change           `json:"recent"`
}

// Service loads dashboard stats through the view cache.
type Service struct {
	products   *products.Repository
	prices     *pricehist.Repository
	categories *codes.Categories
	cache      *viewcache.Cache
}

// NewService constructs a Service. A nil cache computes on every call.
func NewService(productRepo *products.Repository, prices *pricehist.Repository, categories *codes.Categories, cache *viewcache.Cache) *Service {
	if categories == nil {
		categories = codes.DefaultCategories()
	}
	return &Service{products: productRepo, prices: prices, categories: categories, cache: cache}
}

// Stats returns the current summary.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	err := s.cache.Load(ctx, []string{viewcache.ScopeDashboard}, []string{"stats"}, &out, s.load)
	return out, err
}

// Warm fills the cache entry.
func (s *Service) Warm(ctx context.Context) error {
	_, err := s.Stats(ctx)
	return err
}

func (s *Service) load(ctx context.Context) (any, error) {
	var (
		stats   Stats
		all     []products.Product
		records []pricehist.Record
		recent  []pricehist.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.Products, err = s.products.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.PriceRecords, err = s.prices.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		all, err = s.products.All(gctx)
		return err
	})
	g.Go(func() (err error) {
		records, err = s.prices.All(gctx)
		return err
	})
	g.Go(func() (err error) {
		recent, err = s.prices.Recent(gctx, RecentLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	priced := make(map[string]bool, len(records))
	for _, rec := range records {
		priced[rec.ProductCode] = true
	}
	byCode := make(map[string]products.Product, len(all))
	counts := map[string]int{}
	stats.Unpriced = []products.Product{}
	for _, p := range all {
		byCode[p.Code] = p
		counts[p.Category()]++
		if !priced[p.Code] {
			stats.Unpriced = append(stats.Unpriced, p)
		}
	}
	stats.Categories = make([]CategoryCount, 0, len(counts))
	for cat, n := range counts {
		stats.Categories = append(stats.Categories, CategoryCount{Category: cat, Name: s.categories.Name(cat), Count: n})
	}
	sort.Slice(stats.Categories, func(i, j int) bool { return stats.Categories[i].Category < stats.Categories[j].Category })

	stats.Recent = make([]Change, 0, len(recent))
	for _, rec := range recent {
		stats.Recent = append(stats.Recent, Change{
			Code:          rec.ProductCode,
			Description:   byCode[rec.ProductCode].Description,
			EffectiveDate: rec.EffectiveDate,
			UnitPrice:     rec.UnitPrice,
		})
	}
	return stats, nil
}
