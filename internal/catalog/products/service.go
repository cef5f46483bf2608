package products

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pricebook/pricebook/internal/catalog/pricehist"
)

// Service serves the read side of the catalog.
type Service struct {
	repo   *Repository
	prices *pricehist.Repository
}

// NewService constructs a Service.
func NewService(repo *Repository, prices *pricehist.Repository) *Service {
	return &Service{repo: repo, prices: prices}
}

// Repository exposes the product repository.
func (s *Service) Repository() *Repository {
	return s.repo
}

// List returns one page of the catalog with current prices.
func (s *Service) List(ctx context.Context, filters ListFilters) (Page, error) {
	filters = filters.normalized()
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return Page{}, err
	}
	listed := make([]Listed, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, p := range items {
		listed[i].Product = p
		g.Go(func() error {
			rec, ok, err := s.prices.Latest(gctx, p.Code, time.Time{})
			if err != nil {
				return err
			}
			if ok {
				listed[i].Current = &rec
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Page{}, err
	}
	return Page{Items: listed, Total: total, Filters: filters}, nil
}

// Get loads a product with its price history.
func (s *Service) Get(ctx context.Context, code string) (Detail, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	p, err := s.repo.Get(ctx, code)
	if err != nil {
		return Detail{}, err
	}
	history, err := s.prices.List(ctx, code)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Product: p, History: history}, nil
}

// Snapshot returns every product with its full history in code order.
func (s *Service) Snapshot(ctx context.Context) ([]Detail, error) {
	items, err := s.repo.All(ctx)
	if err != nil {
		return nil, err
	}
	records, err := s.prices.All(ctx)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string][]pricehist.Record, len(items))
	for _, rec := range records {
		byCode[rec.ProductCode] = append(byCode[rec.ProductCode], rec)
	}
	out := make([]Detail, 0, len(items))
	for _, p := range items {
		out = append(out, Detail{Product: p, History: byCode[p.Code]})
	}
	return out, nil
}
