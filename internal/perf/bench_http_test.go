package perf

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/pricebook/pricebook/internal/api"
	"github.com/pricebook/pricebook/internal/auth"
	"github.com/pricebook/pricebook/internal/catalog/codes"
	"github.com/pricebook/pricebook/internal/catalog/mutation"
	"github.com/pricebook/pricebook/internal/catalog/pricehist"
	"github.com/pricebook/pricebook/internal/catalog/products"
	"github.com/pricebook/pricebook/internal/store"
	"github.com/pricebook/pricebook/internal/viewcache"
	_ "github.com/pricebook/pricebook/testing"
)

type listBench struct {
	router http.Handler
	cache  *viewcache.Cache
	token  string
}

func newListBench(tb testing.TB, n int) *listBench {
	tb.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := store.NewMemory(store.CatalogSchema())
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		code := fmt.Sprintf("AD%04d", i)
		if err := mem.Insert(ctx, store.ProductTable, store.Row{store.ColProdCode: code, store.ColDescription: "Drive " + code, store.ColUnit: "pc"}); err != nil {
			tb.Fatal(err)
		}
		for m := 0; m < 4; m++ {
			row := store.Row{store.ColProdCode: code, store.ColEffDate: base.AddDate(0, 3*m, 0), store.ColUnitPrice: decimal.NewFromInt(int64(40 + m))}
			if err := mem.Insert(ctx, store.PriceHistTable, row); err != nil {
				tb.Fatal(err)
			}
		}
	}

	mr := miniredis.RunT(tb)
	cache := viewcache.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	categories := codes.DefaultCategories()
	authService := auth.NewService(auth.NewMemoryRepository(), auth.Config{Logger: logger})
	user, err := authService.SignUp(ctx, auth.SignUpInput{Email: "bench@example.com", Password: "correct horse", ConfirmPassword: "correct horse"})
	if err != nil {
		tb.Fatal(err)
	}
	tokens := auth.NewTokens("bench-secret", time.Hour)
	token, _, err := tokens.Issue(user)
	if err != nil {
		tb.Fatal(err)
	}
	h := api.NewHandler(api.Config{
		Logger:      logger,
		Auth:        authService,
		Tokens:      tokens,
		Products:    products.NewService(products.NewRepository(mem), pricehist.NewRepository(mem)),
		Allocator:   codes.NewAllocator(mem, categories),
		Coordinator: mutation.New(mutation.Config{Logger: logger, Store: mem, Categories: categories, Invalidator: cache}),
		Cache:       cache,
	})
	r := chi.NewRouter()
	r.Route("/api/v1", h.MountRoutes)
	return &listBench{router: r, cache: cache, token: token}
}

func (lb *listBench) list(tb testing.TB) time.Duration {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products?limit=50&sort=description&dir=desc", nil)
	req.Header.Set("Authorization", "Bearer "+lb.token)
	rr := httptest.NewRecorder()
	start := time.Now()
	lb.router.ServeHTTP(rr, req)
	took := time.Since(start)
	if rr.Code != http.StatusOK {
		tb.Fatalf("list products: status %d: %s", rr.Code, rr.Body.String())
	}
	return took
}

func TestProductListLatencyTargets(t *testing.T) {
	lb := newListBench(t, 400)
	ctx := context.Background()

	var cold, cached []time.Duration
	for i := 0; i < 10; i++ {
		if err := lb.cache.Bump(ctx, viewcache.ScopeProducts); err != nil {
			t.Fatalf("bump: %v", err)
		}
		cold = append(cold, lb.list(t))
		cached = append(cached, lb.list(t))
	}

	scenarios := []struct {
		name      string
		samples   []time.Duration
		threshold time.Duration
	}{
		{name: "cached", samples: cached, threshold: 500 * time.Millisecond},
		{name: "cold", samples: cold, threshold: 2 * time.Second},
	}
	for _, scenario := range scenarios {
		p95 := percentile95(scenario.samples)
		if p95 > scenario.threshold {
			t.Fatalf("%s latency regression: p95=%s threshold=%s", scenario.name, p95, scenario.threshold)
		}
	}
}

func BenchmarkProductList(b *testing.B) {
	lb := newListBench(b, 400)
	ctx := context.Background()

	b.Run("cached", func(b *testing.B) {
		lb.list(b)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			lb.list(b)
		}
	})
	b.Run("cold", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			b.StopTimer()
			if err := lb.cache.Bump(ctx, viewcache.ScopeProducts); err != nil {
				b.Fatal(err)
			}
			b.StartTimer()
			lb.list(b)
		}
	})
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
