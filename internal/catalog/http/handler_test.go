package cataloghttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricebook/pricebook/internal/catalog/codes"
	"github.com/pricebook/pricebook/internal/catalog/mutation"
	"github.com/pricebook/pricebook/internal/catalog/pricehist"
	"github.com/pricebook/pricebook/internal/catalog/products"
	"github.com/pricebook/pricebook/internal/editstate"
	"github.com/pricebook/pricebook/internal/shared"
	"github.com/pricebook/pricebook/internal/store"
	"github.com/pricebook/pricebook/internal/view"
	"github.com/pricebook/pricebook/internal/viewcache"
)

type fixture struct {
	mem    *store.Memory
	router chi.Router
	sess   *shared.Session
}

func day(s string) time.Time {
	t, err := time.Parse(pricehist.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory(store.CatalogSchema())
	ctx := context.Background()
	require.NoError(t, mem.Insert(ctx, store.ProductTable,
		store.Row{store.ColProdCode: "AD0001", store.ColDescription: "Drive", store.ColUnit: "pc"},
		store.Row{store.ColProdCode: "NB0001", store.ColDescription: "Notebook", store.ColUnit: "unit"},
	))
	require.NoError(t, mem.Insert(ctx, store.PriceHistTable,
		store.Row{store.ColProdCode: "AD0001", store.ColEffDate: day("2023-01-01"), store.ColUnitPrice: decimal.RequireFromString("10.00")},
		store.Row{store.ColProdCode: "AD0001", store.ColEffDate: day("2023-06-01"), store.ColUnitPrice: decimal.RequireFromString("12.50")},
	))

	mr := miniredis.RunT(t)
	cache := viewcache.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	categories := codes.DefaultCategories()
	templates, err := view.NewEngine(view.WithLogger(logger))
	require.NoError(t, err)

	h := NewHandler(Config{
		Logger:    logger,
		Products:  products.NewService(products.NewRepository(mem), pricehist.NewRepository(mem)),
		Allocator: codes.NewAllocator(mem, categories),
		Coordinator: mutation.New(mutation.Config{
			Logger:      logger,
			Store:       mem,
			Categories:  categories,
			Invalidator: cache,
		}),
		Cache:     cache,
		Templates: templates,
	})
	r := chi.NewRouter()
	r.Route("/products", h.MountProducts)
	r.Route("/prices", h.MountPrices)
	return &fixture{mem: mem, router: r, sess: &shared.Session{}}
}

func (f *fixture) do(t *testing.T, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), f.sess))
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) flashes() []string {
	var out []string
	for m := f.sess.PopFlash(); m != nil; m = f.sess.PopFlash() {
		out = append(out, m.Kind+": "+m.Message)
	}
	return out
}

func TestListShowsCurrentPrices(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/products?sort=code", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "AD0001")
	assert.Contains(t, body, "12.50")
	assert.Contains(t, body, "2 products")
}

func TestCreateProductRedirectsToDetail(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/products", url.Values{"code": {"ad0002"}, "description": {"SSD"}, "unit": {"pc"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/products/AD0002", rr.Header().Get("Location"))
	assert.Equal(t, []string{"success: Product AD0002 created"}, f.flashes())

	rr = f.do(t, http.MethodGet, "/products/AD0002", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "No price recorded.")
}

func TestCreateProductValidationRerendersForm(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/products", url.Values{"code": {"ZZ0001"}, "description": {"Thing"}, "unit": {"pc"}})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `value="ZZ0001"`)
	assert.Contains(t, rr.Body.String(), "field-error")
}

func TestNextCode(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/products/next-code?category=ad", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, "AD0002", out["code"])

	rr = f.do(t, http.MethodGet, "/products/next-code?category=ZZ", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestInlineProductEditFlow(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/products/AD0001/edit", url.Values{"return": {"/products?page=1"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/products?page=1", rr.Header().Get("Location"))

	rr = f.do(t, http.MethodGet, "/products", nil)
	assert.Contains(t, rr.Body.String(), `id="edit-AD0001"`)

	// opening another row cancels the first one
	f.do(t, http.MethodPost, "/products/NB0001/edit", url.Values{})
	m := editstate.Load[products.ProductForm](f.sess, productEdits)
	assert.False(t, m.IsEditing("AD0001"))
	assert.True(t, m.IsEditing("NB0001"))

	rr = f.do(t, http.MethodPost, "/products/NB0001", url.Values{"description": {"Notebook 14in"}, "unit": {"unit"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, []string{"success: Product NB0001 updated"}, f.flashes())
	m = editstate.Load[products.ProductForm](f.sess, productEdits)
	assert.False(t, m.IsEditing("NB0001"))

	rr = f.do(t, http.MethodGet, "/products", nil)
	assert.Contains(t, rr.Body.String(), "Notebook 14in", "list cache must be invalidated by the write")
}

func TestFailedSaveKeepsDraft(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/products/AD0001/edit", url.Values{})
	f.do(t, http.MethodPost, "/products/AD0001", url.Values{"description": {""}, "unit": {"pc"}})

	m := editstate.Load[products.ProductForm](f.sess, productEdits)
	require.Equal(t, editstate.Editing, m.PhaseOf("AD0001"))
	assert.Equal(t, "pc", m.Draft.Unit)
	msgs := f.flashes()
	require.Len(t, msgs, 1)
	assert.True(t, strings.HasPrefix(msgs[0], "error: "))
}

func TestPriceEditFlow(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodPost, "/products/AD0001/prices/2023-06-01/edit", url.Values{})
	rr := f.do(t, http.MethodGet, "/products/AD0001", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `id="price-2023-06-01"`)
	assert.Contains(t, rr.Body.String(), `value="12.50"`)

	rr = f.do(t, http.MethodPost, "/products/AD0001/prices/2023-06-01", url.Values{"effective_date": {"2023-07-01"}, "unit_price": {"13.00"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/products/AD0001", rr.Header().Get("Location"))

	rows, err := f.mem.Select(context.Background(), store.PriceHistTable, store.Where(store.ColProdCode, "AD0001").OrderBy(store.ColEffDate, store.Desc))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Time(store.ColEffDate).Equal(day("2023-07-01")))

	rr = f.do(t, http.MethodGet, "/products/AD0001", nil)
	assert.Contains(t, rr.Body.String(), "2023-07-01")
	assert.NotContains(t, rr.Body.String(), "2023-06-01")
}

func TestAddAndDeletePrice(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodPost, "/products/NB0001/prices/new", url.Values{})
	rr := f.do(t, http.MethodGet, "/products/NB0001", nil)
	assert.Contains(t, rr.Body.String(), `id="price-new"`)

	rr = f.do(t, http.MethodPost, "/products/NB0001/prices", url.Values{"effective_date": {"2024-01-01"}, "unit_price": {"799.99"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	f.flashes()

	rr = f.do(t, http.MethodGet, "/products/NB0001", nil)
	assert.Contains(t, rr.Body.String(), "799.99")
	assert.NotContains(t, rr.Body.String(), `id="price-new"`)

	rr = f.do(t, http.MethodPost, "/products/NB0001/prices/2024-01-01/delete", url.Values{})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	rr = f.do(t, http.MethodGet, "/products/NB0001", nil)
	assert.Contains(t, rr.Body.String(), "No price recorded.")
}

func TestHistoryScreenCreatesMissingProduct(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/prices?code=ms0001", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "MS0001 is not in the catalog yet")

	rr = f.do(t, http.MethodPost, "/prices", url.Values{
		"code": {"MS0001"}, "unit": {"pc"}, "description": {"Mouse"},
		"effective_date": {"2024-02-01"}, "unit_price": {"19.90"},
	})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/prices?code=MS0001", rr.Header().Get("Location"))

	rr = f.do(t, http.MethodGet, "/prices?code=MS0001", nil)
	assert.Contains(t, rr.Body.String(), "Mouse")
	assert.Contains(t, rr.Body.String(), "19.90")
}

func TestDeleteProductRemovesPrices(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/products/AD0001/delete", url.Values{})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/products", rr.Header().Get("Location"))

	n, err := f.mem.Count(context.Background(), store.PriceHistTable, store.Where(store.ColProdCode, "AD0001"))
	require.NoError(t, err)
	assert.Zero(t, n)

	rr = f.do(t, http.MethodGet, "/products/AD0001", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBackRejectsForeignTargets(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/products/AD0001/cancel", url.Values{"return": {"//evil.example/x"}})
	assert.Equal(t, "/products", rr.Header().Get("Location"))
}
