package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pricebook/pricebook/internal/catalog/products"
	"github.com/pricebook/pricebook/internal/shared"
	"github.com/pricebook/pricebook/internal/viewcache"
)

func codeParam(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "code")))
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	filters := products.ListFilters{
		Page:     page,
		Limit:    limit,
		Search:   strings.TrimSpace(q.Get("q")),
		Category: strings.ToUpper(strings.TrimSpace(q.Get("category"))),
		SortBy:   q.Get("sort"),
		SortDir:  q.Get("dir"),
	}
	var out products.Page
	parts := []string{
		"list",
		strconv.Itoa(filters.Page), strconv.Itoa(filters.Limit),
		filters.Search, filters.Category, filters.SortBy, filters.SortDir,
	}
	err := h.cache.Load(r.Context(), []string{viewcache.ScopeProducts}, parts, &out, func(ctx context.Context) (any, error) {
		return h.products.List(ctx, filters)
	})
	if err != nil {
		respond(w, nil, err)
		return
	}
	respond(w, productPage{Page: out, Paging: out.Pagination()}, nil)
}

type productPage struct {
	products.Page
	Paging shared.Pagination `json:"paging"`
}

func (h *Handler) loadDetail(ctx context.Context, code string) (products.Detail, error) {
	var d products.Detail
	err := h.cache.Load(ctx, []string{viewcache.ScopeProducts, viewcache.PriceHistScope(code)}, []string{"detail", code}, &d,
		func(ctx context.Context) (any, error) {
			return h.products.Get(ctx, code)
		})
	return d, err
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	d, err := h.loadDetail(r.Context(), codeParam(r))
	respond(w, d, err)
}

func (h *Handler) nextCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.allocator.NextCode(r.Context(), strings.ToUpper(r.URL.Query().Get("category")))
	respond(w, map[string]string{"code": code}, err)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var form products.ProductForm
	if !h.decode(w, r, &form) {
		return
	}
	h.write(w, r, http.StatusCreated, func(ctx context.Context) (any, error) {
		return h.coordinator.CreateProduct(ctx, form)
	})
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var form products.ProductForm
	if !h.decode(w, r, &form) {
		return
	}
	code := codeParam(r)
	h.write(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.coordinator.UpdateProduct(ctx, code, form)
	})
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	code := codeParam(r)
	h.write(w, r, http.StatusNoContent, func(ctx context.Context) (any, error) {
		return nil, h.coordinator.DeleteProduct(ctx, code)
	})
}
