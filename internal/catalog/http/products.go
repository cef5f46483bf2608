package cataloghttp

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pricebook/pricebook/internal/catalog/codes"
	"github.com/pricebook/pricebook/internal/catalog/pricehist"
	"github.com/pricebook/pricebook/internal/catalog/products"
	"github.com/pricebook/pricebook/internal/editstate"
	"github.com/pricebook/pricebook/internal/platform/httpx"
	"github.com/pricebook/pricebook/internal/shared"
	"github.com/pricebook/pricebook/internal/viewcache"
)

// ListView is the data of the product table.
type ListView struct {
	Page       products.Page
	Query      url.Values
	Categories []codes.Category
	Edits      *editstate.Machine[products.ProductForm]
	Return     string
}

// FormView is the data of the new product form.
type FormView struct {
	Form       products.ProductForm
	Category   string
	Categories []codes.Category
	Errors     map[string]string
}

// DetailView is the data of the product page.
type DetailView struct {
	Product products.Detail
	Current *pricehist.Record
	Prices  PriceList
}

// PriceList is an editable price history.
type PriceList struct {
	Code   string
	Items  []pricehist.Record
	Edits  *editstate.Machine[pricehist.PriceForm]
	Return string
}

// Editing reports whether the row dated date is open.
func (l PriceList) Editing(date string) bool {
	return l.Edits.IsEditing(priceKey(l.Code, date))
}

// Adding reports whether the new price form is open.
func (l PriceList) Adding() bool {
	return l.Edits.IsEditing(priceKey(l.Code, editstate.NewRecord))
}

// Draft returns the draft of the open row.
func (l PriceList) Draft() pricehist.PriceForm {
	_, d, _ := l.Edits.Open()
	return d
}

func parseFilters(q url.Values) products.ListFilters {
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return products.ListFilters{
		Page:     page,
		Limit:    limit,
		Search:   strings.TrimSpace(q.Get("q")),
		Category: strings.ToUpper(strings.TrimSpace(q.Get("category"))),
		SortBy:   q.Get("sort"),
		SortDir:  q.Get("dir"),
	}
}

func (h *Handler) loadPage(ctx context.Context, filters products.ListFilters) (products.Page, error) {
	var page products.Page
	parts := []string{
		"list",
		strconv.Itoa(filters.Page), strconv.Itoa(filters.Limit),
		filters.Search, filters.Category, filters.SortBy, filters.SortDir,
	}
	err := h.cache.Load(ctx, []string{viewcache.ScopeProducts}, parts, &page, func(ctx context.Context) (any, error) {
		return h.products.List(ctx, filters)
	})
	return page, err
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.loadPage(r.Context(), parseFilters(q))
	if err != nil {
		h.failPage(w, r, "list products", err)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	h.templates.Page(w, r, http.StatusOK, "pages/products.html", "Products", ListView{
		Page:       page,
		Query:      q,
		Categories: h.allocator.Categories().List(),
		Edits:      editstate.Load[products.ProductForm](sess, productEdits),
		Return:     r.URL.RequestURI(),
	})
}

func (h *Handler) newForm(w http.ResponseWriter, r *http.Request) {
	vm := FormView{Categories: h.allocator.Categories().List()}
	if cat := strings.ToUpper(r.URL.Query().Get("category")); cat != "" {
		vm.Category = cat
		code, err := h.allocator.NextCode(r.Context(), cat)
		if err != nil {
			vm.Errors = map[string]string{"code": err.Error()}
		}
		vm.Form.Code = code
	}
	h.templates.Page(w, r, http.StatusOK, "pages/product_form.html", "New product", vm)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := products.ProductForm{
		Code:        r.PostFormValue("code"),
		Description: r.PostFormValue("description"),
		Unit:        r.PostFormValue("unit"),
	}
	p, err := h.coordinator.CreateProduct(r.Context(), form)
	if err != nil {
		status, _ := httpx.Status(err)
		errs := shared.FormErrors(err)
		if len(errs) == 0 {
			errs = map[string]string{"general": err.Error()}
		}
		h.templates.Page(w, r, status, "pages/product_form.html", "New product", FormView{
			Form:       form,
			Category:   codes.CategoryOf(strings.ToUpper(strings.TrimSpace(form.Code))),
			Categories: h.allocator.Categories().List(),
			Errors:     errs,
		})
		return
	}
	http.Redirect(w, r, "/products/"+p.Code, http.StatusSeeOther)
}

// nextCode answers the code suggestion of the new product form.
func (h *Handler) nextCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.allocator.NextCode(r.Context(), strings.ToUpper(r.URL.Query().Get("category")))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"code": code})
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	code := codeParam(r)
	var d products.Detail
	err := h.cache.Load(r.Context(), []string{viewcache.ScopeProducts, viewcache.PriceHistScope(code)}, []string{"detail", code}, &d,
		func(ctx context.Context) (any, error) {
			return h.products.Get(ctx, code)
		})
	if err != nil {
		h.failPage(w, r, "load product", err)
		return
	}
	vm := DetailView{
		Product: d,
		Prices: PriceList{
			Code:   d.Code,
			Items:  d.History,
			Edits:  editstate.Load[pricehist.PriceForm](shared.SessionFromContext(r.Context()), priceEdits),
			Return: r.URL.RequestURI(),
		},
	}
	if rec, ok := d.Latest(); ok {
		vm.Current = &rec
	}
	h.templates.Page(w, r, http.StatusOK, "pages/product_detail.html", d.Code, vm)
}

func (h *Handler) beginProductEdit(w http.ResponseWriter, r *http.Request) {
	code := codeParam(r)
	sess := shared.SessionFromContext(r.Context())
	p, err := h.products.Repository().Get(r.Context(), code)
	if err != nil {
		if sess != nil {
			sess.AddFlash(shared.FlashMessage{Kind: "error", Message: err.Error()})
		}
		back(w, r, "/products")
		return
	}
	m := editstate.Load[products.ProductForm](sess, productEdits)
	m.Begin(code, products.ProductForm{Code: p.Code, Description: p.Description, Unit: p.Unit})
	keep(h, sess, productEdits, m)
	back(w, r, "/products")
}

func (h *Handler) cancelProductEdit(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	m := editstate.Load[products.ProductForm](sess, productEdits)
	m.Cancel(codeParam(r))
	keep(h, sess, productEdits, m)
	back(w, r, "/products")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	code := codeParam(r)
	sess := shared.SessionFromContext(r.Context())
	form := products.ProductForm{Code: code, Description: r.PostFormValue("description"), Unit: r.PostFormValue("unit")}

	m := editstate.Load[products.ProductForm](sess, productEdits)
	reopen(m, code, form)
	ticket, draft, err := m.Submit(code)
	if err != nil {
		back(w, r, "/products")
		return
	}
	_, err = h.coordinator.UpdateProduct(r.Context(), code, draft)
	settle(h, sess, productEdits, m, ticket, err)
	back(w, r, "/products")
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	code := codeParam(r)
	if err := h.coordinator.DeleteProduct(r.Context(), code); err != nil {
		back(w, r, "/products/"+code)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	m := editstate.Load[products.ProductForm](sess, productEdits)
	m.Cancel(code)
	keep(h, sess, productEdits, m)
	http.Redirect(w, r, "/products", http.StatusSeeOther)
}
