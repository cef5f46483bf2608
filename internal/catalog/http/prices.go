package cataloghttp

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pricebook/pricebook/internal/catalog/codes"
	"github.com/pricebook/pricebook/internal/catalog/mutation"
	"github.com/pricebook/pricebook/internal/catalog/pricehist"
	"github.com/pricebook/pricebook/internal/catalog/products"
	"github.com/pricebook/pricebook/internal/editstate"
	"github.com/pricebook/pricebook/internal/shared"
	"github.com/pricebook/pricebook/internal/viewcache"
)

// HistoryView is the data of the price history screen.
type HistoryView struct {
	Code       string
	Product    *products.Detail
	Missing    bool
	Prices     PriceList
	Categories []codes.Category
}

func priceForm(r *http.Request) pricehist.PriceForm {
	return pricehist.PriceForm{
		EffectiveDate: r.PostFormValue("effective_date"),
		UnitPrice:     r.PostFormValue("unit_price"),
	}
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("code")))
	vm := HistoryView{Code: code, Categories: h.allocator.Categories().List()}
	if code != "" {
		if err := h.allocator.ValidateCode(code); err != nil {
			h.failPage(w, r, "price history", err)
			return
		}
		var d products.Detail
		err := h.cache.Load(r.Context(), []string{viewcache.ScopeProducts, viewcache.PriceHistScope(code)}, []string{"detail", code}, &d,
			func(ctx context.Context) (any, error) {
				return h.products.Get(ctx, code)
			})
		switch {
		case errors.Is(err, shared.ErrNotFound):
			vm.Missing = true
		case err != nil:
			h.failPage(w, r, "price history", err)
			return
		default:
			vm.Product = &d
		}
		vm.Prices = PriceList{
			Code:   code,
			Edits:  editstate.Load[pricehist.PriceForm](shared.SessionFromContext(r.Context()), priceEdits),
			Return: "/prices?code=" + url.QueryEscape(code),
		}
		if vm.Product != nil {
			vm.Prices.Items = d.History
		}
	}
	h.templates.Page(w, r, http.StatusOK, "pages/prices.html", "Price history", vm)
}

// addHistoryPrice adds a price from the history screen, creating the product
// first when the code is new and a unit is given.
func (h *Handler) addHistoryPrice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	code := strings.ToUpper(strings.TrimSpace(r.PostFormValue("code")))
	target := "/prices?code=" + url.QueryEscape(code)
	h.submitNewPrice(r, code, mutation.AddPriceInput{
		Code:        code,
		Form:        priceForm(r),
		Unit:        r.PostFormValue("unit"),
		Description: r.PostFormValue("description"),
	})
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) addPrice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	code := codeParam(r)
	h.submitNewPrice(r, code, mutation.AddPriceInput{Code: code, Form: priceForm(r)})
	back(w, r, "/products/"+code)
}

func (h *Handler) submitNewPrice(r *http.Request, code string, in mutation.AddPriceInput) {
	sess := shared.SessionFromContext(r.Context())
	key := priceKey(code, editstate.NewRecord)
	m := editstate.Load[pricehist.PriceForm](sess, priceEdits)
	reopen(m, key, in.Form)
	ticket, draft, err := m.Submit(key)
	if err != nil {
		keep(h, sess, priceEdits, m)
		return
	}
	in.Form = draft
	_, err = h.coordinator.AddPrice(r.Context(), in)
	settle(h, sess, priceEdits, m, ticket, err)
}

func (h *Handler) beginNewPrice(w http.ResponseWriter, r *http.Request) {
	code := codeParam(r)
	sess := shared.SessionFromContext(r.Context())
	m := editstate.Load[pricehist.PriceForm](sess, priceEdits)
	m.Begin(priceKey(code, editstate.NewRecord), pricehist.PriceForm{})
	keep(h, sess, priceEdits, m)
	back(w, r, "/products/"+code)
}

func (h *Handler) cancelNewPrice(w http.ResponseWriter, r *http.Request) {
	h.cancelPrice(w, r, editstate.NewRecord)
}

func (h *Handler) beginPriceEdit(w http.ResponseWriter, r *http.Request) {
	code := codeParam(r)
	date := chi.URLParam(r, "date")
	sess := shared.SessionFromContext(r.Context())
	d, err := h.products.Get(r.Context(), code)
	if err != nil {
		if sess != nil {
			sess.AddFlash(shared.FlashMessage{Kind: "error", Message: err.Error()})
		}
		back(w, r, "/products/"+code)
		return
	}
	for _, rec := range d.History {
		if rec.Key() == date {
			m := editstate.Load[pricehist.PriceForm](sess, priceEdits)
			m.Begin(priceKey(code, date), priceDraft(rec))
			keep(h, sess, priceEdits, m)
			back(w, r, "/products/"+code)
			return
		}
	}
	if sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Price of " + code + " dated " + date + " no longer exists"})
	}
	back(w, r, "/products/"+code)
}

func (h *Handler) cancelPriceEdit(w http.ResponseWriter, r *http.Request) {
	h.cancelPrice(w, r, chi.URLParam(r, "date"))
}

func (h *Handler) cancelPrice(w http.ResponseWriter, r *http.Request, date string) {
	code := codeParam(r)
	sess := shared.SessionFromContext(r.Context())
	m := editstate.Load[pricehist.PriceForm](sess, priceEdits)
	m.Cancel(priceKey(code, date))
	keep(h, sess, priceEdits, m)
	back(w, r, "/products/"+code)
}

func (h *Handler) savePrice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	code := codeParam(r)
	date := chi.URLParam(r, "date")
	key := priceKey(code, date)
	form := priceForm(r)

	sess := shared.SessionFromContext(r.Context())
	m := editstate.Load[pricehist.PriceForm](sess, priceEdits)
	reopen(m, key, form)
	ticket, draft, err := m.Submit(key)
	if err != nil {
		keep(h, sess, priceEdits, m)
		back(w, r, "/products/"+code)
		return
	}
	_, err = h.coordinator.EditPrice(r.Context(), code, date, draft)
	settle(h, sess, priceEdits, m, ticket, err)
	back(w, r, "/products/"+code)
}

func (h *Handler) deletePrice(w http.ResponseWriter, r *http.Request) {
	code := codeParam(r)
	date := chi.URLParam(r, "date")
	if _, err := h.coordinator.DeletePrice(r.Context(), code, date); err == nil {
		sess := shared.SessionFromContext(r.Context())
		m := editstate.Load[pricehist.PriceForm](sess, priceEdits)
		m.Cancel(priceKey(code, date))
		keep(h, sess, priceEdits, m)
	}
	back(w, r, "/products/"+code)
}
