// Package cataloghttp serves the product table, product detail and price history pages.
package cataloghttp

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pricebook/pricebook/internal/catalog/codes"
	"github.com/pricebook/pricebook/internal/catalog/mutation"
	"github.com/pricebook/pricebook/internal/catalog/pricehist"
	"github.com/pricebook/pricebook/internal/catalog/products"
	"github.com/pricebook/pricebook/internal/editstate"
	"github.com/pricebook/pricebook/internal/platform/httpx"
	"github.com/pricebook/pricebook/internal/shared"
	"github.com/pricebook/pricebook/internal/view"
	"github.com/pricebook/pricebook/internal/viewcache"
)

// Edit machine names stored in the session.
const (
	productEdits = "products"
	priceEdits   = "prices"
)

// Handler serves the catalog pages.
type Handler struct {
	logger      *slog.Logger
	products    *products.Service
	allocator   *codes.Allocator
	coordinator *mutation.Coordinator
	cache       *viewcache.Cache
	templates   *view.Engine
}

// Config groups the collaborators of a Handler.
type Config struct {
	Logger      *slog.Logger
	Products    *products.Service
	Allocator   *codes.Allocator
	Coordinator *mutation.Coordinator
	Cache       *viewcache.Cache
	Templates   *view.Engine
}

// NewHandler constructs the catalog handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		products:    cfg.Products,
		allocator:   cfg.Allocator,
		coordinator: cfg.Coordinator,
		cache:       cfg.Cache,
		templates:   cfg.Templates,
	}
}

// MountProducts registers the product routes, usually under /products.
func (h *Handler) MountProducts(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/new", h.newForm)
	r.Post("/", h.create)
	r.Get("/next-code", h.nextCode)
	r.Route("/{code}", func(r chi.Router) {
		r.Get("/", h.detail)
		r.Post("/", h.update)
		r.Post("/edit", h.beginProductEdit)
		r.Post("/cancel", h.cancelProductEdit)
		r.Post("/delete", h.deleteProduct)

		r.Post("/prices", h.addPrice)
		r.Post("/prices/new", h.beginNewPrice)
		r.Post("/prices/new/cancel", h.cancelNewPrice)
		r.Post("/prices/{date}", h.savePrice)
		r.Post("/prices/{date}/edit", h.beginPriceEdit)
		r.Post("/prices/{date}/cancel", h.cancelPriceEdit)
		r.Post("/prices/{date}/delete", h.deletePrice)
	})
}

// MountPrices registers the price history screen, usually under /prices.
func (h *Handler) MountPrices(r chi.Router) {
	r.Get("/", h.history)
	r.Post("/", h.addHistoryPrice)
}

func codeParam(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "code")))
}

// back redirects to the local path posted as "return", or to fallback.
func back(w http.ResponseWriter, r *http.Request, fallback string) {
	target := r.PostFormValue("return")
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, "\\") {
		target = fallback
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// settle records the outcome of a save and stores the machine back.
func settle[D any](h *Handler, sess *shared.Session, name string, m *editstate.Machine[D], t editstate.Ticket, err error) {
	if !m.Complete(t, err) {
		h.logger.Debug("stale save result dropped", slog.String("list", name), slog.String("key", t.Key))
	}
	keep(h, sess, name, m)
}

// reopen puts draft into key. A row left in Saving by an abandoned request
// starts a new edit so the old result is dropped as stale.
func reopen[D any](m *editstate.Machine[D], key string, draft D) {
	if m.PhaseOf(key) != editstate.Editing {
		m.Begin(key, draft)
		return
	}
	_ = m.Update(key, draft)
}

func keep[D any](h *Handler, sess *shared.Session, name string, m *editstate.Machine[D]) {
	if err := editstate.Save(sess, name, m); err != nil {
		h.logger.Warn("store edit state", slog.Any("error", err))
	}
}

// failPage renders an error page for reads. Writes report through flashes instead.
func (h *Handler) failPage(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, _ := httpx.Status(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	} else {
		h.logger.Warn(op, slog.Any("error", err))
	}
	h.templates.Page(w, r, status, "pages/error.html", http.StatusText(status), map[string]any{
		"Status":  status,
		"Message": err.Error(),
	})
}

func priceKey(code string, date string) string {
	return code + "@" + date
}

func priceDraft(rec pricehist.Record) pricehist.PriceForm {
	return pricehist.PriceForm{EffectiveDate: rec.Key(), UnitPrice: rec.UnitPrice.StringFixed(2)}
}
