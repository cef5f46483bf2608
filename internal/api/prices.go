package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pricebook/pricebook/internal/catalog/mutation"
	"github.com/pricebook/pricebook/internal/catalog/pricehist"
	"github.com/pricebook/pricebook/internal/shared"
)

// addPriceRequest carries a new price. Unit and description create the
// product first when it does not exist.
type addPriceRequest struct {
	pricehist.PriceForm
	Unit        string `json:"unit,omitempty"`
	Description string `json:"description,omitempty"`
}

func (h *Handler) listPrices(w http.ResponseWriter, r *http.Request) {
	d, err := h.loadDetail(r.Context(), codeParam(r))
	respond(w, d.History, err)
}

func (h *Handler) currentPrice(w http.ResponseWriter, r *http.Request) {
	code := codeParam(r)
	d, err := h.loadDetail(r.Context(), code)
	if err != nil {
		respond(w, nil, err)
		return
	}
	rec, ok := d.Latest()
	if !ok {
		respond(w, nil, shared.Errorf(shared.ErrNotFound, "product %s has no price", code))
		return
	}
	respond(w, rec, nil)
}

func (h *Handler) addPrice(w http.ResponseWriter, r *http.Request) {
	var req addPriceRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := mutation.AddPriceInput{Code: codeParam(r), Form: req.PriceForm, Unit: req.Unit, Description: req.Description}
	h.write(w, r, http.StatusCreated, func(ctx context.Context) (any, error) {
		return h.coordinator.AddPrice(ctx, in)
	})
}

func (h *Handler) editPrice(w http.ResponseWriter, r *http.Request) {
	var form pricehist.PriceForm
	if !h.decode(w, r, &form) {
		return
	}
	code, date := codeParam(r), chi.URLParam(r, "date")
	h.write(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.coordinator.EditPrice(ctx, code, date, form)
	})
}

func (h *Handler) deletePrice(w http.ResponseWriter, r *http.Request) {
	code, date := codeParam(r), chi.URLParam(r, "date")
	h.write(w, r, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.coordinator.DeletePrice(ctx, code, date)
	})
}
