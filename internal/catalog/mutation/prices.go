package mutation

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pricebook/pricebook/internal/catalog/codes"
	"github.com/pricebook/pricebook/internal/catalog/pricehist"
	"github.com/pricebook/pricebook/internal/catalog/products"
	"github.com/pricebook/pricebook/internal/store"
)

// AddPriceInput is a new price row. Unit and Description are used only when
// the product does not exist yet and has to be created first.
type AddPriceInput struct {
	Code        string
	Form        pricehist.PriceForm
	Unit        string
	Description string
}

// AddPrice runs the saga ensureProductExists then insertPrice and returns the refreshed list.
// A failing first step short-circuits the second.
func (c *Coordinator) AddPrice(ctx context.Context, in AddPriceInput) ([]pricehist.Record, error) {
	const action = "price.add"
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	if err := c.validator.ValidateCode(code); err != nil {
		return nil, c.reject(ctx, action, err)
	}
	rec, err := in.Form.Parse(c.validate, code)
	if err != nil {
		return nil, c.reject(ctx, action, err)
	}

	var list []pricehist.Record
	op := &operation{
		action:   action,
		entity:   "pricehist",
		entityID: code + "@" + rec.Key(),
		scopes:   productScopes(code),
		success:  "Price of " + code + " dated " + rec.Key() + " added",
		meta:     map[string]any{"unit_price": rec.UnitPrice.StringFixed(2)},
	}
	err = c.run(ctx, op, func(ctx context.Context) error {
		saga := &addPriceSaga{c: c, code: code, unit: in.Unit, description: in.Description, rec: rec}
		if err := saga.execute(ctx); err != nil {
			return err
		}
		if saga.created {
			op.meta["product_created"] = true
		}
		list = saga.list
		return nil
	})
	return list, err
}

type addPriceSaga struct {
	c           *Coordinator
	code        string
	unit        string
	description string
	rec         pricehist.Record

	created bool
	list    []pricehist.Record
}

func (s *addPriceSaga) execute(ctx context.Context) error {
	if _, ok := store.SupportsTx(s.c.store); ok {
		return s.c.withTx(ctx, s.steps)
	}
	if err := s.steps(ctx, s.c.store); err != nil {
		if s.created {
			s.undoCreate(ctx)
		}
		return err
	}
	return nil
}

func (s *addPriceSaga) steps(ctx context.Context, client store.Client) error {
	if err := s.ensureProductExists(ctx, client); err != nil {
		return err
	}
	list, err := s.c.editor.With(client).AddPrice(ctx, s.rec)
	if err != nil {
		return err
	}
	s.list = list
	return nil
}

func (s *addPriceSaga) ensureProductExists(ctx context.Context, client store.Client) error {
	repo := s.c.products.With(client)
	exists, err := repo.Exists(ctx, s.code)
	if err != nil || exists {
		return err
	}
	unit, err := s.c.validator.ValidateUnit(s.unit)
	if err != nil {
		return err
	}
	description := strings.TrimSpace(s.description)
	if description == "" {
		description = s.c.validator.Categories().Name(codes.CategoryOf(s.code))
	}
	product, err := s.c.validator.Validate(products.ProductForm{Code: s.code, Description: description, Unit: unit})
	if err != nil {
		return err
	}
	if err := repo.Create(ctx, product); err != nil {
		return err
	}
	s.created = true
	return nil
}

// undoCreate removes a product created by a saga whose price insert failed.
func (s *addPriceSaga) undoCreate(ctx context.Context) {
	if _, err := s.c.products.Delete(ctx, s.code); err != nil {
		s.c.logger.Error("undo implicit product create", slog.String("code", s.code), slog.Any("error", err))
		return
	}
	s.created = false
}

// EditPrice changes the row dated oldDate of code.
func (c *Coordinator) EditPrice(ctx context.Context, code, oldDate string, form pricehist.PriceForm) ([]pricehist.Record, error) {
	const action = "price.edit"
	code = strings.ToUpper(strings.TrimSpace(code))
	old, err := pricehist.ParseDate(oldDate)
	if err != nil {
		return nil, c.reject(ctx, action, err)
	}
	rec, err := form.Parse(c.validate, code)
	if err != nil {
		return nil, c.reject(ctx, action, err)
	}
	var list []pricehist.Record
	op := &operation{
		action:   action,
		entity:   "pricehist",
		entityID: code + "@" + old.Format(pricehist.DateLayout),
		scopes:   productScopes(code),
		success:  "Price of " + code + " dated " + rec.Key() + " saved",
		meta: map[string]any{
			"old_date":   old.Format(pricehist.DateLayout),
			"new_date":   rec.Key(),
			"unit_price": rec.UnitPrice.StringFixed(2),
		},
	}
	err = c.run(ctx, op, func(ctx context.Context) error {
		var err error
		list, err = c.editor.EditPrice(ctx, old, rec)
		return err
	})
	return list, err
}

// DeletePrice removes the row dated date of code. Removing an absent row succeeds.
func (c *Coordinator) DeletePrice(ctx context.Context, code, date string) ([]pricehist.Record, error) {
	const action = "price.delete"
	code = strings.ToUpper(strings.TrimSpace(code))
	d, err := pricehist.ParseDate(date)
	if err != nil {
		return nil, c.reject(ctx, action, err)
	}
	var list []pricehist.Record
	op := &operation{
		action:   action,
		entity:   "pricehist",
		entityID: code + "@" + d.Format(pricehist.DateLayout),
		scopes:   productScopes(code),
		success:  "Price of " + code + " dated " + d.Format(pricehist.DateLayout) + " deleted",
	}
	err = c.run(ctx, op, func(ctx context.Context) error {
		var err error
		list, err = c.editor.DeletePrice(ctx, code, d)
		return err
	})
	return list, err
}
