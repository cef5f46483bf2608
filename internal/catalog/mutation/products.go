package mutation

import (
	"context"
	"strings"

	"github.com/pricebook/pricebook/internal/catalog/pricehist"
	"github.com/pricebook/pricebook/internal/catalog/products"
	"github.com/pricebook/pricebook/internal/shared"
	"github.com/pricebook/pricebook/internal/store"
)

// CreateProduct validates form and inserts the product.
func (c *Coordinator) CreateProduct(ctx context.Context, form products.ProductForm) (products.Product, error) {
	p, err := c.validator.Validate(form)
	if err != nil {
		return products.Product{}, c.reject(ctx, "product.create", err)
	}
	op := &operation{
		action:   "product.create",
		entity:   "product",
		entityID: p.Code,
		scopes:   productScopes(p.Code),
		success:  "Product " + p.Code + " created",
		meta:     map[string]any{"description": p.Description, "unit": p.Unit},
	}
	err = c.run(ctx, op, func(ctx context.Context) error {
		return c.products.Create(ctx, p)
	})
	return p, err
}

// UpdateProduct changes description and unit of code. The code itself never changes.
func (c *Coordinator) UpdateProduct(ctx context.Context, code string, form products.ProductForm) (products.Product, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	form.Code = code
	p, err := c.validator.Validate(form)
	if err != nil {
		return products.Product{}, c.reject(ctx, "product.update", err)
	}
	op := &operation{
		action:   "product.update",
		entity:   "product",
		entityID: p.Code,
		scopes:   productScopes(p.Code),
		success:  "Product " + p.Code + " updated",
		meta:     map[string]any{"description": p.Description, "unit": p.Unit},
	}
	err = c.run(ctx, op, func(ctx context.Context) error {
		return c.products.Update(ctx, p)
	})
	return p, err
}

// DeleteProduct removes the price rows of code and then the product.
func (c *Coordinator) DeleteProduct(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return c.reject(ctx, "product.delete", shared.FieldError("code", "product code is required"))
	}
	var removedPrices int64
	op := &operation{
		action:   "product.delete",
		entity:   "product",
		entityID: code,
		scopes:   productScopes(code),
		success:  "Product " + code + " deleted",
	}
	err := c.run(ctx, op, func(ctx context.Context) error {
		return c.withTx(ctx, func(ctx context.Context, client store.Client) error {
			n, err := pricehist.NewRepository(client).DeleteAll(ctx, code)
			if err != nil {
				return err
			}
			removedPrices = n
			deleted, err := c.products.With(client).Delete(ctx, code)
			if err != nil {
				return err
			}
			if deleted == 0 {
				return shared.Errorf(shared.ErrNotFound, "product %s not found", code)
			}
			op.meta = map[string]any{"prices_removed": removedPrices}
			return nil
		})
	})
	return err
}
