package products

import (
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/pricebook/pricebook/internal/catalog/codes"
	"github.com/pricebook/pricebook/internal/shared"
)

// Validator checks product forms against the form rules and the code whitelist.
type Validator struct {
	v          *validator.Validate
	categories *codes.Categories
}

// NewValidator constructs a Validator.
func NewValidator(v *validator.Validate, categories *codes.Categories) *Validator {
	if v == nil {
		v = shared.NewValidator()
	}
	if categories == nil {
		categories = codes.DefaultCategories()
	}
	return &Validator{v: v, categories: categories}
}

// Validate returns the cleaned product or a validation error.
func (pv *Validator) Validate(form ProductForm) (Product, error) {
	form.Code = strings.ToUpper(strings.TrimSpace(form.Code))
	form.Description = strings.TrimSpace(form.Description)
	form.Unit = strings.TrimSpace(form.Unit)
	if err := shared.ValidateStruct(pv.v, form); err != nil {
		return Product{}, err
	}
	if err := codes.ValidateCode(pv.categories, form.Code); err != nil {
		return Product{}, err
	}
	return Product{Code: form.Code, Description: form.Description, Unit: form.Unit}, nil
}

// ValidateUnit checks a unit supplied while a product is created implicitly.
func (pv *Validator) ValidateUnit(unit string) (string, error) {
	unit = strings.TrimSpace(unit)
	if unit == "" {
		return "", shared.FieldError("unit", "unit is required to create a new product")
	}
	if utf8.RuneCountInString(unit) > 20 {
		return "", shared.FieldError("unit", "unit must be at most 20 characters")
	}
	return unit, nil
}

// Categories exposes the whitelist.
func (pv *Validator) Categories() *codes.Categories {
	return pv.categories
}

// ValidateCode checks a product code against the whitelist.
func (pv *Validator) ValidateCode(code string) error {
	return codes.ValidateCode(pv.categories, code)
}
