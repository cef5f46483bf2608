package pricehist

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/pricebook/pricebook/internal/shared"
)

var maxPrice = decimal.New(1, 10)

// PriceForm is the raw add/edit form of a price row.
type PriceForm struct {
	EffectiveDate string `form:"effective_date" json:"effective_date" validate:"required,datetime=2006-01-02"`
	UnitPrice     string `form:"unit_price" json:"unit_price" validate:"required"`
}

// Parse validates the form and converts it into a record of code.
func (f PriceForm) Parse(v *validator.Validate, code string) (Record, error) {
	f.EffectiveDate = strings.TrimSpace(f.EffectiveDate)
	f.UnitPrice = strings.TrimSpace(f.UnitPrice)
	if err := shared.ValidateStruct(v, f); err != nil {
		return Record{}, err
	}
	date, err := ParseDate(f.EffectiveDate)
	if err != nil {
		return Record{}, err
	}
	price, err := ParsePrice(f.UnitPrice)
	if err != nil {
		return Record{}, err
	}
	return Record{ProductCode: code, EffectiveDate: date, UnitPrice: price}, nil
}

// ParseDate reads a YYYY-MM-DD effective date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, shared.FieldError("effective_date", "effective date %q must be formatted YYYY-MM-DD", s)
	}
	return t, nil
}

// ParsePrice reads a finite, non-negative unit price with at most two decimals.
func ParsePrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, shared.FieldError("unit_price", "unit price is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, shared.FieldError("unit_price", "unit price %q is not a number", s)
	}
	return d, checkPrice(d)
}

func checkPrice(d decimal.Decimal) error {
	switch {
	case d.IsNegative():
		return shared.FieldError("unit_price", "unit price must not be negative")
	case !d.Equal(d.Round(2)):
		return shared.FieldError("unit_price", "unit price must have at most two decimal places")
	case d.GreaterThanOrEqual(maxPrice):
		return shared.FieldError("unit_price", "unit price must be below %s", maxPrice.String())
	}
	return nil
}
