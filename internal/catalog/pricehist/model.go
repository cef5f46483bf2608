// Package pricehist maintains the effective-dated price list of each product.
package pricehist

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pricebook/pricebook/internal/shared"
)

// DateLayout is the wire and form format of effective dates.
const DateLayout = "2006-01-02"

// Record is one price of a product, identified by (ProductCode, EffectiveDate).
type Record struct {
	ProductCode   string          `json:"product_code"`
	EffectiveDate time.Time       `json:"effective_date"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

// Key is the list row key within one product.
func (r Record) Key() string {
	return r.EffectiveDate.Format(DateLayout)
}

// PartialEditError reports a date edit whose delete committed and whose insert failed.
// Removed is the row that no longer exists in the store.
type PartialEditError struct {
	Removed Record
	Target  Record
	Err     error
}

func (e *PartialEditError) Error() string {
	return fmt.Sprintf("price of %s dated %s was removed but the price dated %s could not be saved: %v",
		e.Removed.ProductCode, e.Removed.Key(), e.Target.Key(), e.Err)
}

// Is reports the partial edit kind.
func (e *PartialEditError) Is(target error) bool {
	return target == shared.ErrPartialEdit
}

func (e *PartialEditError) Unwrap() error {
	return e.Err
}

// Day truncates t to a calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
