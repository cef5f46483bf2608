// Package products reads and writes catalog products.
package products

import (
	"github.com/pricebook/pricebook/internal/catalog/pricehist"
)

// Product is a catalog entry keyed by its LL#### code.
type Product struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Unit        string `json:"unit"`
}

// Category returns the two-letter prefix of the product code.
func (p Product) Category() string {
	if len(p.Code) < 2 {
		return ""
	}
	return p.Code[:2]
}

// Listed is a product row of the catalog table with its current price, if any.
type Listed struct {
	Product
	Current *pricehist.Record `json:"current_price,omitempty"`
}

// Detail is a product together with its full price history, newest first.
type Detail struct {
	Product
	History []pricehist.Record `json:"price_history"`
}

// Latest returns the newest record of the history.
func (d Detail) Latest() (pricehist.Record, bool) {
	if len(d.History) == 0 {
		return pricehist.Record{}, false
	}
	latest := d.History[0]
	for _, rec := range d.History[1:] {
		if rec.EffectiveDate.After(latest.EffectiveDate) {
			latest = rec
		}
	}
	return latest, true
}
