package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// TrendPoint is one price of a product trend.
type TrendPoint struct {
	Date  time.Time       `json:"date"`
	Price decimal.Decimal `json:"price"`
}

// Trend is the full price history of a product, oldest first.
type Trend struct {
	Code        string       `json:"code"`
	Description string       `json:"description"`
	Unit        string       `json:"unit"`
	Points      []TrendPoint `json:"points"`
}

// CategoryAverage is the mean current price of the priced products in a category.
type CategoryAverage struct {
	Category string          `json:"category"`
	Name     string          `json:"name"`
	Products int             `json:"products"`
	Priced   int             `json:"priced"`
	Average  decimal.Decimal `json:"average"`
}

// Mover is a product whose current price differs from the one before it.
type Mover struct {
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Previous    decimal.Decimal `json:"previous"`
	Current     decimal.Decimal `json:"current"`
	Since       time.Time       `json:"since"`
	ChangePct   float64         `json:"change_pct"`
}

// Overview is the catalog-wide analytics view.
type Overview struct {
	AsOf       time.Time         `json:"as_of"`
	Categories []CategoryAverage `json:"categories"`
	Movers     []Mover           `json:"movers"`
}
