package products

import "github.com/pricebook/pricebook/internal/shared"

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 200

	SortAsc  = "asc"
	SortDesc = "desc"
)

// ProductForm is the create/edit form of a product.
type ProductForm struct {
	Code        string `form:"code" json:"code" validate:"required"`
	Description string `form:"description" json:"description" validate:"required,max=120"`
	Unit        string `form:"unit" json:"unit" validate:"required,max=20"`
}

// ListFilters represents the catalog table query.
type ListFilters struct {
	Page     int    `json:"page"`
	Limit    int    `json:"limit"`
	Search   string `json:"search,omitempty"`
	Category string `json:"category,omitempty"`
	SortBy   string `json:"sort,omitempty"`
	SortDir  string `json:"dir,omitempty"`
}

// Page is one page of the catalog table.
type Page struct {
	Items   []Listed    `json:"items"`
	Total   int64       `json:"total"`
	Filters ListFilters `json:"filters"`
}

// Pagination returns the paging metadata of the page.
func (p Page) Pagination() shared.Pagination {
	return shared.NewPagination(p.Filters.Page, p.Filters.Limit, int(p.Total))
}

// Pages returns the page count for the filters' limit.
func (p Page) Pages() int {
	return p.Pagination().TotalPages
}

func (f ListFilters) normalized() ListFilters {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.SortDir != SortDesc {
		f.SortDir = SortAsc
	}
	return f
}
