package codes

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pricebook/pricebook/internal/shared"
	"github.com/pricebook/pricebook/internal/store"
)

const (
	codeLength = 6
	maxSerial  = 9999
)

// Allocator hands out the next product code of a category.
type Allocator struct {
	store      store.Client
	categories *Categories
}

// NewAllocator constructs an Allocator. A nil whitelist falls back to DefaultCategories.
func NewAllocator(client store.Client, categories *Categories) *Allocator {
	if categories == nil {
		categories = DefaultCategories()
	}
	return &Allocator{store: client, categories: categories}
}

// Categories exposes the whitelist the allocator validates against.
func (a *Allocator) Categories() *Categories {
	return a.categories
}

// NextCode returns the greatest existing code of category plus one.
// Gaps are never reused. A category whose greatest serial is 9999 is exhausted.
func (a *Allocator) NextCode(ctx context.Context, category string) (string, error) {
	category = strings.TrimSpace(category)
	if _, ok := a.categories.Lookup(category); !ok {
		return "", shared.FieldError("category", "unknown category %q", category)
	}
	rows, err := a.store.Select(ctx, store.ProductTable,
		store.All().HasPrefix(store.ColProdCode, category).OrderBy(store.ColProdCode, store.Desc))
	if err != nil {
		return "", err
	}
	last := 0
	for _, row := range rows {
		code := row.String(store.ColProdCode)
		if !wellFormed(code) {
			continue
		}
		last, _ = strconv.Atoi(code[2:])
		break
	}
	if last >= maxSerial {
		return "", shared.Errorf(shared.ErrAllocation, "category %s has no codes left after %s%04d", category, category, maxSerial)
	}
	return fmt.Sprintf("%s%04d", category, last+1), nil
}

// ValidateCode accepts exactly two uppercase ASCII letters from the whitelist followed by four digits.
func (a *Allocator) ValidateCode(code string) error {
	return ValidateCode(a.categories, code)
}

// ValidateCode checks code against the given whitelist.
func ValidateCode(categories *Categories, code string) error {
	if !wellFormed(code) {
		return shared.FieldError("code", "product code %q must be two uppercase letters followed by four digits", code)
	}
	if _, ok := categories.Lookup(code[:2]); !ok {
		return shared.FieldError("code", "product code %q uses unknown category %s", code, code[:2])
	}
	return nil
}

// CategoryOf returns the two-letter prefix of a code.
func CategoryOf(code string) string {
	if len(code) < 2 {
		return ""
	}
	return code[:2]
}

func wellFormed(code string) bool {
	if len(code) != codeLength || !isPrefix(code[:2]) {
		return false
	}
	for i := 2; i < codeLength; i++ {
		if !isDigit(code[i]) {
			return false
		}
	}
	return true
}
