// Package codes allocates and validates product codes of the form LL####.
package codes

import (
	"fmt"
	"sort"
	"strings"
)

// Category is a two-letter product category prefix.
type Category struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Categories is the whitelist of product code prefixes.
type Categories struct {
	list   []Category
	byCode map[string]Category
}

// DefaultCategories returns the built-in computer hardware catalog.
func DefaultCategories() *Categories {
	c, _ := NewCategories(map[string]string{
		"AD": "Hard Drives",
		"CP": "Processors",
		"CS": "Cases",
		"DV": "Optical Drives",
		"FD": "Flash Drives",
		"KB": "Keyboards",
		"MB": "Motherboards",
		"MN": "Monitors",
		"MS": "Mice",
		"NB": "Notebooks",
		"PR": "Printers",
		"PS": "Power Supplies",
		"RM": "Memory",
		"VC": "Video Cards",
	})
	return c
}

// NewCategories builds a whitelist from prefix to display name.
func NewCategories(entries map[string]string) (*Categories, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("codes: category list is empty")
	}
	c := &Categories{byCode: make(map[string]Category, len(entries))}
	for code, name := range entries {
		code = strings.TrimSpace(code)
		if !isPrefix(code) {
			return nil, fmt.Errorf("codes: category %q must be two uppercase letters", code)
		}
		cat := Category{Code: code, Name: strings.TrimSpace(name)}
		c.byCode[code] = cat
		c.list = append(c.list, cat)
	}
	sort.Slice(c.list, func(i, j int) bool { return c.list[i].Code < c.list[j].Code })
	return c, nil
}

// List returns the categories ordered by code.
func (c *Categories) List() []Category {
	return append([]Category(nil), c.list...)
}

// Lookup finds a category by prefix.
func (c *Categories) Lookup(code string) (Category, bool) {
	cat, ok := c.byCode[code]
	return cat, ok
}

// Name returns the display name for prefix, or the prefix itself when unknown.
func (c *Categories) Name(code string) string {
	if cat, ok := c.byCode[code]; ok {
		return cat.Name
	}
	return code
}

func isPrefix(s string) bool {
	return len(s) == 2 && isUpper(s[0]) && isUpper(s[1])
}

func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
