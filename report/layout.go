// Package report lays out and renders the catalog export.
package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pricebook/pricebook/internal/shared"
)

const dateLayout = "2006-01-02"

// Price is one effective-dated price of a product.
type Price struct {
	EffectiveDate time.Time
	UnitPrice     decimal.Decimal
}

// Product is a denormalized product with its full price history.
type Product struct {
	Code         string
	Description  string
	Unit         string
	PriceHistory []Price
}

// Latest returns the price with the greatest effective date.
func (p Product) Latest() (Price, bool) {
	if len(p.PriceHistory) == 0 {
		return Price{}, false
	}
	latest := p.PriceHistory[0]
	for _, pr := range p.PriceHistory[1:] {
		if pr.EffectiveDate.After(latest.EffectiveDate) {
			latest = pr
		}
	}
	return latest, true
}

// ItemKind tells a renderer how to draw an item.
type ItemKind int

const (
	ItemTitle ItemKind = iota
	ItemHeading
	ItemTableHeader
	ItemRow
	ItemFooter
)

// Item is one positioned line of a page. Y is measured from the top edge in millimetres.
type Item struct {
	Kind  ItemKind
	Y     float64
	Cells []string
}

// Page is one page of the document.
type Page struct {
	Number int
	Items  []Item
}

// Document is a laid out report ready for rendering.
type Document struct {
	Title       string
	GeneratedAt time.Time
	Layout      Layout
	Pages       []Page
}

// Column is a table column width in millimetres with its alignment (L or R).
type Column struct {
	Width float64
	Align string
}

// Layout holds page geometry in millimetres.
type Layout struct {
	PageWidth    float64
	PageHeight   float64
	Margin       float64
	TitleHeight  float64
	HeadingGap   float64
	RowHeight    float64
	FooterHeight float64
}

// A4 is the default portrait layout.
var A4 = Layout{
	PageWidth:    210,
	PageHeight:   297,
	Margin:       15,
	TitleHeight:  12,
	HeadingGap:   10,
	RowHeight:    7,
	FooterHeight: 10,
}

// bottom is the near-bottom threshold: nothing is drawn past it.
func (l Layout) bottom() float64 {
	return l.PageHeight - l.Margin - l.FooterHeight
}

func (l Layout) contentWidth() float64 {
	return l.PageWidth - 2*l.Margin
}

// Columns returns the table columns used for a line of n cells.
func (l Layout) Columns(n int) []Column {
	w := l.contentWidth()
	switch n {
	case 4:
		return []Column{{Width: w * 0.16, Align: "L"}, {Width: w * 0.50, Align: "L"}, {Width: w * 0.12, Align: "L"}, {Width: w * 0.22, Align: "R"}}
	case 2:
		return []Column{{Width: w * 0.30, Align: "L"}, {Width: w * 0.30, Align: "R"}}
	default:
		cols := make([]Column, n)
		for i := range cols {
			cols[i] = Column{Width: w / float64(n), Align: "L"}
		}
		return cols
	}
}

var summaryHeader = []string{"Code", "Description", "Unit", "Latest price"}
var historyHeader = []string{"Effective date", "Unit price"}

// Generate lays out the summary table followed by the price history of every product.
// Products are ordered by code and histories by effective date, newest first.
func Generate(products []Product, layout Layout, now time.Time) (*Document, error) {
	if len(products) == 0 {
		return nil, shared.Errorf(shared.ErrEmptyData, "there are no products to export")
	}
	if layout == (Layout{}) {
		layout = A4
	}
	sorted := append([]Product(nil), products...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })

	doc := &Document{
		Title:       "Product Price Catalog",
		GeneratedAt: now,
		Layout:      layout,
	}
	c := &cursor{doc: doc, layout: layout}
	c.newPage()
	c.add(ItemTitle, layout.TitleHeight, doc.Title, "Generated "+now.Format("2006-01-02 15:04 MST"))

	c.heading(layout.HeadingGap, "Summary")
	c.table(summaryHeader)
	for _, p := range sorted {
		latest := "-"
		if pr, ok := p.Latest(); ok {
			latest = FormatMoney(pr.UnitPrice)
		}
		c.row(p.Code, p.Description, p.Unit, latest)
	}

	for _, p := range sorted {
		history := append([]Price(nil), p.PriceHistory...)
		sort.SliceStable(history, func(i, j int) bool { return history[i].EffectiveDate.After(history[j].EffectiveDate) })

		c.heading(layout.HeadingGap+layout.RowHeight, p.Code+"  "+p.Description+" ("+p.Unit+")")
		if len(history) == 0 {
			c.row("No price recorded")
			continue
		}
		c.table(historyHeader)
		for _, pr := range history {
			c.row(pr.EffectiveDate.Format(dateLayout), FormatMoney(pr.UnitPrice))
		}
	}
	c.footers()
	return doc, nil
}

// cursor tracks the vertical position on the current page.
type cursor struct {
	doc    *Document
	layout Layout
	y      float64
	header []string
}

func (c *cursor) page() *Page {
	return &c.doc.Pages[len(c.doc.Pages)-1]
}

func (c *cursor) newPage() {
	c.doc.Pages = append(c.doc.Pages, Page{Number: len(c.doc.Pages) + 1})
	c.y = c.layout.Margin
}

// add places an item of height h, starting a new page when it would cross the threshold.
func (c *cursor) add(kind ItemKind, h float64, cells ...string) {
	if c.y+h > c.layout.bottom() {
		c.newPage()
		if kind == ItemRow && c.header != nil {
			c.place(ItemTableHeader, c.layout.RowHeight, c.header)
		}
	}
	c.place(kind, h, cells)
}

func (c *cursor) place(kind ItemKind, h float64, cells []string) {
	p := c.page()
	p.Items = append(p.Items, Item{Kind: kind, Y: c.y, Cells: cells})
	c.y += h
}

// heading keeps a section title on the same page as the first two lines below it.
func (c *cursor) heading(h float64, text string) {
	c.header = nil
	if c.y+h+2*c.layout.RowHeight > c.layout.bottom() {
		c.newPage()
	}
	c.place(ItemHeading, h, []string{text})
}

func (c *cursor) table(header []string) {
	c.header = header
	// keep a header together with at least its first row
	if c.y+2*c.layout.RowHeight > c.layout.bottom() {
		c.newPage()
	}
	c.place(ItemTableHeader, c.layout.RowHeight, header)
}

func (c *cursor) row(cells ...string) {
	c.add(ItemRow, c.layout.RowHeight, cells...)
}

func (c *cursor) footers() {
	total := len(c.doc.Pages)
	y := c.layout.PageHeight - c.layout.Margin - c.layout.FooterHeight/2
	for i := range c.doc.Pages {
		p := &c.doc.Pages[i]
		p.Items = append(p.Items, Item{Kind: ItemFooter, Y: y, Cells: []string{pageLabel(p.Number, total)}})
	}
}

func pageLabel(n, total int) string {
	return printer.Sprintf("Page %d of %d", n, total)
}
