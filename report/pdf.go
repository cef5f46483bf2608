package report

import (
	"context"
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
)

// Renderer writes a laid out document in some output format.
type Renderer interface {
	ContentType() string
	Render(ctx context.Context, doc *Document, w io.Writer) error
}

// PDFRenderer draws the document directly with fpdf.
type PDFRenderer struct {
	// Compress deflates page streams. Disable it to inspect the raw output.
	Compress bool
}

// NewPDFRenderer returns a renderer producing compressed PDFs.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{Compress: true}
}

// ContentType implements Renderer.
func (r *PDFRenderer) ContentType() string { return "application/pdf" }

// Render implements Renderer. The first drawing error aborts the whole document.
func (r *PDFRenderer) Render(ctx context.Context, doc *Document, w io.Writer) error {
	if doc == nil || len(doc.Pages) == 0 {
		return fmt.Errorf("report: nothing to render")
	}
	l := doc.Layout
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: l.PageWidth, Ht: l.PageHeight},
	})
	pdf.SetCompression(r.Compress)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(l.Margin, l.Margin, l.Margin)
	pdf.SetTitle(doc.Title, false)
	pdf.SetCreator("pricebook", false)
	pdf.SetCreationDate(doc.GeneratedAt)

	for _, page := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		pdf.AddPage()
		for _, item := range page.Items {
			drawItem(pdf, l, item)
		}
		if pdf.Err() {
			return fmt.Errorf("report: draw page %d: %w", page.Number, pdf.Error())
		}
	}
	return pdf.Output(w)
}

func drawItem(pdf *fpdf.Fpdf, l Layout, item Item) {
	switch item.Kind {
	case ItemTitle:
		pdf.SetFont("Helvetica", "B", 16)
		pdf.SetXY(l.Margin, item.Y)
		pdf.CellFormat(l.contentWidth(), 8, cell(item, 0), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetXY(l.Margin, item.Y)
		pdf.CellFormat(l.contentWidth(), 8, cell(item, 1), "", 0, "R", false, 0, "")
	case ItemHeading:
		pdf.SetFont("Helvetica", "B", 11)
		pdf.SetXY(l.Margin, item.Y)
		pdf.CellFormat(l.contentWidth(), l.RowHeight, cell(item, 0), "B", 0, "L", false, 0, "")
	case ItemTableHeader:
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		drawCells(pdf, l, item, true)
	case ItemRow:
		pdf.SetFont("Helvetica", "", 9)
		drawCells(pdf, l, item, false)
	case ItemFooter:
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetXY(l.Margin, item.Y)
		pdf.CellFormat(l.contentWidth(), 5, cell(item, 0), "", 0, "C", false, 0, "")
	}
}

func drawCells(pdf *fpdf.Fpdf, l Layout, item Item, fill bool) {
	x := l.Margin
	for i, col := range l.Columns(len(item.Cells)) {
		pdf.SetXY(x, item.Y)
		pdf.CellFormat(col.Width, l.RowHeight, truncate(pdf, item.Cells[i], col.Width-2), "", 0, col.Align, fill, 0, "")
		x += col.Width
	}
}

func cell(item Item, i int) string {
	if i < len(item.Cells) {
		return item.Cells[i]
	}
	return ""
}

// truncate shortens s so it fits in width millimetres at the current font.
func truncate(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
