package report

import (
	"context"
	"encoding/csv"
	"io"
)

// CSVRenderer writes the summary table of the document as CSV.
type CSVRenderer struct{}

// ContentType implements Renderer.
func (CSVRenderer) ContentType() string { return "text/csv" }

// Render implements Renderer.
func (CSVRenderer) Render(ctx context.Context, doc *Document, w io.Writer) error {
	return WriteSummaryCSV(w, doc.Summary())
}

// SummaryLine is one row of the summary table.
type SummaryLine struct {
	Code        string
	Description string
	Unit        string
	LatestPrice string
}

// Summary returns the summary rows of the document in order.
func (d *Document) Summary() []SummaryLine {
	var out []SummaryLine
	for _, page := range d.Pages {
		for _, item := range page.Items {
			if item.Kind == ItemHeading && len(out) > 0 {
				return out
			}
			if item.Kind == ItemRow && len(item.Cells) == len(summaryHeader) {
				out = append(out, SummaryLine{Code: item.Cells[0], Description: item.Cells[1], Unit: item.Cells[2], LatestPrice: item.Cells[3]})
			}
		}
	}
	return out
}

// WriteSummaryCSV serialises the summary lines.
func WriteSummaryCSV(w io.Writer, lines []SummaryLine) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(summaryHeader); err != nil {
		return err
	}
	for _, l := range lines {
		if err := writer.Write([]string{l.Code, l.Description, l.Unit, l.LatestPrice}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
