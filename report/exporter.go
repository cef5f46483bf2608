package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pricebook/pricebook/internal/catalog/products"
)

// Source yields the denormalized catalog.
type Source interface {
	Snapshot(ctx context.Context) ([]products.Detail, error)
}

// Exporter snapshots the catalog, lays it out and renders it.
type Exporter struct {
	source    Source
	renderers map[string]Renderer
	layout    Layout
	logger    *slog.Logger
	now       func() time.Time
}

// Format names an export output.
type Format string

const (
	FormatPDF Format = "pdf"
	FormatCSV Format = "csv"
)

// NewExporter constructs an Exporter rendering PDFs with pdf and CSV summaries.
func NewExporter(source Source, pdf Renderer, logger *slog.Logger) *Exporter {
	if pdf == nil {
		pdf = NewPDFRenderer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		source: source,
		renderers: map[string]Renderer{
			string(FormatPDF): pdf,
			string(FormatCSV): CSVRenderer{},
		},
		layout: A4,
		logger: logger,
		now:    time.Now,
	}
}

// Export contains a finished rendering.
type Export struct {
	Filename    string
	ContentType string
	Body        []byte
	Pages       int
}

// Build renders the whole catalog in the given format. Nothing is returned unless
// every step succeeded.
func (e *Exporter) Build(ctx context.Context, format Format) (*Export, error) {
	renderer, ok := e.renderers[string(format)]
	if !ok {
		return nil, fmt.Errorf("report: unsupported format %q", format)
	}
	details, err := e.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()
	doc, err := Generate(FromCatalog(details), e.layout, now)
	if err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	if err := renderer.Render(ctx, doc, buf); err != nil {
		e.logger.Error("render catalog", slog.String("format", string(format)), slog.Any("error", err))
		return nil, fmt.Errorf("render catalog %s: %w", format, err)
	}
	return &Export{
		Filename:    fmt.Sprintf("catalog-%s.%s", now.Format("20060102-150405"), format),
		ContentType: renderer.ContentType(),
		Body:        buf.Bytes(),
		Pages:       len(doc.Pages),
	}, nil
}

// WriteTo renders into a buffer first and copies it to w on success only.
func (e *Exporter) WriteTo(ctx context.Context, format Format, w io.Writer) (*Export, error) {
	out, err := e.Build(ctx, format)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(out.Body); err != nil {
		return nil, err
	}
	return out, nil
}

// FromCatalog converts catalog details into report products.
func FromCatalog(details []products.Detail) []Product {
	out := make([]Product, 0, len(details))
	for _, d := range details {
		p := Product{Code: d.Code, Description: d.Description, Unit: d.Unit}
		for _, rec := range d.History {
			p.PriceHistory = append(p.PriceHistory, Price{EffectiveDate: rec.EffectiveDate, UnitPrice: rec.UnitPrice})
		}
		out = append(out, p)
	}
	return out
}
