package analytichttp

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/pricebook/pricebook/internal/analytics"
	"github.com/pricebook/pricebook/internal/analytics/svg"
	"github.com/pricebook/pricebook/internal/catalog/pricehist"
	"github.com/pricebook/pricebook/internal/platform/httpx"
	"github.com/pricebook/pricebook/internal/shared"
	"github.com/pricebook/pricebook/internal/view"
	"github.com/pricebook/pricebook/report"
)

const requestTimeout = 3 * time.Second

// Service is the analytics contract used by the handler.
type Service interface {
	Overview(ctx context.Context) (analytics.Overview, error)
	Trend(ctx context.Context, code string) (analytics.Trend, error)
}

// Handler serves the analytics pages.
type Handler struct {
	logger           *slog.Logger
	service          Service
	templates        *view.Engine
	exportsPerMinute int
	csvPool          sync.Pool
}

// NewHandler constructs the analytics HTTP handler.
func NewHandler(logger *slog.Logger, service Service, templates *view.Engine, exportsPerMinute int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if exportsPerMinute <= 0 {
		exportsPerMinute = 10
	}
	h := &Handler{
		logger:           logger,
		service:          service,
		templates:        templates,
		exportsPerMinute: exportsPerMinute,
	}
	h.csvPool.New = func() any { return new(bytes.Buffer) }
	return h
}

// OverviewView is the data of the analytics overview page.
type OverviewView struct {
	analytics.Overview
	CategoryChart template.HTML
	MoverChart    template.HTML
}

// TrendView is the data of the product trend page.
type TrendView struct {
	analytics.Trend
	Chart  template.HTML
	Low    decimal.Decimal
	High   decimal.Decimal
	Change float64
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	overview, err := h.service.Overview(ctx)
	if err != nil {
		h.fail(w, r, "load analytics", err)
		return
	}
	vm := OverviewView{Overview: overview}
	if vm.CategoryChart, err = categoryChart(overview.Categories); err != nil {
		h.fail(w, r, "render category chart", err)
		return
	}
	if vm.MoverChart, err = moverChart(overview.Movers); err != nil {
		h.fail(w, r, "render mover chart", err)
		return
	}
	h.templates.Page(w, r, http.StatusOK, "pages/analytics.html", "Analytics", vm)
}

func (h *Handler) handleTrend(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	trend, err := h.service.Trend(ctx, chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, "load trend", err)
		return
	}
	vm := TrendView{Trend: trend}
	if len(trend.Points) > 0 {
		vm.Low, vm.High = trend.Points[0].Price, trend.Points[0].Price
		for _, p := range trend.Points[1:] {
			vm.Low = decimal.Min(vm.Low, p.Price)
			vm.High = decimal.Max(vm.High, p.Price)
		}
		first, last := trend.Points[0].Price, trend.Points[len(trend.Points)-1].Price
		if !first.IsZero() {
			vm.Change, _ = last.Sub(first).Div(first).Mul(decimal.NewFromInt(100)).Round(2).Float64()
		}
		if vm.Chart, err = trendChart(trend); err != nil {
			h.fail(w, r, "render trend chart", err)
			return
		}
	}
	h.templates.Page(w, r, http.StatusOK, "pages/analytics_trend.html", trend.Code+" price trend", vm)
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	overview, err := h.service.Overview(ctx)
	if err != nil {
		h.fail(w, r, "load analytics", err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()
	if err := analytics.WriteCategoriesCSV(buf, overview.Categories); err != nil {
		h.fail(w, r, "write categories csv", err)
		return
	}
	buf.WriteString("\n")
	if err := analytics.WriteMoversCSV(buf, overview.Movers); err != nil {
		h.fail(w, r, "write movers csv", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="analytics-`+overview.AsOf.Format(pricehist.DateLayout)+`.csv"`)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("stream csv", slog.Any("error", err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	status, _ := httpx.Status(err)
	h.logger.Error(op, slog.Any("error", err))
	http.Error(w, http.StatusText(status), status)
}

func money(v float64) string {
	return report.FormatMoney(decimal.NewFromFloat(v))
}

func trendChart(t analytics.Trend) (template.HTML, error) {
	series := make([]float64, len(t.Points))
	labels := make([]string, len(t.Points))
	for i, p := range t.Points {
		series[i] = p.Price.InexactFloat64()
		labels[i] = p.Date.Format(pricehist.DateLayout)
	}
	return svg.Line(svg.DefaultWidth, svg.DefaultHeight, series, labels, svg.LineOpts{
		Title:       t.Code + " price trend",
		Description: "Unit price of " + t.Description + " by effective date",
		ShowDots:    true,
		FitRange:    true,
		Format:      money,
	})
}

func categoryChart(categories []analytics.CategoryAverage) (template.HTML, error) {
	var values []float64
	var labels []string
	for _, c := range categories {
		if c.Priced == 0 {
			continue
		}
		values = append(values, c.Average.InexactFloat64())
		labels = append(labels, c.Category)
	}
	if len(values) == 0 {
		return "", nil
	}
	return svg.Bars(svg.DefaultWidth, svg.DefaultHeight, values, labels, svg.BarOpts{
		Title:       "Average current price by category",
		Description: "Mean current unit price of the priced products in each category",
		SeriesLabel: "Average price",
		ShowValues:  true,
		Format:      money,
	})
}

func moverChart(movers []analytics.Mover) (template.HTML, error) {
	if len(movers) == 0 {
		return "", nil
	}
	values := make([]float64, len(movers))
	labels := make([]string, len(movers))
	for i, m := range movers {
		values[i] = m.ChangePct
		labels[i] = m.Code
	}
	return svg.Bars(svg.DefaultWidth, svg.DefaultHeight, values, labels, svg.BarOpts{
		Title:       "Biggest price movers",
		Description: "Change between the current and previous price",
		SeriesLabel: "Change",
		Color:       "#22c55e",
		ShowValues:  true,
		Format:      svg.Percent,
	})
}
