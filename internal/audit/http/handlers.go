// Package audithttp serves the catalog change log.
package audithttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pricebook/pricebook/internal/audit"
	"github.com/pricebook/pricebook/internal/platform/httpx"
	"github.com/pricebook/pricebook/internal/view"
)

const (
	defaultDateRange = 30 * 24 * time.Hour
	maxDateRange     = 366 * 24 * time.Hour
	dateLayout       = "2006-01-02"
)

// TimelineService is the change log contract used by the handler.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error)
}

// Handler serves the change log.
type Handler struct {
	logger           *slog.Logger
	service          TimelineService
	templates        *view.Engine
	exportsPerMinute int
	now              func() time.Time
}

// NewHandler constructs the change log handler.
func NewHandler(logger *slog.Logger, service TimelineService, templates *view.Engine, exportsPerMinute int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if exportsPerMinute <= 0 {
		exportsPerMinute = 10
	}
	return &Handler{
		logger:           logger,
		service:          service,
		templates:        templates,
		exportsPerMinute: exportsPerMinute,
		now:              time.Now,
	}
}

// TimelineView is the data of the change log page.
type TimelineView struct {
	audit.ViewModel
	Query url.Values
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.fail(w, "load change log", err)
		return
	}
	h.templates.Page(w, r, http.StatusOK, "pages/audit.html", "Change log", TimelineView{
		ViewModel: audit.ViewModel{Filters: filters, Rows: result.Rows, Paging: result.Paging},
		Query:     r.URL.Query(),
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.fail(w, "export change log", err)
		return
	}
	body, err := audit.WriteCSV(rows)
	if err != nil {
		h.fail(w, "encode change log", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="change-log.csv"`)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

var errBadRange = errors.New("invalid date range")

func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	to := h.now().UTC().Truncate(24 * time.Hour)
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		parsed, err := time.Parse(dateLayout, v)
		if err != nil {
			return audit.TimelineFilters{}, errors.New("invalid to date")
		}
		to = parsed
	}
	from := to.Add(-defaultDateRange)
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		parsed, err := time.Parse(dateLayout, v)
		if err != nil {
			return audit.TimelineFilters{}, errors.New("invalid from date")
		}
		from = parsed
	}
	if from.After(to) || to.Sub(from) > maxDateRange {
		return audit.TimelineFilters{}, errBadRange
	}

	page := 1
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.TimelineFilters{}, errors.New("invalid page")
		}
		page = parsed
	}
	return audit.TimelineFilters{
		From:     from,
		To:       to,
		Actor:    strings.TrimSpace(q.Get("actor")),
		Entity:   strings.TrimSpace(q.Get("entity")),
		EntityID: strings.ToUpper(strings.TrimSpace(q.Get("entity_id"))),
		Action:   strings.TrimSpace(q.Get("action")),
		Page:     page,
	}, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status, _ := httpx.Status(err)
	h.logger.Error(op, slog.Any("error", err))
	http.Error(w, http.StatusText(status), status)
}
