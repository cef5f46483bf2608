package report

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/pricebook/pricebook/internal/platform/httpx"
	"github.com/pricebook/pricebook/internal/shared"
	"github.com/pricebook/pricebook/internal/view"
)

// Enqueuer schedules an asynchronous export.
type Enqueuer interface {
	EnqueueCatalogReport(ctx context.Context, id string, format Format) error
}

// Pinger checks the remote renderer.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler manages report endpoints.
type Handler struct {
	exporter  *Exporter
	statuses  *StatusStore
	enqueuer  Enqueuer
	pinger    Pinger
	templates *view.Engine
	logger    *slog.Logger
	perMinute int
}

// HandlerConfig carries the handler collaborators. Pinger may be nil.
type HandlerConfig struct {
	Exporter  *Exporter
	Statuses  *StatusStore
	Enqueuer  Enqueuer
	Pinger    Pinger
	Templates *view.Engine
	Logger    *slog.Logger
	PerMinute int
}

// NewHandler creates a report handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 10
	}
	return &Handler{
		exporter:  cfg.Exporter,
		statuses:  cfg.Statuses,
		enqueuer:  cfg.Enqueuer,
		pinger:    cfg.Pinger,
		templates: cfg.Templates,
		logger:    cfg.Logger,
		perMinute: cfg.PerMinute,
	}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(h.perMinute, time.Minute, httprate.WithKeyFuncs(actorKey)))
		r.Get("/catalog.pdf", h.download(FormatPDF))
		r.Get("/catalog.csv", h.download(FormatCSV))
		r.Post("/catalog", h.enqueue)
	})
	r.Get("/{id}", h.status)
}

func actorKey(r *http.Request) (string, error) {
	if id := shared.ActorFromContext(r.Context()); id != 0 {
		return "user:" + strconv.FormatInt(id, 10), nil
	}
	return httprate.KeyByIP(r)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if h.pinger == nil {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok", "renderer": "fpdf"})
		return
	}
	if err := h.pinger.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok", "renderer": "gotenberg"})
}

func (h *Handler) download(format Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := h.exporter.Build(r.Context(), format)
		if err != nil {
			h.fail(w, r, "export catalog", err)
			return
		}
		w.Header().Set("Content-Type", out.ContentType)
		w.Header().Set("Content-Disposition", "attachment; filename="+out.Filename)
		w.Header().Set("Content-Length", strconv.Itoa(len(out.Body)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out.Body)
	}
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request) {
	format := Format(r.FormValue("format"))
	if format == "" {
		format = FormatPDF
	}
	if format != FormatPDF && format != FormatCSV {
		h.fail(w, r, "enqueue export", shared.FieldError("format", "format must be pdf or csv"))
		return
	}
	st, err := h.statuses.Create(r.Context(), format, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "create export status", err)
		return
	}
	if err := h.enqueuer.EnqueueCatalogReport(r.Context(), st.ID, format); err != nil {
		_ = h.statuses.Failed(context.WithoutCancel(r.Context()), st.ID, err)
		h.fail(w, r, "enqueue export", shared.Wrap(shared.ErrTransport, err))
		return
	}
	h.logger.Info("catalog export queued", slog.String("id", st.ID), slog.String("format", string(format)))
	if wantsJSON(r) {
		httpx.JSON(w, http.StatusAccepted, st)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Export queued, this page refreshes until it is ready"})
	}
	http.Redirect(w, r, "/reports/"+st.ID, http.StatusSeeOther)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	st, err := h.statuses.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if wantsJSON(r) || !errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, err)
			return
		}
		http.NotFound(w, r)
		return
	}
	if wantsJSON(r) {
		httpx.JSON(w, http.StatusOK, st)
		return
	}
	h.templates.Page(w, r, http.StatusOK, "pages/report_status.html", "Catalog export", st)
}

// fail reports the error as a flash on the HTML surface and as problem JSON on the API.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, _ := httpx.Status(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	} else {
		h.logger.Warn(op, slog.Any("error", err))
	}
	sess := shared.SessionFromContext(r.Context())
	if wantsJSON(r) || sess == nil {
		httpx.RespondError(w, err)
		return
	}
	sess.AddFlash(shared.FlashMessage{Kind: "error", Message: err.Error()})
	http.Redirect(w, r, "/products", http.StatusSeeOther)
}

func wantsJSON(r *http.Request) bool {
	return r.Header.Get("Accept") == "application/json"
}
