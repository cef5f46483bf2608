package app

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	analytichttp "github.com/pricebook/pricebook/internal/analytics/http"
	"github.com/pricebook/pricebook/internal/api"
	audithttp "github.com/pricebook/pricebook/internal/audit/http"
	"github.com/pricebook/pricebook/internal/auth"
	authhttp "github.com/pricebook/pricebook/internal/auth/http"
	cataloghttp "github.com/pricebook/pricebook/internal/catalog/http"
	"github.com/pricebook/pricebook/internal/dashboard"
	"github.com/pricebook/pricebook/internal/observability"
	"github.com/pricebook/pricebook/internal/platform/httpx"
	"github.com/pricebook/pricebook/internal/shared"
	"github.com/pricebook/pricebook/internal/view"
	"github.com/pricebook/pricebook/jobs"
	"github.com/pricebook/pricebook/report"
	"github.com/pricebook/pricebook/web"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Templates        *view.Engine
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	Auth             *auth.Service
	AuthHandler      *authhttp.Handler
	DashboardHandler *dashboard.Handler
	CatalogHandler   *cataloghttp.Handler
	AnalyticsHandler *analytichttp.Handler
	AuditHandler     *audithttp.Handler
	ReportHandler    *report.Handler
	APIHandler       *api.Handler
	JobHandler       *jobs.Handler
	Media            http.Handler
	Metrics          *observability.Metrics
	HealthChecks     map[string]HealthCheck
}

// NewRouter constructs the chi.Router with Pricebook defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	mw := MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Auth:           params.Auth,
		Metrics:        params.Metrics,
	}
	r.Use(BaseStack(mw)...)

	r.Get("/healthz", healthz(params.HealthChecks))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}
	if params.Media != nil {
		r.Handle("/media/*", params.Media)
	}

	if params.APIHandler != nil {
		r.Route("/api/v1", params.APIHandler.MountRoutes)
	}

	r.Group(func(r chi.Router) {
		r.Use(BrowserStack(mw)...)
		r.Route("/auth", params.AuthHandler.MountRoutes)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser)
			params.DashboardHandler.MountRoutes(r)
			r.Route("/products", params.CatalogHandler.MountProducts)
			r.Route("/prices", params.CatalogHandler.MountPrices)
			if params.AnalyticsHandler != nil {
				r.Route("/analytics", params.AnalyticsHandler.MountRoutes)
			}
			if params.AuditHandler != nil {
				r.Route("/audit", params.AuditHandler.MountRoutes)
			}
			if params.ReportHandler != nil {
				r.Route("/reports", params.ReportHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	return r
}

func healthz(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		out := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				out["status"] = "degraded"
				out[name] = err.Error()
				continue
			}
			out[name] = "ok"
		}
		httpx.JSON(w, status, out)
	}
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
