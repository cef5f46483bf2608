package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/pricebook/pricebook/internal/analytics"
	analytichttp "github.com/pricebook/pricebook/internal/analytics/http"
	"github.com/pricebook/pricebook/internal/api"
	"github.com/pricebook/pricebook/internal/app"
	"github.com/pricebook/pricebook/internal/audit"
	audithttp "github.com/pricebook/pricebook/internal/audit/http"
	"github.com/pricebook/pricebook/internal/auth"
	authhttp "github.com/pricebook/pricebook/internal/auth/http"
	"github.com/pricebook/pricebook/internal/catalog/codes"
	cataloghttp "github.com/pricebook/pricebook/internal/catalog/http"
	"github.com/pricebook/pricebook/internal/catalog/mutation"
	"github.com/pricebook/pricebook/internal/catalog/pricehist"
	"github.com/pricebook/pricebook/internal/catalog/products"
	"github.com/pricebook/pricebook/internal/dashboard"
	"github.com/pricebook/pricebook/internal/observability"
	"github.com/pricebook/pricebook/internal/platform/cache"
	"github.com/pricebook/pricebook/internal/platform/db"
	"github.com/pricebook/pricebook/internal/shared"
	"github.com/pricebook/pricebook/internal/storage"
	"github.com/pricebook/pricebook/internal/store"
	"github.com/pricebook/pricebook/internal/view"
	"github.com/pricebook/pricebook/internal/viewcache"
	"github.com/pricebook/pricebook/jobs"
	"github.com/pricebook/pricebook/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("pricebook", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	categories, err := cfg.Categories()
	if err != nil {
		return err
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	checks := map[string]app.HealthCheck{
		"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}

	var (
		dbpool    *pgxpool.Pool
		client    store.Client
		authRepo  auth.Repository
		auditor   mutation.Auditor
		changeLog audit.Repository
	)
	switch cfg.StoreDriver {
	case app.StoreDriverPostgres:
		dbpool, err = db.New(ctx, cfg.PGDSN, db.Options{ApplicationName: "pricebook"})
		if err != nil {
			return err
		}
		defer dbpool.Close()
		if err := db.Migrate(ctx, dbpool, logger); err != nil {
			return err
		}
		client = store.NewPostgres(dbpool, store.CatalogSchema(), cfg.StoreTimeout)
		authRepo = auth.NewRepository(dbpool)
		auditor = shared.NewAuditLogger(dbpool, logger)
		changeLog = audit.NewRepository(dbpool)
		checks["postgres"] = dbpool.Ping
	default:
		logger.Warn("using in-memory store, data is lost on restart")
		client = store.NewMemory(store.CatalogSchema())
		authRepo = auth.NewMemoryRepository()
		memoryLog := audit.NewMemoryRepository(shared.NewAuditLogger(nil, logger), actorEmail(authRepo))
		auditor, changeLog = memoryLog, memoryLog
	}

	metrics := observability.NewMetrics()
	views := viewcache.New(redisClient, cfg.ViewCacheTTL)

	redisOpts := asynqRedisOpts(redisClient)
	queue, err := jobs.NewClient(redisOpts)
	if err != nil {
		return err
	}
	defer queue.Close()
	if err := queue.EnqueueDashboardWarmup(ctx); err != nil {
		logger.Warn("queue boot warmup", slog.Any("error", err))
	}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	media, err := storage.NewLocal(cfg.StorageDir, cfg.StoragePublicURL)
	if err != nil {
		return err
	}

	sessionManager := shared.NewSessionManager(redisClient, "pricebook_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine(view.WithLogger(logger), view.WithCSRF(csrfManager))
	if err != nil {
		return err
	}

	authService := auth.NewService(authRepo, auth.Config{
		Mailer:  queue,
		Avatars: media,
		BaseURL: cfg.AppBaseURL,
		Logger:  logger,
	})
	watcher := auth.NewWatcher(authService, logger, func(ev auth.Event) {
		metrics.ObserveAuthEvent(string(ev.Kind))
	})
	watcher.Init()
	defer watcher.Close()
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.APITokenTTL)

	validate := shared.NewValidator()
	productRepo := products.NewRepository(client)
	priceRepo := pricehist.NewRepository(client)
	productService := products.NewService(productRepo, priceRepo)
	allocator := codes.NewAllocator(client, categories)
	coordinator := mutation.New(mutation.Config{
		Logger:      logger,
		Store:       client,
		Categories:  categories,
		Validate:    validate,
		Invalidator: views,
		Auditor:     auditor,
		Notifier:    mutation.FlashNotifier{},
		Observer:    metrics.ObserveMutation,
		Timeout:     cfg.StoreTimeout,
	})

	dashboardService := dashboard.NewService(productRepo, priceRepo, categories, views)
	analyticsService := analytics.NewService(productService, categories, views)

	renderer, gotenberg, err := reportRenderer(cfg)
	if err != nil {
		return err
	}
	var pinger report.Pinger
	if gotenberg != nil {
		pinger = gotenberg
		checks["gotenberg"] = gotenberg.Ping
	}
	reportHandler := report.NewHandler(report.HandlerConfig{
		Exporter:  report.NewExporter(productService, renderer, logger),
		Statuses:  report.NewStatusStore(redisClient, 24*time.Hour),
		Enqueuer:  queue,
		Pinger:    pinger,
		Templates: templates,
		Logger:    logger,
		PerMinute: cfg.ExportLimitPerMinute,
	})

	authHandler := authhttp.NewHandler(logger, authService, templates, sessionManager)
	catalogHandler := cataloghttp.NewHandler(cataloghttp.Config{
		Logger:      logger,
		Products:    productService,
		Allocator:   allocator,
		Coordinator: coordinator,
		Cache:       views,
		Templates:   templates,
	})
	apiHandler := api.NewHandler(api.Config{
		Logger:      logger,
		Auth:        authService,
		Tokens:      tokens,
		Products:    productService,
		Allocator:   allocator,
		Coordinator: coordinator,
		Cache:       views,
		Idempotency: shared.NewIdempotencyStore(redisClient, 24*time.Hour),
	})

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Templates:        templates,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		Auth:             authService,
		AuthHandler:      authHandler,
		DashboardHandler: dashboard.NewHandler(logger, dashboardService, templates),
		CatalogHandler:   catalogHandler,
		AnalyticsHandler: analytichttp.NewHandler(logger, analyticsService, templates, cfg.ExportLimitPerMinute),
		AuditHandler:     audithttp.NewHandler(logger, audit.NewService(changeLog), templates, cfg.ExportLimitPerMinute),
		ReportHandler:    reportHandler,
		APIHandler:       apiHandler,
		JobHandler:       jobs.NewHandler(inspector, logger),
		Media:            media.Handler(),
		Metrics:          metrics,
		HealthChecks:     checks,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := views.ListenForInvalidation(gctx, func(scope string) {
			metrics.ObserveInvalidation(scope)
			logger.Debug("view cache invalidated", slog.String("scope", scope))
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("invalidation listener stopped", slog.Any("error", err))
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func reportRenderer(cfg *app.Config) (report.Renderer, *report.Client, error) {
	if cfg.ReportRenderer != app.RendererGotenberg {
		return report.NewPDFRenderer(), nil, nil
	}
	client := report.NewClient(cfg.GotenbergURL)
	renderer, err := report.NewGotenbergRenderer(client)
	if err != nil {
		return nil, nil, err
	}
	return renderer, client, nil
}

func actorEmail(repo auth.Repository) func(ctx context.Context, id int64) string {
	return func(ctx context.Context, id int64) string {
		u, err := repo.FindByID(ctx, id)
		if err != nil || u == nil {
			return ""
		}
		return u.Email
	}
}

// asynqRedisOpts reuses the connection settings of the shared client.
func asynqRedisOpts(client *redis.Client) asynq.RedisClientOpt {
	opts := client.Options()
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	}
}
