package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pricebook/pricebook/internal/analytics"
	"github.com/pricebook/pricebook/internal/app"
	"github.com/pricebook/pricebook/internal/catalog/pricehist"
	"github.com/pricebook/pricebook/internal/catalog/products"
	"github.com/pricebook/pricebook/internal/dashboard"
	jobmetrics "github.com/pricebook/pricebook/internal/jobs"
	"github.com/pricebook/pricebook/internal/platform/cache"
	"github.com/pricebook/pricebook/internal/platform/db"
	"github.com/pricebook/pricebook/internal/storage"
	"github.com/pricebook/pricebook/internal/store"
	"github.com/pricebook/pricebook/internal/viewcache"
	"github.com/pricebook/pricebook/jobs"
	"github.com/pricebook/pricebook/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if cfg.StoreDriver != app.StoreDriverPostgres {
		return errors.New("the worker needs STORE_DRIVER=postgres: the in-memory store is private to the web process")
	}
	categories, err := cfg.Categories()
	if err != nil {
		return err
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{ApplicationName: "pricebook-worker"})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	client := store.NewPostgres(pool, store.CatalogSchema(), cfg.StoreTimeout)
	productRepo := products.NewRepository(client)
	priceRepo := pricehist.NewRepository(client)
	productService := products.NewService(productRepo, priceRepo)
	views := viewcache.New(redisClient, cfg.ViewCacheTTL)

	media, err := storage.NewLocal(cfg.StorageDir, cfg.StoragePublicURL)
	if err != nil {
		return err
	}

	var renderer report.Renderer = report.NewPDFRenderer()
	if cfg.ReportRenderer == app.RendererGotenberg {
		renderer, err = report.NewGotenbergRenderer(report.NewClient(cfg.GotenbergURL))
		if err != nil {
			return err
		}
	}

	var sender jobs.Sender = jobs.LogSender{Logger: logger}
	if cfg.SMTPHost != "" {
		sender = jobs.NewSMTPSender(jobs.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}

	metrics := jobmetrics.NewMetrics(nil)
	mailJob := &jobs.SendEmailJob{Sender: sender, Logger: logger}
	reportJob := &jobs.CatalogReportJob{
		Exporter: report.NewExporter(productService, renderer, logger),
		Statuses: report.NewStatusStore(redisClient, 24*time.Hour),
		Storage:  media,
		Logger:   logger,
		Metrics:  metrics,
	}
	warmupJob := &jobs.DashboardWarmupJob{
		Warmers: map[string]jobs.Warmer{
			"dashboard": dashboard.NewService(productRepo, priceRepo, categories, views),
			"analytics": analytics.NewService(productService, categories, views),
		},
		Logger:  logger,
		Metrics: metrics,
	}

	opts := redisClient.Options()
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: opts.Addr, Username: opts.Username, Password: opts.Password, DB: opts.DB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: mailJob.Handle},
			{Type: jobs.TaskCatalogReport, Handler: reportJob.Handle},
			{Type: jobs.TaskDashboardWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.WarmupCron, Task: jobs.NewDashboardWarmupTask()},
		},
	})
	if err != nil {
		return err
	}

	logger.Info("worker started", slog.Int("concurrency", cfg.WorkerConcurrency), slog.String("warmup_cron", cfg.WarmupCron))
	return worker.Run(ctx)
}
