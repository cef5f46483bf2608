package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/pricebook/pricebook/internal/jobs"
)

const asynqUniqueTTL = 30 * time.Minute

// Warmer refills one family of cached views.
type Warmer interface {
	Warm(ctx context.Context) error
}

// DashboardWarmupJob pre-populates the dashboard and analytics caches.
type DashboardWarmupJob struct {
	Warmers map[string]Warmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskDashboardWarmup tasks. Every warmer runs even when an earlier one fails.
func (j *DashboardWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil {
		return errors.New("dashboard warmup: handler not configured")
	}
	tracker := j.Metrics.Track(TaskDashboardWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	var errs []error
	for name, w := range j.Warmers {
		start := time.Now()
		if err := w.Warm(ctx); err != nil {
			j.Logger.Error("warm cache", slog.String("view", name), slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		j.Logger.Info("cache warmed", slog.String("view", name), slog.Duration("took", time.Since(start)))
	}
	return errors.Join(errs...)
}
