package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/pricebook/pricebook/internal/jobs"
	"github.com/pricebook/pricebook/report"
)

// Uploader stores a rendered export and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// CatalogReportJob renders the catalog export, uploads it and records the outcome.
type CatalogReportJob struct {
	Exporter *report.Exporter
	Statuses *report.StatusStore
	Storage  Uploader
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// Handle processes TaskCatalogReport tasks.
func (j *CatalogReportJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil {
		return errors.New("catalog report: handler not configured")
	}
	var payload CatalogReportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s: %v: %w", TaskCatalogReport, err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskCatalogReport)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.Logger.With(slog.String("report_id", payload.ID), slog.String("format", string(payload.Format)))
	if err := j.Statuses.Running(ctx, payload.ID); err != nil {
		logger.Error("mark report running", slog.Any("error", err))
		return err
	}

	url, pages, err := j.render(ctx, payload)
	if err != nil {
		logger.Error("catalog report failed", slog.Any("error", err))
		if serr := j.Statuses.Failed(context.WithoutCancel(ctx), payload.ID, err); serr != nil {
			logger.Error("mark report failed", slog.Any("error", serr))
		}
		return err
	}
	if err := j.Statuses.Done(ctx, payload.ID, url, pages); err != nil {
		logger.Error("mark report done", slog.Any("error", err))
		return err
	}
	j.Metrics.ObservePages(pages)
	logger.Info("catalog report ready", slog.String("url", url), slog.Int("pages", pages))
	return nil
}

func (j *CatalogReportJob) render(ctx context.Context, payload CatalogReportPayload) (string, int, error) {
	out, err := j.Exporter.Build(ctx, payload.Format)
	if err != nil {
		return "", 0, err
	}
	url, err := j.Storage.Upload(ctx, "reports/"+payload.ID+"-"+out.Filename, out.ContentType, bytes.NewReader(out.Body))
	if err != nil {
		return "", 0, err
	}
	return url, out.Pages, nil
}
