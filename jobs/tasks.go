package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/pricebook/pricebook/report"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueReports isolates long running exports from mail.
	QueueReports = "reports"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskCatalogReport renders the catalog export and uploads it.
	TaskCatalogReport = "report:catalog"
	// TaskDashboardWarmup refills the dashboard and analytics caches.
	TaskDashboardWarmup = "dashboard:warmup"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	if payload.To == "" {
		return nil, errors.New("jobs: email recipient required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.MaxRetry(3)), nil
}

// CatalogReportPayload identifies the export status record to fill.
type CatalogReportPayload struct {
	ID     string        `json:"id"`
	Format report.Format `json:"format"`
}

// NewCatalogReportTask constructs a report task. Exports are not retried:
// a failure is recorded on the status and the user requests a new one.
func NewCatalogReportTask(payload CatalogReportPayload) (*asynq.Task, error) {
	if payload.ID == "" {
		return nil, errors.New("jobs: report id required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogReport, data, asynq.MaxRetry(0), asynq.Queue(QueueReports)), nil
}

// NewDashboardWarmupTask constructs the cache warmup task.
func NewDashboardWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskDashboardWarmup, nil, asynq.MaxRetry(1), asynq.Unique(asynqUniqueTTL))
}

// Sender delivers an email.
type Sender interface {
	Send(ctx context.Context, msg SendEmailPayload) error
}

// SendEmailJob processes TaskTypeSendEmail tasks.
type SendEmailJob struct {
	Sender Sender
	Logger *slog.Logger
}

// Handle processes TaskTypeSendEmail tasks.
func (j *SendEmailJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s: %v: %w", TaskTypeSendEmail, err, asynq.SkipRetry)
	}
	if err := j.Sender.Send(ctx, payload); err != nil {
		j.Logger.Warn("send email", slog.String("to", payload.To), slog.Any("error", err))
		return err
	}
	j.Logger.Info("email sent", slog.String("to", payload.To), slog.String("subject", payload.Subject))
	return nil
}
