package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricebook/pricebook/internal/catalog/pricehist"
	"github.com/pricebook/pricebook/internal/catalog/products"
	"github.com/pricebook/pricebook/internal/storage"
	"github.com/pricebook/pricebook/report"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type snapshot []products.Detail

func (s snapshot) Snapshot(ctx context.Context) ([]products.Detail, error) { return s, nil }

func newReportJob(t *testing.T, src snapshot) (*CatalogReportJob, *report.StatusStore, string) {
	t.Helper()
	mr := miniredis.RunT(t)
	statuses := report.NewStatusStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
	dir := t.TempDir()
	files, err := storage.NewLocal(dir, "/media")
	require.NoError(t, err)
	return &CatalogReportJob{
		Exporter: report.NewExporter(src, nil, discard),
		Statuses: statuses,
		Storage:  files,
		Logger:   discard,
	}, statuses, dir
}

func TestCatalogReportJobUploadsAndMarksDone(t *testing.T) {
	src := snapshot{{
		Product: products.Product{Code: "AD0001", Description: "Drive", Unit: "pc"},
		History: []pricehist.Record{{ProductCode: "AD0001", EffectiveDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), UnitPrice: decimal.NewFromInt(10)}},
	}}
	job, statuses, dir := newReportJob(t, src)
	ctx := context.Background()
	st, err := statuses.Create(ctx, report.FormatCSV, 1)
	require.NoError(t, err)

	task, err := NewCatalogReportTask(CatalogReportPayload{ID: st.ID, Format: report.FormatCSV})
	require.NoError(t, err)
	require.NoError(t, job.Handle(ctx, task))

	got, err := statuses.Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, report.StateDone, got.State)
	require.True(t, strings.HasPrefix(got.URL, "/media/reports/"+st.ID))

	data, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(got.URL, "/media/")))
	require.NoError(t, err)
	assert.Contains(t, string(data), "AD0001,Drive,pc,$10.00")
}

func TestCatalogReportJobRecordsEmptyCatalog(t *testing.T) {
	job, statuses, _ := newReportJob(t, snapshot{})
	ctx := context.Background()
	st, err := statuses.Create(ctx, report.FormatPDF, 1)
	require.NoError(t, err)

	task, err := NewCatalogReportTask(CatalogReportPayload{ID: st.ID, Format: report.FormatPDF})
	require.NoError(t, err)
	require.Error(t, job.Handle(ctx, task))

	got, err := statuses.Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, report.StateFailed, got.State)
	assert.Equal(t, "there are no products to export", got.Error)
}

func TestCatalogReportJobSkipsMalformedPayload(t *testing.T) {
	job, _, _ := newReportJob(t, snapshot{})
	err := job.Handle(context.Background(), asynq.NewTask(TaskCatalogReport, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type fakeSender struct {
	sent []SendEmailPayload
	err  error
}

func (f *fakeSender) Send(ctx context.Context, msg SendEmailPayload) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func TestSendEmailJob(t *testing.T) {
	sender := &fakeSender{}
	job := &SendEmailJob{Sender: sender, Logger: discard}
	task, err := NewSendEmailTask(SendEmailPayload{To: "ana@example.com", Subject: "Hi", Body: "Hello"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "ana@example.com", sender.sent[0].To)

	sender.err = errors.New("relay down")
	require.Error(t, job.Handle(context.Background(), task))

	_, err = NewSendEmailTask(SendEmailPayload{})
	require.Error(t, err)
}

func TestSMTPSenderComposesMessage(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "mail.local", Port: 1025, From: "pricebook@example.com"})
	var gotAddr string
	var gotMsg []byte
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotMsg = addr, msg
		assert.Nil(t, a)
		assert.Equal(t, []string{"ana@example.com"}, to)
		return nil
	}
	require.NoError(t, s.Send(context.Background(), SendEmailPayload{To: "ana@example.com", Subject: "Reset", Body: "line1\nline2"}))
	assert.Equal(t, "mail.local:1025", gotAddr)
	assert.Contains(t, string(gotMsg), "Subject: Reset\r\n")
	assert.True(t, strings.HasSuffix(string(gotMsg), "line1\r\nline2"))
}

type countingWarmer struct {
	calls int
	err   error
}

func (c *countingWarmer) Warm(ctx context.Context) error {
	c.calls++
	return c.err
}

func TestDashboardWarmupRunsEveryWarmer(t *testing.T) {
	ok := &countingWarmer{}
	broken := &countingWarmer{err: errors.New("store down")}
	job := &DashboardWarmupJob{Warmers: map[string]Warmer{"dashboard": broken, "analytics": ok}, Logger: discard}
	err := job.Handle(context.Background(), NewDashboardWarmupTask())
	require.Error(t, err)
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 1, broken.calls)
}

func TestEnqueueDashboardWarmupIsUnique(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	require.NoError(t, client.EnqueueDashboardWarmup(ctx))
	require.NoError(t, client.EnqueueDashboardWarmup(ctx), "a pending warmup absorbs the second request")
}

func TestCatalogReportPayloadShape(t *testing.T) {
	task, err := NewCatalogReportTask(CatalogReportPayload{ID: "abc", Format: report.FormatPDF})
	require.NoError(t, err)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, map[string]string{"id": "abc", "format": "pdf"}, payload)
	assert.Equal(t, TaskCatalogReport, task.Type())
}
