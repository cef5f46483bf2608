package perf

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/pricebook/pricebook/internal/catalog/pricehist"
	"github.com/pricebook/pricebook/internal/catalog/products"
	jobmetrics "github.com/pricebook/pricebook/internal/jobs"
	"github.com/pricebook/pricebook/internal/storage"
	"github.com/pricebook/pricebook/jobs"
	"github.com/pricebook/pricebook/report"
)

type snapshot []products.Detail

func (s snapshot) Snapshot(context.Context) ([]products.Detail, error) { return s, nil }

func catalog(n int) snapshot {
	out := make(snapshot, n)
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		code := fmt.Sprintf("AD%04d", i+1)
		out[i] = products.Detail{Product: products.Product{Code: code, Description: "Drive " + code, Unit: "pc"}}
		for m := 0; m < 6; m++ {
			out[i].History = append(out[i].History, pricehist.Record{
				ProductCode:   code,
				EffectiveDate: base.AddDate(0, 2*m, 0),
				UnitPrice:     decimal.NewFromInt(int64(50 + i%40 + m)),
			})
		}
	}
	return out
}

func TestCatalogReportJobMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	statuses := report.NewStatusStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
	files, err := storage.NewLocal(t.TempDir(), "/media")
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	ctx := context.Background()

	run := func(src snapshot, format report.Format) error {
		job := &jobs.CatalogReportJob{
			Exporter: report.NewExporter(src, nil, logger),
			Statuses: statuses,
			Storage:  files,
			Logger:   logger,
			Metrics:  metrics,
		}
		st, err := statuses.Create(ctx, format, 1)
		if err != nil {
			t.Fatalf("create status: %v", err)
		}
		task, err := jobs.NewCatalogReportTask(jobs.CatalogReportPayload{ID: st.ID, Format: format})
		if err != nil {
			t.Fatalf("task: %v", err)
		}
		return job.Handle(ctx, task)
	}

	for i := 0; i < 3; i++ {
		if err := run(catalog(120), report.FormatPDF); err != nil {
			t.Fatalf("pdf export: %v", err)
		}
	}
	if err := run(snapshot{}, report.FormatPDF); err == nil {
		t.Fatal("expected the empty catalog export to fail")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	success := metricValue(t, families, "pricebook_jobs_total", map[string]string{"job": jobs.TaskCatalogReport, "status": "success"})
	failure := metricValue(t, families, "pricebook_jobs_total", map[string]string{"job": jobs.TaskCatalogReport, "status": "failure"})
	if success != 3 || failure != 1 {
		t.Fatalf("unexpected outcomes: success=%v failure=%v", success, failure)
	}
	if mean := histogramMean(t, families, "pricebook_job_duration_seconds", map[string]string{"job": jobs.TaskCatalogReport}); mean > 2.0 {
		t.Fatalf("report export duration above budget: %f", mean)
	}
	if pages := histogramMean(t, families, "pricebook_report_pages", nil); pages < 2 {
		t.Fatalf("expected a multi-page export, mean pages %f", pages)
	}
}

func BenchmarkReportGenerate(b *testing.B) {
	src := catalog(500)
	details, _ := src.Snapshot(context.Background())
	items := make([]report.Product, len(details))
	for i, d := range details {
		items[i] = report.Product{Code: d.Code, Description: d.Description, Unit: d.Unit}
		for _, h := range d.History {
			items[i].PriceHistory = append(items[i].PriceHistory, report.Price{EffectiveDate: h.EffectiveDate, UnitPrice: h.UnitPrice})
		}
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := report.Generate(items, report.A4, now); err != nil {
			b.Fatal(err)
		}
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
