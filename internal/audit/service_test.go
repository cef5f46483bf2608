package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pricebook/pricebook/internal/shared"
)

func seededMemory(t *testing.T) *MemoryRepository {
	t.Helper()
	repo := NewMemoryRepository(nil, func(ctx context.Context, id int64) string {
		if id == 7 {
			return "ana@example.com"
		}
		return ""
	})
	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	entries := []shared.AuditLog{
		{ActorID: 7, Action: "product.create", Entity: "product", EntityID: "AD0001", At: base},
		{ActorID: 7, Action: "price.add", Entity: "pricehist", EntityID: "AD0001@2024-03-01", At: base.Add(time.Hour)},
		{ActorID: 0, Action: "product.update", Entity: "product", EntityID: "NB0001", At: base.Add(2 * time.Hour)},
		{ActorID: 7, Action: "product.delete", Entity: "product", EntityID: "AD0002", At: base.AddDate(0, 0, 2)},
	}
	for _, e := range entries {
		if err := repo.Record(context.Background(), e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	return repo
}

func TestServiceTimelinePaging(t *testing.T) {
	svc := NewService(seededMemory(t))
	result, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 3})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 3 || !result.Paging.HasNext || result.Paging.NextPage != 2 {
		t.Fatalf("unexpected first page: %+v", result.Paging)
	}
	if result.Rows[0].EntityID != "AD0002" {
		t.Fatalf("expected newest first, got %s", result.Rows[0].EntityID)
	}

	result, err = svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 3})
	if err != nil {
		t.Fatalf("timeline page 2: %v", err)
	}
	if len(result.Rows) != 1 || result.Paging.HasNext || result.Paging.PrevPage != 1 {
		t.Fatalf("unexpected second page: %+v", result.Paging)
	}
}

func TestServiceTimelineFilters(t *testing.T) {
	svc := NewService(seededMemory(t))
	ctx := context.Background()
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	result, err := svc.Timeline(ctx, TimelineFilters{From: day, To: day})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 3 {
		t.Fatalf("expected the whole day to be included, got %d rows", len(result.Rows))
	}

	result, _ = svc.Timeline(ctx, TimelineFilters{EntityID: "AD0001"})
	if len(result.Rows) != 2 {
		t.Fatalf("expected entity id prefix match, got %d rows", len(result.Rows))
	}

	result, _ = svc.Timeline(ctx, TimelineFilters{Actor: "ANA", Action: "product."})
	if len(result.Rows) != 2 {
		t.Fatalf("expected actor and action filters, got %d rows", len(result.Rows))
	}
	for _, row := range result.Rows {
		if row.Actor != "ana@example.com" {
			t.Fatalf("unexpected actor %q", row.Actor)
		}
	}
}

func TestMemoryRepositoryForwards(t *testing.T) {
	next := &countingRecorder{}
	repo := NewMemoryRepository(next, nil)
	if err := repo.Record(context.Background(), shared.AuditLog{Action: "product.create", Entity: "product", EntityID: "AD0001"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if next.n != 1 {
		t.Fatalf("expected forwarded record")
	}
}

type countingRecorder struct{ n int }

func (c *countingRecorder) Record(ctx context.Context, log shared.AuditLog) error {
	c.n++
	return nil
}

func TestWriteCSV(t *testing.T) {
	out, err := WriteCSV([]TimelineRow{{
		At:       time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
		Actor:    "ana@example.com",
		Action:   "price.edit",
		Entity:   "pricehist",
		EntityID: "AD0001@2024-03-01",
		Meta:     map[string]any{"unit_price": "12.50"},
	}})
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %d lines", len(lines))
	}
	if lines[1] != `2024-03-10T09:00:00Z,ana@example.com,price.edit,pricehist,AD0001@2024-03-01,"{""unit_price"":""12.50""}"` {
		t.Fatalf("unexpected row %q", lines[1])
	}
}

func TestTimelineWhere(t *testing.T) {
	where, args := timelineWhere(TimelineFilters{Entity: "product", Action: "price."})
	if where != "\nWHERE a.entity = $1 AND a.action LIKE $2" {
		t.Fatalf("unexpected where %q", where)
	}
	if len(args) != 2 || args[1] != "price.%" {
		t.Fatalf("unexpected args %v", args)
	}
	if where, _ := timelineWhere(TimelineFilters{}); where != "" {
		t.Fatalf("expected no where clause, got %q", where)
	}
}
