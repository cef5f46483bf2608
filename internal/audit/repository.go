package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pricebook/pricebook/internal/shared"
)

// Repository pages through the change log, newest first.
type Repository interface {
	Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error)
}

// PGRepository reads audit_logs.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Window implements Repository.
func (r *PGRepository) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	where, args := timelineWhere(filters)
	args = append(args, limit, offset)
	query := `SELECT a.occurred_at, COALESCE(u.email, ''), a.action, a.entity, a.entity_id, a.meta
FROM audit_logs a
LEFT JOIN users u ON u.id = a.actor_id` + where + fmt.Sprintf(`
ORDER BY a.occurred_at DESC, a.id DESC
LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Errorf(shared.ErrTransport, "audit: query timeline: %v", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var (
			out  TimelineRow
			meta []byte
		)
		if err := row.Scan(&out.At, &out.Actor, &out.Action, &out.Entity, &out.EntityID, &meta); err != nil {
			return out, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &out.Meta); err != nil {
				return out, err
			}
		}
		return out, nil
	})
}

func timelineWhere(f TimelineFilters) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !f.From.IsZero() {
		add("a.occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("a.occurred_at < $%d", endOfDay(f.To))
	}
	if f.Actor != "" {
		add("u.email ILIKE $%d", "%"+f.Actor+"%")
	}
	if f.Entity != "" {
		add("a.entity = $%d", f.Entity)
	}
	if f.EntityID != "" {
		add("a.entity_id LIKE $%d", f.EntityID+"%")
	}
	if f.Action != "" {
		add("a.action LIKE $%d", f.Action+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "\nWHERE " + strings.Join(conds, " AND "), args
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
}

// Recorder persists one change log entry.
type Recorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MemoryRepository keeps the change log in process, for the in-memory store.
// It records entries itself and forwards them to next, which may be nil.
type MemoryRepository struct {
	next  Recorder
	actor func(ctx context.Context, id int64) string

	mu      sync.RWMutex
	entries []shared.AuditLog
}

// NewMemoryRepository constructs a MemoryRepository. actor resolves user ids to
// display names and may be nil.
func NewMemoryRepository(next Recorder, actor func(ctx context.Context, id int64) string) *MemoryRepository {
	return &MemoryRepository{next: next, actor: actor}
}

// Record implements Recorder.
func (m *MemoryRepository) Record(ctx context.Context, log shared.AuditLog) error {
	if m.next != nil {
		if err := m.next.Record(ctx, log); err != nil {
			return err
		}
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	m.mu.Lock()
	m.entries = append(m.entries, log)
	m.mu.Unlock()
	return nil
}

// Window implements Repository.
func (m *MemoryRepository) Window(ctx context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	m.mu.RLock()
	entries := append([]shared.AuditLog(nil), m.entries...)
	m.mu.RUnlock()
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].At.After(entries[j].At) })

	var out []TimelineRow
	for _, e := range entries {
		row := TimelineRow{At: e.At, Action: e.Action, Entity: e.Entity, EntityID: e.EntityID, Meta: e.Meta}
		if e.ActorID != 0 && m.actor != nil {
			row.Actor = m.actor(ctx, e.ActorID)
		}
		if !matches(f, row) {
			continue
		}
		if offset > 0 {
			offset--
			continue
		}
		out = append(out, row)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func matches(f TimelineFilters, row TimelineRow) bool {
	switch {
	case !f.From.IsZero() && row.At.Before(f.From):
		return false
	case !f.To.IsZero() && !row.At.Before(endOfDay(f.To)):
		return false
	case f.Actor != "" && !strings.Contains(strings.ToLower(row.Actor), strings.ToLower(f.Actor)):
		return false
	case f.Entity != "" && row.Entity != f.Entity:
		return false
	case f.EntityID != "" && !strings.HasPrefix(row.EntityID, f.EntityID):
		return false
	case f.Action != "" && !strings.HasPrefix(row.Action, f.Action):
		return false
	}
	return true
}
