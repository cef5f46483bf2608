package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pricebook/pricebook/internal/shared"
)

// State of an asynchronous export.
type State string

const (
	StateQueued  State = "queued"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Status is the polled record of an asynchronous export.
type Status struct {
	ID          string    `json:"id"`
	Format      Format    `json:"format"`
	State       State     `json:"state"`
	URL         string    `json:"url,omitempty"`
	Error       string    `json:"error,omitempty"`
	Pages       int       `json:"pages,omitempty"`
	RequestedBy int64     `json:"requested_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Finished reports whether the export reached a terminal state.
func (s Status) Finished() bool {
	return s.State == StateDone || s.State == StateFailed
}

// StatusStore keeps export statuses in Redis under report:<id>.
type StatusStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatusStore constructs a StatusStore.
func NewStatusStore(client *redis.Client, ttl time.Duration) *StatusStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &StatusStore{client: client, ttl: ttl}
}

// Create registers a queued export and returns it.
func (s *StatusStore) Create(ctx context.Context, format Format, actor int64) (Status, error) {
	now := time.Now().UTC()
	st := Status{
		ID:          uuid.NewString(),
		Format:      format,
		State:       StateQueued,
		RequestedBy: actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return st, s.put(ctx, st)
}

// Get loads an export status.
func (s *StatusStore) Get(ctx context.Context, id string) (Status, error) {
	raw, err := s.client.Get(ctx, statusKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Status{}, shared.Errorf(shared.ErrNotFound, "report %s not found", id)
		}
		return Status{}, shared.Wrap(shared.ErrTransport, err)
	}
	var st Status
	if err := json.Unmarshal(raw, &st); err != nil {
		return Status{}, fmt.Errorf("decode report status: %w", err)
	}
	return st, nil
}

// Running marks the export as picked up by a worker.
func (s *StatusStore) Running(ctx context.Context, id string) error {
	return s.update(ctx, id, func(st *Status) {
		st.State = StateRunning
	})
}

// Done records the public URL of the rendered export.
func (s *StatusStore) Done(ctx context.Context, id, url string, pages int) error {
	return s.update(ctx, id, func(st *Status) {
		st.State = StateDone
		st.URL = url
		st.Pages = pages
		st.Error = ""
	})
}

// Failed records the failure message.
func (s *StatusStore) Failed(ctx context.Context, id string, cause error) error {
	return s.update(ctx, id, func(st *Status) {
		st.State = StateFailed
		st.Error = cause.Error()
	})
}

func (s *StatusStore) update(ctx context.Context, id string, fn func(*Status)) error {
	st, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	fn(&st)
	st.UpdatedAt = time.Now().UTC()
	return s.put(ctx, st)
}

func (s *StatusStore) put(ctx context.Context, st Status) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, statusKey(st.ID), payload, s.ttl).Err(); err != nil {
		return shared.Wrap(shared.ErrTransport, err)
	}
	return nil
}

func statusKey(id string) string {
	return "report:" + id
}
