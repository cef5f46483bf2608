package pricehist

import (
	"context"
	"strings"
	"time"

	"github.com/pricebook/pricebook/internal/shared"
	"github.com/pricebook/pricebook/internal/store"
)

// Editor mutates the price list of a product and returns the refreshed list.
type Editor struct {
	repo *Repository
	now  func() time.Time
}

// NewEditor constructs an Editor over a store client.
func NewEditor(client store.Client) *Editor {
	return &Editor{repo: NewRepository(client), now: time.Now}
}

// Repository exposes the read side of the editor.
func (e *Editor) Repository() *Repository {
	return e.repo
}

// With returns an editor bound to another client, typically a transaction.
func (e *Editor) With(client store.Client) *Editor {
	return &Editor{repo: NewRepository(client), now: e.now}
}

// History lists the prices of code, newest effective date first.
func (e *Editor) History(ctx context.Context, code string) ([]Record, error) {
	return e.repo.List(ctx, code)
}

// CurrentPrice returns the record with the greatest effective date.
func (e *Editor) CurrentPrice(ctx context.Context, code string) (Record, bool, error) {
	return e.repo.Latest(ctx, code, time.Time{})
}

// PriceAsOf returns the newest record effective on or before t.
func (e *Editor) PriceAsOf(ctx context.Context, code string, t time.Time) (Record, bool, error) {
	if t.IsZero() {
		t = e.now()
	}
	return e.repo.Latest(ctx, code, t)
}

// AddPrice inserts rec. A taken (code, date) key is a conflict.
func (e *Editor) AddPrice(ctx context.Context, rec Record) ([]Record, error) {
	rec, err := normalize(rec)
	if err != nil {
		return nil, err
	}
	if err := e.repo.Insert(ctx, rec); err != nil {
		return nil, err
	}
	return e.repo.List(ctx, rec.ProductCode)
}

// EditPrice changes the price dated oldDate to next.
//
// When the date is unchanged the price is updated in place. Otherwise the old
// key is deleted and the new one inserted, inside one transaction when the
// store supports it. Without transactions a failed insert after the delete
// returns a *PartialEditError naming the removed row.
func (e *Editor) EditPrice(ctx context.Context, oldDate time.Time, next Record) ([]Record, error) {
	next, err := normalize(next)
	if err != nil {
		return nil, err
	}
	oldDate = Day(oldDate)
	code := next.ProductCode

	if oldDate.Equal(next.EffectiveDate) {
		n, err := e.repo.UpdatePrice(ctx, next)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, shared.Errorf(shared.ErrNotFound, "no price of %s dated %s", code, oldDate.Format(DateLayout))
		}
		return e.repo.List(ctx, code)
	}

	if tx, ok := store.SupportsTx(e.repo.Client()); ok {
		err = tx.WithTx(ctx, func(ctx context.Context, c store.Client) error {
			_, err := e.With(c).moveDate(ctx, oldDate, next)
			return err
		})
		if err != nil {
			return nil, err
		}
		return e.repo.List(ctx, code)
	}

	removed, err := e.moveDate(ctx, oldDate, next)
	if err != nil {
		if removed != nil {
			return nil, &PartialEditError{Removed: *removed, Target: next, Err: err}
		}
		return nil, err
	}
	return e.repo.List(ctx, code)
}

// moveDate deletes the old key and inserts next. It returns the removed record
// once the delete went through, even when the insert then fails.
func (e *Editor) moveDate(ctx context.Context, oldDate time.Time, next Record) (*Record, error) {
	code := next.ProductCode
	taken, err := e.repo.Exists(ctx, code, next.EffectiveDate)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, shared.Errorf(shared.ErrConflict, "%s already has a price dated %s", code, next.EffectiveDate.Format(DateLayout))
	}
	current, err := e.repo.List(ctx, code)
	if err != nil {
		return nil, err
	}
	var old *Record
	for i := range current {
		if current[i].EffectiveDate.Equal(oldDate) {
			old = &current[i]
			break
		}
	}
	if old == nil {
		return nil, shared.Errorf(shared.ErrNotFound, "no price of %s dated %s", code, oldDate.Format(DateLayout))
	}
	if _, err := e.repo.Delete(ctx, code, oldDate); err != nil {
		return nil, err
	}
	if err := e.repo.Insert(ctx, next); err != nil {
		return old, err
	}
	return old, nil
}

// DeletePrice removes the price dated date. Deleting an absent price is a no-op.
func (e *Editor) DeletePrice(ctx context.Context, code string, date time.Time) ([]Record, error) {
	if _, err := e.repo.Delete(ctx, code, date); err != nil {
		return nil, err
	}
	return e.repo.List(ctx, code)
}

func normalize(rec Record) (Record, error) {
	rec.ProductCode = strings.TrimSpace(rec.ProductCode)
	if rec.ProductCode == "" {
		return Record{}, shared.FieldError("code", "product code is required")
	}
	if rec.EffectiveDate.IsZero() {
		return Record{}, shared.FieldError("effective_date", "effective date is required")
	}
	if err := checkPrice(rec.UnitPrice); err != nil {
		return Record{}, err
	}
	rec.EffectiveDate = Day(rec.EffectiveDate)
	return rec, nil
}
