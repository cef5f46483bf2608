// Package mutation runs every catalog write: it validates input, calls the
// store, and on success invalidates the affected cached views, records an
// audit entry and notifies the user. Failures notify the user with the store's
// message and leave caches alone.
package mutation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pricebook/pricebook/internal/catalog/codes"
	"github.com/pricebook/pricebook/internal/catalog/pricehist"
	"github.com/pricebook/pricebook/internal/catalog/products"
	"github.com/pricebook/pricebook/internal/shared"
	"github.com/pricebook/pricebook/internal/store"
	"github.com/pricebook/pricebook/internal/viewcache"
)

// Invalidator drops cached views by scope.
type Invalidator interface {
	Bump(ctx context.Context, scopes ...string) error
}

// Auditor records successful writes.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Observer receives the outcome of every write, e.g. for metrics.
type Observer func(action string, err error)

// Config groups the collaborators of a Coordinator.
type Config struct {
	Logger      *slog.Logger
	Store       store.Client
	Categories  *codes.Categories
	Validate    *validator.Validate
	Invalidator Invalidator
	Auditor     Auditor
	Notifier    Notifier
	Observer    Observer
	// Timeout bounds each write once it has been detached from the request.
	Timeout time.Duration
}

// Coordinator wraps catalog writes.
type Coordinator struct {
	logger    *slog.Logger
	store     store.Client
	products  *products.Repository
	validator *products.Validator
	validate  *validator.Validate
	editor    *pricehist.Editor
	cache     Invalidator
	audit     Auditor
	notifier  Notifier
	observe   Observer
	timeout   time.Duration
}

// New constructs a Coordinator.
func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	v := cfg.Validate
	if v == nil {
		v = shared.NewValidator()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = store.DefaultTimeout
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = FlashNotifier{}
	}
	return &Coordinator{
		logger:    logger,
		store:     cfg.Store,
		products:  products.NewRepository(cfg.Store),
		validator: products.NewValidator(v, cfg.Categories),
		validate:  v,
		editor:    pricehist.NewEditor(cfg.Store),
		cache:     cfg.Invalidator,
		audit:     cfg.Auditor,
		notifier:  notifier,
		observe:   cfg.Observer,
		timeout:   timeout,
	}
}

type operation struct {
	action   string
	entity   string
	entityID string
	scopes   []string
	success  string
	meta     map[string]any
}

// run executes fn detached from the caller's cancellation and reports the outcome.
func (c *Coordinator) run(ctx context.Context, op *operation, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	err := fn(ctx)
	if c.observe != nil {
		c.observe(op.action, err)
	}
	if err != nil {
		c.fail(ctx, op, err)
		return err
	}
	c.invalidate(ctx, op.scopes...)
	c.record(ctx, op.action, op.entity, op.entityID, op.meta)
	c.logger.Info("catalog write", slog.String("action", op.action), slog.String("id", op.entityID))
	c.notify(ctx, Notification{Kind: KindSuccess, Message: op.success})
	return nil
}

// reject reports an input error without touching the store.
func (c *Coordinator) reject(ctx context.Context, action string, err error) error {
	if c.observe != nil {
		c.observe(action, err)
	}
	c.logger.Debug("catalog write rejected", slog.String("action", action), slog.Any("error", err))
	c.notify(ctx, Notification{Kind: KindError, Message: err.Error()})
	return err
}

func (c *Coordinator) fail(ctx context.Context, op *operation, err error) {
	var partial *pricehist.PartialEditError
	if errors.As(err, &partial) {
		c.compensate(ctx, op, partial)
	}
	level := slog.LevelWarn
	if errors.Is(err, shared.ErrTransport) || errors.Is(err, shared.ErrPartialEdit) {
		level = slog.LevelError
	}
	c.logger.Log(ctx, level, "catalog write failed",
		slog.String("action", op.action),
		slog.String("id", op.entityID),
		slog.Any("error", err),
	)
	c.notify(ctx, Notification{Kind: KindError, Message: err.Error()})
}

// compensate records the row a non-atomic date edit removed so it can be restored by hand.
// The store did change, so the views of the product are dropped as well.
func (c *Coordinator) compensate(ctx context.Context, op *operation, partial *pricehist.PartialEditError) {
	c.record(ctx, "price.edit.partial", "pricehist", op.entityID, map[string]any{
		"removed_date":  partial.Removed.Key(),
		"removed_price": partial.Removed.UnitPrice.StringFixed(2),
		"target_date":   partial.Target.Key(),
		"target_price":  partial.Target.UnitPrice.StringFixed(2),
		"error":         partial.Err.Error(),
	})
	c.invalidate(ctx, op.scopes...)
}

func (c *Coordinator) invalidate(ctx context.Context, scopes ...string) {
	if c.cache == nil || len(scopes) == 0 {
		return
	}
	if err := c.cache.Bump(ctx, scopes...); err != nil {
		c.logger.Warn("invalidate views", slog.Any("scopes", scopes), slog.Any("error", err))
	}
}

func (c *Coordinator) record(ctx context.Context, action, entity, id string, meta map[string]any) {
	if c.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: id,
		Meta:     meta,
	}
	if err := c.audit.Record(ctx, entry); err != nil {
		c.logger.Warn("audit write", slog.String("action", action), slog.Any("error", err))
	}
}

func (c *Coordinator) notify(ctx context.Context, n Notification) {
	notifierFrom(ctx, c.notifier).Notify(ctx, n)
}

func productScopes(code string) []string {
	return []string{viewcache.ScopeProducts, viewcache.PriceHistScope(code), viewcache.ScopeDashboard, viewcache.ScopeAnalytics}
}

// withTx runs fn in a transaction when the store supports one, otherwise directly.
func (c *Coordinator) withTx(ctx context.Context, fn func(ctx context.Context, client store.Client) error) error {
	if tx, ok := store.SupportsTx(c.store); ok {
		return tx.WithTx(ctx, fn)
	}
	return fn(ctx, c.store)
}
