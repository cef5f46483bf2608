package mutation

import (
	"context"
	"sync"

	"github.com/pricebook/pricebook/internal/shared"
)

// Notification kinds.
const (
	KindSuccess = "success"
	KindError   = "error"
	KindWarning = "warning"
)

// Notification is a user facing outcome of a write.
type Notification struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Notifier delivers notifications to the user who issued a write.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// FlashNotifier queues notifications as session flash messages.
type FlashNotifier struct{}

// Notify implements Notifier.
func (FlashNotifier) Notify(ctx context.Context, n Notification) {
	if sess := shared.SessionFromContext(ctx); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: n.Kind, Message: n.Message})
	}
}

// Collector keeps notifications so they can be returned in a response body.
type Collector struct {
	mu    sync.Mutex
	items []Notification
}

// Notify implements Notifier.
func (c *Collector) Notify(_ context.Context, n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, n)
}

// Notifications returns what was collected so far.
func (c *Collector) Notifications() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.items...)
}

type notifierContextKey struct{}

// ContextWithNotifier overrides the coordinator's notifier for one request.
func ContextWithNotifier(ctx context.Context, n Notifier) context.Context {
	return context.WithValue(ctx, notifierContextKey{}, n)
}

func notifierFrom(ctx context.Context, fallback Notifier) Notifier {
	if n, ok := ctx.Value(notifierContextKey{}).(Notifier); ok && n != nil {
		return n
	}
	return fallback
}
