package auth

import (
	"log/slog"
	"sync"
)

// Watcher follows session changes for the lifetime of the application:
// Init subscribes, Close unsubscribes. Each event is logged and passed to the
// optional hooks.
type Watcher struct {
	service *Service
	logger  *slog.Logger
	hooks   []func(Event)

	mu          sync.Mutex
	unsubscribe func()
	last        Event
}

// NewWatcher constructs an inactive watcher.
func NewWatcher(service *Service, logger *slog.Logger, hooks ...func(Event)) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{service: service, logger: logger, hooks: hooks}
}

// Init subscribes to the service. Calling it twice is a no-op.
func (w *Watcher) Init() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unsubscribe != nil {
		return
	}
	w.unsubscribe = w.service.Subscribe(w.handle)
}

// Close unsubscribes. Events published afterwards are not observed.
func (w *Watcher) Close() {
	w.mu.Lock()
	unsubscribe := w.unsubscribe
	w.unsubscribe = nil
	w.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Active reports whether the watcher is subscribed.
func (w *Watcher) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unsubscribe != nil
}

// Last returns the most recent event seen.
func (w *Watcher) Last() Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

func (w *Watcher) handle(ev Event) {
	w.mu.Lock()
	w.last = ev
	w.mu.Unlock()
	w.logger.Info("auth event", slog.String("kind", string(ev.Kind)), slog.Int64("user_id", ev.UserID))
	for _, hook := range w.hooks {
		hook(ev)
	}
}
