// Package shutdown triggers a graceful exit once the resolver has been idle.
//
// Activity is anything that holds the origin session busy: API requests and
// negotiations that outlive the request that started them. Health probes and
// API docs never count, so a platform health checker cannot keep an idle
// instance alive.
package shutdown

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// WatcherConfig configures an idle Watcher.
type WatcherConfig struct {
	// Timeout is the inactivity window before Done closes. <= 0 disables.
	Timeout time.Duration
	// CheckInterval defaults to a tenth of Timeout, at least one second.
	CheckInterval time.Duration
	// Exempt reports requests that are not activity. Defaults to IsProbe.
	Exempt func(*http.Request) bool
	Logger *slog.Logger
}

// Watcher closes Done after Timeout passes with nothing in flight.
type Watcher struct {
	cfg  WatcherConfig
	now  func() time.Time
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	inflight int
	last     time.Time
}

// NewWatcher creates an idle watcher. The idle clock starts immediately.
func NewWatcher(cfg WatcherConfig) *Watcher {
	if cfg.Exempt == nil {
		cfg.Exempt = IsProbe
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = max(cfg.Timeout/10, time.Second)
	}
	w := &Watcher{
		cfg:  cfg,
		now:  time.Now,
		done: make(chan struct{}),
	}
	w.last = w.now()
	return w
}

// Enabled reports whether Run will ever close Done.
func (w *Watcher) Enabled() bool {
	return w.cfg.Timeout > 0
}

// Done is closed when the idle timeout is reached.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Begin marks the start of a unit of work and returns its end func.
// The end func is safe to call more than once.
func (w *Watcher) Begin() func() {
	w.mu.Lock()
	w.inflight++
	w.last = w.now()
	w.mu.Unlock()

	var ended sync.Once
	return func() {
		ended.Do(func() {
			w.mu.Lock()
			w.inflight--
			w.last = w.now()
			w.mu.Unlock()
		})
	}
}

// Middleware counts every non-exempt request as activity.
func (w *Watcher) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if w.cfg.Exempt(r) {
			next.ServeHTTP(rw, r)
			return
		}
		end := w.Begin()
		defer end()
		next.ServeHTTP(rw, r)
	})
}

// Run checks for idleness until ctx ends or Done closes.
func (w *Watcher) Run(ctx context.Context) {
	if !w.Enabled() {
		w.cfg.Logger.Info("idle shutdown disabled")
		return
	}
	w.cfg.Logger.Info("idle shutdown armed", "timeout", w.cfg.Timeout)

	ticker := time.NewTicker(w.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check closes Done if the watcher is idle and reports whether it did.
func (w *Watcher) check() bool {
	w.mu.Lock()
	idle := w.now().Sub(w.last)
	inflight := w.inflight
	w.mu.Unlock()

	if inflight > 0 || idle < w.cfg.Timeout {
		return false
	}
	w.once.Do(func() {
		w.cfg.Logger.Info("idle timeout reached",
			"idle", idle.Round(time.Second),
			"timeout", w.cfg.Timeout,
		)
		close(w.done)
	})
	return true
}

// IsProbe matches health checks and API documentation requests.
func IsProbe(r *http.Request) bool {
	if strings.Contains(r.Header.Get("User-Agent"), "HealthCheck") {
		return true
	}
	switch p := r.URL.Path; {
	case p == "/health", p == "/healthz", p == "/readyz":
		return true
	case p == "/docs", strings.HasPrefix(p, "/openapi"), strings.HasPrefix(p, "/schemas/"):
		return true
	}
	return false
}
