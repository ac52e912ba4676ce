package handlers

import (
	"context"
	"time"

	"github.com/jmylchreest/streamresolver/internal/models"
	"github.com/jmylchreest/streamresolver/internal/version"
)

// SessionInfoer reports the browser session state.
type SessionInfoer interface {
	Info() models.SessionInfo
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	session SessionInfoer
	cache   Resolver
	started time.Time
}

// NewHealthHandler creates a new health handler. session may be nil when
// the browser is disabled.
func NewHealthHandler(session SessionInfoer, cache Resolver) *HealthHandler {
	return &HealthHandler{session: session, cache: cache, started: time.Now()}
}

// Handle returns the health status.
func (h *HealthHandler) Handle(ctx context.Context) *models.HealthResponse {
	resp := &models.HealthResponse{
		Status:  "healthy",
		Version: version.Get().Version,
		Uptime:  int64(time.Since(h.started).Seconds()),
		Cache:   h.cache.Stats(),
	}
	if h.session != nil {
		resp.Session = h.session.Info()
	}
	return resp
}
