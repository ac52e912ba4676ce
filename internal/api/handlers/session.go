package handlers

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/streamresolver/internal/logging"
	"github.com/jmylchreest/streamresolver/internal/models"
	"github.com/jmylchreest/streamresolver/internal/version"
)

// SessionController is the part of *session.Manager exposed over the API.
type SessionController interface {
	Info() models.SessionInfo
	Reset(ctx context.Context) error
	SetProxyEnabled(ctx context.Context, enabled bool) error
}

// SessionHandler handles browser session requests.
type SessionHandler struct {
	session SessionController
	logger  *slog.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(session SessionController, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{session: session, logger: logger}
}

// Info describes the current session.
func (h *SessionHandler) Info(ctx context.Context) *models.SessionResponse {
	return h.response("ok", "Browser session")
}

// Reset restarts the browser session.
func (h *SessionHandler) Reset(ctx context.Context) *models.SessionResponse {
	if err := h.session.Reset(ctx); err != nil {
		logging.FromContext(ctx, h.logger).Error("session reset failed", "error", err)
		return h.response("error", reason(err))
	}
	return h.response("ok", "Browser session restarted")
}

// SetProxy switches the upstream proxy on or off.
func (h *SessionHandler) SetProxy(ctx context.Context, req *models.ProxyRequest) *models.SessionResponse {
	if err := h.session.SetProxyEnabled(ctx, req.Enabled); err != nil {
		logging.FromContext(ctx, h.logger).Warn("proxy toggle failed", "enabled", req.Enabled, "error", err)
		return h.response("error", reason(err))
	}
	message := "Proxy disabled"
	if req.Enabled {
		message = "Proxy enabled"
	}
	return h.response("ok", message)
}

func (h *SessionHandler) response(status, message string) *models.SessionResponse {
	return &models.SessionResponse{
		Status:  status,
		Message: message,
		Session: h.session.Info(),
		Version: version.Get().Version,
	}
}
