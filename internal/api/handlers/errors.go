package handlers

import (
	"context"
	"errors"

	"github.com/jmylchreest/streamresolver/internal/pagefetch"
	"github.com/jmylchreest/streamresolver/internal/session"
	"github.com/jmylchreest/streamresolver/internal/solver"
	"github.com/jmylchreest/streamresolver/internal/stream"
	"github.com/jmylchreest/streamresolver/internal/unlock"
)

// reason turns an internal error into a message for API callers. Raw
// transport errors never leave the service.
func reason(err error) string {
	var (
		negErr  *unlock.Error
		initErr *session.InitError
		navErr  *session.NavigationError
		solErr  *solver.Error
	)
	switch {
	case errors.Is(err, stream.ErrEmptyRef):
		return "a video serial number or page URL is required"
	case errors.As(err, &negErr):
		return negErr.Reason()
	case errors.As(err, &initErr):
		return "browser session could not be started"
	case errors.As(err, &navErr):
		return "origin page could not be loaded"
	case errors.As(err, &solErr), errors.Is(err, pagefetch.ErrChallengeUnsolved):
		return "origin challenge could not be solved"
	case errors.Is(err, session.ErrNoProxy):
		return "no proxy is configured"
	case errors.Is(err, session.ErrClosed):
		return "service is shutting down"
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	default:
		return "internal error"
	}
}
