package session

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session manager is closed")
	// ErrNoPage is returned when no page has been opened yet.
	ErrNoPage = errors.New("no active page")
	// ErrNoProxy is returned when enabling a proxy that was never configured.
	ErrNoProxy = errors.New("no proxy configured")
)

// InitError means the browser or its page could not be brought up.
type InitError struct {
	Stage string // "launch", "page", "user agent"
	Cause error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("session init failed at %s: %v", e.Stage, e.Cause)
}

func (e *InitError) Unwrap() error {
	return e.Cause
}

// NavigationError means a page load failed even after a session reset.
type NavigationError struct {
	URL      string
	Attempts int
	Cause    error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Cause)
}

func (e *NavigationError) Unwrap() error {
	return e.Cause
}
