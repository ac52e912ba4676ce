package session

import (
	"context"
	"time"

	"github.com/jmylchreest/streamresolver/internal/models"
)

// WaitCondition selects when a navigation counts as finished.
type WaitCondition string

const (
	WaitLoad             WaitCondition = "load"
	WaitDOMContentLoaded WaitCondition = "domcontentloaded"
	WaitNetworkIdle      WaitCondition = "networkidle"
)

// Driver launches browsers. The production driver is RodDriver; tests use fakes.
type Driver interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// LaunchOptions is what the manager asks a driver for.
type LaunchOptions struct {
	ChromePath     string
	Headless       bool
	DisableStealth bool
	Proxy          *Proxy // nil for direct egress
}

// Browser is a running browser process.
type Browser interface {
	Connected() bool
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single tab.
type Page interface {
	SetUserAgent(userAgent string) error
	SetHeaders(headers map[string]string) error
	SetCookies(pageURL string, cookies []models.Cookie) error
	Navigate(ctx context.Context, url string, wait WaitCondition) error
	Snapshot(ctx context.Context) (*Response, error)
	Eval(ctx context.Context, js string, args ...any) error
	Close() error
}

// Response is the state of the page after a navigation.
type Response struct {
	URL       string
	Status    int // 0 when the browser could not report it
	Title     string
	HTML      string
	Cookies   []models.Cookie
	FetchedAt time.Time
}
