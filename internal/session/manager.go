// Package session owns the single automated browser session used to load
// origin pages. The session is recreated, never patched, when it breaks.
package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/streamresolver/internal/models"
)

// Options configures the Manager.
type Options struct {
	ChromePath        string
	Headless          bool
	DisableStealth    bool
	UserAgent         string
	Proxy             *Proxy
	ProxyEnabled      bool
	NavigationTimeout time.Duration
	MaxIdle           time.Duration // 0 keeps the browser alive forever
}

// NavigateOptions configures one navigation.
type NavigateOptions struct {
	Headers map[string]string // merged into the session's default headers
	// RequestHeaders apply to this navigation only and are never kept.
	RequestHeaders map[string]string
	Cookies []models.Cookie   // stored on the session and applied before loading
	WaitFor WaitCondition
	Timeout time.Duration // overrides Options.NavigationTimeout
}

// Manager owns one browser and one page. All lifecycle and navigation calls
// are serialized.
type Manager struct {
	mu     sync.Mutex
	driver Driver
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	proxyEnabled atomic.Bool

	browser     Browser
	page        Page
	id          string
	createdAt   time.Time
	lastUsedAt  time.Time
	navigations int
	headers     map[string]string
	cookies     []models.Cookie
	last        *Response
	closed      bool
}

// NewManager creates a manager. No browser is started until the first Ensure
// or Navigate.
func NewManager(driver Driver, opts Options, logger *slog.Logger) *Manager {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	m := &Manager{
		driver:  driver,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
		headers: make(map[string]string),
	}
	m.proxyEnabled.Store(opts.ProxyEnabled && opts.Proxy != nil)
	return m
}

// Ensure guarantees a connected session, performing a full reset when the
// current one is missing or disconnected.
func (m *Manager) Ensure(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureLocked(ctx)
}

func (m *Manager) ensureLocked(ctx context.Context) error {
	if m.closed {
		return ErrClosed
	}
	if m.browser != nil && m.page != nil && m.browser.Connected() {
		return nil
	}
	if m.browser != nil {
		m.logger.Warn("browser session disconnected, relaunching", "session_id", m.id)
	}
	return m.resetLocked(ctx)
}

// Reset tears the session down and starts a fresh one.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return m.resetLocked(ctx)
}

func (m *Manager) resetLocked(ctx context.Context) error {
	m.teardownLocked()

	launch := LaunchOptions{
		ChromePath:     m.opts.ChromePath,
		Headless:       m.opts.Headless,
		DisableStealth: m.opts.DisableStealth,
	}
	if m.proxyEnabled.Load() {
		launch.Proxy = m.opts.Proxy
	}

	b, err := m.driver.Launch(ctx, launch)
	if err != nil {
		return &InitError{Stage: "launch", Cause: err}
	}

	page, err := b.NewPage(ctx)
	if err != nil {
		_ = b.Close()
		return &InitError{Stage: "page", Cause: err}
	}

	if m.opts.UserAgent != "" {
		if err := page.SetUserAgent(m.opts.UserAgent); err != nil {
			_ = page.Close()
			_ = b.Close()
			return &InitError{Stage: "user agent", Cause: err}
		}
	}

	m.browser = b
	m.page = page
	m.id = ulid.Make().String()
	m.createdAt = m.now()
	m.lastUsedAt = m.createdAt
	m.last = nil

	m.logger.Info("browser session started",
		"session_id", m.id,
		"proxy", launch.Proxy != nil,
		"stealth", !m.opts.DisableStealth,
	)
	return nil
}

func (m *Manager) teardownLocked() {
	if m.page != nil {
		if err := m.page.Close(); err != nil {
			m.logger.Debug("closing stale page", "session_id", m.id, "error", err)
		}
	}
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.logger.Debug("closing stale browser", "session_id", m.id, "error", err)
		}
	}
	m.page = nil
	m.browser = nil
	m.id = ""
}

// Navigate loads url. A failed load triggers exactly one full reset and one
// more attempt; a second failure is returned as *NavigationError.
func (m *Manager) Navigate(ctx context.Context, url string, opts NavigateOptions) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureLocked(ctx); err != nil {
		return nil, err
	}

	for k, v := range opts.Headers {
		m.headers[k] = v
	}
	if len(opts.Cookies) > 0 {
		m.cookies = mergeCookies(m.cookies, opts.Cookies)
	}

	resp, err := m.navigateOnce(ctx, url, opts)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, &NavigationError{URL: url, Attempts: 1, Cause: ctx.Err()}
	}

	m.logger.Warn("navigation failed, resetting session", "url", url, "session_id", m.id, "error", err)

	if rerr := m.resetLocked(ctx); rerr != nil {
		return nil, &NavigationError{URL: url, Attempts: 1, Cause: errors.Join(err, rerr)}
	}

	resp, err = m.navigateOnce(ctx, url, opts)
	if err != nil {
		return nil, &NavigationError{URL: url, Attempts: 2, Cause: err}
	}
	return resp, nil
}

func (m *Manager) navigateOnce(ctx context.Context, url string, opts NavigateOptions) (*Response, error) {
	// Always set the full header list so request headers of the previous
	// navigation are cleared from the page.
	if err := m.page.SetHeaders(requestHeaders(m.headers, opts.RequestHeaders)); err != nil {
		return nil, err
	}
	if len(m.cookies) > 0 {
		if err := m.page.SetCookies(url, m.cookies); err != nil {
			return nil, err
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = m.opts.NavigationTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wait := opts.WaitFor
	if wait == "" {
		wait = WaitDOMContentLoaded
	}
	if err := m.page.Navigate(navCtx, url, wait); err != nil {
		return nil, err
	}

	resp, err := m.page.Snapshot(navCtx)
	if err != nil {
		return nil, err
	}
	resp.FetchedAt = m.now()

	m.cookies = mergeCookies(m.cookies, resp.Cookies)
	m.last = resp
	m.navigations++
	m.lastUsedAt = resp.FetchedAt

	m.logger.Debug("page loaded",
		"url", resp.URL,
		"status", resp.Status,
		"title", resp.Title,
		"session_id", m.id,
	)
	return resp, nil
}

func requestHeaders(defaults, once map[string]string) map[string]string {
	out := make(map[string]string, len(defaults)+len(once))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range once {
		out[k] = v
	}
	return out
}

// Content re-reads the current page without navigating.
func (m *Manager) Content(ctx context.Context) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.page == nil {
		return nil, ErrNoPage
	}
	resp, err := m.page.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	resp.FetchedAt = m.now()
	m.last = resp
	m.lastUsedAt = resp.FetchedAt
	return resp, nil
}

// Eval runs js on the current page.
func (m *Manager) Eval(ctx context.Context, js string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.page == nil {
		return ErrNoPage
	}
	m.lastUsedAt = m.now()
	return m.page.Eval(ctx, js, args...)
}

// CurrentPage returns the open page, or nil.
func (m *Manager) CurrentPage() Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.page
}

// LastResponse returns the result of the most recent navigation, or nil.
func (m *Manager) LastResponse() *Response {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// SetProxyEnabled switches egress on or off. A change resets a running
// session so the new path takes effect.
func (m *Manager) SetProxyEnabled(ctx context.Context, enabled bool) error {
	if enabled && m.opts.Proxy == nil {
		return ErrNoProxy
	}
	if m.proxyEnabled.Swap(enabled) == enabled {
		return nil
	}

	m.logger.Info("proxy toggled", "enabled", enabled, "proxy", m.opts.Proxy)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.browser == nil {
		return nil
	}
	return m.resetLocked(ctx)
}

// ProxyEnabled reports whether egress currently uses the proxy.
func (m *Manager) ProxyEnabled() bool {
	return m.proxyEnabled.Load()
}

// ProxyURL is an http.Transport proxy func that follows the session's current
// egress setting, so origin calls and page loads leave through the same path.
func (m *Manager) ProxyURL(*http.Request) (*url.URL, error) {
	if !m.proxyEnabled.Load() || m.opts.Proxy == nil {
		return nil, nil
	}
	return m.opts.Proxy.URL(), nil
}

// Info describes the current session.
func (m *Manager) Info() models.SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := models.SessionInfo{
		ID:              m.id,
		Connected:       m.browser != nil && m.page != nil,
		NavigationCount: m.navigations,
		UserAgent:       m.opts.UserAgent,
		ProxyEnabled:    m.proxyEnabled.Load(),
	}
	if m.browser != nil {
		info.CreatedAt = m.createdAt.UnixMilli()
		info.LastUsedAt = m.lastUsedAt.UnixMilli()
	}
	if m.opts.Proxy != nil {
		info.Proxy = m.opts.Proxy.String()
	}
	return info
}

// StartCleanup closes the browser after MaxIdle without use. The next call
// relaunches it.
func (m *Manager) StartCleanup(ctx context.Context) {
	if m.opts.MaxIdle <= 0 {
		return
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.closeIfIdle()
		}
	}
}

func (m *Manager) closeIfIdle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.browser == nil || m.opts.MaxIdle <= 0 {
		return false
	}
	idle := m.now().Sub(m.lastUsedAt)
	if idle <= m.opts.MaxIdle {
		return false
	}

	m.logger.Info("closing idle browser session", "session_id", m.id, "idle_time", idle)
	m.teardownLocked()
	return true
}

// Close shuts the session down. The manager cannot be used afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.teardownLocked()
	m.logger.Info("session manager closed", "navigations", m.navigations)
}

// mergeCookies overlays updates on base, keyed by name, domain and path.
func mergeCookies(base, updates []models.Cookie) []models.Cookie {
	type key struct{ name, domain, path string }
	idx := make(map[key]int, len(base))
	out := make([]models.Cookie, len(base), len(base)+len(updates))
	copy(out, base)
	for i, c := range out {
		idx[key{c.Name, c.Domain, c.Path}] = i
	}
	for _, c := range updates {
		k := key{c.Name, c.Domain, c.Path}
		if i, ok := idx[k]; ok {
			out[i] = c
			continue
		}
		idx[k] = len(out)
		out = append(out, c)
	}
	return out
}
