package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/jmylchreest/streamresolver/internal/browser"
	"github.com/jmylchreest/streamresolver/internal/models"
)

// navigationStatusJS reads the HTTP status of the main document.
const navigationStatusJS = `() => {
	const nav = performance.getEntriesByType('navigation')[0];
	return nav && nav.responseStatus ? nav.responseStatus : 0;
}`

// RodDriver launches Chromium through go-rod.
type RodDriver struct {
	logger *slog.Logger
}

// NewRodDriver creates a go-rod backed driver.
func NewRodDriver(logger *slog.Logger) *RodDriver {
	return &RodDriver{logger: logger}
}

// Launch starts a browser process and connects to it.
func (d *RodDriver) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	lo := browser.LaunchOptions{
		ChromePath: opts.ChromePath,
		Headless:   opts.Headless,
	}
	if opts.Proxy != nil {
		lo.ProxyServer = opts.Proxy.Server()
	}

	l := browser.NewLauncher(lo)
	u, err := l.Launch()
	if err != nil {
		return nil, err
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, err
	}

	return &rodBrowser{
		browser:        b,
		launcher:       l,
		disableStealth: opts.DisableStealth,
		proxy:          opts.Proxy,
		logger:         d.logger,
	}, nil
}

type rodBrowser struct {
	browser        *rod.Browser
	launcher       *launcher.Launcher
	disableStealth bool
	proxy          *Proxy
	logger         *slog.Logger
}

func (b *rodBrowser) Connected() bool {
	_, err := proto.BrowserGetVersion{}.Call(b.browser.Timeout(2 * time.Second))
	return err == nil
}

func (b *rodBrowser) NewPage(ctx context.Context) (Page, error) {
	page, err := browser.CreatePage(b.browser, b.disableStealth)
	if err != nil {
		return nil, err
	}

	if b.proxy != nil && b.proxy.HasAuth() {
		wait := b.browser.HandleAuth(b.proxy.Username, b.proxy.Password)
		go func() {
			if err := wait(); err != nil {
				b.logger.Debug("proxy auth handler finished", "error", err)
			}
		}()
	}

	return &rodPage{page: page}, nil
}

func (b *rodBrowser) Close() error {
	err := b.browser.Close()
	b.launcher.Cleanup()
	return err
}

type rodPage struct {
	page *rod.Page
}

func (p *rodPage) SetUserAgent(userAgent string) error {
	return p.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent})
}

func (p *rodPage) SetHeaders(headers map[string]string) error {
	dict := make([]string, 0, len(headers)*2)
	for k, v := range headers {
		dict = append(dict, k, v)
	}
	_, err := p.page.SetExtraHeaders(dict)
	return err
}

func (p *rodPage) SetCookies(pageURL string, cookies []models.Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.Domain == "" {
			param.URL = pageURL
		}
		if c.Expires > 0 {
			param.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		switch proto.NetworkCookieSameSite(c.SameSite) {
		case proto.NetworkCookieSameSiteStrict, proto.NetworkCookieSameSiteLax, proto.NetworkCookieSameSiteNone:
			param.SameSite = proto.NetworkCookieSameSite(c.SameSite)
		}
		params = append(params, param)
	}
	return p.page.SetCookies(params)
}

func (p *rodPage) Navigate(ctx context.Context, url string, wait WaitCondition) error {
	page := p.page.Context(ctx)

	var waitEvent func()
	switch wait {
	case WaitDOMContentLoaded:
		waitEvent = page.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	case WaitNetworkIdle:
		waitEvent = page.WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)
	}

	if err := page.Navigate(url); err != nil {
		return err
	}

	if waitEvent == nil {
		return page.WaitLoad()
	}
	waitEvent()
	return ctx.Err()
}

func (p *rodPage) Snapshot(ctx context.Context) (*Response, error) {
	page := p.page.Context(ctx)

	info, err := page.Info()
	if err != nil {
		return nil, err
	}
	html, err := page.HTML()
	if err != nil {
		return nil, err
	}

	resp := &Response{URL: info.URL, Title: info.Title, HTML: html, FetchedAt: time.Now()}

	if res, err := page.Eval(navigationStatusJS); err == nil {
		resp.Status = res.Value.Int()
	}

	if cookies, err := page.Cookies(nil); err == nil {
		resp.Cookies = make([]models.Cookie, 0, len(cookies))
		for _, c := range cookies {
			resp.Cookies = append(resp.Cookies, models.Cookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Expires:  int64(c.Expires),
				HTTPOnly: c.HTTPOnly,
				Secure:   c.Secure,
				SameSite: string(c.SameSite),
			})
		}
	}

	return resp, nil
}

func (p *rodPage) Eval(ctx context.Context, js string, args ...any) error {
	_, err := p.page.Context(ctx).Eval(js, args...)
	return err
}

func (p *rodPage) Close() error {
	return p.page.Close()
}
