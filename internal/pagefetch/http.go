package pagefetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jmylchreest/streamresolver/internal/challenge"
)

// HTTPConfig configures an HTTP fetcher.
type HTTPConfig struct {
	UserAgent string
	Timeout   time.Duration
	Proxy     func(*http.Request) (*url.URL, error)
	Logger    *slog.Logger
}

// HTTP fetches pages with colly. It reports challenges but cannot pass them.
type HTTP struct {
	cfg      HTTPConfig
	detector *challenge.Detector
}

// NewHTTP creates an HTTP fetcher.
func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTP{cfg: cfg, detector: challenge.NewDetector()}
}

// FetchPage implements Fetcher.
func (f *HTTP) FetchPage(ctx context.Context, pageURL string, header http.Header) (string, error) {
	c := colly.NewCollector(
		colly.UserAgent(f.cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(f.cfg.Timeout)
	c.ParseHTTPErrorResponse = true
	if f.cfg.Proxy != nil {
		c.SetProxyFunc(f.cfg.Proxy)
	}

	var (
		status int
		body   []byte
	)

	c.OnRequest(func(r *colly.Request) {
		for k, v := range header {
			for _, vv := range v {
				r.Headers.Add(k, vv)
			}
		}
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})

	if err := c.Visit(pageURL); err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}

	html := string(body)
	if detection := f.detector.Detect(status, "", html); detection.Found() {
		f.cfg.Logger.Info("bot protection detected", "url", pageURL, "type", detection.Type, "status", status)
		return "", &ChallengeError{URL: pageURL, Type: detection.Type, Cause: ErrChallengeDetected}
	}
	if status >= 400 {
		return "", fmt.Errorf("fetch %s: unexpected status %d", pageURL, status)
	}
	return html, nil
}
