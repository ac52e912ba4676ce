package pagefetch

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmylchreest/streamresolver/internal/challenge"
	"github.com/jmylchreest/streamresolver/internal/consent"
	"github.com/jmylchreest/streamresolver/internal/session"
	"github.com/jmylchreest/streamresolver/internal/solver"
)

// Session is the part of session.Manager the browser fetcher needs.
type Session interface {
	Navigate(ctx context.Context, url string, opts session.NavigateOptions) (*session.Response, error)
	Content(ctx context.Context) (*session.Response, error)
	Eval(ctx context.Context, js string, args ...any) error
}

// BrowserConfig configures a Browser fetcher.
type BrowserConfig struct {
	// ChallengeWait bounds how long auto-resolving challenges are waited on.
	ChallengeWait time.Duration
	// CheckInterval is the re-read interval while waiting.
	CheckInterval time.Duration
	// SettleDelay is the pause after injecting a solved token.
	SettleDelay time.Duration
	// DismissConsent clicks away cookie and age notices on cleared pages.
	DismissConsent bool
	Logger         *slog.Logger
}

// Browser fetches pages through the shared browser session.
type Browser struct {
	session  Session
	detector *challenge.Detector
	solver   solver.Solver
	cfg      BrowserConfig
}

// NewBrowser creates a browser fetcher. solver may be nil.
func NewBrowser(sess Session, s solver.Solver, cfg BrowserConfig) *Browser {
	if cfg.ChallengeWait <= 0 {
		cfg.ChallengeWait = 30 * time.Second
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 2 * time.Second
	}
	return &Browser{
		session:  sess,
		detector: challenge.NewDetector(),
		solver:   s,
		cfg:      cfg,
	}
}

// FetchPage implements Fetcher.
func (b *Browser) FetchPage(ctx context.Context, url string, header http.Header) (string, error) {
	resp, err := b.session.Navigate(ctx, url, session.NavigateOptions{RequestHeaders: pageHeaders(header)})
	if err != nil {
		return "", err
	}

	detection := b.detector.Detect(resp.Status, resp.Title, resp.HTML)
	if !detection.Found() {
		b.dismissConsent(ctx)
		return resp.HTML, nil
	}

	b.cfg.Logger.Info("challenge detected",
		"url", url,
		"type", detection.Type,
		"can_auto", detection.CanAuto,
	)

	if detection.CanAuto {
		return b.waitForClearance(ctx, url, detection)
	}
	return b.solve(ctx, url, resp, detection)
}

func (b *Browser) waitForClearance(ctx context.Context, url string, detection challenge.Detection) (string, error) {
	deadline := time.NewTimer(b.cfg.ChallengeWait)
	defer deadline.Stop()
	ticker := time.NewTicker(b.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", &ChallengeError{URL: url, Type: detection.Type, Cause: ErrChallengeUnsolved}
		case <-ticker.C:
		}

		resp, err := b.session.Content(ctx)
		if err != nil {
			b.cfg.Logger.Debug("re-reading challenge page failed", "url", url, "error", err)
			continue
		}
		if !b.detector.Detect(resp.Status, resp.Title, resp.HTML).Found() {
			b.cfg.Logger.Info("challenge cleared", "url", url, "type", detection.Type)
			b.dismissConsent(ctx)
			return resp.HTML, nil
		}
	}
}

func (b *Browser) solve(ctx context.Context, url string, resp *session.Response, detection challenge.Detection) (string, error) {
	if b.solver == nil || !b.solver.CanSolve(detection.Type) {
		return "", &ChallengeError{URL: url, Type: detection.Type, Cause: ErrChallengeUnsolved}
	}

	pageURL := resp.URL
	if pageURL == "" {
		pageURL = url
	}

	result, err := b.solver.Solve(ctx, solver.Task{
		Type:    detection.Type,
		SiteKey: detection.SiteKey,
		PageURL: pageURL,
		Action:  detection.Action,
		CData:   detection.CData,
	})
	if err != nil {
		b.cfg.Logger.Warn("challenge solve failed", "url", url, "type", detection.Type, "error", err)
		return "", &ChallengeError{URL: url, Type: detection.Type, Cause: err}
	}

	b.cfg.Logger.Info("challenge solved", "url", url, "type", detection.Type, "solver", result.SolverName)

	if script, ok := challenge.InjectionScript(detection.Type); ok && result.Token != "" {
		if err := b.session.Eval(ctx, script, result.Token); err != nil {
			return "", &ChallengeError{URL: url, Type: detection.Type, Cause: err}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(b.cfg.SettleDelay):
		}
	}

	after, err := b.session.Content(ctx)
	if err != nil {
		return "", err
	}
	return after.HTML, nil
}

func (b *Browser) dismissConsent(ctx context.Context) {
	if !b.cfg.DismissConsent {
		return
	}
	_ = consent.Dismiss(ctx, b.session, b.cfg.Logger)
}

// pageHeaders keeps the headers safe to send from the shared browser. The
// page loads with the session's own cookies; a caller's Cookie and ajax
// Accept header never reach the browser.
func pageHeaders(header http.Header) map[string]string {
	out := flattenHeader(header)
	for k := range out {
		switch http.CanonicalHeaderKey(k) {
		case "Referer", "Accept-Language":
		default:
			delete(out, k)
		}
	}
	return out
}
