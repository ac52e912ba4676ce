package pagefetch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/streamresolver/internal/challenge"
	"github.com/jmylchreest/streamresolver/internal/session"
	"github.com/jmylchreest/streamresolver/internal/solver"
)

const (
	plainPage     = `<html><head><title>Video</title></head><body><a href="animeVideo.php?sn=1234">ep1</a></body></html>`
	cfWaitPage    = `<html><head><title>Just a moment...</title></head><body></body></html>`
	turnstilePage = `<html><head><title>Verify</title></head><body><div class="cf-turnstile" data-sitekey="0x4AAA" data-action="login"></div></body></html>`
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeSession serves navigate from first and then walks through pages on
// each Content call, repeating the last one.
type fakeSession struct {
	mu          sync.Mutex
	first       *session.Response
	pages       []*session.Response
	navErr      error
	headers     map[string]string
	navigations []session.NavigateOptions
	evals       []string
	evalArgs    []any
	contents    int
}

func (s *fakeSession) Navigate(_ context.Context, _ string, opts session.NavigateOptions) (*session.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers = opts.RequestHeaders
	s.navigations = append(s.navigations, opts)
	if s.navErr != nil {
		return nil, s.navErr
	}
	return s.first, nil
}

func (s *fakeSession) Content(context.Context) (*session.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.contents
	if i >= len(s.pages) {
		i = len(s.pages) - 1
	}
	s.contents++
	return s.pages[i], nil
}

func (s *fakeSession) Eval(_ context.Context, js string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evals = append(s.evals, js)
	s.evalArgs = append(s.evalArgs, args...)
	return nil
}

type fakeSolver struct {
	token string
	err   error
	tasks []solver.Task
}

func (f *fakeSolver) Name() string { return "fake" }

func (f *fakeSolver) CanSolve(t challenge.Type) bool {
	return t == challenge.TypeCloudflareTurnstile
}

func (f *fakeSolver) Solve(_ context.Context, task solver.Task) (*solver.Result, error) {
	f.tasks = append(f.tasks, task)
	if f.err != nil {
		return nil, f.err
	}
	return &solver.Result{Token: f.token, Valid: 2 * time.Minute, SolverName: f.Name()}, nil
}

func page(status int, html string) *session.Response {
	return &session.Response{URL: "https://ani.gamer.com.tw/animeVideo.php?sn=1234", Status: status, HTML: html}
}

func fastConfig() BrowserConfig {
	return BrowserConfig{
		ChallengeWait: 200 * time.Millisecond,
		CheckInterval: 5 * time.Millisecond,
		SettleDelay:   time.Millisecond,
		Logger:        testLogger(),
	}
}

func TestBrowser_FetchPage(t *testing.T) {
	ctx := context.Background()

	t.Run("plain page passes headers", func(t *testing.T) {
		sess := &fakeSession{first: page(http.StatusOK, plainPage)}
		b := NewBrowser(sess, nil, fastConfig())

		html, err := b.FetchPage(ctx, "https://ani.gamer.com.tw/", http.Header{"Referer": {"https://ani.gamer.com.tw/"}})
		if err != nil {
			t.Fatalf("FetchPage() error = %v", err)
		}
		if html != plainPage {
			t.Errorf("html = %q", html)
		}
		if sess.headers["Referer"] != "https://ani.gamer.com.tw/" {
			t.Errorf("headers = %v", sess.headers)
		}
	})

	t.Run("consent dismissed only when enabled", func(t *testing.T) {
		sess := &fakeSession{first: page(http.StatusOK, plainPage)}
		if _, err := NewBrowser(sess, nil, fastConfig()).FetchPage(ctx, "https://ani.gamer.com.tw/", nil); err != nil {
			t.Fatalf("FetchPage() error = %v", err)
		}
		if len(sess.evals) != 0 {
			t.Fatalf("expected no evals with consent disabled, got %d", len(sess.evals))
		}

		cfg := fastConfig()
		cfg.DismissConsent = true
		if _, err := NewBrowser(sess, nil, cfg).FetchPage(ctx, "https://ani.gamer.com.tw/", nil); err != nil {
			t.Fatalf("FetchPage() error = %v", err)
		}
		if len(sess.evals) != 1 || !strings.Contains(sess.evals[0], "onetrust") {
			t.Errorf("expected one consent script eval, got %d", len(sess.evals))
		}
	})

	t.Run("negotiation cookies never reach the browser", func(t *testing.T) {
		sess := &fakeSession{first: page(http.StatusOK, plainPage)}
		b := NewBrowser(sess, nil, fastConfig())

		first := http.Header{
			"Cookie":     {"BAHAID=alice; BAHARUNE=alice-token"},
			"Accept":     {"application/json"},
			"User-Agent": {"ua"},
			"Referer":    {"https://ani.gamer.com.tw/animeVideo.php?sn=1"},
		}
		if _, err := b.FetchPage(ctx, "https://ani.gamer.com.tw/animeVideo.php?sn=1", first); err != nil {
			t.Fatalf("FetchPage() error = %v", err)
		}
		if _, err := b.FetchPage(ctx, "https://ani.gamer.com.tw/animeVideo.php?sn=2", http.Header{"User-Agent": {"ua"}}); err != nil {
			t.Fatalf("FetchPage() error = %v", err)
		}

		if len(sess.navigations) != 2 {
			t.Fatalf("navigations = %d, want 2", len(sess.navigations))
		}
		for i, opts := range sess.navigations {
			if len(opts.Headers) != 0 || len(opts.Cookies) != 0 {
				t.Errorf("navigation %d changed session defaults: %+v", i, opts)
			}
			if _, ok := opts.RequestHeaders["Cookie"]; ok {
				t.Errorf("navigation %d forwarded Cookie", i)
			}
			if _, ok := opts.RequestHeaders["Accept"]; ok {
				t.Errorf("navigation %d forwarded Accept", i)
			}
		}
		if got := sess.navigations[0].RequestHeaders["Referer"]; got == "" {
			t.Error("Referer not forwarded on first navigation")
		}
		if len(sess.navigations[1].RequestHeaders) != 0 {
			t.Errorf("second navigation headers = %v, want none", sess.navigations[1].RequestHeaders)
		}
	})

	t.Run("navigation error is returned", func(t *testing.T) {
		navErr := &session.NavigationError{URL: "x", Attempts: 2, Cause: errors.New("crash")}
		b := NewBrowser(&fakeSession{navErr: navErr}, nil, fastConfig())

		_, err := b.FetchPage(ctx, "https://ani.gamer.com.tw/", nil)
		var got *session.NavigationError
		if !errors.As(err, &got) {
			t.Fatalf("FetchPage() error = %v, want *session.NavigationError", err)
		}
	})

	t.Run("auto challenge clears while waiting", func(t *testing.T) {
		sess := &fakeSession{
			first: page(http.StatusServiceUnavailable, cfWaitPage),
			pages: []*session.Response{
				page(http.StatusServiceUnavailable, cfWaitPage),
				page(http.StatusOK, plainPage),
			},
		}
		b := NewBrowser(sess, nil, fastConfig())

		html, err := b.FetchPage(ctx, "https://ani.gamer.com.tw/", nil)
		if err != nil {
			t.Fatalf("FetchPage() error = %v", err)
		}
		if html != plainPage {
			t.Errorf("html = %q", html)
		}
	})

	t.Run("auto challenge times out", func(t *testing.T) {
		sess := &fakeSession{
			first: page(http.StatusServiceUnavailable, cfWaitPage),
			pages: []*session.Response{page(http.StatusServiceUnavailable, cfWaitPage)},
		}
		b := NewBrowser(sess, nil, fastConfig())

		_, err := b.FetchPage(ctx, "https://ani.gamer.com.tw/", nil)
		if !errors.Is(err, ErrChallengeUnsolved) {
			t.Fatalf("FetchPage() error = %v, want ErrChallengeUnsolved", err)
		}
		var chErr *ChallengeError
		if !errors.As(err, &chErr) || chErr.Type != challenge.TypeCloudflareJS {
			t.Errorf("ChallengeError = %+v", chErr)
		}
	})

	t.Run("token challenge solved and injected", func(t *testing.T) {
		sess := &fakeSession{
			first: page(http.StatusOK, turnstilePage),
			pages: []*session.Response{page(http.StatusOK, plainPage)},
		}
		s := &fakeSolver{token: "tok-123"}
		b := NewBrowser(sess, s, fastConfig())

		html, err := b.FetchPage(ctx, "https://ani.gamer.com.tw/", nil)
		if err != nil {
			t.Fatalf("FetchPage() error = %v", err)
		}
		if html != plainPage {
			t.Errorf("html = %q", html)
		}
		if len(s.tasks) != 1 || s.tasks[0].SiteKey != "0x4AAA" || s.tasks[0].Action != "login" {
			t.Errorf("tasks = %+v", s.tasks)
		}
		if len(sess.evals) != 1 || len(sess.evalArgs) != 1 || sess.evalArgs[0] != "tok-123" {
			t.Errorf("evals = %d args = %v", len(sess.evals), sess.evalArgs)
		}
	})

	t.Run("token challenge without solver", func(t *testing.T) {
		sess := &fakeSession{first: page(http.StatusOK, turnstilePage)}
		b := NewBrowser(sess, nil, fastConfig())

		_, err := b.FetchPage(ctx, "https://ani.gamer.com.tw/", nil)
		if !errors.Is(err, ErrChallengeUnsolved) {
			t.Fatalf("FetchPage() error = %v, want ErrChallengeUnsolved", err)
		}
	})

	t.Run("solver failure is wrapped", func(t *testing.T) {
		sess := &fakeSession{first: page(http.StatusOK, turnstilePage)}
		solveErr := &solver.Error{Solver: "fake", Message: "rejected", Cause: solver.ErrTaskFailed}
		b := NewBrowser(sess, &fakeSolver{err: solveErr}, fastConfig())

		_, err := b.FetchPage(ctx, "https://ani.gamer.com.tw/", nil)
		if !errors.Is(err, solver.ErrTaskFailed) {
			t.Fatalf("FetchPage() error = %v, want solver.ErrTaskFailed", err)
		}
		if len(sess.evals) != 0 {
			t.Error("token injected after failed solve")
		}
	})
}
