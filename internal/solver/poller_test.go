package solver

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/streamresolver/internal/challenge"
)

type fakeTaskAPI struct {
	mu        sync.Mutex
	submitErr error
	results   []PollResult
	pollErr   error
	polls     int
}

func (f *fakeTaskAPI) Name() string { return "fake" }

func (f *fakeTaskAPI) CanSolve(t challenge.Type) bool { return t == challenge.TypeCloudflareTurnstile }

func (f *fakeTaskAPI) Submit(ctx context.Context, task Task) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "task-1", nil
}

func (f *fakeTaskAPI) Poll(ctx context.Context, taskID string) (PollResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.pollErr != nil {
		return PollResult{}, f.pollErr
	}
	if f.polls <= len(f.results) {
		return f.results[f.polls-1], nil
	}
	return PollResult{Status: StatusPending}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestPoller(api TaskAPI, attempts int) *Poller {
	return NewPoller(api, PollerConfig{Interval: time.Millisecond, MaxAttempts: attempts, Logger: testLogger()})
}

func TestPoller_Solve(t *testing.T) {
	task := Task{Type: challenge.TypeCloudflareTurnstile, SiteKey: "key", PageURL: "https://example.com"}

	t.Run("ready after pending", func(t *testing.T) {
		api := &fakeTaskAPI{results: []PollResult{
			{Status: StatusPending},
			{Status: StatusPending},
			{Status: StatusReady, Solution: "token-xyz"},
		}}
		res, err := newTestPoller(api, 10).Solve(context.Background(), task)
		if err != nil {
			t.Fatalf("Solve() error = %v", err)
		}
		if res.Token != "token-xyz" {
			t.Errorf("Token = %q, want token-xyz", res.Token)
		}
		if res.SolverName != "fake" {
			t.Errorf("SolverName = %q, want fake", res.SolverName)
		}
		if api.polls != 3 {
			t.Errorf("polls = %d, want 3", api.polls)
		}
	})

	t.Run("budget exhausted after exact attempts", func(t *testing.T) {
		api := &fakeTaskAPI{}
		_, err := newTestPoller(api, 4).Solve(context.Background(), task)
		if !errors.Is(err, ErrSolverTimeout) {
			t.Fatalf("error = %v, want ErrSolverTimeout", err)
		}
		var solveErr *Error
		if !errors.As(err, &solveErr) {
			t.Fatalf("error should be *Error, got %T", err)
		}
		if api.polls != 4 {
			t.Errorf("polls = %d, want 4", api.polls)
		}
	})

	t.Run("remote failure", func(t *testing.T) {
		api := &fakeTaskAPI{results: []PollResult{{Status: StatusFailed, Reason: "unsolvable"}}}
		_, err := newTestPoller(api, 10).Solve(context.Background(), task)
		if !errors.Is(err, ErrTaskFailed) {
			t.Fatalf("error = %v, want ErrTaskFailed", err)
		}
		if api.polls != 1 {
			t.Errorf("polls = %d, want 1", api.polls)
		}
	})

	t.Run("poll transport errors consume budget", func(t *testing.T) {
		api := &fakeTaskAPI{pollErr: errors.New("connection reset")}
		_, err := newTestPoller(api, 3).Solve(context.Background(), task)
		if !errors.Is(err, ErrSolverTimeout) {
			t.Fatalf("error = %v, want ErrSolverTimeout", err)
		}
		if api.polls != 3 {
			t.Errorf("polls = %d, want 3", api.polls)
		}
	})

	t.Run("submit failure", func(t *testing.T) {
		api := &fakeTaskAPI{submitErr: errors.New("bad key")}
		_, err := newTestPoller(api, 3).Solve(context.Background(), task)
		if err == nil {
			t.Fatal("expected error")
		}
		if api.polls != 0 {
			t.Errorf("polls = %d, want 0", api.polls)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		api := &fakeTaskAPI{}
		p := NewPoller(api, PollerConfig{Interval: time.Hour, MaxAttempts: 3, Logger: testLogger()})
		_, err := p.Solve(ctx, task)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("error = %v, want context.Canceled", err)
		}
	})
}

func TestChain(t *testing.T) {
	chain := NewChain(newTestPoller(&fakeTaskAPI{results: []PollResult{{Status: StatusReady, Solution: "ok"}}}, 2))

	if !chain.CanSolve(challenge.TypeCloudflareTurnstile) {
		t.Error("chain should solve turnstile")
	}
	if chain.CanSolve(challenge.TypeHCaptcha) {
		t.Error("chain should not solve hcaptcha")
	}

	_, err := chain.Solve(context.Background(), Task{Type: challenge.TypeHCaptcha})
	if !errors.Is(err, ErrNoSolverAvailable) {
		t.Errorf("error = %v, want ErrNoSolverAvailable", err)
	}

	res, err := chain.Solve(context.Background(), Task{Type: challenge.TypeCloudflareTurnstile})
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if res.Token != "ok" {
		t.Errorf("Token = %q, want ok", res.Token)
	}
}
