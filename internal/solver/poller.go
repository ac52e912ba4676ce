package solver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/streamresolver/internal/challenge"
)

// Poller turns a TaskAPI into a Solver by polling on a fixed interval with a
// bounded number of attempts.
type Poller struct {
	api         TaskAPI
	interval    time.Duration
	maxAttempts int
	tokenTTL    time.Duration
	logger      *slog.Logger
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Interval    time.Duration
	MaxAttempts int
	TokenTTL    time.Duration
	Logger      *slog.Logger
}

// NewPoller wraps api with the polling policy in cfg.
func NewPoller(api TaskAPI, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Poller{
		api:         api,
		interval:    cfg.Interval,
		maxAttempts: cfg.MaxAttempts,
		tokenTTL:    cfg.TokenTTL,
		logger:      cfg.Logger,
	}
}

// Name returns the wrapped API's name.
func (p *Poller) Name() string {
	return p.api.Name()
}

// CanSolve delegates to the wrapped API.
func (p *Poller) CanSolve(challengeType challenge.Type) bool {
	return p.api.CanSolve(challengeType)
}

// Solve submits the task and polls until it is ready, failed, or the attempt
// budget is spent. Transport errors on a poll consume an attempt.
func (p *Poller) Solve(ctx context.Context, task Task) (*Result, error) {
	taskID, err := p.api.Submit(ctx, task)
	if err != nil {
		return nil, &Error{Solver: p.Name(), Message: "submit task", Cause: err}
	}

	p.logger.Debug("captcha task submitted", "solver", p.Name(), "task_id", taskID, "type", task.Type)

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, &Error{Solver: p.Name(), Message: "task " + taskID, Cause: ctx.Err()}
		case <-time.After(p.interval):
		}

		res, err := p.api.Poll(ctx, taskID)
		if err != nil {
			lastErr = err
			p.logger.Debug("captcha poll failed", "solver", p.Name(), "task_id", taskID, "attempt", attempt, "error", err)
			continue
		}

		switch res.Status {
		case StatusReady:
			p.logger.Info("captcha solved", "solver", p.Name(), "task_id", taskID, "attempts", attempt)
			return &Result{Token: res.Solution, Valid: p.tokenTTL, SolverName: p.Name()}, nil
		case StatusFailed:
			return nil, &Error{Solver: p.Name(), Message: res.Reason, Cause: ErrTaskFailed}
		}
	}

	msg := fmt.Sprintf("task %s not ready after %d attempts", taskID, p.maxAttempts)
	if lastErr != nil {
		msg += " (last error: " + lastErr.Error() + ")"
	}
	return nil, &Error{Solver: p.Name(), Message: msg, Cause: ErrSolverTimeout}
}
