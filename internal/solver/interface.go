// Package solver provides CAPTCHA solving interfaces and implementations.
package solver

import (
	"context"
	"errors"
	"time"

	"github.com/jmylchreest/streamresolver/internal/challenge"
)

// Solver is the interface for CAPTCHA solving services.
type Solver interface {
	// Name returns the solver's name (e.g., "2captcha", "capsolver").
	Name() string

	// CanSolve returns true if this solver can handle the given challenge type.
	CanSolve(challengeType challenge.Type) bool

	// Solve attempts to solve a CAPTCHA challenge.
	Solve(ctx context.Context, task Task) (*Result, error)
}

// TaskAPI is a remote task queue: a task is submitted once and its result is
// polled until it is ready or failed.
type TaskAPI interface {
	Name() string
	CanSolve(challengeType challenge.Type) bool

	// Submit creates a remote task and returns its id.
	Submit(ctx context.Context, task Task) (string, error)

	// Poll reports the current state of a submitted task.
	Poll(ctx context.Context, taskID string) (PollResult, error)
}

// Task contains parameters for solving a CAPTCHA.
type Task struct {
	// Type is the challenge type to solve.
	Type challenge.Type

	// SiteKey is the CAPTCHA site key (required for Turnstile, hCaptcha, reCAPTCHA).
	SiteKey string

	// PageURL is the URL of the page with the CAPTCHA.
	PageURL string

	// Action is optional action parameter (for Turnstile and reCAPTCHA v3).
	Action string

	// CData is optional cData parameter (for Turnstile).
	CData string

	// Proxy is optional proxy configuration to use for solving.
	Proxy *ProxyConfig
}

// ProxyConfig contains proxy configuration for CAPTCHA solving.
type ProxyConfig struct {
	Type     string // "http", "socks4", "socks5"
	Host     string
	Port     int
	Username string
	Password string
}

// Status is the remote state of a submitted task.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// PollResult is one observation of a submitted task.
type PollResult struct {
	Status   Status
	Solution string
	Reason   string // set when Status is StatusFailed
}

// Result contains the result of a successful CAPTCHA solve.
type Result struct {
	// Token is the solution token to inject into the page.
	Token string

	// Valid is how long the token is valid for.
	Valid time.Duration

	// SolverName is the name of the solver that solved this.
	SolverName string
}

// Chain is a solver that tries multiple solvers in order.
type Chain struct {
	solvers []Solver
}

// NewChain creates a new solver chain.
func NewChain(solvers ...Solver) *Chain {
	return &Chain{solvers: solvers}
}

// Name returns "chain".
func (c *Chain) Name() string {
	return "chain"
}

// Len returns the number of solvers in the chain.
func (c *Chain) Len() int {
	return len(c.solvers)
}

// CanSolve returns true if any solver in the chain can solve the challenge.
func (c *Chain) CanSolve(challengeType challenge.Type) bool {
	for _, s := range c.solvers {
		if s.CanSolve(challengeType) {
			return true
		}
	}
	return false
}

// Solve tries each solver in order until one succeeds.
func (c *Chain) Solve(ctx context.Context, task Task) (*Result, error) {
	var lastErr error

	for _, s := range c.solvers {
		if !s.CanSolve(task.Type) {
			continue
		}

		result, err := s.Solve(ctx, task)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, &Error{Solver: c.Name(), Message: string(task.Type), Cause: ErrNoSolverAvailable}
}

// Errors
var (
	ErrNoSolverAvailable = errors.New("no solver available for this challenge type")
	ErrSolverTimeout     = errors.New("solver timeout")
	ErrTaskFailed        = errors.New("task failed")
)

// Error represents a solver error.
type Error struct {
	Solver  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Solver != "" {
		msg = e.Solver + ": " + msg
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}
