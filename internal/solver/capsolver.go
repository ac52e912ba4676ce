package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmylchreest/streamresolver/internal/challenge"
)

const capSolverBaseURL = "https://api.capsolver.com"

// CapSolver implements TaskAPI using CapSolver's createTask/getTaskResult API.
type CapSolver struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewCapSolver creates a new CapSolver task API.
func NewCapSolver(apiKey string) *CapSolver {
	return &CapSolver{
		apiKey:  apiKey,
		baseURL: capSolverBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// WithBaseURL points the client at a different API host.
func (c *CapSolver) WithBaseURL(baseURL string) *CapSolver {
	c.baseURL = baseURL
	return c
}

// Name returns "capsolver".
func (c *CapSolver) Name() string {
	return "capsolver"
}

// CanSolve returns true for supported challenge types.
func (c *CapSolver) CanSolve(challengeType challenge.Type) bool {
	return capSolverTaskType(challengeType) != ""
}

func capSolverTaskType(t challenge.Type) string {
	switch t {
	case challenge.TypeCloudflareTurnstile:
		return "AntiTurnstileTaskProxyLess"
	case challenge.TypeReCaptchaV2:
		return "ReCaptchaV2TaskProxyLess"
	case challenge.TypeReCaptchaV3:
		return "ReCaptchaV3TaskProxyLess"
	default:
		return ""
	}
}

type capSolverResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           string `json:"taskId"`
	Status           string `json:"status"`
	Solution         struct {
		Token              string `json:"token"`
		GRecaptchaResponse string `json:"gRecaptchaResponse"`
	} `json:"solution"`
}

// Submit creates a CapSolver task.
func (c *CapSolver) Submit(ctx context.Context, task Task) (string, error) {
	taskType := capSolverTaskType(task.Type)
	if taskType == "" {
		return "", fmt.Errorf("unsupported challenge type: %s", task.Type)
	}

	payload := map[string]any{
		"type":       taskType,
		"websiteURL": task.PageURL,
		"websiteKey": task.SiteKey,
	}
	switch task.Type {
	case challenge.TypeCloudflareTurnstile:
		metadata := map[string]string{}
		if task.Action != "" {
			metadata["action"] = task.Action
		}
		if task.CData != "" {
			metadata["cdata"] = task.CData
		}
		if len(metadata) > 0 {
			payload["metadata"] = metadata
		}
	case challenge.TypeReCaptchaV3:
		if task.Action != "" {
			payload["pageAction"] = task.Action
		}
	}

	var resp capSolverResponse
	if err := c.call(ctx, "/createTask", map[string]any{"clientKey": c.apiKey, "task": payload}, &resp); err != nil {
		return "", err
	}
	if resp.ErrorID != 0 {
		return "", fmt.Errorf("capsolver error %s: %s", resp.ErrorCode, resp.ErrorDescription)
	}
	if resp.TaskID == "" {
		return "", fmt.Errorf("capsolver returned no task id")
	}
	return resp.TaskID, nil
}

// Poll fetches the state of a CapSolver task.
func (c *CapSolver) Poll(ctx context.Context, taskID string) (PollResult, error) {
	var resp capSolverResponse
	if err := c.call(ctx, "/getTaskResult", map[string]any{"clientKey": c.apiKey, "taskId": taskID}, &resp); err != nil {
		return PollResult{}, err
	}

	if resp.ErrorID != 0 {
		return PollResult{Status: StatusFailed, Reason: resp.ErrorDescription}, nil
	}

	switch resp.Status {
	case "ready":
		token := resp.Solution.Token
		if token == "" {
			token = resp.Solution.GRecaptchaResponse
		}
		return PollResult{Status: StatusReady, Solution: token}, nil
	case "failed":
		return PollResult{Status: StatusFailed, Reason: resp.ErrorDescription}, nil
	default:
		return PollResult{Status: StatusPending}, nil
	}
}

func (c *CapSolver) call(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response (status %d): %s", resp.StatusCode, string(data))
	}
	return nil
}
