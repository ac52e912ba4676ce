package solver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmylchreest/streamresolver/internal/challenge"
)

const twoCaptchaBaseURL = "https://2captcha.com"

// TwoCaptcha implements TaskAPI using 2Captcha's in.php/res.php API.
type TwoCaptcha struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewTwoCaptcha creates a new 2Captcha task API.
func NewTwoCaptcha(apiKey string) *TwoCaptcha {
	return &TwoCaptcha{
		apiKey:  apiKey,
		baseURL: twoCaptchaBaseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithBaseURL points the client at a different API host.
func (t *TwoCaptcha) WithBaseURL(baseURL string) *TwoCaptcha {
	t.baseURL = baseURL
	return t
}

// Name returns "2captcha".
func (t *TwoCaptcha) Name() string {
	return "2captcha"
}

// CanSolve returns true for supported challenge types.
func (t *TwoCaptcha) CanSolve(challengeType challenge.Type) bool {
	switch challengeType {
	case challenge.TypeCloudflareTurnstile,
		challenge.TypeHCaptcha,
		challenge.TypeReCaptchaV2,
		challenge.TypeReCaptchaV3:
		return true
	default:
		return false
	}
}

type twoCaptchaResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

// Submit submits a CAPTCHA task to 2Captcha.
func (t *TwoCaptcha) Submit(ctx context.Context, task Task) (string, error) {
	values := url.Values{
		"key":     {t.apiKey},
		"json":    {"1"},
		"pageurl": {task.PageURL},
		"sitekey": {task.SiteKey},
	}

	switch task.Type {
	case challenge.TypeCloudflareTurnstile:
		values.Set("method", "turnstile")
		if task.Action != "" {
			values.Set("action", task.Action)
		}
		if task.CData != "" {
			values.Set("data", task.CData)
		}
	case challenge.TypeHCaptcha:
		values.Set("method", "hcaptcha")
	case challenge.TypeReCaptchaV2:
		values.Set("method", "userrecaptcha")
	case challenge.TypeReCaptchaV3:
		values.Set("method", "userrecaptcha")
		values.Set("version", "v3")
		if task.Action != "" {
			values.Set("action", task.Action)
		}
	default:
		return "", fmt.Errorf("unsupported challenge type: %s", task.Type)
	}

	if task.Proxy != nil {
		proxyStr := fmt.Sprintf("%s:%d", task.Proxy.Host, task.Proxy.Port)
		if task.Proxy.Username != "" {
			proxyStr = fmt.Sprintf("%s:%s@%s", task.Proxy.Username, task.Proxy.Password, proxyStr)
		}
		values.Set("proxy", proxyStr)
		values.Set("proxytype", strings.ToUpper(task.Proxy.Type))
	}

	result, err := t.request(ctx, "/in.php", values)
	if err != nil {
		return "", err
	}
	if result.Status != 1 {
		return "", fmt.Errorf("2captcha error: %s", result.Request)
	}
	return result.Request, nil
}

// Poll fetches the state of a 2Captcha task.
func (t *TwoCaptcha) Poll(ctx context.Context, taskID string) (PollResult, error) {
	result, err := t.request(ctx, "/res.php", url.Values{
		"key":    {t.apiKey},
		"action": {"get"},
		"id":     {taskID},
		"json":   {"1"},
	})
	if err != nil {
		return PollResult{}, err
	}

	if result.Status == 1 {
		return PollResult{Status: StatusReady, Solution: result.Request}, nil
	}

	switch {
	case result.Request == "CAPCHA_NOT_READY":
		return PollResult{Status: StatusPending}, nil
	case result.Request == "ERROR_CAPTCHA_UNSOLVABLE":
		return PollResult{Status: StatusFailed, Reason: "CAPTCHA is unsolvable"}, nil
	case strings.HasPrefix(result.Request, "ERROR_"):
		return PollResult{Status: StatusFailed, Reason: result.Request}, nil
	default:
		return PollResult{Status: StatusPending}, nil
	}
}

// request makes an HTTP request to the 2Captcha API.
func (t *TwoCaptcha) request(ctx context.Context, path string, values url.Values) (*twoCaptchaResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path+"?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var result twoCaptchaResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %s", string(body))
	}
	return &result, nil
}
