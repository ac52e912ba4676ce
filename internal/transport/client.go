// Package transport performs the plain HTTP calls of the unlock protocol and
// captures the cookies each response sets.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxBodySize = 4 << 20

// ProxyFunc selects the proxy for a request, like http.Transport.Proxy.
type ProxyFunc func(*http.Request) (*url.URL, error)

// Request is one origin call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Form   url.Values // sent as application/x-www-form-urlencoded when set
}

// Response is a fully read origin response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Cookies    []*http.Cookie
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// StatusError is returned for non-2xx responses. The response is still read.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.StatusCode)
}

// Options configures a Client.
type Options struct {
	Timeout time.Duration
	Proxy   ProxyFunc
	Logger  *slog.Logger
}

// Client performs origin calls. Redirects are not followed so Set-Cookie on
// intermediate responses is never lost.
type Client struct {
	http   *http.Client
	logger *slog.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != nil {
		tr.Proxy = opts.Proxy
	}

	return &Client{
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: tr,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: opts.Logger,
	}
}

// Do performs req. Transport failures and non-2xx statuses are errors; on a
// status error the read Response is returned alongside it.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Form != nil {
		body = strings.NewReader(req.Form.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Form != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, req.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL, err)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Cookies:    resp.Cookies(),
	}

	c.logger.Debug("origin call",
		"method", method,
		"url", redact(req.URL),
		"status", resp.StatusCode,
		"cookies", len(out.Cookies),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, &StatusError{URL: redact(req.URL), StatusCode: resp.StatusCode}
	}
	return out, nil
}

// redact drops the query string, which carries device ids and hashes.
func redact(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
