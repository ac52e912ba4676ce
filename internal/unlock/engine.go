// Package unlock negotiates a playable manifest URL from the origin: login,
// device identity, access grant, ad gate, manifest polling and the final
// unlock.
package unlock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/yosida95/uritemplate/v3"

	"github.com/jmylchreest/streamresolver/internal/logging"
	"github.com/jmylchreest/streamresolver/internal/models"
	"github.com/jmylchreest/streamresolver/internal/pagefetch"
	"github.com/jmylchreest/streamresolver/internal/transport"
)

// SiteGamer tags descriptors produced by this engine.
const SiteGamer = "gamer"

const loginVCode = "7045"

// Doer performs origin calls. *transport.Client implements it.
type Doer interface {
	Do(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

// Credentials for the optional login step.
type Credentials struct {
	User     string
	Password string
}

// Empty reports whether login should be skipped.
func (c Credentials) Empty() bool {
	return c.User == "" || c.Password == ""
}

// Options configures an Engine.
type Options struct {
	Endpoints       Endpoints
	Credentials     Credentials
	UserAgent       string
	AdDwell         time.Duration
	PollInterval    time.Duration
	PollAttempts    int
	MaxRotations    int
	FinalizeTimeout time.Duration
	Timeout         time.Duration // bounds a whole negotiation
}

// Engine runs negotiations. It holds no per-negotiation state and is safe
// for concurrent use.
type Engine struct {
	client Doer
	pages  pagefetch.Fetcher
	opts   Options
	logger *slog.Logger
}

// NewEngine creates an engine. pages may be nil when every reference carries
// its serial number.
func NewEngine(client Doer, pages pagefetch.Fetcher, opts Options, logger *slog.Logger) *Engine {
	if opts.AdDwell < 0 {
		opts.AdDwell = 0
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = 10
	}
	if opts.MaxRotations < 0 {
		opts.MaxRotations = 0
	}
	if opts.FinalizeTimeout <= 0 {
		opts.FinalizeTimeout = 10 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Minute
	}
	return &Engine{client: client, pages: pages, opts: opts, logger: logger}
}

// negotiation is the per-request state. It is never shared.
type negotiation struct {
	id        string
	ref       string
	sn        string
	device    string
	bundle    Bundle
	state     State
	rotations int
	vip       bool
	logger    *slog.Logger
}

func (n *negotiation) fail(kind, cause error) *Error {
	state := n.state
	n.state = StateFailed
	return &Error{Ref: n.ref, SN: n.sn, State: state, Kind: kind, Cause: cause}
}

// Negotiate runs the full protocol for ref, a numeric serial number or a
// page URL. Once the serial number is known the final unlock is always
// attempted, including after failure or cancellation.
func (e *Engine) Negotiate(ctx context.Context, ref string) (models.StreamDescriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	n := &negotiation{
		id:     ulid.Make().String(),
		ref:    ref,
		bundle: newBundle(e.opts.UserAgent),
		state:  StateStart,
	}
	n.logger = logging.FromContext(ctx, e.logger).With("negotiation_id", n.id)
	n.logger.Info("negotiation started", "ref", ref)

	e.login(ctx, n)

	if err := e.acquireDevice(ctx, n); err != nil {
		return models.StreamDescriptor{}, err
	}

	if err := e.resolveSN(ctx, n); err != nil {
		return models.StreamDescriptor{}, err
	}
	defer e.finalize(ctx, n)

	if err := e.grantAccess(ctx, n); err != nil {
		return models.StreamDescriptor{}, err
	}

	if n.vip {
		n.logger.Info("privileged account, skipping ad gate", "sn", n.sn)
	} else if err := e.adGate(ctx, n); err != nil {
		return models.StreamDescriptor{}, err
	}

	src, err := e.pollManifest(ctx, n)
	if err != nil {
		return models.StreamDescriptor{}, err
	}

	referer, _ := expand(e.opts.Endpoints.Referer, "sn", n.sn)
	n.state = StateUnlocked
	n.logger.Info("manifest resolved", "sn", n.sn, "rotations", n.rotations)

	return models.StreamDescriptor{
		SN:          n.sn,
		ManifestURL: src,
		Referer:     referer,
		Cookies:     n.bundle.CookieString(),
		Origin:      e.opts.Endpoints.Origin,
		Site:        SiteGamer,
	}, nil
}

// login captures session cookies. Failure degrades to anonymous mode.
func (e *Engine) login(ctx context.Context, n *negotiation) {
	if e.opts.Credentials.Empty() {
		n.logger.Info("no credentials configured, continuing anonymously")
		return
	}

	loginURL, err := expand(e.opts.Endpoints.Login)
	if err != nil {
		n.logger.Warn("login url invalid, continuing anonymously", "error", err)
		return
	}

	header := http.Header{}
	header.Set("User-Agent", e.opts.UserAgent)
	header.Set("Accept", "*/*")
	header.Set("Cookie", "ckAPP_VCODE="+loginVCode)

	resp, err := e.client.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		URL:    loginURL,
		Header: header,
		Form: url.Values{
			"uid":    {e.opts.Credentials.User},
			"passwd": {e.opts.Credentials.Password},
			"vcode":  {loginVCode},
		},
	})
	if err != nil {
		n.logger.Warn("login failed, continuing anonymously", "error", err)
		return
	}
	if len(resp.Cookies) == 0 {
		n.logger.Warn("login returned no cookies, continuing anonymously")
		return
	}

	n.bundle = n.bundle.With(resp.Cookies)
	n.state = StateLoggedIn
	n.logger.Debug("logged in", "cookies", n.bundle.Len())
}

type deviceResponse struct {
	DeviceID string `json:"deviceid"`
}

func (e *Engine) acquireDevice(ctx context.Context, n *negotiation) error {
	var out deviceResponse
	if err := e.call(ctx, n, e.opts.Endpoints.DeviceID, &out); err != nil {
		return n.fail(ErrDeviceID, err)
	}
	if out.DeviceID == "" {
		return n.fail(ErrDeviceID, errors.New("empty deviceid in response"))
	}

	n.device = out.DeviceID
	n.state = StateDeviceAcquired
	n.logger.Debug("device identity acquired", "device", n.device)
	return nil
}

func (e *Engine) resolveSN(ctx context.Context, n *negotiation) error {
	if sn, ok := ParseSN(n.ref); ok {
		n.sn = sn
		n.state = StateSNResolved
		return nil
	}

	if e.pages == nil {
		return n.fail(ErrSNResolution, errors.New("reference is not numeric and no page fetcher is configured"))
	}

	html, err := e.pages.FetchPage(ctx, n.ref, n.bundle.Header(""))
	if err != nil {
		return n.fail(ErrSNResolution, err)
	}
	sn, ok := pageSN.Extract(html)
	if !ok {
		return n.fail(ErrSNResolution, errors.New("no serial number in page metadata or links"))
	}

	n.sn = sn
	n.state = StateSNResolved
	n.logger.Debug("serial number resolved from page", "sn", sn)
	return nil
}

type tokenResponse struct {
	VIP   flexBool        `json:"vip"`
	Error json.RawMessage `json:"error,omitempty"`
}

func (e *Engine) grantAccess(ctx context.Context, n *negotiation) error {
	var out tokenResponse
	err := e.call(ctx, n, e.opts.Endpoints.Token, &out,
		"sn", n.sn, "device", n.device, "hash", randomHash(12))
	if err != nil {
		return n.fail(ErrAccessGrant, err)
	}
	if oe := decodeOriginError(out.Error); oe != nil {
		return n.fail(ErrAccessGrant, oe)
	}

	n.vip = bool(out.VIP)
	n.state = StateAccessGranted
	n.logger.Debug("access granted", "vip", n.vip)
	return nil
}

// adGate signals the ad, dwells, and signals its end. Only the dwell is
// fatal: signal failures show up as a locked manifest later.
func (e *Engine) adGate(ctx context.Context, n *negotiation) error {
	if err := e.call(ctx, n, e.opts.Endpoints.AdStart, nil, "sn", n.sn); err != nil {
		n.logger.Warn("ad start signal failed", "sn", n.sn, "error", err)
	}

	n.logger.Info("waiting out ad gate", "sn", n.sn, "dwell", e.opts.AdDwell)
	if err := sleep(ctx, e.opts.AdDwell); err != nil {
		return n.fail(nil, err)
	}

	if err := e.call(ctx, n, e.opts.Endpoints.AdEnd, nil, "sn", n.sn); err != nil {
		n.logger.Warn("ad end signal failed", "sn", n.sn, "error", err)
	}
	if err := e.call(ctx, n, e.opts.Endpoints.VideoStart, nil, "sn", n.sn); err != nil {
		n.logger.Warn("video start signal failed", "sn", n.sn, "error", err)
	}
	if err := e.call(ctx, n, e.opts.Endpoints.AdCheck, nil,
		"sn", n.sn, "device", n.device, "hash", randomHash(12)); err != nil {
		n.logger.Warn("ad check failed", "sn", n.sn, "error", err)
	}

	n.state = StateAdGated
	return nil
}

type manifestResponse struct {
	Src   string          `json:"src"`
	Error json.RawMessage `json:"error,omitempty"`
}

func (e *Engine) pollManifest(ctx context.Context, n *negotiation) (string, error) {
	n.state = StatePollingManifest

	for attempt := 1; attempt <= e.opts.PollAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, e.opts.PollInterval); err != nil {
				return "", n.fail(nil, err)
			}
		}

		var out manifestResponse
		if err := e.call(ctx, n, e.opts.Endpoints.Manifest, &out, "sn", n.sn, "device", n.device); err != nil {
			if ctx.Err() != nil {
				return "", n.fail(nil, ctx.Err())
			}
			n.logger.Debug("manifest poll failed", "attempt", attempt, "error", err)
			continue
		}
		if out.Src != "" {
			return out.Src, nil
		}

		code := 0
		if oe := decodeOriginError(out.Error); oe != nil {
			code = oe.Code
		}
		if code == lockConflictCode {
			if err := e.rotate(ctx, n, &LockConflictError{Code: code}); err != nil {
				return "", err
			}
			continue
		}

		n.logger.Debug("manifest not ready", "attempt", attempt, "origin_code", code)
	}

	return "", n.fail(ErrManifestTimeout, fmt.Errorf("no manifest after %d attempts", e.opts.PollAttempts))
}

// rotate releases the stale grant and swaps in a new device identity.
func (e *Engine) rotate(ctx context.Context, n *negotiation, conflict *LockConflictError) error {
	if n.rotations >= e.opts.MaxRotations {
		return n.fail(ErrLockConflict, conflict)
	}
	n.rotations++
	n.logger.Info("lock conflict, rotating device identity", "sn", n.sn, "rotation", n.rotations)

	if err := e.call(ctx, n, e.opts.Endpoints.Unlock, nil, "sn", n.sn); err != nil {
		return n.fail(ErrLockConflict, errors.Join(conflict, err))
	}

	if err := e.verifyUnlocked(ctx, n, conflict); err != nil {
		return err
	}

	previous := n.device
	if err := e.acquireDevice(ctx, n); err != nil {
		return err
	}
	n.state = StatePollingManifest
	n.logger.Debug("device identity rotated", "previous", previous, "device", n.device)
	return nil
}

type lockStatus struct {
	Lock  flexBool        `json:"lock"`
	Error json.RawMessage `json:"error"`
}

func (l lockStatus) locked() bool {
	if l.Lock {
		return true
	}
	oe := decodeOriginError(l.Error)
	return oe != nil && oe.Code == lockConflictCode
}

// verifyUnlocked asks the origin whether the unlock took. A grant that is
// still held costs another rotation and one more unlock call. A failed check
// is logged and treated as released.
func (e *Engine) verifyUnlocked(ctx context.Context, n *negotiation, conflict *LockConflictError) error {
	var status lockStatus
	if err := e.call(ctx, n, e.opts.Endpoints.CheckLock, &status, "device", n.device, "sn", n.sn); err != nil {
		n.logger.Warn("lock check failed", "sn", n.sn, "error", err)
		return nil
	}
	if !status.locked() {
		return nil
	}

	if n.rotations >= e.opts.MaxRotations {
		return n.fail(ErrLockConflict, fmt.Errorf("%w: still locked after unlock", conflict))
	}
	n.rotations++
	n.logger.Warn("video still locked after unlock, retrying", "sn", n.sn, "rotation", n.rotations)

	if err := e.call(ctx, n, e.opts.Endpoints.Unlock, nil, "sn", n.sn); err != nil {
		return n.fail(ErrLockConflict, errors.Join(conflict, err))
	}
	return nil
}

// finalize releases the (sn, device) reservation. It ignores cancellation
// of the negotiation and only logs failures.
func (e *Engine) finalize(ctx context.Context, n *negotiation) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.FinalizeTimeout)
	defer cancel()

	if err := e.call(ctx, n, e.opts.Endpoints.Unlock, nil, "sn", n.sn); err != nil {
		n.logger.Warn("final unlock failed", "sn", n.sn, "error", err)
		return
	}
	n.logger.Debug("final unlock sent", "sn", n.sn, "state", n.state)
}

// call expands t, performs a GET with the negotiation's headers, folds the
// response cookies back into the bundle and decodes JSON into out when set.
func (e *Engine) call(ctx context.Context, n *negotiation, t *uritemplate.Template, out any, kv ...string) error {
	u, err := expand(t, kv...)
	if err != nil {
		return err
	}

	referer := ""
	if n.sn != "" {
		referer, _ = expand(e.opts.Endpoints.Referer, "sn", n.sn)
	}

	resp, err := e.client.Do(ctx, &transport.Request{URL: u, Header: n.bundle.Header(referer)})
	if err != nil {
		return err
	}
	n.bundle = n.bundle.With(resp.Cookies)

	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	return resp.JSON(out)
}
