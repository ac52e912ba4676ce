// Package stream answers stream requests from the cache and falls back to a
// negotiation on a miss.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/jmylchreest/streamresolver/internal/cache"
	"github.com/jmylchreest/streamresolver/internal/logging"
	"github.com/jmylchreest/streamresolver/internal/models"
	"github.com/jmylchreest/streamresolver/internal/quality"
	"github.com/jmylchreest/streamresolver/internal/transport"
	"github.com/jmylchreest/streamresolver/internal/unlock"
)

// ErrEmptyRef is returned for a request without a reference.
var ErrEmptyRef = errors.New("empty video reference")

// Negotiator produces a descriptor for a reference. *unlock.Engine implements it.
type Negotiator interface {
	Negotiate(ctx context.Context, ref string) (models.StreamDescriptor, error)
}

// Doer fetches manifests. *transport.Client implements it.
type Doer interface {
	Do(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

// Request is one stream lookup.
type Request struct {
	Ref       string
	ClientID  string
	Force     bool
	Qualities bool
}

// Result is a resolved stream.
type Result struct {
	VideoID  string
	Entry    cache.Entry
	Cached   bool
	Variants []quality.Variant // set only when requested
}

// Config configures a Resolver.
type Config struct {
	UserAgent string
	// Activity, when set, brackets each negotiation so idle tracking sees
	// flights that outlive their callers.
	Activity func() (end func())
	Logger   *slog.Logger
}

// Resolver coalesces concurrent negotiations for the same video.
type Resolver struct {
	negotiator Negotiator
	cache      *cache.Cache
	client     Doer
	cfg        Config
	group      singleflight.Group
}

// New creates a Resolver. client may be nil, in which case qualities always
// degrade to the single unknown variant.
func New(negotiator Negotiator, c *cache.Cache, client Doer, cfg Config) *Resolver {
	return &Resolver{negotiator: negotiator, cache: c, client: client, cfg: cfg}
}

// VideoID is the cache key for a reference: its serial number when it
// carries one, otherwise the trimmed reference itself.
func VideoID(ref string) string {
	ref = strings.TrimSpace(ref)
	if sn, ok := unlock.ParseSN(ref); ok {
		return sn
	}
	return ref
}

// Resolve returns the stream for req.Ref.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	ref := strings.TrimSpace(req.Ref)
	if ref == "" {
		return nil, ErrEmptyRef
	}

	videoID := VideoID(ref)
	ctx = logging.WithVideoID(ctx, videoID)
	logger := logging.FromContext(ctx, r.cfg.Logger)

	if req.ClientID != "" {
		r.cache.MarkViewed(req.ClientID, videoID)
	}

	res := &Result{VideoID: videoID}
	if entry, ok := r.cache.Lookup(videoID); ok && !req.Force {
		logger.Debug("stream served from cache", "expires_at", entry.ExpiresAt)
		res.Entry = entry
		res.Cached = true
	} else {
		entry, err := r.negotiate(ctx, videoID, ref)
		if err != nil {
			return nil, err
		}
		res.Entry = entry
	}

	if req.Qualities {
		res.Variants = r.variants(ctx, res.Entry.Descriptor)
	}
	return res, nil
}

// negotiate runs at most one negotiation per video. The shared negotiation
// outlives a cancelled caller so the others still get the result.
func (r *Resolver) negotiate(ctx context.Context, videoID, ref string) (cache.Entry, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(videoID, func() (any, error) {
		if r.cfg.Activity != nil {
			defer r.cfg.Activity()()
		}
		d, err := r.negotiator.Negotiate(flightCtx, ref)
		if err != nil {
			return nil, err
		}
		return r.cache.Store(videoID, d), nil
	})

	select {
	case <-ctx.Done():
		return cache.Entry{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return cache.Entry{}, res.Err
		}
		if res.Shared {
			logging.FromContext(ctx, r.cfg.Logger).Debug("joined in-flight negotiation")
		}
		return res.Val.(cache.Entry), nil
	}
}

func (r *Resolver) variants(ctx context.Context, d models.StreamDescriptor) []quality.Variant {
	if r.client == nil {
		return quality.Parse(d.ManifestURL, "")
	}

	resp, err := r.client.Do(ctx, &transport.Request{URL: d.ManifestURL, Header: d.Header(r.cfg.UserAgent)})
	if err != nil {
		logging.FromContext(ctx, r.cfg.Logger).Warn("manifest fetch failed, qualities unknown", "error", err)
		return quality.Parse(d.ManifestURL, "")
	}
	return quality.Parse(d.ManifestURL, string(resp.Body))
}

// Invalidate drops the cached stream for videoID.
func (r *Resolver) Invalidate(videoID string) bool {
	return r.cache.Invalidate(VideoID(videoID))
}

// Stats reports the cache state.
func (r *Resolver) Stats() models.CacheStats {
	return r.cache.Stats()
}
