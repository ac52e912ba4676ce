// Package handlers provides HTTP handlers for the stream resolver API.
package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmylchreest/streamresolver/internal/logging"
	"github.com/jmylchreest/streamresolver/internal/models"
	"github.com/jmylchreest/streamresolver/internal/stream"
	"github.com/jmylchreest/streamresolver/internal/version"
)

// Resolver is the part of *stream.Resolver the handlers use.
type Resolver interface {
	Resolve(ctx context.Context, req stream.Request) (*stream.Result, error)
	Invalidate(videoID string) bool
	Stats() models.CacheStats
}

// StreamHandler handles stream requests.
type StreamHandler struct {
	resolver Resolver
	logger   *slog.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(resolver Resolver, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{resolver: resolver, logger: logger}
}

// Handle resolves req for the calling client.
func (h *StreamHandler) Handle(ctx context.Context, req *models.ResolveRequest) *models.StreamResponse {
	startTime := time.Now().UnixMilli()
	ver := version.Get().Version
	requestID := logging.GetRequestID(ctx)

	res, err := h.resolver.Resolve(ctx, stream.Request{
		Ref:       req.Ref,
		ClientID:  logging.GetClientID(ctx),
		Force:     req.Force,
		Qualities: req.Qualities,
	})
	if err != nil {
		logging.FromContext(ctx, h.logger).Warn("stream resolution failed",
			"ref", req.Ref,
			"force", req.Force,
			"error", err,
		)
		return models.NewErrorResponse(reason(err), startTime, time.Now().UnixMilli(), ver, requestID)
	}

	d := res.Entry.Descriptor
	info := &models.StreamInfo{
		VideoID:   res.VideoID,
		SN:        d.SN,
		M3U8URL:   d.ManifestURL,
		Referer:   d.Referer,
		Cookies:   d.Cookies,
		Origin:    d.Origin,
		Site:      d.Site,
		Cached:    res.Cached,
		ExpiresAt: res.Entry.ExpiresAt.UnixMilli(),
	}

	var qualities []models.Quality
	for _, v := range res.Variants {
		qualities = append(qualities, models.Quality{
			Label:      v.Label,
			Resolution: v.Resolution,
			Bandwidth:  v.Bandwidth,
			URL:        v.URL,
		})
	}

	return models.NewSuccessResponse(info, qualities, startTime, time.Now().UnixMilli(), ver, requestID)
}
