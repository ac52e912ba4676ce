package handlers

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/streamresolver/internal/logging"
	"github.com/jmylchreest/streamresolver/internal/models"
)

// CacheHandler inspects and invalidates cached streams.
type CacheHandler struct {
	resolver Resolver
	logger   *slog.Logger
}

// NewCacheHandler creates a new cache handler.
func NewCacheHandler(resolver Resolver, logger *slog.Logger) *CacheHandler {
	return &CacheHandler{resolver: resolver, logger: logger}
}

// Stats returns the cache statistics.
func (h *CacheHandler) Stats(ctx context.Context) *models.CacheResponse {
	return &models.CacheResponse{
		Status:  "ok",
		Message: "Cache statistics",
		Stats:   h.resolver.Stats(),
	}
}

// Invalidate drops a cached stream.
func (h *CacheHandler) Invalidate(ctx context.Context, videoID string) *models.CacheResponse {
	removed := h.resolver.Invalidate(videoID)
	logging.FromContext(ctx, h.logger).Info("cache invalidation requested", "video_id", videoID, "removed", removed)

	message := "Cache entry removed"
	if !removed {
		message = "No cache entry for video"
	}
	return &models.CacheResponse{
		Status:  "ok",
		Message: message,
		Stats:   h.resolver.Stats(),
		Removed: removed,
	}
}
