// Package cache holds negotiated stream descriptors for their freshness window
// and proactively drops entries that active viewers will soon need refreshed.
package cache

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/streamresolver/internal/models"
)

const (
	// DefaultTTL is slightly under the origin's one hour manifest lifetime.
	DefaultTTL = 55 * time.Minute
	// DefaultRefreshHorizon is how far ahead the sweep looks for viewed entries.
	DefaultRefreshHorizon = 10 * time.Minute
)

// Entry is a cached descriptor. Entries are immutable; a store replaces the
// whole entry.
type Entry struct {
	VideoID     string
	Descriptor  models.StreamDescriptor
	ExpiresAt   time.Time
	LastFetched time.Time
}

// SweepResult reports what a sweep removed.
type SweepResult struct {
	Invalidated int // viewed entries dropped ahead of expiry
	Removed     int // entries dropped after expiry
}

// Config configures a Cache.
type Config struct {
	TTL            time.Duration
	RefreshHorizon time.Duration
	Now            func() time.Time
	Logger         *slog.Logger
}

// Cache maps video ids to descriptors and tracks which clients have viewed
// which videos.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	viewed  map[string]map[string]struct{} // client -> video ids

	ttl     time.Duration
	horizon time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// New creates an empty cache.
func New(cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RefreshHorizon <= 0 {
		cfg.RefreshHorizon = DefaultRefreshHorizon
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Cache{
		entries: make(map[string]*Entry),
		viewed:  make(map[string]map[string]struct{}),
		ttl:     cfg.TTL,
		horizon: cfg.RefreshHorizon,
		now:     cfg.Now,
		logger:  cfg.Logger,
	}
}

// Lookup returns the entry for videoID if it is still fresh. An expired entry
// is removed as a side effect.
func (c *Cache) Lookup(videoID string) (Entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[videoID]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}

	if c.now().After(e.ExpiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[videoID]; ok && cur == e {
			delete(c.entries, videoID)
		}
		c.mu.Unlock()
		c.logger.Debug("cache entry expired on lookup", "video_id", videoID)
		return Entry{}, false
	}

	return *e, true
}

// Store caches d for the default TTL.
func (c *Cache) Store(videoID string, d models.StreamDescriptor) Entry {
	return c.StoreTTL(videoID, d, c.ttl)
}

// StoreTTL caches d for ttl, replacing any existing entry.
func (c *Cache) StoreTTL(videoID string, d models.StreamDescriptor, ttl time.Duration) Entry {
	now := c.now()
	e := &Entry{
		VideoID:     videoID,
		Descriptor:  d,
		ExpiresAt:   now.Add(ttl),
		LastFetched: now,
	}

	c.mu.Lock()
	c.entries[videoID] = e
	c.mu.Unlock()

	c.logger.Debug("cache entry stored", "video_id", videoID, "expires_at", e.ExpiresAt)
	return *e
}

// MarkViewed records that clientID requested videoID.
func (c *Cache) MarkViewed(clientID, videoID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.viewed[clientID]
	if !ok {
		set = make(map[string]struct{})
		c.viewed[clientID] = set
	}
	set[videoID] = struct{}{}
}

// Invalidate drops the entry for videoID. It reports whether one existed.
func (c *Cache) Invalidate(videoID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[videoID]
	delete(c.entries, videoID)
	return ok
}

// Sweep drops viewed entries that expire within the refresh horizon so the
// next request renegotiates, then removes every expired entry.
func (c *Cache) Sweep() SweepResult {
	now := c.now()
	horizon := now.Add(c.horizon)

	c.mu.Lock()
	defer c.mu.Unlock()

	var res SweepResult
	for _, videos := range c.viewed {
		for videoID := range videos {
			e, ok := c.entries[videoID]
			if !ok {
				continue
			}
			if !e.ExpiresAt.After(horizon) {
				delete(c.entries, videoID)
				res.Invalidated++
			}
		}
	}

	for videoID, e := range c.entries {
		if now.After(e.ExpiresAt) {
			delete(c.entries, videoID)
			res.Removed++
		}
	}

	if res.Invalidated > 0 || res.Removed > 0 {
		c.logger.Info("cache sweep",
			"invalidated", res.Invalidated,
			"removed", res.Removed,
			"remaining", len(c.entries),
		)
	}
	return res
}

// Stats returns counts for the cache and the viewed index.
func (c *Cache) Stats() models.CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	videos := make(map[string]struct{})
	for _, set := range c.viewed {
		for videoID := range set {
			videos[videoID] = struct{}{}
		}
	}

	return models.CacheStats{
		TotalCached:  len(c.entries),
		TotalClients: len(c.viewed),
		ViewedVideos: len(videos),
	}
}

// ScheduleSweep registers Sweep on the cron scheduler at a fixed interval.
func (c *Cache) ScheduleSweep(sched *cron.Cron, every time.Duration) (cron.EntryID, error) {
	if every <= 0 {
		return 0, fmt.Errorf("invalid sweep interval %v", every)
	}
	id, err := sched.AddFunc("@every "+every.String(), func() { c.Sweep() })
	if err != nil {
		return 0, fmt.Errorf("schedule cache sweep: %w", err)
	}
	return id, nil
}
