package models

// StreamInfo is the API view of a resolved stream.
type StreamInfo struct {
	VideoID   string `json:"videoId"`
	SN        string `json:"sn"`
	M3U8URL   string `json:"m3u8Url"`
	Referer   string `json:"referer"`
	Cookies   string `json:"cookies,omitempty"`
	Origin    string `json:"origin"`
	Site      string `json:"site"`
	Cached    bool   `json:"cached"`
	ExpiresAt int64  `json:"expiresAt"` // Unix timestamp ms
}

// Quality describes one playable variant of a stream.
type Quality struct {
	Label      string `json:"label"`
	Resolution string `json:"resolution,omitempty"`
	Bandwidth  uint32 `json:"bandwidth,omitempty"`
	URL        string `json:"url"`
}

// StreamResponse is returned by the stream endpoints.
type StreamResponse struct {
	Status         string      `json:"status"`  // "ok" | "error"
	Message        string      `json:"message"` // Human-readable message
	Stream         *StreamInfo `json:"stream,omitempty"`
	Qualities      []Quality   `json:"qualities,omitempty"`
	StartTimestamp int64       `json:"startTimestamp"` // Unix timestamp ms
	EndTimestamp   int64       `json:"endTimestamp"`   // Unix timestamp ms
	Version        string      `json:"version"`
	RequestID      string      `json:"requestId,omitempty"`
}

// HumaStreamResponse wraps StreamResponse for Huma API.
type HumaStreamResponse struct {
	Body StreamResponse
}

// CacheStats summarizes the stream cache.
type CacheStats struct {
	TotalCached  int `json:"totalCached"`
	TotalClients int `json:"totalClients"`
	ViewedVideos int `json:"viewedVideos"`
}

// CacheResponse is returned by the cache endpoints.
type CacheResponse struct {
	Status  string     `json:"status"`
	Message string     `json:"message"`
	Stats   CacheStats `json:"stats"`
	Removed bool       `json:"removed,omitempty"`
}

// HumaCacheResponse wraps CacheResponse for Huma API.
type HumaCacheResponse struct {
	Body CacheResponse
}

// SessionInfo contains information about the browser session.
type SessionInfo struct {
	ID              string `json:"id,omitempty"`
	Connected       bool   `json:"connected"`
	CreatedAt       int64  `json:"createdAt,omitempty"`  // Unix timestamp ms
	LastUsedAt      int64  `json:"lastUsedAt,omitempty"` // Unix timestamp ms
	NavigationCount int    `json:"navigationCount"`
	UserAgent       string `json:"userAgent,omitempty"`
	ProxyEnabled    bool   `json:"proxyEnabled"`
	Proxy           string `json:"proxy,omitempty"` // Proxy URL if set (masked)
}

// SessionResponse is returned by the session endpoints.
type SessionResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Session SessionInfo `json:"session"`
	Version string      `json:"version"`
}

// HumaSessionResponse wraps SessionResponse for Huma API.
type HumaSessionResponse struct {
	Body SessionResponse
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string      `json:"status"`
	Version string      `json:"version"`
	Uptime  int64       `json:"uptimeSeconds"`
	Session SessionInfo `json:"session"`
	Cache   CacheStats  `json:"cache"`
}

// HumaHealthResponse wraps HealthResponse for Huma API.
type HumaHealthResponse struct {
	Body HealthResponse
}

// NewErrorResponse creates an error response.
func NewErrorResponse(message string, startTime, endTime int64, version, requestID string) *StreamResponse {
	return &StreamResponse{
		Status:         "error",
		Message:        message,
		StartTimestamp: startTime,
		EndTimestamp:   endTime,
		Version:        version,
		RequestID:      requestID,
	}
}

// NewSuccessResponse creates a success response with a resolved stream.
func NewSuccessResponse(stream *StreamInfo, qualities []Quality, startTime, endTime int64, version, requestID string) *StreamResponse {
	message := "Stream resolved"
	if stream != nil && stream.Cached {
		message = "Stream served from cache"
	}
	return &StreamResponse{
		Status:         "ok",
		Message:        message,
		Stream:         stream,
		Qualities:      qualities,
		StartTimestamp: startTime,
		EndTimestamp:   endTime,
		Version:        version,
		RequestID:      requestID,
	}
}
