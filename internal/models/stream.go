package models

import "net/http"

// StreamDescriptor is everything a player needs to open a negotiated stream:
// the manifest URL plus the request context the origin expects alongside it.
// Values are never mutated after the engine produces them.
type StreamDescriptor struct {
	SN          string `json:"sn"`
	ManifestURL string `json:"m3u8Url"`
	Referer     string `json:"referer"`
	Cookies     string `json:"cookies,omitempty"`
	Origin      string `json:"origin"`
	Site        string `json:"site"`
}

// Valid reports whether the descriptor carries a manifest URL.
func (d StreamDescriptor) Valid() bool {
	return d.ManifestURL != ""
}

// Header returns the request headers for fetching the manifest and its segments.
func (d StreamDescriptor) Header(userAgent string) http.Header {
	h := make(http.Header)
	if d.Referer != "" {
		h.Set("Referer", d.Referer)
	}
	if d.Origin != "" {
		h.Set("Origin", d.Origin)
	}
	if d.Cookies != "" {
		h.Set("Cookie", d.Cookies)
	}
	if userAgent != "" {
		h.Set("User-Agent", userAgent)
	}
	return h
}
