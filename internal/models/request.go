// Package models defines shared domain values and API request and response types.
package models

// Cookie represents an HTTP cookie.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Expires  int64  `json:"expires,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	SameSite string `json:"sameSite,omitempty"`
}

// ResolveRequest asks for the manifest of a video page or serial number.
type ResolveRequest struct {
	Ref       string `json:"ref" minLength:"1" doc:"Video serial number or video page URL"`
	Force     bool   `json:"force,omitempty" doc:"Bypass the cache and renegotiate"`
	Qualities bool   `json:"qualities,omitempty" doc:"Fetch the manifest and list its variants"`
}

// HumaResolveRequest wraps ResolveRequest for Huma API.
type HumaResolveRequest struct {
	Body ResolveRequest
}

// ResolveQuery is the query-string form of ResolveRequest.
type ResolveQuery struct {
	Ref       string `query:"ref" required:"true" doc:"Video serial number or video page URL"`
	Force     bool   `query:"force" doc:"Bypass the cache and renegotiate"`
	Qualities bool   `query:"qualities" doc:"Fetch the manifest and list its variants"`
}

// InvalidateRequest identifies a cache entry to drop.
type InvalidateRequest struct {
	VideoID string `path:"videoId" doc:"Video identifier as returned in stream.videoId"`
}

// ProxyRequest toggles the session's upstream proxy.
type ProxyRequest struct {
	Enabled bool `json:"enabled"`
}

// HumaProxyRequest wraps ProxyRequest for Huma API.
type HumaProxyRequest struct {
	Body ProxyRequest
}
