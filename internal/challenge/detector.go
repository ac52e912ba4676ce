// Package challenge detects anti-bot interstitials and CAPTCHA widgets in
// fetched pages so the page fetcher can wait them out or hand them to a solver.
package challenge

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Type represents the type of challenge detected on a page.
type Type string

const (
	// TypeNone indicates no challenge was detected.
	TypeNone Type = "none"
	// TypeCloudflareJS indicates a Cloudflare JavaScript challenge (auto-resolves).
	TypeCloudflareJS Type = "cloudflare_js"
	// TypeCloudflareTurnstile indicates a Cloudflare Turnstile CAPTCHA.
	TypeCloudflareTurnstile Type = "cloudflare_turnstile"
	// TypeCloudflareInterstitial indicates a Cloudflare interstitial page.
	TypeCloudflareInterstitial Type = "cloudflare_interstitial"
	// TypeDDoSGuard indicates a DDoS-Guard challenge.
	TypeDDoSGuard Type = "ddosguard"
	// TypeHCaptcha indicates an hCaptcha challenge.
	TypeHCaptcha Type = "hcaptcha"
	// TypeReCaptchaV2 indicates a reCAPTCHA v2 challenge.
	TypeReCaptchaV2 Type = "recaptcha_v2"
	// TypeReCaptchaV3 indicates a reCAPTCHA v3 (invisible).
	TypeReCaptchaV3 Type = "recaptcha_v3"
)

// Detection contains information about a detected challenge.
type Detection struct {
	Type    Type   `json:"type"`
	SiteKey string `json:"siteKey,omitempty"` // For CAPTCHA challenges
	Action  string `json:"action,omitempty"`  // For Turnstile
	CData   string `json:"cdata,omitempty"`   // For Turnstile
	Title   string `json:"title"`
	CanAuto bool   `json:"canAuto"` // Can be auto-resolved by waiting
}

// Found reports whether any challenge was detected.
func (d Detection) Found() bool {
	return d.Type != TypeNone
}

var titlePatterns = []string{
	"just a moment",
	"checking your browser",
	"attention required",
	"one more step",
	"verify you are human",
}

var recaptchaRender = regexp.MustCompile(`recaptcha/(?:api|enterprise)\.js\?[^"']*render=([^&"']+)`)

// Detector detects challenges in fetched page content.
type Detector struct{}

// NewDetector creates a new challenge detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect analyzes a fetched page. The status code is a hint only: a 403/503
// without a recognisable challenge marker is reported as no challenge so the
// caller surfaces the origin's own error instead.
func (d *Detector) Detect(status int, title, html string) Detection {
	detection := Detection{Type: TypeNone, Title: title}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return detection
	}
	if title == "" {
		detection.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	blocked := status == http.StatusForbidden || status == http.StatusServiceUnavailable || status == 0

	if siteKey, action, cdata := turnstileParams(doc); siteKey != "" {
		detection.Type = TypeCloudflareTurnstile
		detection.SiteKey, detection.Action, detection.CData = siteKey, action, cdata
		return detection
	}

	if blocked && isCloudflareTitle(detection.Title) {
		detection.Type = TypeCloudflareJS
		detection.CanAuto = true
		return detection
	}

	if doc.Find("#cf-browser-verification, .challenge-running, #cf-challenge-running").Length() > 0 {
		detection.Type = TypeCloudflareInterstitial
		detection.CanAuto = true
		return detection
	}

	if siteKey := widgetSiteKey(doc, `.h-captcha, iframe[src*="hcaptcha.com"]`); siteKey != "" {
		detection.Type = TypeHCaptcha
		detection.SiteKey = siteKey
		return detection
	}

	if siteKey := widgetSiteKey(doc, ".g-recaptcha"); siteKey != "" {
		detection.Type = TypeReCaptchaV2
		detection.SiteKey = siteKey
		return detection
	}
	if m := recaptchaRender.FindStringSubmatch(html); m != nil && m[1] != "explicit" {
		detection.Type = TypeReCaptchaV3
		detection.SiteKey = m[1]
		return detection
	}

	if strings.Contains(strings.ToLower(detection.Title), "ddos-guard") ||
		doc.Find(`meta[name="generator"][content*="DDoS-GUARD"]`).Length() > 0 {
		detection.Type = TypeDDoSGuard
		detection.CanAuto = true
		return detection
	}

	return detection
}

func isCloudflareTitle(title string) bool {
	lower := strings.ToLower(title)
	for _, pattern := range titlePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// turnstileParams extracts the Turnstile widget parameters when the widget or
// its challenge iframe is present.
func turnstileParams(doc *goquery.Document) (siteKey, action, cdata string) {
	widget := doc.Find(".cf-turnstile").First()
	if widget.Length() == 0 {
		if doc.Find(`iframe[src*="challenges.cloudflare.com"]`).Length() == 0 {
			return "", "", ""
		}
		widget = doc.Find("[data-sitekey]").First()
	}
	siteKey, _ = widget.Attr("data-sitekey")
	action, _ = widget.Attr("data-action")
	cdata, _ = widget.Attr("data-cdata")
	return siteKey, action, cdata
}

func widgetSiteKey(doc *goquery.Document, selector string) string {
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return ""
	}
	if key, ok := sel.First().Attr("data-sitekey"); ok {
		return key
	}
	key, _ := doc.Find("[data-sitekey]").First().Attr("data-sitekey")
	return key
}
