// Package extract provides small composable strategies for pulling a single
// token (an id, a URL) out of a raw document. Each site builds a chain of
// strategies; none of them know about the site they serve.
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extractor pulls one token out of raw text.
type Extractor interface {
	Extract(raw string) (string, bool)
}

// Func adapts a function to Extractor.
type Func func(raw string) (string, bool)

// Extract calls f.
func (f Func) Extract(raw string) (string, bool) {
	return f(raw)
}

// Regex returns the first capture group of Pattern, or the whole match when
// the pattern has no groups.
type Regex struct {
	Pattern *regexp.Regexp
}

// NewRegex compiles pattern into a Regex extractor. It panics on an invalid
// pattern, like regexp.MustCompile.
func NewRegex(pattern string) Regex {
	return Regex{Pattern: regexp.MustCompile(pattern)}
}

// Extract implements Extractor.
func (r Regex) Extract(raw string) (string, bool) {
	m := r.Pattern.FindStringSubmatch(raw)
	switch {
	case m == nil:
		return "", false
	case len(m) > 1:
		return m[1], m[1] != ""
	default:
		return m[0], m[0] != ""
	}
}

// Between returns the text between the first Start and the following End.
// An empty End reads to the end of the input.
type Between struct {
	Start string
	End   string
}

// Extract implements Extractor.
func (b Between) Extract(raw string) (string, bool) {
	_, rest, ok := strings.Cut(raw, b.Start)
	if !ok {
		return "", false
	}
	if b.End == "" {
		return rest, rest != ""
	}
	token, _, ok := strings.Cut(rest, b.End)
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// Attr selects the first element matching Selector in an HTML document and
// reads Attribute from it. When Then is set it is applied to the attribute
// value, otherwise the value itself is the token.
type Attr struct {
	Selector  string
	Attribute string
	Then      Extractor
}

// Meta reads the content of <meta property="..."> and refines it with then.
func Meta(property string, then Extractor) Attr {
	return Attr{Selector: `meta[property="` + property + `"]`, Attribute: "content", Then: then}
}

// Link reads the href of the first anchor matching selector and refines it
// with then.
func Link(selector string, then Extractor) Attr {
	return Attr{Selector: selector, Attribute: "href", Then: then}
}

// Extract implements Extractor.
func (a Attr) Extract(raw string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", false
	}
	value, ok := doc.Find(a.Selector).First().Attr(a.Attribute)
	if !ok || value == "" {
		return "", false
	}
	if a.Then == nil {
		return value, true
	}
	return a.Then.Extract(value)
}

// Chain tries each extractor in order and returns the first hit.
type Chain []Extractor

// Extract implements Extractor.
func (c Chain) Extract(raw string) (string, bool) {
	for _, e := range c {
		if token, ok := e.Extract(raw); ok {
			return token, true
		}
	}
	return "", false
}
