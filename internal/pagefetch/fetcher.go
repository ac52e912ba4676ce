// Package pagefetch loads origin pages, either through the shared browser
// session or over plain HTTP, and deals with bot-protection challenges on the
// way.
package pagefetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmylchreest/streamresolver/internal/challenge"
)

// Fetcher returns the HTML of a page.
type Fetcher interface {
	FetchPage(ctx context.Context, url string, header http.Header) (string, error)
}

var (
	// ErrChallengeDetected is returned by fetchers that cannot pass challenges themselves.
	ErrChallengeDetected = errors.New("bot protection challenge detected")
	// ErrChallengeUnsolved is returned when a challenge could not be passed.
	ErrChallengeUnsolved = errors.New("challenge could not be solved")
)

// ChallengeError carries the challenge that blocked a fetch.
type ChallengeError struct {
	URL   string
	Type  challenge.Type
	Cause error
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("%s challenge on %s: %v", e.Type, e.URL, e.Cause)
}

func (e *ChallengeError) Unwrap() error {
	return e.Cause
}

// Fallback tries Primary and switches to Secondary when Primary hits a challenge.
type Fallback struct {
	Primary   Fetcher
	Secondary Fetcher
	Logger    *slog.Logger
}

// FetchPage implements Fetcher.
func (f *Fallback) FetchPage(ctx context.Context, url string, header http.Header) (string, error) {
	html, err := f.Primary.FetchPage(ctx, url, header)
	if err == nil || f.Secondary == nil || !errors.Is(err, ErrChallengeDetected) {
		return html, err
	}

	f.Logger.Info("challenge on plain fetch, retrying in browser", "url", url, "error", err)
	return f.Secondary.FetchPage(ctx, url, header)
}

func flattenHeader(header http.Header) map[string]string {
	if len(header) == 0 {
		return nil
	}
	out := make(map[string]string, len(header))
	for k, v := range header {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
