// Package quality expands an HLS manifest into its playable variants.
package quality

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/grafov/m3u8"
)

const (
	// LabelDefault names the only variant of a media playlist.
	LabelDefault = "default"
	// LabelUnknown names the fallback variant when the manifest cannot be parsed.
	LabelUnknown = "unknown"
)

// Variant is one playable rendition.
type Variant struct {
	Label      string
	Resolution string
	Bandwidth  uint32
	URL        string
}

// Parse reads manifest text fetched from manifestURL. Master playlists yield
// one variant per stream, sorted by bandwidth descending with relative URIs
// resolved against manifestURL. A media playlist yields a single default
// variant. Anything unparsable yields a single unknown variant pointing at
// manifestURL so callers always have something to play.
func Parse(manifestURL, text string) []Variant {
	variants, err := parse(manifestURL, text)
	if err != nil || len(variants) == 0 {
		return []Variant{{Label: LabelUnknown, URL: manifestURL}}
	}
	return variants
}

func parse(manifestURL, text string) ([]Variant, error) {
	base, err := url.Parse(manifestURL)
	if err != nil {
		return nil, err
	}

	playlist, listType, err := m3u8.DecodeFrom(strings.NewReader(text), false)
	if err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	switch listType {
	case m3u8.MASTER:
		master, ok := playlist.(*m3u8.MasterPlaylist)
		if !ok {
			return nil, fmt.Errorf("unexpected playlist type %T", playlist)
		}
		return masterVariants(base, master), nil
	case m3u8.MEDIA:
		media, ok := playlist.(*m3u8.MediaPlaylist)
		if !ok || media.Count() == 0 {
			return nil, fmt.Errorf("media playlist has no segments")
		}
		return []Variant{{Label: LabelDefault, URL: manifestURL}}, nil
	default:
		return nil, fmt.Errorf("unrecognised playlist")
	}
}

func masterVariants(base *url.URL, master *m3u8.MasterPlaylist) []Variant {
	variants := make([]Variant, 0, len(master.Variants))
	for _, v := range master.Variants {
		if v == nil || v.URI == "" {
			continue
		}
		ref, err := url.Parse(strings.TrimSpace(v.URI))
		if err != nil {
			continue
		}
		variants = append(variants, Variant{
			Label:      label(v.Resolution, v.Bandwidth),
			Resolution: v.Resolution,
			Bandwidth:  v.Bandwidth,
			URL:        base.ResolveReference(ref).String(),
		})
	}

	sort.SliceStable(variants, func(i, j int) bool {
		return variants[i].Bandwidth > variants[j].Bandwidth
	})
	return variants
}

// label renders "720p" from "1280x720", falling back to the bandwidth.
func label(resolution string, bandwidth uint32) string {
	if _, height, ok := strings.Cut(resolution, "x"); ok && height != "" {
		return height + "p"
	}
	if bandwidth > 0 {
		return fmt.Sprintf("%dkbps", bandwidth/1000)
	}
	return LabelUnknown
}

// Highest returns the highest-bandwidth variant.
func Highest(variants []Variant) (Variant, bool) {
	if len(variants) == 0 {
		return Variant{}, false
	}
	best := variants[0]
	for _, v := range variants[1:] {
		if v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	return best, true
}

// Lowest returns the lowest-bandwidth variant.
func Lowest(variants []Variant) (Variant, bool) {
	if len(variants) == 0 {
		return Variant{}, false
	}
	low := variants[0]
	for _, v := range variants[1:] {
		if v.Bandwidth < low.Bandwidth {
			low = v
		}
	}
	return low, true
}
