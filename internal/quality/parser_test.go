package quality

import "testing"

const masterPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
360p/index.m3u8?token=a
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080
https://other.example.com/1080p/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720
720p/index.m3u8?token=b
`

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:10.0,
seg0.ts
#EXTINF:10.0,
seg1.ts
#EXT-X-ENDLIST
`

const manifestURL = "https://cdn.example.com/vid/1234/playlist.m3u8?sig=xyz"

func TestParse_Master(t *testing.T) {
	got := Parse(manifestURL, masterPlaylist)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3: %+v", len(got), got)
	}

	want := []Variant{
		{Label: "1080p", Resolution: "1920x1080", Bandwidth: 5000000, URL: "https://other.example.com/1080p/index.m3u8"},
		{Label: "720p", Resolution: "1280x720", Bandwidth: 2500000, URL: "https://cdn.example.com/vid/1234/720p/index.m3u8?token=b"},
		{Label: "360p", Resolution: "640x360", Bandwidth: 800000, URL: "https://cdn.example.com/vid/1234/360p/index.m3u8?token=a"},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("variant[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParse_Media(t *testing.T) {
	got := Parse(manifestURL, mediaPlaylist)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Label != LabelDefault || got[0].URL != manifestURL {
		t.Errorf("variant = %+v, want default pointing at manifest", got[0])
	}
}

func TestParse_Degrades(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"html error page", "<html><body>403 Forbidden</body></html>"},
		{"header only", "#EXTM3U\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(manifestURL, tt.text)
			if len(got) != 1 {
				t.Fatalf("len = %d, want 1", len(got))
			}
			if got[0].Label != LabelUnknown || got[0].URL != manifestURL {
				t.Errorf("variant = %+v, want unknown pointing at manifest", got[0])
			}
		})
	}
}

func TestHighestLowest(t *testing.T) {
	variants := Parse(manifestURL, masterPlaylist)

	hi, ok := Highest(variants)
	if !ok || hi.Label != "1080p" {
		t.Errorf("Highest() = %+v, %v", hi, ok)
	}
	lo, ok := Lowest(variants)
	if !ok || lo.Label != "360p" {
		t.Errorf("Lowest() = %+v, %v", lo, ok)
	}

	if _, ok := Highest(nil); ok {
		t.Error("Highest(nil) should report false")
	}
	if _, ok := Lowest(nil); ok {
		t.Error("Lowest(nil) should report false")
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		resolution string
		bandwidth  uint32
		want       string
	}{
		{"1280x720", 0, "720p"},
		{"", 1500000, "1500kbps"},
		{"", 0, LabelUnknown},
	}
	for _, tt := range tests {
		if got := label(tt.resolution, tt.bandwidth); got != tt.want {
			t.Errorf("label(%q, %d) = %q, want %q", tt.resolution, tt.bandwidth, got, tt.want)
		}
	}
}
