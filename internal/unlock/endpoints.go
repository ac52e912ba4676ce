package unlock

import (
	"fmt"
	"strings"

	"github.com/yosida95/uritemplate/v3"
)

// DefaultLoginURL is the origin's mobile login endpoint.
const DefaultLoginURL = "https://api.gamer.com.tw/mobile_app/user/v3/do_login.php"

// CookiePrefixes selects the origin cookies forwarded on protocol calls.
var CookiePrefixes = []string{"BAHARUNE", "ANIME_SIGN", "ckM", "BAHAID", "BAHAENUR"}

// Endpoints are the origin calls of the protocol as RFC 6570 templates.
type Endpoints struct {
	Login      *uritemplate.Template
	DeviceID   *uritemplate.Template
	Token      *uritemplate.Template // access grant, adID=0
	AdStart    *uritemplate.Template
	AdEnd      *uritemplate.Template
	VideoStart *uritemplate.Template
	AdCheck    *uritemplate.Template
	CheckLock  *uritemplate.Template
	Unlock     *uritemplate.Template
	Manifest   *uritemplate.Template
	Referer    *uritemplate.Template
	Origin     string
}

// DefaultEndpoints roots every template at base. An empty loginURL uses
// DefaultLoginURL.
func DefaultEndpoints(base, loginURL string) (Endpoints, error) {
	base = strings.TrimSuffix(base, "/")
	if base == "" {
		return Endpoints{}, fmt.Errorf("empty origin base url")
	}
	if loginURL == "" {
		loginURL = DefaultLoginURL
	}

	var (
		e   = Endpoints{Origin: base}
		err error
	)
	for _, ep := range []struct {
		dst **uritemplate.Template
		raw string
	}{
		{&e.Login, loginURL},
		{&e.DeviceID, base + "/ajax/getdeviceid.php"},
		{&e.Token, base + "/ajax/token.php?adID=0{&sn,device,hash}"},
		{&e.AdStart, base + "/ajax/videoCastcishu.php{?sn}&s=194699"},
		{&e.AdEnd, base + "/ajax/videoCastcishu.php{?sn}&s=194699&ad=end"},
		{&e.VideoStart, base + "/ajax/videoStart.php{?sn}"},
		{&e.AdCheck, base + "/ajax/token.php{?sn,device,hash}"},
		{&e.CheckLock, base + "/ajax/checklock.php{?device,sn}"},
		{&e.Unlock, base + "/ajax/unlock.php{?sn}&ttl=0"},
		{&e.Manifest, base + "/ajax/m3u8.php{?sn,device}"},
		{&e.Referer, base + "/animeVideo.php{?sn}"},
	} {
		if *ep.dst, err = uritemplate.New(ep.raw); err != nil {
			return Endpoints{}, fmt.Errorf("endpoint template %q: %w", ep.raw, err)
		}
	}
	return e, nil
}

// expand fills t with alternating name/value pairs.
func expand(t *uritemplate.Template, kv ...string) (string, error) {
	vars := uritemplate.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		vars.Set(kv[i], uritemplate.String(kv[i+1]))
	}
	return t.Expand(vars)
}
