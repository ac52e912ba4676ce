package unlock

import (
	"net/url"
	"regexp"

	"github.com/jmylchreest/streamresolver/internal/extract"
)

var numericSN = regexp.MustCompile(`^\d+$`)

// ParseSN returns the serial number a reference encodes directly: a bare
// number, or a URL with a numeric sn query parameter.
func ParseSN(ref string) (string, bool) {
	if numericSN.MatchString(ref) {
		return ref, true
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	sn := u.Query().Get("sn")
	if numericSN.MatchString(sn) {
		return sn, true
	}
	return "", false
}

// pageSN finds the serial number in a video or series page.
var pageSN = extract.Chain{
	extract.Meta("og:url", extract.NewRegex(`animeVideo\.php\?sn=(\d+)`)),
	extract.Link(`a[href*="animeVideo.php?sn="]`, extract.NewRegex(`sn=(\d+)`)),
}
