package guard402

import "net/url"

// ServiceIDFromURL derives the service identity for budget scoping from a
// request target. The host (including any port) is the identity; a relative
// or unparseable target falls back to the raw string so such requests still
// get a stable scope.
func ServiceIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
