package websocket

import (
	"net/http"
	"net/url"
	"strings"
)

// OriginPolicy admits handshakes whose Origin header equals allowed().
// Requests without an Origin header come from non-browser clients and are
// admitted. When allowed() is empty the origin must match the request host.
func OriginPolicy(allowed func() string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		want := allowed()
		if want == "" {
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return strings.EqualFold(u.Host, r.Host)
		}

		return origin == want
	}
}
