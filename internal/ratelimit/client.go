package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// ClientKey identifies the caller of r for rate limiting. With
// trustForwardedFor the left-most X-Forwarded-For entry wins; only enable it
// behind a proxy that overwrites the header.
func ClientKey(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
