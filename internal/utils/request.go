package utils

import (
	"net"
	"net/http"
	"strings"
)

// RequestAddress returns the originating address of a request, honoring
// proxy headers in order of trust: the CDN connecting-IP header first, then
// the first entry of X-Forwarded-For, then the raw socket address.
func RequestAddress(r *http.Request) string {
	if forwarded := forwardedAddress(r); forwarded != "" {
		return normalizeAddress(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return normalizeAddress(host)
}

// IsLocalRequest reports whether the request originates from loopback. The
// result is meant to be captured once at accept time; callers must not
// re-derive it for a live connection.
func IsLocalRequest(r *http.Request) bool {
	return isLoopback(RequestAddress(r))
}

func forwardedAddress(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); v != "" {
		return strings.TrimSpace(strings.Split(v, ",")[0])
	}
	if v := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); v != "" {
		return strings.TrimSpace(strings.Split(v, ",")[0])
	}
	return ""
}

func normalizeAddress(addr string) string {
	return strings.TrimPrefix(addr, "::ffff:")
}

func isLoopback(addr string) bool {
	return addr == "127.0.0.1" || addr == "::1"
}
