package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the host portion of the request's remote address. chi's
// RealIP middleware runs first and folds X-Forwarded-For / X-Real-IP into
// RemoteAddr, so handlers never parse forwarding headers themselves.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
