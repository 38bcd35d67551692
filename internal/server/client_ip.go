package server

import (
	"net"
	"net/http"
	"strings"

	"ogkb/ogkbd/internal/config"
)

// clientIP is the address the network check sees. X-Forwarded-For is read
// only behind a trusted proxy, and then only its last non-empty entry, which
// is the one the proxy itself appended.
func clientIP(r *http.Request, cfg config.Config) string {
	if cfg.TrustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			for i := len(parts) - 1; i >= 0; i-- {
				if p := strings.TrimSpace(parts[i]); p != "" {
					return p
				}
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// no port, or not an address at all; the chain decides
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func isSecureRequest(r *http.Request, cfg config.Config) bool {
	if r.TLS != nil {
		return true
	}
	if cfg.TrustProxy {
		if strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https") {
			return true
		}
	}
	return false
}
