package server

import (
	"crypto/tls"
	"net/http"
	"testing"

	"ogkb/ogkbd/internal/config"
)

func TestClientIPExtractor(t *testing.T) {
	cases := []struct {
		name   string
		trust  bool
		remote string
		xff    string
		want   string
	}{
		{"no-proxy", false, "1.1.1.1:123", "", "1.1.1.1"},
		{"no-proxy-ignores-xff", false, "203.0.113.5:123", "127.0.0.1", "203.0.113.5"},
		{"ipv6", false, "[::1]:8080", "", "::1"},
		{"no-port", false, "192.168.1.4", "", "192.168.1.4"},
		{"proxy-single", true, "10.0.0.1:443", "203.0.113.5", "203.0.113.5"},
		{"proxy-multi", true, "10.0.0.1:443", "10.0.0.2, 203.0.113.9 ", "203.0.113.9"},
		{"malformed", true, "198.51.100.7:555", ",,  203.0.113.10,,,", "203.0.113.10"},
		{"proxy-no-header", true, "10.0.0.1:443", "", "10.0.0.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Defaults()
			cfg.TrustProxy = tc.trust
			req, _ := http.NewRequest("GET", "/", nil)
			req.RemoteAddr = tc.remote
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			got := clientIP(req, cfg)
			if got != tc.want {
				t.Fatalf("want %s got %s", tc.want, got)
			}
		})
	}
}

func TestIsSecureRequest(t *testing.T) {
	cfg := config.Defaults()
	req, _ := http.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	if isSecureRequest(req, cfg) {
		t.Fatalf("forwarded proto must be ignored without a trusted proxy")
	}
	cfg.TrustProxy = true
	if !isSecureRequest(req, cfg) {
		t.Fatalf("trusted proxy https not detected")
	}
	req2, _ := http.NewRequest("GET", "/", nil)
	req2.TLS = &tls.ConnectionState{}
	if !isSecureRequest(req2, config.Defaults()) {
		t.Fatalf("native TLS not detected")
	}
}
