package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"ogkb/ogkbd/internal/audit"
	"ogkb/ogkbd/internal/config"
	"ogkb/ogkbd/internal/gateway"
)

type countingExecutor struct {
	mu    sync.Mutex
	calls int
	// before runs inside Execute, on the worker goroutine
	before func()
}

func (e *countingExecutor) Execute(ctx context.Context) gateway.ExecResult {
	if e.before != nil {
		e.before()
	}
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return gateway.ExecResult{Code: 0, Output: "Powering off"}
}

func (e *countingExecutor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type testEnv struct {
	srv  *Server
	cfg  config.Config
	exec *countingExecutor
	mem  *audit.Memory
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	tmp := t.TempDir()
	cfg := config.Defaults()
	cfg.LogDir = filepath.Join(tmp, "logs")
	cfg.MediaRoot = filepath.Join(tmp, "media")
	cfg.SessionsPath = filepath.Join(tmp, "state", "sessions.json")
	cfg.SecretPath = filepath.Join(tmp, "state", "secret.key")
	cfg.RateLimitPath = filepath.Join(tmp, "state", "ratelimit.json")
	for _, d := range []string{cfg.LogDir, cfg.MediaRoot} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return newTestEnvWithConfig(t, cfg)
}

// newTestEnvWithConfig starts a server on existing state, as after a restart.
func newTestEnvWithConfig(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	env := &testEnv{cfg: cfg, exec: &countingExecutor{}, mem: &audit.Memory{}}
	logger := zerolog.Nop()
	srv, err := New(cfg, Deps{Executor: env.exec, Audit: env.mem, Logger: &logger})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(srv.Close)
	env.srv = srv
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

var tokenAttr = regexp.MustCompile(`data-token="([0-9a-f]+)"`)

// issue visits the issuance page the way a browser on the LAN would.
func (e *testEnv) issue(t *testing.T, cookie *http.Cookie) (*http.Cookie, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/shutdown", nil)
	req.RemoteAddr = "192.168.1.20:50000"
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := e.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("issuance page: %d %s", rec.Code, rec.Body.String())
	}
	m := tokenAttr.FindStringSubmatch(rec.Body.String())
	if m == nil {
		t.Fatalf("no token in page: %s", rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			cookie = c
		}
	}
	return cookie, m[1]
}

// seed creates a session holding tok and returns its cookie.
func (e *testEnv) seed(t *testing.T, tok string) *http.Cookie {
	t.Helper()
	sess, err := e.srv.sessions.Create()
	if err != nil {
		t.Fatal(err)
	}
	if err := e.srv.sessions.SetToken(sess.ID, tok); err != nil {
		t.Fatal(err)
	}
	val, err := e.srv.cookies.Encode(SessionCookieName, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Cookie{Name: SessionCookieName, Value: val}
}

func shutdownRequest(method, remote string, cookie *http.Cookie, tok string) *http.Request {
	var req *http.Request
	if method == http.MethodPost {
		req = httptest.NewRequest(method, "/api/shutdown", strings.NewReader(url.Values{"token": {tok}}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, "/api/shutdown", nil)
	}
	req.RemoteAddr = remote
	req.Header.Set("User-Agent", "test-agent")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func hasPrefix(events []string, prefix string) bool {
	for _, e := range events {
		if strings.HasPrefix(e, prefix) {
			return true
		}
	}
	return false
}
