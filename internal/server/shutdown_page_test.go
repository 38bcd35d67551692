package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"ogkb/ogkbd/internal/config"
	"ogkb/ogkbd/internal/sessions"
)

func TestIssuancePageSetsSessionCookie(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/shutdown", nil)
	req.RemoteAddr = "192.168.1.20:5000"
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var ck *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			ck = c
		}
	}
	if ck == nil {
		t.Fatalf("no session cookie set")
	}
	if !ck.HttpOnly || ck.SameSite != http.SameSiteStrictMode || ck.Path != "/" || ck.Secure {
		t.Fatalf("cookie attributes: %+v", ck)
	}
	if ck.MaxAge != int(env.cfg.SessionTTL.Seconds()) {
		t.Fatalf("max-age %d", ck.MaxAge)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type %q", ct)
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Fatalf("missing CSP")
	}
	body := rec.Body.String()
	if !strings.Contains(body, `src="/static/shutdown.js"`) {
		t.Fatalf("page does not load the hold script")
	}
	m := tokenAttr.FindStringSubmatch(body)
	if m == nil || len(m[1]) < sessions.MinTokenLen {
		t.Fatalf("token missing or short: %v", m)
	}
}

func TestIssuancePageIsIdempotentPerSession(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie, tok := env.issue(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/shutdown", nil)
	req.AddCookie(cookie)
	rec := env.do(req)
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("existing session got a new cookie")
	}
	if m := tokenAttr.FindStringSubmatch(rec.Body.String()); m == nil || m[1] != tok {
		t.Fatalf("token changed on revisit: %v want %s", m, tok)
	}
	if env.srv.sessions.Len() != 1 {
		t.Fatalf("sessions %d", env.srv.sessions.Len())
	}
}

func TestIssuancePageReplacesShortToken(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.seed(t, "abc123")
	_, tok := env.issue(t, cookie)
	if tok == "abc123" || len(tok) < sessions.MinTokenLen {
		t.Fatalf("short token kept: %q", tok)
	}
}

func TestIssuancePageConcurrentFirstVisit(t *testing.T) {
	env := newTestEnv(t, nil)
	sess, err := env.srv.sessions.Create()
	if err != nil {
		t.Fatal(err)
	}
	val, _ := env.srv.cookies.Encode(SessionCookieName, sess.ID)
	cookie := &http.Cookie{Name: SessionCookieName, Value: val}

	const n = 16
	toks := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/shutdown", nil)
			req.AddCookie(cookie)
			rec := env.do(req)
			if m := tokenAttr.FindStringSubmatch(rec.Body.String()); m != nil {
				toks[i] = m[1]
			}
		}(i)
	}
	wg.Wait()
	for i := range toks {
		if toks[i] == "" || toks[i] != toks[0] {
			t.Fatalf("concurrent visits saw different tokens: %v", toks)
		}
	}
}

func TestIssuancePageUnknownSessionGetsFreshOne(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie, _ := env.issue(t, nil)
	id := env.srv.sessionID(withCookie(cookie))
	if err := env.srv.sessions.Delete(id); err != nil {
		t.Fatal(err)
	}
	fresh, _ := env.issue(t, cookie)
	if fresh == cookie || env.srv.sessionID(withCookie(fresh)) == id {
		t.Fatalf("deleted session was reused")
	}
}

func TestIssuancePageRateLimitsNewSessions(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.RateSessionsPerMin = 2 })
	for i := 0; i < 2; i++ {
		env.issue(t, nil)
	}
	req := httptest.NewRequest(http.MethodGet, "/shutdown", nil)
	req.RemoteAddr = "192.168.1.20:50000"
	rec := env.do(req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
	// another address is not affected
	req = httptest.NewRequest(http.MethodGet, "/shutdown", nil)
	req.RemoteAddr = "192.168.1.21:50000"
	if rec := env.do(req); rec.Code != http.StatusOK {
		t.Fatalf("other client limited: %d", rec.Code)
	}
}

func TestIssuancePageSessionSurvivesRestart(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie, tok := env.issue(t, nil)
	env.srv.Close()

	again := newTestEnvWithConfig(t, env.cfg)
	_, tok2 := again.issue(t, cookie)
	if tok2 != tok {
		t.Fatalf("token not persisted across restart: %s vs %s", tok2, tok)
	}
}

func TestIssuancePageZeroLimitDisablesLimiter(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.RateSessionsPerMin = 0 })
	for i := 0; i < 5; i++ {
		env.issue(t, nil)
	}
	if env.srv.sessions.Len() != 5 {
		t.Fatalf("sessions %d", env.srv.sessions.Len())
	}
}
