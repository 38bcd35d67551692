package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/securecookie"
)

// SessionCookieName carries the signed session ID.
const SessionCookieName = "ogkb_sid"

const secretLen = 64

// loadOrCreateSecret returns the cookie hash key, minting and storing one on
// first start.
func loadOrCreateSecret(path string) ([]byte, error) {
	if b, err := os.ReadFile(path); err == nil && len(b) >= 32 {
		return b, nil
	}
	key := securecookie.GenerateRandomKey(secretLen)
	if key == nil {
		return nil, fmt.Errorf("generate cookie secret: no entropy")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create secret dir: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("write cookie secret: %w", err)
	}
	return key, nil
}

func newCookieCodec(secret []byte, ttl time.Duration) *securecookie.SecureCookie {
	sc := securecookie.New(secret, nil)
	sc.MaxAge(int(ttl / time.Second))
	sc.SetSerializer(securecookie.JSONEncoder{})
	return sc
}

// cookiePresent mirrors what the chain calls "presented a cookie": the name
// is there, whatever its value.
func cookiePresent(r *http.Request) bool {
	_, err := r.Cookie(SessionCookieName)
	return err == nil
}

// sessionID decodes the cookie. Unsigned, tampered or stale values yield "".
func (s *Server) sessionID(r *http.Request) string {
	ck, err := r.Cookie(SessionCookieName)
	if err != nil || ck.Value == "" {
		return ""
	}
	var id string
	if err := s.cookies.Decode(SessionCookieName, ck.Value, &id); err != nil {
		return ""
	}
	return id
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, id string) error {
	val, err := s.cookies.Encode(SessionCookieName, id)
	if err != nil {
		return fmt.Errorf("encode session cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    val,
		Path:     "/",
		MaxAge:   int(s.cfg.SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   isSecureRequest(r, s.cfg),
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}
