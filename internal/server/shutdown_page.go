package server

import (
	"math"
	"net/http"
	"time"

	"ogkb/ogkbd/pkg/httpx"
)

type shutdownView struct {
	Title string
	Token string
}

// handleShutdownPage issues the session and its token and renders the
// press-and-hold control. It authorizes nothing.
func (s *Server) handleShutdownPage(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(r)
	if _, ok := s.sessions.Get(id); id == "" || !ok {
		if limit := s.cfg.RateSessionsPerMin; limit > 0 {
			ok, retry := s.limiter.Allow("session:"+clientIP(r, s.cfg), limit, time.Minute)
			if !ok {
				httpx.WriteTypedError(w, http.StatusTooManyRequests, "session.rate_limited",
					"Too many new sessions from this address", int(math.Ceil(retry.Seconds())))
				return
			}
		}
		sess, err := s.sessions.Create()
		if err != nil {
			// the session lives in memory; it only won't survive a restart
			s.log.Warn().Err(err).Msg("persist new session")
		}
		if sess.ID == "" {
			httpx.WriteError(w, http.StatusInternalServerError, "Could not start a session")
			return
		}
		if err := s.setSessionCookie(w, r, sess.ID); err != nil {
			s.log.Error().Err(err).Msg("set session cookie")
			httpx.WriteError(w, http.StatusInternalServerError, "Could not start a session")
			return
		}
		s.metrics.SessionCreated()
		id = sess.ID
	}

	tok, err := s.sessions.GetOrCreateToken(id)
	if err != nil {
		s.log.Warn().Err(err).Msg("persist session token")
	}
	if tok == "" {
		httpx.WriteError(w, http.StatusInternalServerError, "Could not issue a token")
		return
	}
	s.render(w, "shutdown", shutdownView{Title: "Shut down", Token: tok})
}
