package server

import (
	"errors"
	"net/http"

	"ogkb/ogkbd/internal/gateway"
	"ogkb/ogkbd/pkg/httpx"
)

// maxFormBytes bounds the body of a shutdown request; a token is 32 bytes.
const maxFormBytes = 4 << 10

type decisionPayload struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Remote  string `json:"remote,omitempty"`
}

// handleShutdown is the two-phase gateway: decide and answer, flush, and only
// then queue the power-off command.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	req := s.gatewayRequest(w, r)
	d := s.gw.Decide(req)
	writeDecision(w, d)
	if !d.Allowed() {
		return
	}
	if err := http.NewResponseController(w).Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.log.Debug().Err(err).Msg("flush shutdown response")
	}
	if err := s.gw.Commit(d); err != nil {
		// only after Close, when the daemon is already stopping; the
		// gateway has written the not_started line
		s.log.Error().Err(err).Msg("shutdown allowed but not started")
	}
}

func (s *Server) gatewayRequest(w http.ResponseWriter, r *http.Request) gateway.Request {
	req := gateway.Request{
		Method:        r.Method,
		Remote:        clientIP(r, s.cfg),
		UserAgent:     r.UserAgent(),
		CookiePresent: cookiePresent(r),
	}
	if r.Method == http.MethodPost {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if err := r.ParseForm(); err != nil {
			s.log.Debug().Err(err).Msg("parse shutdown form")
		}
		req.SubmittedToken = r.PostFormValue("token")
	}
	id := s.sessionID(r)
	req.SessionID = id
	req.SessionToken = func() (string, bool) {
		if id == "" {
			return "", false
		}
		return s.sessions.Token(id)
	}
	return req
}

func writeDecision(w http.ResponseWriter, d gateway.Decision) {
	if d.Allowed() {
		httpx.WriteJSON(w, d.Status(), decisionPayload{OK: true, Message: d.Message()})
		return
	}
	if d.Status() == http.StatusMethodNotAllowed {
		w.Header().Set("Allow", gateway.AcceptedMethod)
	}
	httpx.WriteJSON(w, d.Status(), decisionPayload{Error: d.Message(), Remote: d.Remote})
}
