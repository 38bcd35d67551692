package server

import (
	"errors"
	"fmt"
	"net/http"

	"ogkb/ogkbd/internal/audit"
)

// handlePing checks that the log directory takes writes. It answers plain
// text so it can be read with curl on the node itself.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	err := s.pingLog.Append(fmt.Sprintf("PING method=%s remote=%s", r.Method, clientIP(r, s.cfg)))
	if err == nil {
		_, _ = fmt.Fprint(w, "pong\nlog_ok=1\n")
		return
	}
	reason := err.Error()
	if errors.Is(err, audit.ErrNoLogDir) {
		reason = "logDir_missing"
	}
	s.log.Debug().Err(err).Msg("ping log append")
	_, _ = fmt.Fprintf(w, "pong\nlog_ok=0\nlog_error=%s\n", reason)
}
