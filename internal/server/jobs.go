package server

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	pruneSchedule = "@every 10m"
	flushSchedule = "@every 1m"
)

func (s *Server) startJobs() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(pruneSchedule, s.pruneSessions); err != nil {
		return fmt.Errorf("schedule session prune: %w", err)
	}
	if _, err := s.cron.AddFunc(flushSchedule, s.flushLimiter); err != nil {
		return fmt.Errorf("schedule ratelimit flush: %w", err)
	}
	s.cron.Start()
	return nil
}

func (s *Server) pruneSessions() {
	n, err := s.sessions.Prune(time.Now())
	if err != nil {
		s.log.Warn().Err(err).Msg("prune sessions")
	}
	if n > 0 {
		s.metrics.SessionsPruned(n)
		s.log.Debug().Int("removed", n).Msg("sessions pruned")
	}
}

func (s *Server) flushLimiter() {
	s.limiter.Sweep(time.Minute)
	if err := s.limiter.Flush(); err != nil {
		s.log.Warn().Err(err).Msg("flush ratelimit")
	}
}
