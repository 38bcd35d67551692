package server

import (
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/securecookie"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"ogkb/ogkbd/internal/audit"
	"ogkb/ogkbd/internal/catalog"
	"ogkb/ogkbd/internal/config"
	"ogkb/ogkbd/internal/gateway"
	"ogkb/ogkbd/internal/metrics"
	"ogkb/ogkbd/internal/ratelimit"
	"ogkb/ogkbd/internal/sessions"
)

const (
	shutdownLogName = "shutdown.log"
	pingLogName     = "ping.log"

	// queued allowed requests beyond the running one
	workerBuffer = 4
)

// Deps overrides the pieces tests need to observe. Zero values mean the
// production wiring from config.
type Deps struct {
	Executor gateway.Executor
	// Audit receives every gateway record in addition to shutdown.log.
	Audit  audit.Recorder
	Logger *zerolog.Logger
}

// Server owns the long-lived state behind the router.
type Server struct {
	cfg      config.Config
	log      *zerolog.Logger
	sessions *sessions.Store
	cookies  *securecookie.SecureCookie
	limiter  *ratelimit.Store
	worker   *gateway.Worker
	gw       *gateway.Gateway
	pingLog  *audit.FileLog
	catalog  *catalog.Catalog
	metrics  *metrics.Registry
	cron     *cron.Cron
	pages    *template.Template
	router   chi.Router

	closeOnce sync.Once
}

func New(cfg config.Config, deps Deps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = Logger(cfg)
	}
	secret, err := loadOrCreateSecret(cfg.SecretPath)
	if err != nil {
		return nil, err
	}
	pages, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		log:      logger,
		sessions: sessions.New(cfg.SessionsPath, cfg.SessionTTL),
		cookies:  newCookieCodec(secret, cfg.SessionTTL),
		limiter:  ratelimit.New(cfg.RateLimitPath),
		worker:   gateway.NewWorker(workerBuffer),
		pingLog:  audit.NewFileLog(*logger, cfg.LogDir, pingLogName),
		catalog:  catalog.New(cfg.MediaRoot),
		metrics:  metrics.New(),
		pages:    pages,
	}

	var rec audit.Recorder = audit.NewFileLog(*logger, cfg.LogDir, shutdownLogName)
	if deps.Audit != nil {
		rec = audit.Multi{rec, deps.Audit}
	}
	exec := deps.Executor
	if exec == nil {
		exec = gateway.CommandExecutor{Argv: cfg.PoweroffCommand, Timeout: cfg.ExecTimeout}
	}
	s.gw = gateway.New(rec, exec, s.worker)
	s.gw.OnDecision = func(d gateway.Decision) { s.metrics.Decision(string(d.Reason)) }
	s.gw.OnExec = func(res gateway.ExecResult) { s.metrics.Exec(execOutcome(res)) }

	if err := s.startJobs(); err != nil {
		s.worker.Close()
		return nil, err
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

// Close stops the jobs, waits for a queued shutdown command to finish and
// flushes the limiter. Safe to call more than once.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		<-s.cron.Stop().Done()
		s.worker.Close()
		if err := s.limiter.Flush(); err != nil {
			s.log.Warn().Err(err).Msg("ratelimit flush on close")
		}
	})
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	// no middleware.RealIP: forwarded headers are honored only through clientIP
	r.Use(zerologMiddleware(s.log))
	r.Use(securityHeaders(s.cfg))

	r.Get("/", s.handleIndex)
	r.Get("/shutdown", s.handleShutdownPage)
	r.Handle("/static/*", http.StripPrefix("/static/", staticHandler()))

	r.Route("/api", func(r chi.Router) {
		// every method reaches the gateway so refusals are audited
		r.HandleFunc("/shutdown", s.handleShutdown)
		r.HandleFunc("/ping", s.handlePing)
		r.Get("/health", s.handleHealth)
		r.Get("/summary", s.handleSummary)
		r.Get("/catalog/{library}", s.handleChapters)
		r.Get("/catalog/{library}/{chapter}", s.handleAssets)
	})
	r.Get("/media/{library}/{chapter}/{file}", s.handleMedia)

	if s.cfg.MetricsEnabled {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

func execOutcome(res gateway.ExecResult) string {
	switch {
	case res.TimedOut:
		return "timeout"
	case res.Signaled:
		return "signal"
	case res.Err != nil:
		return "spawn_error"
	case res.Code == 0:
		return "ok"
	default:
		return "nonzero"
	}
}
