package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ogkb/ogkbd/internal/config"
	"ogkb/ogkbd/internal/metrics"
	"ogkb/ogkbd/internal/server"
)

// drainTimeout bounds connection draining on SIGTERM. A power-off already
// queued keeps running until the worker finishes it.
const drainTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	load := func() config.Config {
		if cfgFile != "" {
			return config.Load(cfgFile)
		}
		return config.FromEnv()
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), load())
		},
	}
	root := &cobra.Command{
		Use:   "ogkbd",
		Short: "Off Grid Knowledge Base node daemon",
		Long: `ogkbd serves the knowledge base browsers and the shutdown gateway
of an Off Grid Knowledge Base node.`,
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $OGKB_CONFIG or "+config.DefaultPath+")")

	root.AddCommand(serve, newVersionCmd(), newConfigCmd(load))
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ogkbd %s\n", metrics.Version)
		},
	}
}

// effectiveConfig is the printable form of config.Config.
type effectiveConfig struct {
	Bind               string   `yaml:"bind"`
	TrustProxy         bool     `yaml:"trustProxy"`
	LogLevel           string   `yaml:"logLevel"`
	LogDir             string   `yaml:"logDir"`
	MediaRoot          string   `yaml:"mediaRoot"`
	Sessions           string   `yaml:"sessions"`
	Secret             string   `yaml:"secret"`
	RateLimit          string   `yaml:"rateLimit"`
	SessionTTL         string   `yaml:"sessionTTL"`
	RateSessionsPerMin int      `yaml:"rateSessionsPerMin"`
	PoweroffCommand    []string `yaml:"poweroffCommand"`
	ExecTimeout        string   `yaml:"execTimeout"`
	Metrics            bool     `yaml:"metrics"`
}

func newConfigCmd(load func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration after file and environment overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := load()
			out := effectiveConfig{
				Bind:               cfg.Bind,
				TrustProxy:         cfg.TrustProxy,
				LogLevel:           cfg.LogLevel.String(),
				LogDir:             cfg.LogDir,
				MediaRoot:          cfg.MediaRoot,
				Sessions:           cfg.SessionsPath,
				Secret:             cfg.SecretPath,
				RateLimit:          cfg.RateLimitPath,
				SessionTTL:         cfg.SessionTTL.String(),
				RateSessionsPerMin: cfg.RateSessionsPerMin,
				PoweroffCommand:    cfg.PoweroffCommand,
				ExecTimeout:        cfg.ExecTimeout.String(),
				Metrics:            cfg.MetricsEnabled,
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(out); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := server.Logger(cfg)
	srv, err := server.New(cfg, server.Deps{Logger: logger})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              cfg.Bind,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Bind).Str("version", metrics.Version).Msg("ogkbd listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	return nil
}
