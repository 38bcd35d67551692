package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "/etc/ogkb/config.yaml"

// DefaultPoweroffCommand is the argv run by the shutdown gateway. sudo must be
// configured out of band to allow exactly this command without a password.
var DefaultPoweroffCommand = []string{"/usr/bin/sudo", "-n", "/usr/local/sbin/ogkb-poweroff"}

type Config struct {
	Bind       string
	TrustProxy bool
	LogLevel   zerolog.Level

	// LogDir holds shutdown.log and ping.log. It is never created by the
	// daemon; when missing, audit lines are dropped.
	LogDir        string
	MediaRoot     string
	SessionsPath  string
	SecretPath    string
	RateLimitPath string

	SessionTTL         time.Duration
	RateSessionsPerMin int

	PoweroffCommand []string
	ExecTimeout     time.Duration

	MetricsEnabled bool
}

// fileConfig mirrors the YAML layout.
type fileConfig struct {
	HTTP struct {
		Bind string `yaml:"bind"`
	} `yaml:"http"`
	TrustProxy *bool `yaml:"trustProxy"`
	Logging    struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Paths struct {
		LogDir    string `yaml:"logDir"`
		MediaRoot string `yaml:"mediaRoot"`
		Sessions  string `yaml:"sessions"`
		Secret    string `yaml:"secret"`
		RateLimit string `yaml:"rateLimit"`
	} `yaml:"paths"`
	Sessions struct {
		TTL string `yaml:"ttl"`
	} `yaml:"sessions"`
	Rate struct {
		SessionsPerMin *int `yaml:"sessionsPerMin"`
	} `yaml:"rate"`
	Exec struct {
		Command []string `yaml:"command"`
		Timeout string   `yaml:"timeout"`
	} `yaml:"exec"`
	Metrics struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"metrics"`
}

func Defaults() Config {
	return Config{
		Bind:               "0.0.0.0:8080",
		LogLevel:           zerolog.InfoLevel,
		LogDir:             "/var/www/html/_ogkb_logs",
		MediaRoot:          "/var/www/html",
		SessionsPath:       "/var/lib/ogkb/sessions.json",
		SecretPath:         "/var/lib/ogkb/secret.key",
		RateLimitPath:      "/var/lib/ogkb/ratelimit.json",
		SessionTTL:         12 * time.Hour,
		RateSessionsPerMin: 30,
		PoweroffCommand:    append([]string(nil), DefaultPoweroffCommand...),
		ExecTimeout:        2 * time.Minute,
	}
}

// FromEnv loads the file named by OGKB_CONFIG (or DefaultPath) and applies
// environment overrides.
func FromEnv() Config {
	path := os.Getenv("OGKB_CONFIG")
	if path == "" {
		path = DefaultPath
	}
	return Load(path)
}

// Load reads YAML from path when it exists, then lets OGKB_* environment
// variables override it. Unparseable values keep the previous setting.
func Load(path string) Config {
	cfg := Defaults()
	if path != "" {
		if b, err := os.ReadFile(path); err == nil {
			var fc fileConfig
			if err := yaml.Unmarshal(b, &fc); err == nil {
				applyFile(&cfg, fc)
			}
		}
	}
	applyEnv(&cfg)
	return cfg
}

func applyFile(cfg *Config, fc fileConfig) {
	setStr(&cfg.Bind, fc.HTTP.Bind)
	if fc.TrustProxy != nil {
		cfg.TrustProxy = *fc.TrustProxy
	}
	setLevel(&cfg.LogLevel, fc.Logging.Level)
	setStr(&cfg.LogDir, fc.Paths.LogDir)
	setStr(&cfg.MediaRoot, fc.Paths.MediaRoot)
	setStr(&cfg.SessionsPath, fc.Paths.Sessions)
	setStr(&cfg.SecretPath, fc.Paths.Secret)
	setStr(&cfg.RateLimitPath, fc.Paths.RateLimit)
	setDuration(&cfg.SessionTTL, fc.Sessions.TTL, false)
	// 0 disables the limit; negative values are ignored
	if n := fc.Rate.SessionsPerMin; n != nil && *n >= 0 {
		cfg.RateSessionsPerMin = *n
	}
	if len(fc.Exec.Command) > 0 {
		cfg.PoweroffCommand = fc.Exec.Command
	}
	setDuration(&cfg.ExecTimeout, fc.Exec.Timeout, true)
	if fc.Metrics.Enabled != nil {
		cfg.MetricsEnabled = *fc.Metrics.Enabled
	}
}

func applyEnv(cfg *Config) {
	setStr(&cfg.Bind, os.Getenv("OGKB_HTTP_BIND"))
	setBool(&cfg.TrustProxy, os.Getenv("OGKB_TRUST_PROXY"))
	setLevel(&cfg.LogLevel, os.Getenv("OGKB_LOG"))
	setStr(&cfg.LogDir, os.Getenv("OGKB_LOG_DIR"))
	setStr(&cfg.MediaRoot, os.Getenv("OGKB_MEDIA_ROOT"))
	setStr(&cfg.SessionsPath, os.Getenv("OGKB_SESSIONS_PATH"))
	setStr(&cfg.SecretPath, os.Getenv("OGKB_SECRET_PATH"))
	setStr(&cfg.RateLimitPath, os.Getenv("OGKB_RL_PATH"))
	setDuration(&cfg.SessionTTL, os.Getenv("OGKB_SESSION_TTL"), false)
	if v := os.Getenv("OGKB_RATE_SESSIONS_PER_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RateSessionsPerMin = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("OGKB_POWEROFF_CMD")); v != "" {
		cfg.PoweroffCommand = strings.Fields(v)
	}
	setDuration(&cfg.ExecTimeout, os.Getenv("OGKB_EXEC_TIMEOUT"), true)
	setBool(&cfg.MetricsEnabled, os.Getenv("OGKB_METRICS"))
}

func setStr(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v string) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	}
}

func setLevel(dst *zerolog.Level, v string) {
	if v == "" {
		return
	}
	if l, err := zerolog.ParseLevel(v); err == nil {
		*dst = l
	}
}

// setDuration accepts Go durations ("90s", "12h"). allowZero lets "0" disable
// a timeout.
func setDuration(dst *time.Duration, v string, allowZero bool) {
	if v = strings.TrimSpace(v); v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return
	}
	*dst = d
}
