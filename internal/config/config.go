// Package config gathers the process configuration from environment
// variables.
//
// WHY ENVIRONMENT VARIABLES?
// The server runs as a container in production and as `go run` locally.
// Env vars work the same in both (twelve-factor style), and secrets such
// as GOOGLE_CLIENT_SECRET never end up in a file in the repository.
//
// Every value is parsed into a typed field of Config and then checked with
// go-playground/validator, so a misconfigured deploy fails at startup with
// one message listing every bad variable rather than at the first request.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the fully parsed configuration.
type Config struct {
	Port   int    `validate:"min=1,max=65535"`
	DBPath string `validate:"required"`
	AppEnv string `validate:"oneof=development production"`

	// ClientOrigin is the web client's origin, used for CORS and as the
	// redirect target after the OAuth callback.
	ClientOrigin string `validate:"required,url"`

	GoogleClientID     string `validate:"required_if=AppEnv production"`
	GoogleClientSecret string
	GoogleCallbackURL  string `validate:"omitempty,url"`

	SessionTTL time.Duration `validate:"min=1m"`

	MailAPIKey string `validate:"required_with=MailAPIURL"`
	MailAPIURL string `validate:"omitempty,url"`
	MailFrom   string `validate:"required"`
	// MailRate is sends per second towards the mail provider.
	MailRate float64 `validate:"gt=0"`

	NotifyHour       int `validate:"min=0,max=23"`
	GlobalEventsFile string
	DefaultCountry   string `validate:"len=2,alpha"`

	ScrapeTimeout time.Duration `validate:"min=1s,max=2m"`

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=text json"`
}

// IsProduction reports whether production-only behaviour (secure cookies,
// strict CORS) is on.
func (c Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// OAuthEnabled reports whether the redirect-based Google login is usable.
func (c Config) OAuthEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleCallbackURL != ""
}

// MailEnabled reports whether a real mail provider is configured.
func (c Config) MailEnabled() bool {
	return c.MailAPIURL != ""
}

// Load reads the process environment.
func Load() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from any lookup function, so tests do not
// have to mutate the process environment.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	p := parser{lookup: lookup}
	cfg := Config{
		Port:               p.int("PORT", 8080),
		DBPath:             p.string("DB_PATH", "data/gifteo.db"),
		AppEnv:             strings.ToLower(p.string("APP_ENV", EnvDevelopment)),
		ClientOrigin:       strings.TrimRight(p.string("CLIENT_ORIGIN", "http://localhost:5173"), "/"),
		GoogleClientID:     p.string("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: p.string("GOOGLE_CLIENT_SECRET", ""),
		GoogleCallbackURL:  p.string("GOOGLE_CALLBACK_URL", ""),
		SessionTTL:         p.duration("SESSION_TTL", time.Hour),
		MailAPIKey:         p.string("MAIL_API_KEY", ""),
		MailAPIURL:         p.string("MAIL_API_URL", ""),
		MailFrom:           p.string("MAIL_FROM", "Gifteo <noreply@gifteo.app>"),
		MailRate:           p.float("MAIL_RATE", 2),
		NotifyHour:         p.int("NOTIFY_HOUR", 7),
		GlobalEventsFile:   p.string("GLOBAL_EVENTS_FILE", ""),
		DefaultCountry:     strings.ToUpper(p.string("DEFAULT_COUNTRY", "CZ")),
		ScrapeTimeout:      p.duration("SCRAPE_TIMEOUT", 10*time.Second),
		LogLevel:           strings.ToLower(p.string("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(p.string("LOG_FORMAT", "text")),
	}
	if cfg.GoogleCallbackURL == "" {
		cfg.GoogleCallbackURL = fmt.Sprintf("http://localhost:%d/auth/google/callback", cfg.Port)
	}

	if len(p.errs) > 0 {
		return Config{}, errors.Join(p.errs...)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, describe(err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// envNames maps Config fields back to the variable that sets them, for
// error messages.
var envNames = map[string]string{
	"Port":               "PORT",
	"DBPath":             "DB_PATH",
	"AppEnv":             "APP_ENV",
	"ClientOrigin":       "CLIENT_ORIGIN",
	"GoogleClientID":     "GOOGLE_CLIENT_ID",
	"GoogleClientSecret": "GOOGLE_CLIENT_SECRET",
	"GoogleCallbackURL":  "GOOGLE_CALLBACK_URL",
	"SessionTTL":         "SESSION_TTL",
	"MailAPIKey":         "MAIL_API_KEY",
	"MailAPIURL":         "MAIL_API_URL",
	"MailFrom":           "MAIL_FROM",
	"MailRate":           "MAIL_RATE",
	"NotifyHour":         "NOTIFY_HOUR",
	"GlobalEventsFile":   "GLOBAL_EVENTS_FILE",
	"DefaultCountry":     "DEFAULT_COUNTRY",
	"ScrapeTimeout":      "SCRAPE_TIMEOUT",
	"LogLevel":           "LOG_LEVEL",
	"LogFormat":          "LOG_FORMAT",
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := envNames[fe.Field()]
		if name == "" {
			name = fe.Field()
		}
		msgs = append(msgs, fmt.Sprintf("%s fails %q (value %v)", name, fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("config: invalid configuration: %s", strings.Join(msgs, "; "))
}

// parser collects every malformed variable instead of stopping at the first.
type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) string(key, def string) string {
	if v, ok := p.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *parser) int(key string, def int) int {
	raw := p.string(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s=%q is not an integer", key, raw))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	raw := p.string(key, "")
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s=%q is not a number", key, raw))
		return def
	}
	return f
}

// duration accepts Go durations ("90m") or a bare number of seconds.
func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := p.string(key, "")
	if raw == "" {
		return def
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s=%q is not a duration", key, raw))
		return def
	}
	return d
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
