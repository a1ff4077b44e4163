package config

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(env(nil))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "data/gifteo.db", cfg.DBPath)
	assert.Equal(t, EnvDevelopment, cfg.AppEnv)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 7, cfg.NotifyHour)
	assert.Equal(t, "CZ", cfg.DefaultCountry)
	assert.Equal(t, 10*time.Second, cfg.ScrapeTimeout)
	assert.Equal(t, "http://localhost:8080/auth/google/callback", cfg.GoogleCallbackURL)
	assert.False(t, cfg.MailEnabled())
	assert.False(t, cfg.OAuthEnabled())
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := FromLookup(env(map[string]string{
		"PORT":                 "9000",
		"APP_ENV":              "Production",
		"CLIENT_ORIGIN":        "https://gifteo.app/",
		"GOOGLE_CLIENT_ID":     "id.apps.googleusercontent.com",
		"GOOGLE_CLIENT_SECRET": "secret",
		"GOOGLE_CALLBACK_URL":  "https://api.gifteo.app/auth/google/callback",
		"SESSION_TTL":          "7200",
		"MAIL_API_URL":         "https://api.mail.example/emails",
		"MAIL_API_KEY":         "key",
		"NOTIFY_HOUR":          "18",
		"DEFAULT_COUNTRY":      "us",
		"SCRAPE_TIMEOUT":       "15s",
		"LOG_FORMAT":           "JSON",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "https://gifteo.app", cfg.ClientOrigin)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 18, cfg.NotifyHour)
	assert.Equal(t, "US", cfg.DefaultCountry)
	assert.Equal(t, 15*time.Second, cfg.ScrapeTimeout)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.MailEnabled())
	assert.True(t, cfg.OAuthEnabled())
}

func TestFromLookup_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		mention string
	}{
		{"port not a number", map[string]string{"PORT": "http"}, "PORT"},
		{"port out of range", map[string]string{"PORT": "70000"}, "PORT"},
		{"unknown env", map[string]string{"APP_ENV": "staging"}, "APP_ENV"},
		{"production without google", map[string]string{"APP_ENV": "production"}, "GOOGLE_CLIENT_ID"},
		{"mail url without key", map[string]string{"MAIL_API_URL": "https://mail.example"}, "MAIL_API_KEY"},
		{"hour out of range", map[string]string{"NOTIFY_HOUR": "24"}, "NOTIFY_HOUR"},
		{"bad ttl", map[string]string{"SESSION_TTL": "forever"}, "SESSION_TTL"},
		{"ttl too short", map[string]string{"SESSION_TTL": "5s"}, "SESSION_TTL"},
		{"country", map[string]string{"DEFAULT_COUNTRY": "CZE"}, "DEFAULT_COUNTRY"},
		{"log level", map[string]string{"LOG_LEVEL": "trace"}, "LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromLookup(env(tt.vars))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.mention)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := Config{LogLevel: "warn", LogFormat: "json"}.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":"v"`)
}
