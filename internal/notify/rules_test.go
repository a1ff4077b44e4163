package notify

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/gifteo/internal/model"
)

func TestLoadGlobalEvents_Defaults(t *testing.T) {
	events, err := LoadGlobalEvents("", discard())
	require.NoError(t, err)
	require.NotEmpty(t, events)

	byID := map[string]model.GlobalEvent{}
	for _, g := range events {
		byID[g.ID] = g
		// Every default must resolve in a normal year.
		_, err := g.Resolve(2026)
		assert.NoError(t, err, g.ID)
	}

	eve := byID["cz-christmas-eve"]
	assert.Equal(t, "CZ", eve.CountryCode)
	date, err := eve.Resolve(2026)
	require.NoError(t, err)
	assert.Equal(t, "2026-12-24", date.String())

	thanks := byID["us-thanksgiving"]
	date, err = thanks.Resolve(2026)
	require.NoError(t, err)
	assert.Equal(t, "2026-11-26", date.String())

	sysadmin := byID["us-sysadmin-day"]
	date, err = sysadmin.Resolve(2026)
	require.NoError(t, err)
	assert.Equal(t, time.Friday, date.Weekday())
	assert.Equal(t, "2026-07-31", date.String())
}

func TestLoadGlobalEvents_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
events:
  - id: pl-mothers-day
    country: PL
    name: Dzień Matki
    month: 5
    day: 26
    days_before: 4
`), 0o600))

	events, err := LoadGlobalEvents(path, discard())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "PL", events[0].CountryCode)
	assert.Equal(t, time.May, events[0].Month)
	assert.Equal(t, 26, *events[0].Day)
	assert.Nil(t, events[0].Weekday)

	_, err = LoadGlobalEvents(filepath.Join(t.TempDir(), "missing.yaml"), discard())
	assert.Error(t, err)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseGlobalEvents_NotYAML(t *testing.T) {
	_, err := ParseGlobalEvents([]byte("events: [\n"), discard())
	assert.Error(t, err)
}

func TestParseGlobalEvents_SkipsMalformedRules(t *testing.T) {
	const valid = "  - {id: cz-xmas, country: CZ, name: Christmas Eve, month: 12, day: 24}\n"
	tests := []struct {
		name string
		bad  string
	}{
		{"lowercase country", "  - {id: a, country: cz, name: X, month: 1, day: 1}\n"},
		{"month out of range", "  - {id: a, country: CZ, name: X, month: 13, day: 1}\n"},
		{"nth zero", "  - {id: a, country: CZ, name: X, month: 5, weekday: 0, nth: 0}\n"},
		{"no rule", "  - {id: a, country: CZ, name: X, month: 5}\n"},
		{"both rules", "  - {id: a, country: CZ, name: X, month: 5, day: 3, weekday: 0, nth: 2}\n"},
		{"weekday without nth", "  - {id: a, country: CZ, name: X, month: 5, weekday: 0}\n"},
		{"negative lead", "  - {id: a, country: CZ, name: X, month: 5, day: 3, days_before: -1}\n"},
		{"duplicate id", "  - {id: cz-xmas, country: DE, name: Y, month: 6, day: 3}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, nil))

			events, err := ParseGlobalEvents([]byte("events:\n"+valid+tt.bad), logger)

			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, "cz-xmas", events[0].ID)
			assert.Equal(t, "CZ", events[0].CountryCode)
			assert.Contains(t, logs.String(), "skipping global event rule")
		})
	}
}
