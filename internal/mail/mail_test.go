package mail

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/gifteo/internal/model"
)

func TestHTTPMailer_Send(t *testing.T) {
	var got sendRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m := NewHTTPMailer(srv.URL, "key-123", "Gifteo <hello@gifteo.test>", 100)
	err := m.Send(context.Background(), Message{To: "ada@example.com", Subject: "Hi", Text: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer key-123", auth)
	assert.Equal(t, "Gifteo <hello@gifteo.test>", got.From)
	assert.Equal(t, []string{"ada@example.com"}, got.To)
	assert.Equal(t, "hello", got.Text)
}

func TestHTTPMailer_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "domain not verified", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	m := NewHTTPMailer(srv.URL, "k", "from@x.test", 100)
	err := m.Send(context.Background(), Message{To: "a@b.test", Subject: "s", Text: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "domain not verified")
}

func TestHTTPMailer_RejectsIncompleteMessage(t *testing.T) {
	m := NewHTTPMailer("http://127.0.0.1:1", "k", "f", 1)
	err := m.Send(context.Background(), Message{To: "a@b.test"})
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestHTTPMailer_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	m := NewHTTPMailer(srv.URL, "k", "f", 0.001)
	msg := Message{To: "a@b.test", Subject: "s", Text: "t"}
	require.NoError(t, m.Send(context.Background(), msg))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, m.Send(ctx, msg))
}

func TestLogMailer(t *testing.T) {
	var buf strings.Builder
	m := NewLogMailer(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, m.Send(context.Background(), Message{To: "a@b.test", Subject: "Reminder", Text: "body"}))
	assert.Contains(t, buf.String(), "to=a@b.test")

	assert.ErrorIs(t, NewLogMailer(slog.New(slog.NewTextHandler(io.Discard, nil))).Send(context.Background(), Message{}), ErrInvalidMessage)
}

func TestRenderReminder(t *testing.T) {
	msg, err := RenderReminder(Reminder{
		To:         "ada@example.com",
		EventName:  "<b>Bob</b>'s birthday",
		Date:       model.NewDate(2026, time.December, 24),
		DaysBefore: 7,
		About:      "Bob",
	})
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", msg.To)
	assert.Equal(t, "Reminder: <b>Bob</b>'s birthday is in 7 days", msg.Subject)
	assert.Contains(t, msg.Text, "Thursday, 24 December 2026")
	assert.Contains(t, msg.Text, "Bob's wishlists")
	assert.NotContains(t, msg.HTML, "<b>Bob</b>")
	assert.Contains(t, msg.HTML, "&lt;b&gt;Bob&lt;/b&gt;")
}

func TestReminderWhen(t *testing.T) {
	assert.Equal(t, "today", Reminder{}.When())
	assert.Equal(t, "tomorrow", Reminder{DaysBefore: 1}.When())
	assert.Equal(t, "in 3 days", Reminder{DaysBefore: 3}.When())
}
