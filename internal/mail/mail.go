// Package mail sends transactional email (event reminders).
//
// Two implementations share the Mailer interface:
//
//	HTTPMailer → posts JSON to a transactional-mail provider's REST API
//	LogMailer  → writes the message to the log (development, tests)
//
// The notification scheduler only sees Mailer, so switching providers or
// running locally without credentials is a wiring decision in main.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Message is one outgoing email. Text is required; HTML is optional.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers a message or reports why it could not.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

var ErrInvalidMessage = errors.New("mail: message needs a recipient, subject and text body")

func (m Message) validate() error {
	if m.To == "" || m.Subject == "" || m.Text == "" {
		return ErrInvalidMessage
	}
	return nil
}

// HTTPMailer sends through a provider API that accepts
//
//	POST {endpoint}
//	Authorization: Bearer {apiKey}
//	{"from": ..., "to": [...], "subject": ..., "text": ..., "html": ...}
//
// which is the shape Resend, Postmark-style and most relay APIs use.
//
// Sends are rate-limited so a large reminder batch stays under the
// provider's per-second quota instead of failing halfway.
type HTTPMailer struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewHTTPMailer returns a mailer allowing perSecond sends per second.
func NewHTTPMailer(endpoint, apiKey, from string, perSecond float64) *HTTPMailer {
	if perSecond <= 0 {
		perSecond = 2
	}
	return &HTTPMailer{
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     from,
		client:   &http.Client{Timeout: 15 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	HTML    string   `json:"html,omitempty"`
}

func (m *HTTPMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mail: waiting for rate limiter: %w", err)
	}

	body, err := json.Marshal(sendRequest{
		From:    m.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("mail: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mail: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("mail: sending to provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mail: provider answered %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}

// LogMailer logs messages instead of sending them.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	m.logger.Info("email (not sent, log mailer)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("text", msg.Text),
	)
	return nil
}
