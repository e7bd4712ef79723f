// Package mailer delivers transactional mail through an HTTP email API.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"teahouse-backend/internal/domain"
	"teahouse-backend/pkg/logger"
)

type HTTPMailer struct {
	apiURL     string
	apiKey     string
	from       string
	httpClient *http.Client
}

var _ domain.Mailer = (*HTTPMailer)(nil)

func NewHTTPMailer(apiURL, apiKey, from string, timeout time.Duration) *HTTPMailer {
	return &HTTPMailer{
		apiURL:     apiURL,
		apiKey:     apiKey,
		from:       from,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// Send returns an error for any non-2xx answer so the caller can retry.
func (m *HTTPMailer) Send(ctx context.Context, mail domain.Mail) error {
	body, err := json.Marshal(message{From: m.from, To: mail.To, Subject: mail.Subject, Text: mail.Text})
	if err != nil {
		return fmt.Errorf("failed to marshal mail: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mail request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mail API error (status %d): %s", resp.StatusCode, string(snippet))
	}
	return nil
}

// LogMailer only logs. Used when no mail API is configured.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, mail domain.Mail) error {
	logger.WithContext(ctx).Info().
		Str("to", mail.To).
		Str("subject", mail.Subject).
		Msg("mail API not configured, skipping send")
	return nil
}
