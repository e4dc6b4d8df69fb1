// Package notify delivers collection reminders for contracts that are due or
// overdue.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mcclellann/fredBilling/pkg/logger"
)

// Sender delivers a message to a phone number.
type Sender interface {
	Send(ctx context.Context, phone, text string) error
}

// WebhookSender posts each message as JSON to an HTTP endpoint, typically a
// messaging gateway.
type WebhookSender struct {
	URL    string
	Client *http.Client
}

func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookPayload struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func (s *WebhookSender) Send(ctx context.Context, phone, text string) error {
	body, err := json.Marshal(webhookPayload{Phone: phone, Message: text})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct{}

func (LogSender) Send(_ context.Context, phone, text string) error {
	log := logger.WithComponent("notify")
	log.Info().Str("phone", phone).Str("message", text).Msg("Reminder (dry run)")
	return nil
}
