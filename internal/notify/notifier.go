// Package notify delivers best-effort email notifications through the external
// send-email function. Nothing in here is allowed to fail a primary operation.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrNoRecipients = errors.New("notify: email has no recipients")

// Email is the payload accepted by the send-email function.
type Email struct {
	Kind    string   `json:"-"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type Notifier interface {
	Send(ctx context.Context, email Email) error
}

// FunctionClient calls the serverless send-email function over HTTP.
type FunctionClient struct {
	url    string
	apiKey string
	client *http.Client
}

func NewFunctionClient(url, apiKey string, timeout time.Duration) *FunctionClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FunctionClient{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *FunctionClient) Send(ctx context.Context, email Email) error {
	if len(email.To) == 0 {
		return ErrNoRecipients
	}

	body, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("notify: failed to encode email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send-email call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: send-email returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	return nil
}

// LogNotifier only records what would have been sent. Used when no function URL is configured.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, email Email) error {
	log.Info().Strs("to", email.To).Str("subject", email.Subject).Msg("notify: email delivery disabled, skipping")
	return nil
}
