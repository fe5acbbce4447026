// Package mailer sends transactional email through the Brevo HTTP API.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("mailer: BREVO_API_KEY not set")

type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type Email struct {
	Sender      Address   `json:"sender"`
	To          []Address `json:"to"`
	ReplyTo     *Address  `json:"replyTo,omitempty"`
	Subject     string    `json:"subject"`
	HTMLContent string    `json:"htmlContent"`
}

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// APIError is a non-2xx answer from Brevo.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("brevo: status %d: %s", e.Status, e.Body)
}

type BrevoClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewBrevoClient(apiKey, baseURL string, timeout time.Duration) *BrevoClient {
	return &BrevoClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (b *BrevoClient) Send(ctx context.Context, email Email) error {
	if b.apiKey == "" {
		return ErrNotConfigured
	}
	body, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("brevo: encode email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/smtp/email", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("brevo: build request: %w", err)
	}
	req.Header.Set("api-key", b.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("brevo: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return nil
}
