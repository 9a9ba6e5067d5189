package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const resendEndpoint = "https://api.resend.com/emails"

// resendTransport delivers mail through the Resend API.
type resendTransport struct {
	apiKey     string
	fromAddr   string // e.g. "reminders@bornify.app"
	fromName   string // e.g. "Bornify"
	endpoint   string
	httpClient *http.Client
}

// NewResendClient returns a Sender that delivers email via Resend. The
// underlying http.Client keeps connections pooled across a whole run.
func NewResendClient(apiKey, fromAddr, fromName string) Sender {
	return &mailer{t: &resendTransport{
		apiKey:   apiKey,
		fromAddr: fromAddr,
		fromName: fromName,
		endpoint: resendEndpoint,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}}
}

// ─── RESEND API SHAPES ────────────────────────────────────────────────────────

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// ─── HTTP SEND ────────────────────────────────────────────────────────────────

func (c *resendTransport) ready() error {
	if c.apiKey == "" {
		return errors.New("email: RESEND_API_KEY is not set")
	}
	if c.fromAddr == "" {
		return errors.New("email: from address is not set")
	}
	return nil
}

func (c *resendTransport) deliver(ctx context.Context, to, subject, html string) error {
	if err := c.ready(); err != nil {
		return err
	}
	from := fmt.Sprintf("%s <%s>", c.fromName, c.fromAddr)

	bodyBytes, err := json.Marshal(resendRequest{
		From:    from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("email: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("email: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("email: http request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("email: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var parsed resendResponse
		if json.Unmarshal(respBytes, &parsed) == nil && parsed.Message != "" {
			return fmt.Errorf("email: Resend error %d %s: %s", resp.StatusCode, parsed.Name, parsed.Message)
		}
		return fmt.Errorf("email: unexpected status %d: %.200s", resp.StatusCode, string(respBytes))
	}
	return nil
}
