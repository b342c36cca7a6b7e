package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ladlehq/ladle/config"
	"github.com/ladlehq/ladle/internal/domain/payload"
)

// EmailSender delivers transactional email through an HTTP provider API.
type EmailSender struct {
	endpointURL string
	apiKey      string
	from        string
	client      *http.Client
}

// EmailSenderConfig groups construction parameters for EmailSender.
type EmailSenderConfig struct {
	Provider config.EmailProviderConfig
	Timeout  time.Duration
	Client   *http.Client
}

// NewEmailSender builds an email provider client. Callers should pass a
// sanitized config.
func NewEmailSender(cfg EmailSenderConfig) (*EmailSender, error) {
	endpoint := strings.TrimSpace(cfg.Provider.EndpointURL)
	if endpoint == "" {
		return nil, errors.New("email endpoint url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &EmailSender{
		endpointURL: endpoint,
		apiKey:      cfg.Provider.APIKey,
		from:        cfg.Provider.From,
		client:      hc,
	}, nil
}

// Send delivers one email. A malformed recipient address fails permanently
// before the provider is contacted.
func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	if err := payload.ValidateEmailAddress(msg.To); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{
		"from":    s.from,
		"to":      msg.To,
		"subject": msg.Subject,
		"body":    msg.Body,
	})
	if err != nil {
		return fmt.Errorf("encode email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpointURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("email request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return providerError("email provider", resp)
	}
	return drainSuccess(resp)
}

var _ Sender = (*EmailSender)(nil)
