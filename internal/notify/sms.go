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

// SMSSender delivers text messages through an HTTP gateway API.
type SMSSender struct {
	endpointURL string
	apiKey      string
	from        string
	client      *http.Client
}

// SMSSenderConfig groups construction parameters for SMSSender.
type SMSSenderConfig struct {
	Provider config.SMSProviderConfig
	Timeout  time.Duration
	Client   *http.Client
}

// NewSMSSender builds an SMS gateway client. Callers should pass a sanitized
// config.
func NewSMSSender(cfg SMSSenderConfig) (*SMSSender, error) {
	endpoint := strings.TrimSpace(cfg.Provider.EndpointURL)
	if endpoint == "" {
		return nil, errors.New("sms endpoint url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &SMSSender{
		endpointURL: endpoint,
		apiKey:      cfg.Provider.APIKey,
		from:        cfg.Provider.From,
		client:      hc,
	}, nil
}

// Send delivers one SMS. A number that is not plausible E.164 fails
// permanently before the gateway is contacted.
func (s *SMSSender) Send(ctx context.Context, msg Message) error {
	if err := payload.ValidatePhoneNumber(msg.To); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{
		"from": s.from,
		"to":   msg.To,
		"body": msg.Body,
	})
	if err != nil {
		return fmt.Errorf("encode sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpointURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return providerError("sms gateway", resp)
	}
	return drainSuccess(resp)
}

var _ Sender = (*SMSSender)(nil)
