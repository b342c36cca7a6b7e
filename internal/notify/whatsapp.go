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

// WhatsAppSender delivers messages through a WhatsApp Business gateway API.
type WhatsAppSender struct {
	endpointURL string
	apiKey      string
	senderID    string
	client      *http.Client
}

// WhatsAppSenderConfig groups construction parameters for WhatsAppSender.
type WhatsAppSenderConfig struct {
	Provider config.WhatsAppProviderConfig
	Timeout  time.Duration
	Client   *http.Client
}

// NewWhatsAppSender builds a WhatsApp gateway client. Callers should pass a
// sanitized config.
func NewWhatsAppSender(cfg WhatsAppSenderConfig) (*WhatsAppSender, error) {
	endpoint := strings.TrimSpace(cfg.Provider.EndpointURL)
	if endpoint == "" {
		return nil, errors.New("whatsapp endpoint url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &WhatsAppSender{
		endpointURL: endpoint,
		apiKey:      cfg.Provider.APIKey,
		senderID:    cfg.Provider.SenderID,
		client:      hc,
	}, nil
}

// Send delivers one WhatsApp message. WhatsApp recipients are phone numbers,
// so the same E.164 check as SMS applies.
func (s *WhatsAppSender) Send(ctx context.Context, msg Message) error {
	if err := payload.ValidatePhoneNumber(msg.To); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{
		"sender_id": s.senderID,
		"to":        msg.To,
		"type":      "text",
		"text":      map[string]string{"body": msg.Body},
	})
	if err != nil {
		return fmt.Errorf("encode whatsapp request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpointURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return providerError("whatsapp gateway", resp)
	}
	return drainSuccess(resp)
}

var _ Sender = (*WhatsAppSender)(nil)
