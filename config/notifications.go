package config

import (
	"strings"
	"time"
)

// NotificationsConfig groups outbound notification provider configuration.
type NotificationsConfig struct {
	// Timeout bounds one provider HTTP call. Retries are the worker pool's
	// concern; senders make exactly one attempt per call.
	Timeout time.Duration `env:"NOTIFICATIONS_TIMEOUT" envDefault:"10s"`

	Email    EmailProviderConfig    `envPrefix:"NOTIFICATIONS_EMAIL_"`
	SMS      SMSProviderConfig      `envPrefix:"NOTIFICATIONS_SMS_"`
	WhatsApp WhatsAppProviderConfig `envPrefix:"NOTIFICATIONS_WHATSAPP_"`
}

// Sanitize normalises notification configuration values.
func (c *NotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	c.Email.sanitize()
	c.SMS.sanitize()
	c.WhatsApp.sanitize()
}

// EmailProviderConfig controls the transactional email provider.
type EmailProviderConfig struct {
	Enabled     bool   `env:"ENABLED" envDefault:"false"`
	EndpointURL string `env:"ENDPOINT_URL"`
	APIKey      string `env:"API_KEY"`
	From        string `env:"FROM"    envDefault:"no-reply@ladle.dev"`
}

func (c *EmailProviderConfig) sanitize() {
	c.EndpointURL = strings.TrimSpace(c.EndpointURL)
	c.From = strings.TrimSpace(c.From)
	if c.EndpointURL == "" {
		c.Enabled = false
	}
}

// SMSProviderConfig controls the SMS gateway.
type SMSProviderConfig struct {
	Enabled     bool   `env:"ENABLED" envDefault:"false"`
	EndpointURL string `env:"ENDPOINT_URL"`
	APIKey      string `env:"API_KEY"`
	From        string `env:"FROM"`
}

func (c *SMSProviderConfig) sanitize() {
	c.EndpointURL = strings.TrimSpace(c.EndpointURL)
	c.From = strings.TrimSpace(c.From)
	if c.EndpointURL == "" {
		c.Enabled = false
	}
}

// WhatsAppProviderConfig controls the WhatsApp Business gateway.
type WhatsAppProviderConfig struct {
	Enabled     bool   `env:"ENABLED" envDefault:"false"`
	EndpointURL string `env:"ENDPOINT_URL"`
	APIKey      string `env:"API_KEY"`
	SenderID    string `env:"SENDER_ID"`
}

func (c *WhatsAppProviderConfig) sanitize() {
	c.EndpointURL = strings.TrimSpace(c.EndpointURL)
	c.SenderID = strings.TrimSpace(c.SenderID)
	if c.EndpointURL == "" {
		c.Enabled = false
	}
}
