package config

import (
	"strings"
	"time"
)

// InventoryConfig contains inventory scan configuration.
type InventoryConfig struct {
	// ExpiryWindowDays is how far ahead the expiring-lot scan looks.
	ExpiryWindowDays int `env:"INVENTORY_EXPIRY_WINDOW_DAYS" envDefault:"7"`

	// OpsRecipients receive the periodic reminder digest email.
	OpsRecipients []string `env:"INVENTORY_OPS_RECIPIENTS" envDefault:""`
}

// Sanitize applies guardrails to inventory configuration values.
func (c *InventoryConfig) Sanitize() {
	if c.ExpiryWindowDays < 1 {
		c.ExpiryWindowDays = 7
	}

	cleaned := c.OpsRecipients[:0]
	for _, r := range c.OpsRecipients {
		if trimmed := strings.TrimSpace(r); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	c.OpsRecipients = cleaned
}

// ExpiryWindow returns the expiring-lot lookahead as a duration.
func (c *InventoryConfig) ExpiryWindow() time.Duration {
	return time.Duration(c.ExpiryWindowDays) * 24 * time.Hour
}
