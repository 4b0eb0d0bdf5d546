package payment

import (
	"fmt"
	"time"
)

// TerminalConfig holds the configuration for the card terminal gateway
type TerminalConfig struct {
	// BaseURL is the gateway endpoint, e.g. https://terminal.example.com
	BaseURL string
	// APIKey authenticates requests to the gateway
	APIKey string
	// TerminalID identifies the physical terminal at the gateway
	TerminalID string
	// Timeout bounds a single authorization round-trip
	Timeout time.Duration
}

// Validate checks the configuration for required fields
func (c *TerminalConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("terminal gateway base URL is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("terminal gateway API key is required")
	}
	if c.TerminalID == "" {
		return fmt.Errorf("terminal ID is required")
	}
	return nil
}

// timeout returns the configured timeout or a default
func (c *TerminalConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.Timeout
}
