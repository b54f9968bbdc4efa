package gemini

import (
	"os"
	"time"
)

// Config for the Gemini client.
type Config struct {
	APIKey      string // if empty, falls back to env GEMINI_API_KEY
	Model       string // e.g., "gemini-2.0-flash"
	Temperature float32
	Timeout     time.Duration
	// BaseURL overrides the API endpoint; empty uses the SDK default.
	BaseURL string
}

func (c *Config) applyDefaults() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.Model == "" {
		c.Model = "gemini-2.0-flash"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}
