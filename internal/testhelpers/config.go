package testhelpers

import (
	"github.com/mixaill76/claude_bridge/internal/config"
)

// NewTestConfig builds a normalized config pointing at the given upstream
// base URL. Model slots and overrides are left empty so requests pass
// through unchanged unless the test sets them.
func NewTestConfig(baseURL string) *config.Config {
	cfg := &config.Config{}
	cfg.OpenAI.BaseURL = baseURL
	cfg.OpenAI.APIKey = "test-upstream-key"
	cfg.Normalize()
	return cfg
}
