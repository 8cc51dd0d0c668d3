package config

import (
	"strings"
	"time"
)

// MediaGenConfig contains media provider gateway configuration.
type MediaGenConfig struct {
	// BaseURL is the provider gateway endpoint all pipeline step requests
	// go through.
	BaseURL string `env:"MEDIAGEN_BASE_URL" envDefault:"http://localhost:9090"`

	// APIKey authenticates requests to the gateway.
	APIKey string `env:"MEDIAGEN_API_KEY"`

	// Timeout bounds a single provider request. Render and synthesis calls
	// run long; keep this generous.
	Timeout time.Duration `env:"MEDIAGEN_TIMEOUT" envDefault:"5m"`

	// Attempts and RetryInterval control the linear retry schedule for
	// transient provider failures.
	Attempts      int           `env:"MEDIAGEN_ATTEMPTS"       envDefault:"3"`
	RetryInterval time.Duration `env:"MEDIAGEN_RETRY_INTERVAL" envDefault:"2s"`

	// AllowedHosts is the artifact URL host allowlist (eTLD+1 matching).
	// Empty disables validation.
	AllowedHosts []string `env:"MEDIAGEN_ALLOWED_HOSTS" envDefault:""`
}

// Sanitize applies guardrails to media provider configuration values.
func (m *MediaGenConfig) Sanitize() {
	m.BaseURL = strings.TrimSpace(m.BaseURL)
	m.APIKey = strings.TrimSpace(m.APIKey)
	if m.Timeout <= 0 {
		m.Timeout = 5 * time.Minute
	}
	if m.Attempts < 1 {
		m.Attempts = 3
	}
	if m.RetryInterval <= 0 {
		m.RetryInterval = 2 * time.Second
	}

	hosts := m.AllowedHosts[:0]
	for _, h := range m.AllowedHosts {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	m.AllowedHosts = hosts
}
