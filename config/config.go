package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and cache configuration
//   - http.go: HTTP server configuration
//   - services.go: Service mode, worker, and sweeper configuration
//   - mediagen.go: Media provider configuration
//   - observability.go: Metrics and notification configuration
type AppConfig struct {
	// IsDev controls development mode behavior.
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Cache    CacheConfig

	// HTTP server configuration
	HTTP HTTPConfig

	// Services is the comma-delimited list of service modes to run.
	Services string `env:"SERVICES" envDefault:"http"`

	// Worker configuration
	Worker WorkerConfig

	// Sweeper configuration
	Sweeper SweeperConfig

	// Pricing configuration
	Pricing PricingConfig

	// Media provider configuration
	MediaGen MediaGenConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Worker.Sanitize()
	c.Sweeper.Sanitize()
	c.Pricing.Sanitize()
	c.MediaGen.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.isEnabled(ServiceModeHTTP)
}

// IsWorkerEnabled returns true if the pipeline worker service is enabled.
func (c *AppConfig) IsWorkerEnabled() bool {
	return c.isEnabled(ServiceModeWorker)
}

// IsSweeperEnabled returns true if the sweeper service is enabled.
func (c *AppConfig) IsSweeperEnabled() bool {
	return c.isEnabled(ServiceModeSweeper)
}

func (c *AppConfig) isEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
