package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:  "single service - http",
			input: "http",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP: true,
			},
		},
		{
			name:  "single service - worker",
			input: "worker",
			expected: map[ServiceMode]bool{
				ServiceModeWorker: true,
			},
		},
		{
			name:  "all services",
			input: "http,worker,sweeper",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:    true,
				ServiceModeWorker:  true,
				ServiceModeSweeper: true,
			},
		},
		{
			name:  "services with spaces",
			input: " http , worker ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeWorker: true,
			},
		},
		{
			name:  "duplicate services",
			input: "worker,worker",
			expected: map[ServiceMode]bool{
				ServiceModeWorker: true,
			},
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "invalid service",
			input:       "http,scheduler",
			expectError: true,
		},
		{
			name:        "only commas",
			input:       ",,,",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServices(tt.input)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error for input %q, got none", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Fatalf("ParseServices(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestAppConfigDefaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config from empty env: %v", err)
	}
	cfg.Sanitize()

	if cfg.Services != "http" {
		t.Errorf("Services default = %q, want %q", cfg.Services, "http")
	}
	if cfg.Postgres.Port != 5432 {
		t.Errorf("Postgres.Port default = %d, want 5432", cfg.Postgres.Port)
	}
	if cfg.Worker.Count != 4 {
		t.Errorf("Worker.Count default = %d, want 4", cfg.Worker.Count)
	}
	if cfg.Worker.DeadLetterThreshold != 3 {
		t.Errorf("Worker.DeadLetterThreshold default = %d, want 3", cfg.Worker.DeadLetterThreshold)
	}
	if cfg.Sweeper.Interval != time.Minute {
		t.Errorf("Sweeper.Interval default = %v, want 1m", cfg.Sweeper.Interval)
	}
	if cfg.Pricing.CreditsPerMinute != 1 {
		t.Errorf("Pricing.CreditsPerMinute default = %d, want 1", cfg.Pricing.CreditsPerMinute)
	}
	if !cfg.Postgres.RunMigrationsOnStart {
		t.Error("RunMigrationsOnStart should default to true")
	}
}

func TestSanitizeClampsValues(t *testing.T) {
	cfg := AppConfig{
		Worker:  WorkerConfig{Count: -1, PollInterval: -time.Second, DeadLetterThreshold: 0},
		Sweeper: SweeperConfig{Interval: 0, StaleClaimAge: 0, BatchSize: 0},
		Pricing: PricingConfig{CreditsPerMinute: -5},
	}
	cfg.Sanitize()

	if cfg.Worker.Count != 1 {
		t.Errorf("Worker.Count = %d, want 1", cfg.Worker.Count)
	}
	if cfg.Worker.PollInterval != 2*time.Second {
		t.Errorf("Worker.PollInterval = %v, want 2s", cfg.Worker.PollInterval)
	}
	if cfg.Worker.DeadLetterThreshold != 3 {
		t.Errorf("Worker.DeadLetterThreshold = %d, want 3", cfg.Worker.DeadLetterThreshold)
	}
	if cfg.Sweeper.StaleClaimAge != 15*time.Minute {
		t.Errorf("Sweeper.StaleClaimAge = %v, want 15m", cfg.Sweeper.StaleClaimAge)
	}
	if cfg.Pricing.CreditsPerMinute != 1 {
		t.Errorf("Pricing.CreditsPerMinute = %d, want 1", cfg.Pricing.CreditsPerMinute)
	}
}

func TestMetricsConfigSanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{Enabled: true, StatsdAddress: "   "}
	cfg.Sanitize()
	if cfg.IsEnabled() {
		t.Error("metrics should be disabled when the statsd address is blank")
	}

	cfg = ObservabilityMetricsConfig{Enabled: true, StatsdAddress: "127.0.0.1:8125"}
	cfg.Sanitize()
	if !cfg.IsEnabled() {
		t.Error("metrics should be enabled with a valid address")
	}
}

func TestNotificationsSanitizeDisablesUnconfiguredSinks(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:   true,
		Slack:     SlackNotificationConfig{Enabled: true},
		PagerDuty: PagerDutyNotificationConfig{Enabled: true, RoutingKey: "rk-1"},
	}
	cfg.Sanitize()

	if cfg.Slack.Enabled {
		t.Error("Slack should be disabled without a webhook URL")
	}
	if !cfg.PagerDuty.Enabled {
		t.Error("PagerDuty should stay enabled with a routing key")
	}
}
