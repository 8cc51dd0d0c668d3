package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker runs the pipeline workers.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeSweeper runs the stale-claim and draft cleanup sweeper.
	ServiceModeSweeper ServiceMode = "sweeper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeWorker,
		ServiceModeSweeper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeWorker, ServiceModeSweeper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, worker, sweeper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains pipeline worker configuration.
type WorkerConfig struct {
	// Count is the number of concurrent pipeline workers.
	Count int `env:"WORKER_COUNT" envDefault:"4"`

	// PollInterval is how long a worker sleeps when no job is claimable.
	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"2s"`

	// PerUserLimit caps simultaneously active jobs per user at claim time.
	// Zero disables the cap.
	PerUserLimit int `env:"WORKER_PER_USER_LIMIT" envDefault:"2"`

	// DeadLetterThreshold is the retry count at which a failed job moves to
	// the dead letter queue.
	DeadLetterThreshold int `env:"WORKER_DLQ_THRESHOLD" envDefault:"3"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Count < 1 {
		w.Count = 1
	}
	if w.PollInterval <= 0 {
		w.PollInterval = 2 * time.Second
	}
	if w.PerUserLimit < 0 {
		w.PerUserLimit = 0
	}
	if w.DeadLetterThreshold < 1 {
		w.DeadLetterThreshold = 3
	}
}

// SweeperConfig contains sweeper service configuration.
type SweeperConfig struct {
	// Interval is the sweep tick interval.
	Interval time.Duration `env:"SWEEPER_INTERVAL" envDefault:"1m"`

	// StaleClaimAge is the claim age beyond which a non-terminal job is
	// considered orphaned by a dead worker and returned to the queue.
	StaleClaimAge time.Duration `env:"SWEEPER_STALE_CLAIM_AGE" envDefault:"15m"`

	// BatchSize bounds how many rows one sweep touches.
	BatchSize int `env:"SWEEPER_BATCH_SIZE" envDefault:"100"`
}

// Sanitize applies guardrails to sweeper configuration values.
func (s *SweeperConfig) Sanitize() {
	if s.Interval <= 0 {
		s.Interval = time.Minute
	}
	if s.StaleClaimAge <= 0 {
		s.StaleClaimAge = 15 * time.Minute
	}
	if s.BatchSize < 1 {
		s.BatchSize = 100
	}
}

// PricingConfig contains credit pricing configuration.
type PricingConfig struct {
	// CreditsPerMinute is the reservation rate per target video minute.
	CreditsPerMinute int64 `env:"PRICING_CREDITS_PER_MINUTE" envDefault:"1"`
}

// Sanitize applies guardrails to pricing configuration values.
func (p *PricingConfig) Sanitize() {
	if p.CreditsPerMinute < 1 {
		p.CreditsPerMinute = 1
	}
}
