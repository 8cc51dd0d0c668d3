// Package failurenotifier fans dead letter notifications out to every
// configured operator channel.
package failurenotifier

import (
	"context"
	"log/slog"
	"sync"

	"github.com/canvascast/canvascast-go/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
}

// Service dispatches dead letter events to all registered sinks. It
// implements notify.Sink so the pipeline runner can treat the fan-out as a
// single destination.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
}

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "failure_notifier")
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{
			Name: name,
			Sink: entry.Sink,
		})
	}

	return &Service{
		logger: logger,
		sinks:  sinks,
	}
}

// SendDeadLetter fans the payload out to all sinks. Delivery errors are
// logged per sink and never propagate; a broken Slack webhook must not keep
// PagerDuty from firing.
func (s *Service) SendDeadLetter(ctx context.Context, payload notify.DeadLetterPayload) error {
	if len(s.sinks) == 0 {
		return nil
	}

	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendDeadLetter(ctx, payload); err != nil {
				s.logger.Error("failure notifier delivery error",
					"sink", entry.Name,
					"job_id", payload.JobID,
					"step", payload.Step,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
	return nil
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}
