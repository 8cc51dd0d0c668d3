// Package notify defines the dead-letter notification contract shared by the
// Slack and PagerDuty sinks.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// DeadLetterPayload captures the canonical data emitted when a job exhausts
// its retries and lands in the dead letter queue.
type DeadLetterPayload struct {
	JobID      string
	ProjectID  string
	UserID     string
	Step       string
	RetryCount int
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of consuming dead-letter notifications.
type Sink interface {
	SendDeadLetter(ctx context.Context, payload DeadLetterPayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload DeadLetterPayload) error

// SendDeadLetter implements the Sink interface.
func (f SinkFunc) SendDeadLetter(ctx context.Context, payload DeadLetterPayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
