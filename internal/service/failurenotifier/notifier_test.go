package failurenotifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvascast/canvascast-go/internal/observability/notify"
)

type recordingSink struct {
	mu       sync.Mutex
	payloads []notify.DeadLetterPayload
	err      error
}

func (s *recordingSink) SendDeadLetter(_ context.Context, payload notify.DeadLetterPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	return s.err
}

func (s *recordingSink) received() []notify.DeadLetterPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.DeadLetterPayload(nil), s.payloads...)
}

func TestServiceFansOutToAllSinks(t *testing.T) {
	slack := &recordingSink{}
	pagerduty := &recordingSink{}

	svc := NewService(Options{Sinks: []SinkRegistration{
		{Name: "slack", Sink: slack},
		{Name: "pagerduty", Sink: pagerduty},
	}})
	require.True(t, svc.Enabled())

	err := svc.SendDeadLetter(context.Background(), notify.DeadLetterPayload{
		JobID: "job-1",
		Step:  "renderVideo",
	})
	require.NoError(t, err)

	require.Len(t, slack.received(), 1)
	require.Len(t, pagerduty.received(), 1)
	assert.Equal(t, notify.SeverityCritical, slack.received()[0].Severity)
}

func TestServiceSinkErrorDoesNotBlockOthers(t *testing.T) {
	broken := &recordingSink{err: errors.New("webhook gone")}
	healthy := &recordingSink{}

	svc := NewService(Options{Sinks: []SinkRegistration{
		{Name: "slack", Sink: broken},
		{Name: "pagerduty", Sink: healthy},
	}})

	err := svc.SendDeadLetter(context.Background(), notify.DeadLetterPayload{JobID: "job-2"})
	require.NoError(t, err)
	assert.Len(t, healthy.received(), 1)
}

func TestServiceSkipsNilSinks(t *testing.T) {
	svc := NewService(Options{Sinks: []SinkRegistration{
		{Name: "empty", Sink: nil},
	}})
	assert.False(t, svc.Enabled())
	require.NoError(t, svc.SendDeadLetter(context.Background(), notify.DeadLetterPayload{}))
}

func TestServicePreservesExplicitSeverity(t *testing.T) {
	sink := &recordingSink{}
	svc := NewService(Options{Sinks: []SinkRegistration{{Name: "slack", Sink: sink}}})

	err := svc.SendDeadLetter(context.Background(), notify.DeadLetterPayload{
		JobID:    "job-3",
		Severity: notify.SeverityWarning,
	})
	require.NoError(t, err)
	require.Len(t, sink.received(), 1)
	assert.Equal(t, notify.SeverityWarning, sink.received()[0].Severity)
}
