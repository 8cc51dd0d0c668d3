package pricing

import (
	"testing"

	"github.com/canvascast/canvascast-go/internal/domain/model"
	"github.com/stretchr/testify/assert"
)

func TestEstimatorReserve(t *testing.T) {
	e := NewEstimator(2)

	assert.Equal(t, int64(10), e.Reserve(&model.Project{DurationMinutes: 5}))
	assert.Equal(t, int64(2), e.Reserve(&model.Project{DurationMinutes: 1}))

	// Degenerate durations reserve at least one minute.
	assert.Equal(t, int64(2), e.Reserve(&model.Project{DurationMinutes: 0}))
}

func TestEstimatorFinalCost(t *testing.T) {
	e := NewEstimator(1)
	project := &model.Project{DurationMinutes: 5}

	t.Run("charges produced minutes rounded up", func(t *testing.T) {
		assert.Equal(t, int64(3), e.FinalCost(project, 3*60_000))
		assert.Equal(t, int64(4), e.FinalCost(project, 3*60_000+1))
	})

	t.Run("never exceeds the reservation", func(t *testing.T) {
		assert.Equal(t, int64(5), e.FinalCost(project, 20*60_000))
	})

	t.Run("unknown duration charges the reservation", func(t *testing.T) {
		assert.Equal(t, int64(5), e.FinalCost(project, 0))
		assert.Equal(t, int64(5), e.FinalCost(project, -1))
	})

	t.Run("sub-minute narration charges one minute", func(t *testing.T) {
		assert.Equal(t, int64(1), e.FinalCost(project, 1500))
	})
}

func TestNewEstimatorFallbackRate(t *testing.T) {
	e := NewEstimator(0)
	assert.Equal(t, int64(DefaultCreditsPerMinute*3), e.Reserve(&model.Project{DurationMinutes: 3}))
}
