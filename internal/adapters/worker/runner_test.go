package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/canvascast/canvascast-go/config"
	"github.com/canvascast/canvascast-go/internal/core"
	"github.com/canvascast/canvascast-go/internal/data/memstore"
	"github.com/canvascast/canvascast-go/internal/domain/model"
	"github.com/canvascast/canvascast-go/internal/pipeline"
)

type okProviders struct{}

func (okProviders) Outline(_ context.Context, _ pipeline.ScriptRequest) (string, error) {
	return "outline", nil
}

func (okProviders) Script(_ context.Context, _ pipeline.ScriptRequest) (string, error) {
	return "script text", nil
}

func (okProviders) Synthesize(_ context.Context, req pipeline.SynthesizeRequest) (*pipeline.Narration, error) {
	return &pipeline.Narration{AudioPath: req.OutputPath, DurationMs: 90_000}, nil
}

func (okProviders) Align(_ context.Context, req pipeline.AlignRequest) (*pipeline.AlignmentResult, error) {
	return &pipeline.AlignmentResult{
		Words:           []pipeline.AlignedWord{{Word: "hello", StartMs: 0, EndMs: 400}},
		Segments:        []pipeline.AlignedSegment{{Text: "hello", StartMs: 0, EndMs: 400}},
		CaptionsSrtPath: req.OutputPath,
	}, nil
}

func (okProviders) Plan(_ context.Context, _ pipeline.PlanRequest) (*pipeline.VisualPlan, error) {
	return &pipeline.VisualPlan{Scenes: []pipeline.Scene{{Index: 0, StartMs: 0, EndMs: 400, Prompt: "scene"}}}, nil
}

func (okProviders) Generate(_ context.Context, req pipeline.ImageRequest) ([]string, error) {
	return []string{req.BasePath + "/scene-0.png"}, nil
}

func (okProviders) Render(_ context.Context, req pipeline.RenderRequest) (string, error) {
	return req.OutputPath, nil
}

func (okProviders) Package(_ context.Context, req pipeline.PackageRequest) (string, error) {
	return req.OutputPath, nil
}

func newWorkerFixture(t *testing.T) (*Runner, *memstore.Store) {
	t.Helper()

	store := memstore.New()
	store.AddProject(&model.Project{
		ID:              "proj-1",
		UserID:          "user-1",
		NichePreset:     "space",
		DurationMinutes: 3,
		VoiceID:         "voice-a",
		VisualPreset:    "dark",
		Density:         "medium",
		Resolution:      "1920x1080",
		Prompt:          "a tour of the solar system",
	})

	p := okProviders{}
	pipelineRunner := pipeline.MustNewRunner(pipeline.RunnerOptions{
		Jobs:     store,
		Credits:  store,
		Projects: store.Projects(),
		Events:   store,
		Steps: pipeline.NewSteps(pipeline.Providers{
			Script:    p,
			Voice:     p,
			Alignment: p,
			Visual:    p,
			Image:     p,
			Render:    p,
			Packager:  p,
		}),
		FinalCost: func(_ *model.Project, _ *pipeline.Context) int64 { return 30 },
	})

	runner, err := NewRunner(RunnerOptions{
		Jobs:     store,
		Pipeline: pipelineRunner,
		Config: config.WorkerConfig{
			Count:        1,
			PollInterval: 10 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	return runner, store
}

func seedQueuedJob(t *testing.T, store *memstore.Store) *model.Job {
	t.Helper()
	ctx := context.Background()

	_, err := store.Purchase(ctx, core.PurchaseCreditsParams{
		UserID: "user-1",
		Amount: 100,
		Note:   "starter pack",
	})
	require.NoError(t, err)

	job, err := store.Create(ctx, &model.CreateJobRequest{
		ProjectID:           "proj-1",
		UserID:              "user-1",
		CostCreditsReserved: 50,
	})
	require.NoError(t, err)

	ok, err := store.Reserve(ctx, core.ReserveCreditsParams{
		UserID: "user-1",
		JobID:  job.ID,
		Amount: 50,
	})
	require.NoError(t, err)
	require.True(t, ok)
	return job
}

func TestRunnerProcessesQueuedJobToCompletion(t *testing.T) {
	runner, store := newWorkerFixture(t)
	job := seedQueuedJob(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- runner.Run(ctx) }()

	require.Eventually(t, func() bool {
		current := store.Job(job.ID)
		return current != nil && current.Status == model.JobStatusReady
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}

	finished := store.Job(job.ID)
	require.Equal(t, 100, finished.Progress)
	require.NotNil(t, finished.CostCreditsFinal)
	require.EqualValues(t, 30, *finished.CostCreditsFinal)
}

func TestRunnerIdlesWhenQueueEmpty(t *testing.T) {
	runner, _ := newWorkerFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- runner.Run(ctx) }()

	// Give the loop a few poll cycles with nothing to claim.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}

func TestNewRunnerValidation(t *testing.T) {
	store := memstore.New()

	_, err := NewRunner(RunnerOptions{Pipeline: nil, Jobs: store})
	require.Error(t, err)

	_, err = NewRunner(RunnerOptions{Jobs: nil})
	require.Error(t, err)
}
