package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/canvascast/canvascast-go/config"
	"github.com/canvascast/canvascast-go/internal/adapters/mediagen"
	"github.com/canvascast/canvascast-go/internal/adapters/sweeper"
	"github.com/canvascast/canvascast-go/internal/adapters/worker"
	"github.com/canvascast/canvascast-go/internal/core"
	"github.com/canvascast/canvascast-go/internal/data"
	"github.com/canvascast/canvascast-go/internal/domain/model"
	"github.com/canvascast/canvascast-go/internal/domain/pricing"
	"github.com/canvascast/canvascast-go/internal/observability/notify/pagerduty"
	"github.com/canvascast/canvascast-go/internal/observability/notify/slack"
	"github.com/canvascast/canvascast-go/internal/observability/statsd"
	"github.com/canvascast/canvascast-go/internal/pipeline"
	"github.com/canvascast/canvascast-go/internal/service"
	"github.com/canvascast/canvascast-go/internal/service/failurenotifier"
	"github.com/redis/go-redis/v9"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *service.JobService
	Credits       *service.CreditService
	DeadLetter    *service.DeadLetterService
	Drafts        core.DraftStore
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	DB          *sql.DB
	Redis       redis.UniversalClient
	JobRepo     *data.JobRepo
	CreditRepo  *data.CreditRepo
	ProjectRepo *data.ProjectRepo
	EventRepo   *data.JobEventRepo
	DraftRepo   *data.DraftRepo
	CacheRepo   *data.RedisCacheRepo
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "canvascast",
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	failureNotifier := buildFailureNotifier(obsLogger, cfg.Notifications)

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: failureNotifier,
		NotifierConfig:  cfg.Notifications,
	}
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "pagerduty",
				Sink: client,
			})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: baseLogger.With("component", "failure_notifier"),
		Sinks:  sinks,
	})
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(db *sql.DB, redisClient redis.UniversalClient, logger *slog.Logger) *serviceRepositories {
	repoCfg := data.RepoConfig{Logger: logger}

	repos := &serviceRepositories{
		DB:          db,
		Redis:       redisClient,
		JobRepo:     data.NewJobRepo(db, repoCfg),
		CreditRepo:  data.NewCreditRepo(db, repoCfg),
		ProjectRepo: data.NewProjectRepo(db, repoCfg),
		EventRepo:   data.NewJobEventRepo(db, repoCfg),
		DraftRepo:   data.NewDraftRepo(db, repoCfg),
	}
	if redisClient != nil {
		repos.CacheRepo = data.NewRedisCacheRepo(redisClient)
	}
	return repos
}

// DomainServicesOptions groups inputs for buildDomainServices.
type DomainServicesOptions struct {
	Repos         *serviceRepositories
	Observability ObservabilityContainer
	Config        *config.AppConfig
	Logger        *slog.Logger
}

// buildDomainServices wires business services using repositories and observability adapters.
func buildDomainServices(opts *DomainServicesOptions) ServiceContainer {
	if opts == nil {
		return ServiceContainer{}
	}
	svcLogger := opts.Logger
	if svcLogger == nil {
		svcLogger = slog.Default()
	}

	appCfg := opts.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	jobOpts := service.JobServiceOptions{
		Jobs:      opts.Repos.JobRepo,
		Credits:   opts.Repos.CreditRepo,
		Projects:  opts.Repos.ProjectRepo,
		Events:    opts.Repos.EventRepo,
		Estimator: pricing.NewEstimator(appCfg.Pricing.CreditsPerMinute),
		StatusTTL: appCfg.Cache.StatusTTL,
		Logger:    svcLogger,
		Metrics:   opts.Observability.MetricsSink,
	}
	if opts.Repos.CacheRepo != nil {
		jobOpts.Cache = opts.Repos.CacheRepo
	}
	jobService := service.MustNewJobService(jobOpts)

	creditService := service.MustNewCreditService(service.CreditServiceOptions{
		Credits: opts.Repos.CreditRepo,
		Logger:  svcLogger,
	})

	deadLetterService := service.MustNewDeadLetterService(service.DeadLetterServiceOptions{
		Jobs:    opts.Repos.JobRepo,
		Logger:  svcLogger,
		Metrics: opts.Observability.MetricsSink,
	})

	return ServiceContainer{
		Jobs:          jobService,
		Credits:       creditService,
		DeadLetter:    deadLetterService,
		Drafts:        opts.Repos.DraftRepo,
		Observability: opts.Observability,
	}
}

// NewServices builds the full service container from shared infrastructure.
func NewServices(deps *ServiceDeps) ServiceContainer {
	if deps == nil {
		return ServiceContainer{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var obsCfg config.ObservabilityConfig
	if deps.Config != nil {
		obsCfg = deps.Config.Observability
	}
	observability := buildObservability(logger, obsCfg)
	repos := buildRepositories(deps.DB, deps.RedisClient, logger)
	return buildDomainServices(&DomainServicesOptions{
		Repos:         repos,
		Observability: observability,
		Config:        deps.Config,
		Logger:        logger,
	})
}

// buildPipelineRunner assembles the provider clients and the pipeline runner
// the workers execute jobs with.
func buildPipelineRunner(cfg *config.AppConfig, repos *serviceRepositories, observability ObservabilityContainer, logger *slog.Logger) (*pipeline.Runner, error) {
	client, err := mediagen.NewClient(mediagen.Config{
		BaseURL:  cfg.MediaGen.BaseURL,
		APIKey:   cfg.MediaGen.APIKey,
		Timeout:  cfg.MediaGen.Timeout,
		Attempts: cfg.MediaGen.Attempts,
		Interval: cfg.MediaGen.RetryInterval,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build mediagen client: %w", err)
	}

	providers, err := mediagen.NewProviders(client, mediagen.NewHostAllowlist(cfg.MediaGen.AllowedHosts))
	if err != nil {
		return nil, fmt.Errorf("build mediagen providers: %w", err)
	}

	estimator := pricing.NewEstimator(cfg.Pricing.CreditsPerMinute)

	return pipeline.NewRunner(pipeline.RunnerOptions{
		Jobs:     repos.JobRepo,
		Credits:  repos.CreditRepo,
		Projects: repos.ProjectRepo,
		Events:   repos.EventRepo,
		Steps:    pipeline.NewSteps(providers),
		FinalCost: func(project *model.Project, pc *pipeline.Context) int64 {
			return estimator.FinalCost(project, int64(pc.IntArtifact(pipeline.ArtifactNarrationDurationMs)))
		},
		DeadLetterThreshold: cfg.Worker.DeadLetterThreshold,
		Metrics:             observability.MetricsSink,
		Notifier:            observability.FailureNotifier,
		Logger:              logger,
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		DB:       deps.cfg.DB,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				if deps.logger != nil {
					deps.logger.WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
				} else {
					slog.Default().WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
				}
			}
		}
	}()

	if deps.logger != nil {
		deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	} else {
		slog.Default().InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	}

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWorker,
		name: "pipeline worker",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil || deps.cfg.Config == nil {
				return nil
			}
			cfg := deps.cfg.Config
			repos := buildRepositories(deps.cfg.DB, deps.cfg.RedisClient, deps.logger)

			runner, err := buildPipelineRunner(cfg, repos, deps.cfg.Services.Observability, deps.logger)
			if err != nil {
				return err
			}

			workerRunner, err := worker.NewRunner(worker.RunnerOptions{
				Jobs:     repos.JobRepo,
				Pipeline: runner,
				Config:   cfg.Worker,
				Logger:   deps.logger,
				Metrics:  deps.cfg.Services.Observability.MetricsSink,
			})
			if err != nil {
				return err
			}
			return workerRunner.Run(ctx)
		},
	}
}

func newSweeperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeSweeper,
		name: "sweeper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil || deps.cfg.Config == nil {
				return nil
			}
			runner, err := sweeper.NewRunner(sweeper.RunnerOptions{
				DB:      deps.cfg.DB,
				Config:  deps.cfg.Config.Sweeper,
				Logger:  deps.logger,
				Metrics: deps.cfg.Services.Observability.MetricsSink,
			})
			if err != nil {
				return err
			}
			return runner.Run(ctx)
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newWorkerBackgroundService(deps),
		newSweeperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	ctx := context.Background()
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	modes := []config.ServiceMode{
		config.ServiceModeHTTP,
		config.ServiceModeWorker,
		config.ServiceModeSweeper,
	}

	count := 0
	for _, mode := range modes {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	// Gracefully stop HTTP server if running
	if cfg.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(cfg.ctx, shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
