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

	"github.com/redis/go-redis/v9"

	"github.com/gistseek/gistseek/config"
	"github.com/gistseek/gistseek/internal/adapters/github"
	"github.com/gistseek/gistseek/internal/adapters/redisqueue"
	"github.com/gistseek/gistseek/internal/adapters/searchrunner"
	"github.com/gistseek/gistseek/internal/data"
	"github.com/gistseek/gistseek/internal/observability/statsd"
	"github.com/gistseek/gistseek/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Search        *service.SearchService
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   *statsd.Client
	MetricsConfig config.MetricsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures the metrics adapter.
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
			Prefix:  "gistseek",
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:   metricsSink,
		MetricsConfig: cfg.Metrics,
	}
}

// NewServices wires repositories, the queue and the search service.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil {
		return ServiceContainer{}, errors.New("service dependencies are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var obsCfg config.ObservabilityConfig
	workerCfg := config.WorkerConfig{}
	if deps.Config != nil {
		obsCfg = deps.Config.Observability
		workerCfg = deps.Config.Worker
	}
	observability := buildObservability(logger, obsCfg)

	queue, err := redisqueue.New(redisqueue.Options{
		Client:         deps.RedisClient,
		Block:          workerCfg.DequeueBlock,
		RedeliveryIdle: workerCfg.RedeliveryIdle,
		Logger:         logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build task queue: %w", err)
	}

	searchSvc := service.NewSearchService(service.SearchServiceOptions{
		Jobs:    data.NewJobRepo(deps.DB),
		Matches: data.NewMatchRepo(deps.RedisClient),
		Queue:   queue,
		Logger:  logger,
	})

	return ServiceContainer{
		Search:        searchSvc,
		Observability: observability,
	}, nil
}

// RunSearchWorkerConfig groups dependencies for the search worker runner.
type RunSearchWorkerConfig struct {
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
	Worker      config.WorkerConfig
	GitHub      config.GitHubConfig
	Metrics     statsd.Sink
}

// RunSearchWorker builds the worker runner and processes search jobs
// until the context is cancelled.
func RunSearchWorker(ctx context.Context, cfg RunSearchWorkerConfig) error {
	queue, err := redisqueue.New(redisqueue.Options{
		Client:         cfg.RedisClient,
		Block:          cfg.Worker.DequeueBlock,
		RedeliveryIdle: cfg.Worker.RedeliveryIdle,
		Logger:         cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("build task queue: %w", err)
	}

	ghClient := github.NewClient(cfg.GitHub)

	runner, err := searchrunner.NewRunner(searchrunner.RunnerOptions{
		Queue:       queue,
		Jobs:        data.NewJobRepo(cfg.DB),
		Matches:     data.NewMatchRepo(cfg.RedisClient),
		Lister:      ghClient,
		Fetcher:     ghClient,
		Logger:      cfg.Logger,
		Concurrency: cfg.Worker.Concurrency,
		Metrics:     cfg.Metrics,
		Heartbeat:   cfg.Worker.RedeliveryIdle / 3,
	})
	if err != nil {
		return fmt.Errorf("build search runner: %w", err)
	}

	return runner.Run(ctx)
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
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)

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

func newSearchWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWorker,
		name: "search worker",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			workerCfg := config.WorkerConfig{}
			githubCfg := config.GitHubConfig{}
			if deps.cfg.Config != nil {
				workerCfg = deps.cfg.Config.Worker
				githubCfg = deps.cfg.Config.GitHub
			}
			return RunSearchWorker(ctx, RunSearchWorkerConfig{
				DB:          deps.cfg.DB,
				RedisClient: deps.cfg.RedisClient,
				Logger:      deps.logger,
				Worker:      workerCfg,
				GitHub:      githubCfg,
				Metrics:     deps.cfg.Services.Observability.MetricsSink,
			})
		},
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
		Background: startBackgroundServices(deps, []backgroundService{
			newSearchWorkerBackgroundService(deps),
		}),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, len(enabledServices)+1)

	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		metrics:     cfg.Services.Observability.MetricsSink,
		logger:      logger,
		backgrounds: result.Background,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	metrics     *statsd.Client
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for a shutdown signal or a service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	if cfg.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	if cfg.metrics != nil {
		if err := cfg.metrics.Close(); err != nil {
			cfg.logger.Warn("closing metrics client failed", "error", err)
		}
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
