package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/kairos/internal/adapters/http/api"
	"github.com/okian/kairos/internal/adapters/http/swagger"
	"github.com/okian/kairos/internal/adapters/repository"
	app "github.com/okian/kairos/internal/app"
	"github.com/okian/kairos/internal/config"
	"github.com/okian/kairos/internal/domain/aggregate"
	"github.com/okian/kairos/internal/domain/composite"
	"github.com/okian/kairos/internal/domain/model"
	"github.com/okian/kairos/internal/domain/timelayer"
	"github.com/okian/kairos/internal/domain/tuner"
	"github.com/okian/kairos/pkg/logger"
	"github.com/okian/kairos/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 60 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	systemMetricsInterval  = 10 * time.Second
	serviceMetricsInterval = 5 * time.Second
	storeConnectTimeout    = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metrics.Init(metricsOptions(cfg)...)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open score store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn(ctx, "closing score store failed", logger.Error(err))
		}
	}()

	opts, err := serviceOptions(cfg)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	svc := app.New(append(opts,
		app.WithLogger(log),
		app.WithStore(store),
	)...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, cfg.MaxLeaderboardLimit).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// metricsOptions maps the metric naming settings onto manager options.
func metricsOptions(cfg *config.Config) []metrics.Option {
	return []metrics.Option{
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithMetricPrefix(cfg.MetricsPrefix),
		metrics.WithCustomLabels(cfg.MetricsLabels),
		metrics.WithHistogramBuckets(cfg.MetricsBucketsMS),
	}
}

// openStore connects the configured backend and wraps it with timeouts,
// retries, the circuit breaker and the write limiter.
func openStore(ctx context.Context, cfg *config.Config) (*repository.ResilientStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, storeConnectTimeout)
	defer cancel()

	var backend repository.ScoreStore
	switch cfg.StoreBackend {
	case "redis":
		rs, err := repository.OpenRedis(connectCtx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		backend = rs
	case "postgres":
		ps, err := repository.OpenPostgres(connectCtx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := ps.EnsureSchema(connectCtx); err != nil {
			_ = ps.Close()
			return nil, err
		}
		backend = ps
	default:
		backend = repository.NewMemoryStore()
	}

	store := repository.NewResilientStore(backend,
		repository.WithName(cfg.StoreBackend),
		repository.WithTimeout(cfg.StoreTimeout()),
		repository.WithRetries(cfg.StoreRetries),
		repository.WithBackoff(cfg.StoreBackoff()),
		repository.WithWriteRate(cfg.StoreWriteRate, cfg.StoreWriteBurst),
		repository.WithBreaker(cfg.BreakerFailureThreshold, cfg.BreakerOpenTimeout()),
	)
	return store, nil
}

// serviceOptions translates the configuration into service options.
func serviceOptions(cfg *config.Config) ([]app.Option, error) {
	hierarchy, err := timelayer.NewHierarchy(cfg.LayerMinuteFactors, cfg.LayerSecondFactor)
	if err != nil {
		return nil, err
	}

	bandList := make([]composite.Band, 0, len(cfg.Bands))
	for label, lower := range cfg.Bands {
		bandList = append(bandList, composite.Band{Min: lower, Label: label})
	}
	bands, err := composite.NewBands(bandList)
	if err != nil {
		return nil, err
	}

	kinds := make([]model.EngineKind, len(cfg.EngineKinds))
	for i, k := range cfg.EngineKinds {
		kinds[i] = model.EngineKind(k)
	}

	tunerOpts := []tuner.Option{
		tuner.WithStep(cfg.TunerGridStep),
		tuner.WithMaxCandidates(cfg.TunerMaxCandidates),
		tuner.WithMaxIterations(cfg.TunerMaxIterations),
	}
	if cfg.TunerThreshold > 0 {
		tunerOpts = append(tunerOpts, tuner.WithMetric(tuner.Accuracy(cfg.TunerThreshold)))
	}

	policy := aggregate.DefaultPolicy()
	policy.DecayThreshold = cfg.DecayThreshold
	policy.DecayFactor = cfg.DecayFactor
	policy.NearCeiling = cfg.NearCeiling
	policy.SubMaxCeiling = cfg.SubMaxCeiling
	policy.CorroborationMin = cfg.CorroborationMin

	return []app.Option{
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithHierarchy(hierarchy),
		app.WithDepthScores(cfg.DepthScores),
		app.WithExcludeImprecise(cfg.ExcludeImpreciseDeepLayers),
		app.WithPolicy(policy),
		app.WithWeights(composite.NewWeightVector("default", cfg.DefaultWeights)),
		app.WithBands(bands),
		app.WithWeightTolerance(cfg.WeightTolerance),
		app.WithEngineKinds(kinds...),
		app.WithTunerOptions(tunerOpts...),
	}, nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

// updateServiceMetrics refreshes gauges that only GetStats computes.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()

	if subjects, ok := stats["subjects"].(int); ok {
		metrics.UpdateSubjectsTotal(subjects)
	}
	if ranked, ok := stats["ranked"].(map[string]int); ok {
		for engine, n := range ranked {
			metrics.UpdateLeaderboardSize(engine, n)
		}
	}
}
