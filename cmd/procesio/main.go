// Package main is the entry point for the procesio server. It wires
// all dependencies together and starts the HTTP server and the
// background sweeper.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/procesio/procesio/internal/advisor"
	"github.com/procesio/procesio/internal/approval"
	"github.com/procesio/procesio/internal/audit"
	"github.com/procesio/procesio/internal/config"
	"github.com/procesio/procesio/internal/definition"
	"github.com/procesio/procesio/internal/directory"
	"github.com/procesio/procesio/internal/dispatch"
	"github.com/procesio/procesio/internal/engine"
	"github.com/procesio/procesio/internal/lock"
	"github.com/procesio/procesio/internal/notify"
	"github.com/procesio/procesio/internal/observability"
	"github.com/procesio/procesio/internal/store"
	"github.com/procesio/procesio/internal/task"
	"github.com/procesio/procesio/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "procesio", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Initialize the persistence layer.
	stores, storeCloser, storeChecker, err := buildStores(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("store initialization failed", zap.Error(err))
		return 1
	}
	if storeCloser != nil {
		defer storeCloser()
	}

	// Step 5: Initialize the instance lock.
	locks, lockCloser, lockChecker, err := buildLock(ctx, cfg.Lock, logger)
	if err != nil {
		logger.Error("lock initialization failed", zap.Error(err))
		return 1
	}
	if lockCloser != nil {
		defer lockCloser()
	}

	// Step 6: Initialize collaborators (directory, notifier).
	resolver := buildDirectory(cfg.Directory)
	notifier, notifierChecker := buildNotifier(cfg.Notifier)

	// Step 7: Build the domain components.
	recorder := audit.NewRecorder(stores.Audit, metrics)
	definitions := definition.NewService(stores.Definitions, recorder, metrics)
	tasks := task.NewManager(stores.Tasks, stores.Instances, recorder, resolver, notifier, metrics, task.Options{
		DefaultDuration: cfg.Engine.DefaultStepDuration,
	})
	approvals := approval.NewRouter(stores.Approvals, stores.Instances, stores.Definitions,
		recorder, resolver, notifier, metrics, approval.Options{
			FallbackApprover: cfg.Approvals.FallbackApprover,
			EscalationGrace:  cfg.Approvals.EscalationGrace,
		})
	eng := engine.NewEngine(stores.Definitions, stores.Instances, recorder,
		dispatch.NewDispatcher(tasks, approvals), locks, notifier, metrics, engine.Options{
			LockTTL:             cfg.Lock.TTL,
			DefaultStepDuration: cfg.Engine.DefaultStepDuration,
		})
	tasks.SetAdvancer(eng)
	approvals.SetAdvancer(eng)

	adv := advisor.NewAdvisor(stores.Definitions, stores.Instances, recorder, advisor.Options{
		BottleneckFactor: cfg.Advisor.BottleneckFactor,
		SampleLimit:      cfg.Advisor.MaxInstances,
	})

	// Step 8: Build the HTTP router.
	router := transport.NewRouter(transport.Dependencies{
		Config:      cfg,
		Logger:      logger,
		Definitions: definitions,
		Engine:      eng,
		Tasks:       tasks,
		Approvals:   approvals,
		Recorder:    recorder,
		Advisor:     adv,
		Metrics:     metrics,
		Readiness: observability.ReadinessChecks{
			Store:    storeChecker,
			Lock:     lockChecker,
			Notifier: notifierChecker,
		},
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      observability.TracingMiddleware(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 9: Start the background sweeper for overdue instances and
	// approval escalations.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	go runSweeper(bgCtx, eng, approvals, cfg.Engine.SweepInterval, logger)

	// Step 10: Start the HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("store", cfg.Store.Driver),
		zap.String("lock", cfg.Lock.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown: drain in-flight requests, stop the sweeper,
	// flush telemetry.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	bgCancel()

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildStores creates the persistence layer based on config.
func buildStores(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.Stores, func(), observability.HealthChecker, error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory stores")
		mem := store.NewMemoryStores()
		return mem.Stores(), nil, mem, nil
	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return store.Stores{}, nil, nil, fmt.Errorf("store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return store.Stores{}, nil, nil, fmt.Errorf("store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return store.Stores{}, nil, nil, fmt.Errorf("store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return store.Stores{}, nil, nil, fmt.Errorf("store: ping: %w", err)
		}

		pg := store.NewPgStores(pool)
		return pg.Stores(), pool.Close, pg, nil
	default:
		return store.Stores{}, nil, nil, fmt.Errorf("unsupported store driver: %q", cfg.Driver)
	}
}

// buildLock creates the per-instance lock based on config.
func buildLock(ctx context.Context, cfg config.LockConfig, logger *zap.Logger) (lock.InstanceLock, func(), observability.HealthChecker, error) {
	switch cfg.Driver {
	case "local":
		logger.Info("using local instance locks")
		l := lock.NewLocalLock()
		return l, nil, l, nil
	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			return nil, nil, nil, fmt.Errorf("lock: %s environment variable not set", cfg.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("lock: redis ping: %w", err)
		}
		l := lock.NewRedisLock(client, logger)
		return l, func() { _ = client.Close() }, l, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported lock driver: %q", cfg.Driver)
	}
}

// buildDirectory creates the identity resolver based on config.
func buildDirectory(cfg config.DirectoryConfig) directory.Resolver {
	if cfg.Mode == "http" {
		return directory.NewHTTPResolver(cfg.BaseURL, cfg.Timeout, cfg.CacheTTL)
	}
	return directory.NewStaticResolver(cfg.Static)
}

// buildNotifier creates the notifier based on config. The webhook
// notifier doubles as a readiness check; the log notifier needs none.
func buildNotifier(cfg config.NotifierConfig) (notify.Notifier, observability.HealthChecker) {
	if cfg.Mode == "webhook" {
		wh := notify.NewWebhookNotifier(cfg.URL, cfg.Timeout)
		return wh, wh
	}
	return notify.NewLogNotifier(), nil
}

// runSweeper periodically fails overdue instances and escalates
// overdue approvals.
func runSweeper(ctx context.Context, eng *engine.Engine, approvals *approval.Router, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sweepCtx := observability.WithLogger(ctx, logger)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := eng.ProcessOverdue(sweepCtx); err != nil {
				logger.Error("overdue sweep failed", zap.Error(err))
			}
			if err := approvals.ProcessEscalations(sweepCtx); err != nil {
				logger.Error("escalation sweep failed", zap.Error(err))
			}
		}
	}
}
