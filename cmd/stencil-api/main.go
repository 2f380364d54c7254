package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Stencil/internal/api"
	"github.com/shaiso/Stencil/internal/config"
	"github.com/shaiso/Stencil/internal/domain"
	"github.com/shaiso/Stencil/internal/engine"
	"github.com/shaiso/Stencil/internal/loader"
	"github.com/shaiso/Stencil/internal/logbus"
	"github.com/shaiso/Stencil/internal/mq"
	"github.com/shaiso/Stencil/internal/registry"
	"github.com/shaiso/Stencil/internal/repo"
	"github.com/shaiso/Stencil/internal/runner"
	"github.com/shaiso/Stencil/internal/scheduler"
	"github.com/shaiso/Stencil/internal/tasks"
	"github.com/shaiso/Stencil/internal/telemetry"
)

var startTime = time.Now()

// logSink — хранилище записей лога, которое читает API.
type logSink interface {
	mq.LogAppender
	api.LogStore
}

func main() {
	cfg, err := config.Load(os.Getenv("STENCIL_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting stencil-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("stencil-api failed", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	taskRegistry := tasks.DefaultRegistry()
	validateFlow := func(f *domain.Flow) error {
		if err := engine.Validate(f, taskRegistry.Has); err != nil {
			return err
		}
		return scheduler.ValidateTriggers(f)
	}

	bus := logbus.New(logbus.Config{BufferSize: cfg.Bus.Buffer, Logger: logger})
	defer bus.Close()

	var (
		templates registry.Templates = registry.NewMemory()
		flows     registry.Flows     = registry.NewFlowStore(validateFlow)
		history   api.ExecutionHistory
		states    scheduler.StateStore
		logs      logSink = logbus.NewJournal(0)
		recorders runner.Recorders
	)

	// Postgres (опционально)
	if cfg.DB.URL != "" {
		pool, err := connectDB(ctx, cfg.DB.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		logger.Info("connected to database")

		execRepo := repo.NewExecutionRepo(pool)
		templates = repo.NewTemplateRepo(pool)
		flows = repo.NewFlowRepo(pool, validateFlow)
		history = execRepo
		states = repo.NewTriggerRepo(pool)
		logs = repo.NewLogRepo(pool)
		recorders = append(recorders, execRepo)
	}

	// RabbitMQ (опционально): записи лога идут через logs.persist
	if cfg.RabbitMQ.URL != "" {
		conn, err := mq.NewConnection(cfg.RabbitMQ.URL, logger)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		defer conn.Close()

		if err := mq.SetupTopology(ctx, conn); err != nil {
			return fmt.Errorf("setup topology: %w", err)
		}
		logger.Info("rabbitmq topology ready", "topology", mq.TopologyInfo())

		pub := mq.NewPublisher(conn, logger)
		recorders = append(recorders, pub)
		mq.ForwardLogs(bus, pub, logger)

		consumer := mq.NewConsumer(conn, mq.ConsumerConfig{
			Queue:   mq.QueueLogsPersist,
			Handler: mq.LogHandler(logs),
			Logger:  logger,
		})
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("log consumer stopped", "error", err)
			}
		}()
		defer consumer.Stop()
	} else {
		attachLogs(bus, logs, logger)
	}

	r := runner.New(runner.Config{
		Flows:              flows,
		Templates:          templates,
		Tasks:              taskRegistry,
		Bus:                bus,
		Recorder:           recorders,
		ContinueOnFailure:  cfg.Runner.ContinueOnFailure,
		DefaultTimeout:     cfg.Runner.Timeout,
		DefaultParallelism: cfg.Runner.Parallelism,
		Retention:          cfg.Runner.Retention,
		Logger:             logger,
	})

	if cfg.Flows.Dir != "" {
		if err := loadFlows(ctx, cfg.Flows.Dir, taskRegistry, templates, flows, logger); err != nil {
			return err
		}
	}

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(scheduler.Config{
			Flows:    flows,
			Starter:  r,
			States:   states,
			Interval: cfg.Scheduler.Interval,
			Logger:   logger,
		})
		go sched.Run(ctx)
	}

	handler := api.NewHandler(api.Config{
		Templates: templates,
		Flows:     flows,
		Runner:    r,
		History:   history,
		Logs:      logs,
		Logger:    logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime).Round(time.Second))
	})
	mux.Handle("/metrics", promhttp.Handler())

	handler.RegisterRoutes(mux)

	addr := fmt.Sprintf(":%d", cfg.API.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	if err := r.Shutdown(shutdownCtx); err != nil {
		logger.Warn("runner shutdown", "error", err)
	}
	// доставить оставшиеся записи лога, пока брокер и БД доступны
	bus.Close()
	return nil
}

func connectDB(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := repo.NewPool(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := repo.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return pool, nil
}

// attachLogs сохраняет записи из шины напрямую, без брокера.
func attachLogs(bus *logbus.Bus, store mq.LogAppender, logger *slog.Logger) {
	bus.Subscribe(func(entry domain.LogEntry) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Append(ctx, entry); err != nil {
			logger.Warn("failed to store log entry", "execution_id", entry.ExecutionID, "error", err)
		}
	})
}

// loadFlows регистрирует шаблоны и flow из каталога. Уже
// зарегистрированный шаблон (после рестарта с БД) пропускается.
func loadFlows(ctx context.Context, dir string, taskRegistry *tasks.Registry, templates registry.Templates, flows registry.Flows, logger *slog.Logger) error {
	bundle, err := loader.LoadDir(dir)
	if err != nil {
		return fmt.Errorf("load flows: %w", err)
	}
	if err := bundle.Validate(taskRegistry.Has); err != nil {
		return fmt.Errorf("validate flows: %w", err)
	}

	for _, t := range bundle.Templates() {
		err := templates.Store(ctx, t)
		if errors.Is(err, registry.ErrDuplicateTemplate) {
			logger.Debug("template already registered", "template", t.Key().String())
			continue
		}
		if err != nil {
			return fmt.Errorf("store template %s: %w", t.Key(), err)
		}
	}
	for _, f := range bundle.Flows() {
		if err := flows.Put(ctx, f); err != nil {
			return fmt.Errorf("put flow %s: %w", f.Key(), err)
		}
	}

	logger.Info("flows loaded", "dir", dir,
		"templates", len(bundle.Templates()),
		"flows", len(bundle.Flows()),
	)
	return nil
}
