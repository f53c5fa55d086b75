package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/hyperengineering/deep/internal/access"
	"github.com/hyperengineering/deep/internal/api"
	"github.com/hyperengineering/deep/internal/config"
	"github.com/hyperengineering/deep/internal/lock"
	"github.com/hyperengineering/deep/internal/membership"
	"github.com/hyperengineering/deep/internal/metrics"
	"github.com/hyperengineering/deep/internal/pipeline"
	"github.com/hyperengineering/deep/internal/project"
	"github.com/hyperengineering/deep/internal/store"
	"github.com/hyperengineering/deep/internal/widget/builtin"
	"github.com/hyperengineering/deep/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

// devJWTSecret signs tokens when dev mode runs without a configured secret.
const devJWTSecret = "deep-dev-secret"

var rootCmd = &cobra.Command{
	Use:   "deep",
	Short: "DEEP - analysis platform core service",
	Long: "Runs the DEEP HTTP service. Subcommands manage widgets, users and\n" +
		"tokens against the database without running the server.",
	RunE:         run,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(widgetsCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(tokenCmd)
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(newLogger(os.Stdout, cfg.Log))
	slog.Info("configuration loaded", "level", cfg.Log.Level, "format", cfg.Log.Format)

	secret := jwtSecret(cfg)

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		db.Close()
		return fmt.Errorf("init metrics: %w", err)
	}

	widgets := builtin.Registry()
	p := pipeline.New(db, widgets, m)
	resolver := access.NewResolver(db)

	locker, err := newLocker(cfg.Worker, db)
	if err != nil {
		db.Close()
		return err
	}
	runner := worker.NewRunner(locker, time.Duration(cfg.Worker.LockTTL), m)
	queue := worker.NewQueue(runner, cfg.Worker.QueueSize, cfg.Worker.Concurrency, m)
	queue.Register(worker.NewLeadExtraction(db))
	queue.Register(worker.NewFrameworkSync(p, db))
	slog.Info("job queue initialized",
		"lock_backend", cfg.Worker.LockBackend,
		"concurrency", cfg.Worker.Concurrency,
		"queue_size", cfg.Worker.QueueSize,
	)

	projects := project.NewService(db, resolver, p, queue)
	members := membership.NewService(db, resolver, m)

	handler := api.NewHandler(db, widgets, projects, members, Version)
	router := api.NewRouter(handler, api.RouterConfig{
		JWTSecret:   secret,
		CORSOrigins: cfg.Server.CORSOrigins,
		Metrics:     m,
		Gatherer:    registry,
	})
	slog.Info("router initialized", "widget_types", len(widgets.Types()))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	var wg sync.WaitGroup
	startWorker(ctx, &wg, "job-queue", queue.Run)
	if cfg.Worker.LockBackend == config.LockBackendSQLite {
		sweeper := worker.NewLockSweeper(db, time.Duration(cfg.Worker.LockSweepInterval))
		startWorker(ctx, &wg, "lock-sweeper", sweeper.Run)
	}

	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is returned after Shutdown; anything else is a real failure.
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Workers drain before the store closes so in-flight jobs can record their status.
	wg.Wait()

	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// newLogger builds the process logger from the log config.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// jwtSecret returns the configured signing secret, or the dev secret when
// dev mode runs without one.
func jwtSecret(cfg *config.Config) string {
	if cfg.Auth.JWTSecret != "" {
		return cfg.Auth.JWTSecret
	}
	if cfg.DevMode {
		slog.Warn("using built-in development JWT secret", "component", "auth")
	}
	return devJWTSecret
}

// newLocker selects the lock backend used by the job runner.
func newLocker(cfg config.WorkerConfig, db *store.SQLiteStore) (lock.Locker, error) {
	switch cfg.LockBackend {
	case config.LockBackendMemory:
		return lock.NewMemory(time.Duration(cfg.LockSweepInterval)), nil
	case config.LockBackendSQLite:
		return lock.NewSQL(db), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
	}
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
