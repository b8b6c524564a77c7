// Command syncqueued runs the queue service daemon: the REST surface over a
// sqlite-backed entry store, plus the replay worker when a webhook URL is
// configured.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tarafreight/syncqueue/pkg/config"
	"github.com/tarafreight/syncqueue/pkg/httpapi"
	"github.com/tarafreight/syncqueue/pkg/schedule"
	"github.com/tarafreight/syncqueue/pkg/service"
	"github.com/tarafreight/syncqueue/pkg/storage"
	"github.com/tarafreight/syncqueue/pkg/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("syncqueued exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := storage.NewGormStorage(db)
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	svc := service.NewLocal(store)

	if cfg.WebhookURL != "" {
		opts := []worker.Option{
			worker.WithPollInterval(cfg.PollInterval()),
			worker.WithBatchSize(cfg.BatchSize),
			worker.WithMaxAttempts(cfg.MaxAttempts),
		}
		if cfg.PurgeAfter() > 0 {
			opts = append(opts, worker.WithPurge(schedule.Every(time.Hour), cfg.PurgeAfter()))
		}
		w := worker.New(store, worker.NewWebhookApplier(cfg.WebhookURL), opts...)
		go func() {
			if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("replay worker stopped", "error", err)
			}
		}()
		logger.Info("replay worker started",
			"poll_interval", cfg.PollInterval(),
			"batch_size", cfg.BatchSize,
			"max_attempts", cfg.MaxAttempts,
		)
	} else {
		logger.Info("replay worker disabled (set SYNC_WEBHOOK_URL to enable)")
	}

	mux := http.NewServeMux()
	mux.Handle("/sync/", http.StripPrefix("/sync", httpapi.Handler(svc, httpapi.WithLogger(logger))))

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("syncqueued listening", "addr", cfg.ListenAddr, "db", cfg.DBPath)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
