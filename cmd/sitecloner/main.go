// Package main wires together the site cloner service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-cloner/internal/api"
	"github.com/JakeFAU/site-cloner/internal/clock/system"
	"github.com/JakeFAU/site-cloner/internal/cloner"
	"github.com/JakeFAU/site-cloner/internal/config"
	"github.com/JakeFAU/site-cloner/internal/dispatcher"
	"github.com/JakeFAU/site-cloner/internal/id/uuid"
	"github.com/JakeFAU/site-cloner/internal/logging"
	"github.com/JakeFAU/site-cloner/internal/metrics"
	"github.com/JakeFAU/site-cloner/internal/publish"
	queueMemory "github.com/JakeFAU/site-cloner/internal/queue/memory"
	"github.com/JakeFAU/site-cloner/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if port, err := strconv.Atoi(os.Getenv("PORT")); err == nil && port > 0 {
		cfg.Server.Port = port
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, stop, cfg, logger); err != nil {
		logger.Error("site cloner stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, stop context.CancelFunc, cfg config.Config, logger *zap.Logger) error {
	var closers closeStack
	defer closers.closeAll(logger)

	clock := system.New()
	checks := map[string]api.ReadinessCheck{}

	store, err := newContentStore(ctx, cfg, &closers)
	if err != nil {
		return fmt.Errorf("content store: %w", err)
	}
	checks["content_store"] = func(ctx context.Context) error {
		return store.EnsureContainer(ctx, false)
	}

	jobStore, err := newJobStore(ctx, cfg, logger, checks, &closers)
	if err != nil {
		return fmt.Errorf("job registry: %w", err)
	}

	archive, err := newArchive(ctx, cfg, checks, &closers)
	if err != nil {
		return fmt.Errorf("manifest archive: %w", err)
	}

	notifier, err := newNotifier(ctx, cfg, logger, &closers)
	if err != nil {
		return fmt.Errorf("notifier: %w", err)
	}

	pipe := newPipeline(cfg, clock, logger, &closers)
	publisher := publish.New(store, publish.Config{
		Backend:         cfg.Publish.Backend,
		Folder:          cfg.Publish.Folder,
		CreateContainer: cfg.Publish.CreateContainer,
		UploadWorkers:   cfg.Publish.UploadWorkers,
	}, clock, logger)

	queue := queueMemory.NewQueue(cfg.Cloner.QueueDepth)
	deps := worker.Deps{
		Queue:     queue,
		JobStore:  jobStore,
		Cloner:    pipe,
		Publisher: publisher,
		Notifier:  notifier,
		Clock:     clock,
	}
	if archive != nil {
		deps.Archive = archive
	}
	var workers []*worker.Worker
	for i := 0; i < cfg.Cloner.Workers; i++ {
		workers = append(workers, worker.New(
			deps,
			worker.Config{Topic: cfg.PubSub.TopicName},
			logger.With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	apiDeps := api.Deps{
		JobStore:  jobStore,
		Enqueuer:  dispatch,
		Sites:     publisher,
		Validator: cloner.NewValidator(cfg.Cloner.BlockedDomains, cfg.Cloner.AllowPrivateTargets),
		IDGen:     uuid.New(),
		Clock:     clock,
		Checks:    checks,
	}
	if archive != nil {
		apiDeps.History = archive
	}
	apiServer := api.NewServer(apiDeps, cfg, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		logger.Info("dispatcher started", zap.Int("workers", len(workers)))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started",
			zap.Int("port", cfg.Server.Port),
			zap.String("publish_backend", cfg.Publish.Backend),
			zap.String("registry_backend", cfg.Registry.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	select {
	case <-dispatched:
	case <-shutdownCtx.Done():
		logger.Warn("workers did not drain before shutdown deadline")
	}
	logger.Info("shutdown complete")
	return nil
}
