// Package main wires together the QA documentation service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcpubsub "cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/qa-docgen/internal/analyzer/vision"
	"github.com/JakeFAU/qa-docgen/internal/api"
	cacheMemory "github.com/JakeFAU/qa-docgen/internal/cache/memory"
	"github.com/JakeFAU/qa-docgen/internal/clock/system"
	"github.com/JakeFAU/qa-docgen/internal/config"
	"github.com/JakeFAU/qa-docgen/internal/fetcher/cached"
	"github.com/JakeFAU/qa-docgen/internal/fetcher/headless"
	"github.com/JakeFAU/qa-docgen/internal/hash/sha256"
	"github.com/JakeFAU/qa-docgen/internal/id/uuid"
	"github.com/JakeFAU/qa-docgen/internal/logging"
	memoryPublisher "github.com/JakeFAU/qa-docgen/internal/publisher/memory"
	pubsubPublisher "github.com/JakeFAU/qa-docgen/internal/publisher/pubsub"
	"github.com/JakeFAU/qa-docgen/internal/qadoc"
	queueMemory "github.com/JakeFAU/qa-docgen/internal/queue/memory"
	"github.com/JakeFAU/qa-docgen/internal/ratelimit"
	"github.com/JakeFAU/qa-docgen/internal/scheduler"
	"github.com/JakeFAU/qa-docgen/internal/storage/gcs"
	memoryStorage "github.com/JakeFAU/qa-docgen/internal/storage/memory"
	"github.com/JakeFAU/qa-docgen/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()
	hasher := sha256.New()

	jobStore, closeJobStore, err := buildJobStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("job store init failed", zap.Error(err))
	}
	defer closeJobStore()

	blobStore, err := buildBlobStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("blob store init failed", zap.Error(err))
	}

	publisher, closePublisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}
	defer closePublisher()

	snapshotCache := cacheMemory.NewSnapshotCache(clock)
	go snapshotCache.Run(ctx, time.Duration(cfg.Cache.SweepIntervalSec)*time.Second)

	fetcher, err := headless.NewChromedp(headless.Config{
		MaxParallel:       cfg.Crawler.MaxParallelPages,
		UserAgent:         cfg.Crawler.UserAgent,
		NavigationTimeout: cfg.NavTimeout(),
		SettleWait:        time.Duration(cfg.Crawler.SettleWaitMs) * time.Millisecond,
		ScreenshotQuality: cfg.Crawler.ScreenshotQuality,
	})
	if err != nil {
		logger.Fatal("headless fetcher init failed", zap.Error(err))
	}
	defer fetcher.Close()

	snapshots := cached.New(
		fetcher,
		snapshotCache,
		blobStore,
		hasher,
		idGen,
		clock,
		cached.Config{
			TTL:         cfg.CacheTTL(),
			BlobPrefix:  cfg.Storage.Prefix,
			ContentType: cfg.Storage.ContentType,
		},
		logger.Named("snapshots"),
	)

	analyzer := vision.New(vision.Config{
		Endpoint:  cfg.Analyzer.Endpoint,
		APIKey:    cfg.Analyzer.APIKey,
		Model:     cfg.Analyzer.Model,
		Timeout:   time.Duration(cfg.Analyzer.TimeoutSeconds) * time.Second,
		MaxTokens: cfg.Analyzer.MaxTokens,
	}, idGen, logger.Named("analyzer"))

	limiter := ratelimit.New(ratelimit.Config{
		DefaultPerMinute: cfg.RateLimit.DefaultPerMinute,
		Burst:            cfg.RateLimit.Burst,
		MaxWait:          cfg.RateLimitMaxWait(),
	})

	sched := scheduler.New(
		jobStore,
		snapshots,
		analyzer,
		limiter,
		publisher,
		clock,
		scheduler.Config{
			Workers:        cfg.Scheduler.Workers,
			MaxAttempts:    cfg.Scheduler.MaxAttempts,
			BackoffInitial: time.Duration(cfg.Scheduler.BackoffInitialMs) * time.Millisecond,
			BackoffMax:     time.Duration(cfg.Scheduler.BackoffMaxMs) * time.Millisecond,
			Topic:          cfg.PubSub.TopicName,
		},
		logger.Named("scheduler"),
	)

	queue := queueMemory.NewQueue(cfg.Scheduler.QueueDepth)
	runner := scheduler.NewRunner(queue, jobStore, sched, clock, logger.Named("runner"))
	for i := 0; i < cfg.Scheduler.JobRunners; i++ {
		go runner.Run(ctx)
	}

	apiServer := api.NewServer(jobStore, runner, idGen, clock, cfg, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
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
	logger.Info("shutdown complete")
}

// buildJobStore prefers Postgres when a DSN is configured and falls back to
// the in-memory store for local runs.
func buildJobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (qadoc.JobStore, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Info("using in-memory job store")
		return memoryStorage.NewJobStore(), func() {}, nil
	}
	store, err := postgres.NewJobStore(ctx, postgres.JobStoreConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxOpenConns),
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("using postgres job store")
	return store, store.Close, nil
}

func buildBlobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (qadoc.BlobStore, error) {
	if cfg.Storage.GCSBucket == "" {
		logger.Info("using in-memory blob store")
		return memoryStorage.NewBlobStore(), nil
	}
	client, err := gcstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	logger.Info("using gcs blob store", zap.String("bucket", cfg.Storage.GCSBucket))
	return gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (qadoc.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		logger.Info("using in-memory publisher")
		return memoryPublisher.New(), func() {}, nil
	}
	client, err := gcpubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	pub := pubsubPublisher.New(client)
	logger.Info("using pubsub publisher", zap.String("topic", cfg.PubSub.TopicName))
	return pub, pub.Close, nil
}
