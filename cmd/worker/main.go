package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"

	"posterd/internal/adapter/repo"
	"posterd/internal/bootstrap"
	"posterd/internal/domain"
	"posterd/internal/infra"
	"posterd/internal/infra/credentials"
	"posterd/internal/storage"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	tasks := repo.NewTaskRepository(runner)
	assets := repo.NewAssetRepository(runner)

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	pipelines, err := bootstrap.NewPipelines(ctx, cfg, bootstrap.Deps{
		Credentials: credentials.NewStore(runner),
		Store:       fileStore,
		OnAsset: func(ctx context.Context, asset domain.Asset) error {
			if err := assets.Save(ctx, &asset); err != nil {
				return err
			}
			logger.Info().
				Str("task_id", asset.TaskID).
				Str("key", asset.StorageKey).
				Str("size", humanize.IBytes(uint64(asset.Bytes))).
				Msg("worker: image stored")
			return nil
		},
		Logger: &logger,
	}, cfg.WorkerConcurrency)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build poster pipeline")
	}

	if n, err := tasks.RequeueStale(ctx, int(cfg.StaleTaskAfter.Seconds())); err != nil {
		logger.Warn().Err(err).Msg("worker: requeue stale tasks failed")
	} else if n > 0 {
		logger.Info().Int64("tasks", n).Msg("worker: requeued stale tasks")
	}

	processors := make([]posterProcessor, 0, len(pipelines))
	for _, p := range pipelines {
		processors = append(processors, p.Processor)
	}
	worker := &jobWorker{
		queue:        tasks,
		processors:   processors,
		resolveImage: fileStore.Path,
		logger:       logger,
		pollInterval: cfg.WorkerPollInterval,
	}
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
