package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fhuszti/assets-ms-go/internal/config"
	"github.com/fhuszti/assets-ms-go/internal/db"
	workerHandler "github.com/fhuszti/assets-ms-go/internal/handler/worker"
	"github.com/fhuszti/assets-ms-go/internal/progress"
	"github.com/fhuszti/assets-ms-go/internal/port"
	"github.com/fhuszti/assets-ms-go/internal/repository/mariadb"
	"github.com/fhuszti/assets-ms-go/internal/storage"
	"github.com/fhuszti/assets-ms-go/internal/task"
	"github.com/fhuszti/assets-ms-go/internal/transcode"
	"github.com/fhuszti/assets-ms-go/internal/usecase/asset"
	"github.com/hibiken/asynq"

	"github.com/fhuszti/assets-ms-go/internal/logger"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf(ctx, "❌  Configuration error: %v", err)
		os.Exit(1)
	}
	if cfg.RedisAddr == "" {
		logger.Error(ctx, "⚠️  REDIS_ADDR must be set to run the worker")
		os.Exit(1)
	}

	logger.Init()

	database := initDb(cfg)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Warnf(ctx, "DB close error: %v", err)
		}
	}()

	strg := initStorage(cfg)
	repo := mariadb.NewAssetRepository(database.DB)

	store := progress.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.ProgressTTL)
	defer store.Close()

	// one encoder at a time, the queue is the only consumer of ffmpeg
	queue := transcode.NewQueue(
		transcode.NewFFmpegTranscoder(cfg.FFmpegPath, cfg.FFprobePath, cfg.TranscodeThreads),
		store,
	)
	queue.Start()
	defer queue.Stop()

	convertSvc := asset.NewVideoConverter(asset.ConverterDeps{
		Repo:    repo,
		Store:   strg,
		Queue:   queue,
		WorkDir: cfg.TranscodeWorkDir,
		Now:     time.Now,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(task.TypeTranscodeVideo, func(ctx context.Context, t *asynq.Task) error {
		p, err := task.ParseTranscodePayload(t)
		if err != nil {
			return err
		}
		return workerHandler.TranscodeVideoHandler(ctx, p, convertSvc)
	})

	runWorker(ctx, mux, cfg)
}

func initDb(cfg *config.Settings) *db.Database {
	ctx := context.Background()
	logger.Info(ctx, "initialising database...")

	database, err := db.New(cfg.MariaDBDSN, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime)
	if err != nil {
		logger.Errorf(ctx, "❌  Failed to connect to db: %v", err)
		os.Exit(1)
	}
	return database
}

func initStorage(cfg *config.Settings) port.FileStore {
	ctx := context.Background()

	if cfg.StorageBackend == config.StorageMinio {
		strg, err := storage.NewMinioStore(ctx,
			cfg.MinioEndpoint,
			cfg.MinioAccessKey,
			cfg.MinioSecretKey,
			cfg.MinioUseSSL,
			cfg.MinioBucket,
			cfg.MinioPublicURL,
		)
		if err != nil {
			logger.Errorf(ctx, "❌  Failed to initialize MinIO storage: %v", err)
			os.Exit(1)
		}
		return strg
	}

	strg, err := storage.NewLocalStore(cfg.StorageRoot, cfg.StorageURL)
	if err != nil {
		logger.Errorf(ctx, "❌  Failed to initialize local storage at %q: %v", cfg.StorageRoot, err)
		os.Exit(1)
	}
	return strg
}

func runWorker(ctx context.Context, mux *asynq.ServeMux, cfg *config.Settings) {
	srv := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}, asynq.Config{
		// tasks only wait on the single transcoding queue, more would just block
		Concurrency:     1,
		Queues:          map[string]int{task.QueueTranscode: 1},
		ShutdownTimeout: 30 * time.Second,
	})

	if err := srv.Start(mux); err != nil {
		logger.Errorf(ctx, "❌  Worker failed: %v", err)
		os.Exit(1)
	}
	logger.Info(ctx, "🚀 Worker started")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info(ctx, "🛑 Shutdown signal received, exiting…")

	// stop accepting new tasks, give in-flight ones ShutdownTimeout to finish
	srv.Shutdown()
	logger.Info(ctx, "✅  Worker gracefully stopped")
}
