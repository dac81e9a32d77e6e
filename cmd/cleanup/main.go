package main

import (
	"context"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fhuszti/assets-ms-go/internal/cleanup"
	"github.com/fhuszti/assets-ms-go/internal/config"
	"github.com/fhuszti/assets-ms-go/internal/db"
	"github.com/fhuszti/assets-ms-go/internal/logger"
	"github.com/fhuszti/assets-ms-go/internal/port"
	"github.com/fhuszti/assets-ms-go/internal/repository/mariadb"
	"github.com/fhuszti/assets-ms-go/internal/storage"
	"github.com/fhuszti/assets-ms-go/internal/usecase/asset"
)

// cleanup runs a single pass over stale cached assets and exits, for hosts
// scheduling it from their own cron instead of the API process.
func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf(ctx, "❌  Configuration error: %v", err)
		os.Exit(1)
	}

	logger.Init()

	database, err := db.New(cfg.MariaDBDSN, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime)
	if err != nil {
		logger.Errorf(ctx, "❌  Failed to connect to db: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Warnf(ctx, "DB close error: %v", err)
		}
	}()

	strg, err := initStorage(ctx, cfg)
	if err != nil {
		logger.Errorf(ctx, "❌  Failed to initialize storage: %v", err)
		os.Exit(1)
	}

	repo := mariadb.NewAssetRepository(database.DB)
	assets := asset.NewAssetStore(repo, strg, time.Now)

	cleaner, err := cleanup.NewScheduler(repo, assets, cleanup.Options{Schedule: cfg.CleanupSchedule})
	if err != nil {
		logger.Errorf(ctx, "❌  Invalid cleanup schedule: %v", err)
		os.Exit(1)
	}

	report, err := cleaner.RunOnce(ctx)
	if err != nil {
		logger.Errorf(ctx, "❌  Cleanup failed: %v", err)
		os.Exit(1)
	}
	logger.Infof(ctx, "✅  Cleanup completed: %d assets removed, %s reclaimed",
		report.Removed, humanize.IBytes(uint64(report.Bytes)))
}

func initStorage(ctx context.Context, cfg *config.Settings) (port.FileStore, error) {
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
			return nil, err
		}
		return strg, nil
	}

	strg, err := storage.NewLocalStore(cfg.StorageRoot, cfg.StorageURL)
	if err != nil {
		return nil, err
	}
	return strg, nil
}
