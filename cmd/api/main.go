package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fhuszti/assets-ms-go/internal/cleanup"
	"github.com/fhuszti/assets-ms-go/internal/config"
	"github.com/fhuszti/assets-ms-go/internal/db"
	"github.com/fhuszti/assets-ms-go/internal/download"
	"github.com/fhuszti/assets-ms-go/internal/handler/api"
	"github.com/fhuszti/assets-ms-go/internal/lock"
	"github.com/fhuszti/assets-ms-go/internal/logger"
	cMiddleware "github.com/fhuszti/assets-ms-go/internal/middleware"
	"github.com/fhuszti/assets-ms-go/internal/port"
	"github.com/fhuszti/assets-ms-go/internal/progress"
	"github.com/fhuszti/assets-ms-go/internal/renderer"
	"github.com/fhuszti/assets-ms-go/internal/repository/mariadb"
	"github.com/fhuszti/assets-ms-go/internal/storage"
	"github.com/fhuszti/assets-ms-go/internal/task"
	"github.com/fhuszti/assets-ms-go/internal/transcode"
	"github.com/fhuszti/assets-ms-go/internal/usecase/asset"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const slidesCacheSize = 256

// services holds every long-lived component the routes are built from.
type services struct {
	assets    port.AssetStore
	downloads *download.Manager
	storages  port.StorageManagerFactory
	caches    port.CacheManagerFactory
	converter port.VideoConverter
	queue     *transcode.Queue
	usage     port.UsageReporter
	cleaner   *cleanup.Scheduler
	slides    port.SlideRenderer
	static    http.Handler

	closers []func()
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf(ctx, "❌  Configuration error: %v", err)
		os.Exit(1)
	}

	logger.Init()

	database := initDb(ctx, cfg)
	svc := initServices(ctx, cfg, database)

	r := initRouter(ctx, cfg.JWTPublicKey, svc)

	listenRouter(ctx, r, cfg, svc, database)
}

func initDb(ctx context.Context, cfg *config.Settings) *db.Database {
	logger.Info(ctx, "initialising database...")

	database, err := db.New(cfg.MariaDBDSN, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime)
	if err != nil {
		logger.Errorf(ctx, "❌  Failed to connect to db: %v", err)
		os.Exit(1)
	}

	return database
}

func initStorage(ctx context.Context, cfg *config.Settings) (port.FileStore, http.Handler) {
	logger.Infof(ctx, "initialising %s storage...", cfg.StorageBackend)

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
		return strg, nil
	}

	strg, err := storage.NewLocalStore(cfg.StorageRoot, cfg.StorageURL)
	if err != nil {
		logger.Errorf(ctx, "❌  Failed to initialize local storage at %q: %v", cfg.StorageRoot, err)
		os.Exit(1)
	}
	return strg, strg.Handler()
}

func initServices(ctx context.Context, cfg *config.Settings, database *db.Database) *services {
	svc := &services{}

	repo := mariadb.NewAssetRepository(database.DB)
	strg, static := initStorage(ctx, cfg)
	svc.static = static

	svc.assets = asset.NewAssetStore(repo, strg, time.Now)
	svc.storages = asset.NewStorageManagerFactory(repo, strg, svc.assets, time.Now)
	svc.usage = asset.NewUsageReporter(repo)

	svc.downloads = download.NewManager(repo, strg, download.Options{
		Workers: cfg.DownloadWorkers,
		Timeout: cfg.DownloadTimeout,
	})
	svc.downloads.Start()
	svc.closers = append(svc.closers, svc.downloads.Stop)

	svc.caches = asset.NewCacheManagerFactory(asset.CacheDeps{
		Repo:       repo,
		Store:      strg,
		Assets:     svc.assets,
		Downloader: svc.downloads,
		Locks:      lock.NewRegistry(),
		Now:        time.Now,
	}, asset.CacheOptions{
		FollowerTimeout: cfg.CacheFollowerTimeout,
		RetryAfter:      cfg.CacheRetryAfter,
	})

	initTranscoding(ctx, cfg, svc, repo, strg)

	cleaner, err := cleanup.NewScheduler(repo, svc.assets, cleanup.Options{Schedule: cfg.CleanupSchedule})
	if err != nil {
		logger.Errorf(ctx, "❌  Invalid cleanup schedule: %v", err)
		os.Exit(1)
	}
	if err := cleaner.Start(); err != nil {
		logger.Errorf(ctx, "❌  Failed to start cleanup scheduler: %v", err)
		os.Exit(1)
	}
	svc.cleaner = cleaner
	svc.closers = append(svc.closers, cleaner.Stop)

	if cfg.PluginContentURL != "" {
		content := renderer.NewHTTPContentProvider(cfg.PluginContentURL, &http.Client{Timeout: 10 * time.Second})
		svc.slides = renderer.NewSlideRenderer(content, svc.caches, svc.assets, slidesCacheSize, cfg.SlidesCacheTTL)
	} else {
		logger.Warn(ctx, "⚠️  PLUGIN_CONTENT_URL not configured, slide rendering is disabled")
	}

	return svc
}

// initTranscoding runs conversions in-process unless Redis is configured, in
// which case they go to cmd/worker and progress is read back from Redis.
func initTranscoding(ctx context.Context, cfg *config.Settings, svc *services, repo port.AssetRepository, strg port.FileStore) {
	transcoder := transcode.NewFFmpegTranscoder(cfg.FFmpegPath, cfg.FFprobePath, cfg.TranscodeThreads)
	deps := asset.ConverterDeps{
		Repo:    repo,
		Store:   strg,
		WorkDir: cfg.TranscodeWorkDir,
		Now:     time.Now,
	}

	if cfg.RedisAddr != "" {
		store := progress.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.ProgressTTL)
		dispatcher := task.NewDispatcher(cfg.RedisAddr, cfg.RedisPassword)
		// never started, only answers progress queries
		svc.queue = transcode.NewQueue(transcoder, store)
		deps.Dispatcher = dispatcher
		svc.converter = asset.NewVideoConverter(deps)
		svc.closers = append(svc.closers,
			func() { _ = dispatcher.Close() },
			func() { _ = store.Close() },
		)
		logger.Info(ctx, "✅  Transcoding dispatched to the worker through Redis")
		return
	}

	svc.queue = transcode.NewQueue(transcoder, progress.NewMemoryStore())
	svc.queue.Start()
	svc.closers = append(svc.closers, svc.queue.Stop)

	dispatcher := task.NewLocalDispatcher()
	deps.Queue = svc.queue
	deps.Dispatcher = dispatcher
	svc.converter = asset.NewVideoConverter(deps)
	dispatcher.Bind(svc.converter)
	logger.Warn(ctx, "⚠️  Redis not configured, transcoding runs in the API process")
}

func initRouter(ctx context.Context, jwtKey string, svc *services) *chi.Mux {
	logger.Info(ctx, "initialising router...")

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.NotFound(api.NotFoundHandler())
	r.MethodNotAllowed(api.MethodNotAllowedHandler())

	// public routes, hit by players and the admin UI while they poll
	r.With(cMiddleware.WithAssetID()).
		Get("/cache/{id}", api.CacheWaitHandler(svc.assets, svc.downloads))
	r.Get("/transcoding/{progressID}/progress", api.TranscodingProgressHandler(svc.queue))
	r.Handle("/metrics", promhttp.Handler())
	if svc.static != nil {
		r.Handle("/static/storage/*", svc.static)
	}

	r.Group(func(r chi.Router) {
		r.Use(cMiddleware.WithDSTAuth(jwtKey))

		r.Route("/channels/{channelID}", func(r chi.Router) {
			r.Use(cMiddleware.WithChannelID())

			r.Post("/cache", api.CacheURLHandler(svc.caches, svc.assets))
			r.Post("/qrcodes", api.CacheQRCodeHandler(svc.caches, svc.assets))
			r.Post("/assets", api.UploadAssetHandler(svc.storages))
			r.Delete("/assets", api.DeleteChannelAssetsHandler(svc.storages, svc.slides))
			if svc.slides != nil {
				r.Get("/slides", api.GetSlidesHandler(svc.slides))
			}
		})

		r.Route("/assets/{id}", func(r chi.Router) {
			r.Use(cMiddleware.WithAssetID())

			r.Get("/path", api.GetAssetPathHandler(svc.assets))
			r.Post("/transcode", api.TranscodeAssetHandler(svc.converter))
		})

		r.Get("/storage", api.StorageUsageHandler(svc.usage))
		r.Post("/storage/cleanup", api.CleanupHandler(svc.cleaner))
		r.With(cMiddleware.WithChannelID()).
			Get("/storage/{channelID}", api.ChannelStorageUsageHandler(svc.usage))
	})

	return r
}

func listenRouter(ctx context.Context, r *chi.Mux, cfg *config.Settings, svc *services, database *db.Database) {
	srv := &http.Server{Addr: ":" + strconv.Itoa(cfg.ServerPort), Handler: r}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		logger.Infof(ctx, "🚀 API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "🛑 Shutdown signal received, exiting…")

		// graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	exitCode := 0
	if err := g.Wait(); err != nil {
		logger.Errorf(ctx, "❌  Server failed: %v", err)
		exitCode = 1
	} else {
		logger.Info(ctx, "✅  Server gracefully stopped")
	}

	// background components stop in reverse start order
	for i := len(svc.closers) - 1; i >= 0; i-- {
		svc.closers[i]()
	}

	if err := database.Close(); err != nil {
		logger.Errorf(ctx, "DB close error: %v", err)
		exitCode = 1
	}
	os.Exit(exitCode)
}
