package config

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Settings struct {
	MariaDBDSN      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ServerPort      int

	StorageBackend string
	StorageRoot    string
	StorageURL     string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioBucket    string
	MinioPublicURL string

	RedisAddr     string
	RedisPassword string

	JWTPublicKey string

	DownloadWorkers      int
	DownloadTimeout      time.Duration
	CacheFollowerTimeout time.Duration
	CacheRetryAfter      time.Duration

	FFmpegPath       string
	FFprobePath      string
	TranscodeThreads int
	TranscodeWorkDir string
	ProgressTTL      time.Duration

	CleanupSchedule string

	PluginContentURL string
	SlidesCacheTTL   time.Duration
}

const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

func Load() (*Settings, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found; proceeding with OS environment variables")
	}

	viper.AutomaticEnv()

	viper.SetConfigFile(".env")
	viper.SetConfigType("env")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: could not read .env file: %v", err)
	}

	setDefaults()

	for _, key := range []string{
		"MARIADB_DSN",
		"MARIADB_MAX_OPEN_CONN",
		"MARIADB_MAX_IDLE_CONNS",
		"MARIADB_CONN_MAX_LIFETIME",
		"SERVER_PORT",
	} {
		if !viper.IsSet(key) {
			return nil, fmt.Errorf("%s is required", key)
		}
	}

	backend := strings.ToLower(viper.GetString("STORAGE_BACKEND"))
	switch backend {
	case StorageLocal:
	case StorageMinio:
		for _, key := range []string{"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_BUCKET", "MINIO_PUBLIC_URL"} {
			if viper.GetString(key) == "" {
				return nil, fmt.Errorf("%s is required", key)
			}
		}
	default:
		return nil, fmt.Errorf("STORAGE_BACKEND %q is not supported", backend)
	}

	return &Settings{
		MariaDBDSN:      viper.GetString("MARIADB_DSN"),
		MaxOpenConns:    viper.GetInt("MARIADB_MAX_OPEN_CONN"),
		MaxIdleConns:    viper.GetInt("MARIADB_MAX_IDLE_CONNS"),
		ConnMaxLifetime: time.Duration(viper.GetInt("MARIADB_CONN_MAX_LIFETIME")) * time.Second,
		ServerPort:      viper.GetInt("SERVER_PORT"),

		StorageBackend: backend,
		StorageRoot:    viper.GetString("STORAGE_ROOT"),
		StorageURL:     viper.GetString("STORAGE_URL"),
		MinioEndpoint:  viper.GetString("MINIO_ENDPOINT"),
		MinioAccessKey: viper.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey: viper.GetString("MINIO_SECRET_KEY"),
		MinioUseSSL:    viper.GetBool("MINIO_USE_SSL"),
		MinioBucket:    viper.GetString("MINIO_BUCKET"),
		MinioPublicURL: viper.GetString("MINIO_PUBLIC_URL"),

		RedisAddr:     viper.GetString("REDIS_ADDR"),
		RedisPassword: viper.GetString("REDIS_PASSWORD"),

		JWTPublicKey: viper.GetString("JWT_PUBLIC_KEY"),

		DownloadWorkers:      viper.GetInt("DOWNLOAD_WORKERS"),
		DownloadTimeout:      viper.GetDuration("DOWNLOAD_TIMEOUT"),
		CacheFollowerTimeout: viper.GetDuration("CACHE_FOLLOWER_TIMEOUT"),
		CacheRetryAfter:      viper.GetDuration("CACHE_RETRY_AFTER"),

		FFmpegPath:       viper.GetString("FFMPEG_PATH"),
		FFprobePath:      viper.GetString("FFPROBE_PATH"),
		TranscodeThreads: viper.GetInt("TRANSCODE_THREADS"),
		TranscodeWorkDir: viper.GetString("TRANSCODE_WORK_DIR"),
		ProgressTTL:      viper.GetDuration("TRANSCODE_PROGRESS_TTL"),

		CleanupSchedule: viper.GetString("CLEANUP_SCHEDULE"),

		PluginContentURL: viper.GetString("PLUGIN_CONTENT_URL"),
		SlidesCacheTTL:   viper.GetDuration("SLIDES_CACHE_TTL"),
	}, nil
}

func setDefaults() {
	viper.SetDefault("STORAGE_BACKEND", StorageLocal)
	viper.SetDefault("STORAGE_ROOT", "static/storage")
	viper.SetDefault("STORAGE_URL", "/static/storage")
	viper.SetDefault("DOWNLOAD_WORKERS", 8)
	viper.SetDefault("DOWNLOAD_TIMEOUT", 30*time.Second)
	viper.SetDefault("CACHE_FOLLOWER_TIMEOUT", time.Minute)
	viper.SetDefault("CACHE_RETRY_AFTER", 10*time.Minute)
	viper.SetDefault("FFMPEG_PATH", "ffmpeg")
	viper.SetDefault("FFPROBE_PATH", "ffprobe")
	viper.SetDefault("TRANSCODE_THREADS", max(runtime.NumCPU()-1, 1))
	viper.SetDefault("TRANSCODE_WORK_DIR", os.TempDir())
	viper.SetDefault("TRANSCODE_PROGRESS_TTL", 24*time.Hour)
	viper.SetDefault("CLEANUP_SCHEDULE", "55 23 * * *")
	viper.SetDefault("SLIDES_CACHE_TTL", time.Minute)
}
