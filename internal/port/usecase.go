package port

import (
	"context"
	"time"

	"github.com/fhuszti/assets-ms-go/internal/model"
)

type Clock func() time.Time

// AssetStore resolves, serves and removes assets regardless of their channel.
type AssetStore interface {
	GetAsset(ctx context.Context, id int64) (*model.Asset, error)
	GetAssetPath(ctx context.Context, id int64) (string, bool)
	AssetPath(ctx context.Context, asset *model.Asset, force bool) (string, bool)
	Reference(ctx context.Context, asset *model.Asset) string
	RemoveAsset(ctx context.Context, asset *model.Asset) error
}

// AssetRemover deletes an asset record together with its files.
type AssetRemover interface {
	RemoveAsset(ctx context.Context, asset *model.Asset) error
}

// StorageManager creates and deletes the assets of one channel.
type StorageManager interface {
	CreateAsset(ctx context.Context, in CreateAssetInput) (*model.Asset, error)
	StoreFile(ctx context.Context, content []byte, filename string, userID *int64) (*model.Asset, error)
	DeleteAllAssets(ctx context.Context) error
	GetAssetPath(ctx context.Context, id int64) (string, bool)
}
type CreateAssetInput struct {
	Filename string
	UserID   *int64
	MimeType string
	IsCached bool
	InFlight bool
}

// CacheManager materialises cacheable resources of one channel at most once.
type CacheManager interface {
	GetCachedFile(ctx context.Context, filename string) (*model.Asset, error)
	CacheFile(ctx context.Context, content []byte, filename string) (*model.Asset, error)
	CacheFileAtURL(ctx context.Context, url string) (*model.Asset, error)
	CacheQRCode(ctx context.Context, payload string) (*model.Asset, error)
}

type StorageManagerFactory func(channelID int64) StorageManager
type CacheManagerFactory func(channelID int64) CacheManager

// VideoConverter transcodes uploaded videos into a web friendly format.
type VideoConverter interface {
	ScheduleConversion(ctx context.Context, assetID int64) (ConversionOutput, error)
	Submit(ctx context.Context, req TranscodeRequest) error
	Convert(ctx context.Context, req TranscodeRequest) error
}
type ConversionOutput struct {
	Asset      *model.Asset `json:"asset"`
	ProgressID string       `json:"progress_id"`
}

// UsageReporter summarises storage consumption.
type UsageReporter interface {
	Usage(ctx context.Context) ([]UsageOutput, error)
	ChannelMimeUsage(ctx context.Context, channelID int64) ([]MimeUsageOutput, error)
}
type UsageOutput struct {
	model.ChannelUsage
	TotalHuman  string  `json:"total_human"`
	CachedShare float64 `json:"cached_share"`
}
type MimeUsageOutput struct {
	model.MimeUsage
	TotalHuman string `json:"total_human"`
}

// AssetCleaner reclaims cached assets nobody referenced recently.
type AssetCleaner interface {
	RunOnce(ctx context.Context) (CleanupReport, error)
}
type CleanupReport struct {
	Cutoff  time.Time `json:"cutoff"`
	Removed int       `json:"removed"`
	Bytes   int64     `json:"bytes"`
	Failed  int       `json:"failed"`
}
