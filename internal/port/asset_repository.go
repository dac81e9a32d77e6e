package port

import (
	"context"
	"time"

	"github.com/fhuszti/assets-ms-go/internal/model"
)

// AssetRepository defines persistence operations for assets.
// GetByID returns sql.ErrNoRows for unknown ids, GetCachedByKey returns a nil asset on miss.
type AssetRepository interface {
	Create(ctx context.Context, asset *model.Asset) error
	GetByID(ctx context.Context, id int64) (*model.Asset, error)
	GetCachedByKey(ctx context.Context, channelID int64, key string) (*model.Asset, error)
	MarkInFlight(ctx context.Context, id int64) error
	ClearInFlight(ctx context.Context, id int64) error
	MarkFetched(ctx context.Context, id int64, mimeType string, size int64, at time.Time) error
	MarkNotModified(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string, at time.Time) error
	Touch(ctx context.Context, id int64, at time.Time) error
	Delete(ctx context.Context, id int64) error
	ListByChannel(ctx context.Context, channelID int64) ([]*model.Asset, error)
	ListStaleCached(ctx context.Context, before time.Time) ([]*model.Asset, error)
	ChannelUsage(ctx context.Context) ([]model.ChannelUsage, error)
	MimeUsage(ctx context.Context, channelID int64) ([]model.MimeUsage, error)
}
