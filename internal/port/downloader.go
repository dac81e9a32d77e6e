package port

import (
	"context"

	"github.com/fhuszti/assets-ms-go/internal/model"
)

// PendingTask is a handle on an in-progress download.
type PendingTask interface {
	Done() <-chan struct{}
	Wait(ctx context.Context) error
}

// Downloader fetches remote assets in the background.
type Downloader interface {
	EnqueueAsset(ctx context.Context, asset *model.Asset) (PendingTask, error)
	HasPendingTaskForAsset(id int64) bool
	GetPendingTaskForAsset(id int64) (PendingTask, bool)
	ClearPendingTaskForAsset(id int64)
}

// KeyedLocker hands out one mutual exclusion lock per key.
type KeyedLocker interface {
	TryLock(key string) (unlock func(), ok bool)
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
