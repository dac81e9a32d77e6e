package asset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fhuszti/assets-ms-go/internal/logger"
	"github.com/fhuszti/assets-ms-go/internal/model"
	"github.com/fhuszti/assets-ms-go/internal/port"
)

type assetStoreSrv struct {
	repo  port.AssetRepository
	store port.FileStore
	now   port.Clock
}

// compile-time check: *assetStoreSrv must satisfy port.AssetStore
var _ port.AssetStore = (*assetStoreSrv)(nil)

// NewAssetStore constructs a port.AssetStore implementation.
func NewAssetStore(repo port.AssetRepository, store port.FileStore, now port.Clock) port.AssetStore {
	if now == nil {
		now = time.Now
	}
	return &assetStoreSrv{repo: repo, store: store, now: now}
}

func (s *assetStoreSrv) GetAsset(ctx context.Context, id int64) (*model.Asset, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAssetNotFound
		}
		return nil, err
	}
	return a, nil
}

// GetAssetPath never fails: unknown, in flight and failed assets resolve to false.
func (s *assetStoreSrv) GetAssetPath(ctx context.Context, id int64) (string, bool) {
	a, err := s.GetAsset(ctx, id)
	if err != nil {
		logger.Warnf(ctx, "⚠️  Tried to get asset path for asset #%d: %v", id, err)
		return "", false
	}
	return s.AssetPath(ctx, a, false)
}

// AssetPath refreshes the last reference time of the asset and returns the
// path it is served from. force serves an asset still flagged in flight and
// clears the flag, for callers that know its download is over.
func (s *assetStoreSrv) AssetPath(ctx context.Context, a *model.Asset, force bool) (string, bool) {
	now := s.now()
	if err := s.repo.Touch(ctx, a.ID, now); err != nil {
		logger.Warnf(ctx, "⚠️  Could not refresh last reference of asset #%d: %v", a.ID, err)
	} else if now.After(a.LastReference) {
		a.LastReference = now
	}

	if a.Failed {
		return "", false
	}
	if a.InFlight {
		if !force {
			return "", false
		}
		if err := s.repo.ClearInFlight(ctx, a.ID); err != nil {
			logger.Warnf(ctx, "⚠️  Could not clear in-flight flag of asset #%d: %v", a.ID, err)
		}
		a.InFlight = false
	}
	return s.store.URL(a.ObjectKey()), true
}

// Reference is what pages embed for the asset: its path once ready, the
// cache-wait endpoint while in flight, nothing when it failed.
func (s *assetStoreSrv) Reference(ctx context.Context, a *model.Asset) string {
	if a.Failed {
		return ""
	}
	if p, ok := s.AssetPath(ctx, a, false); ok {
		return p
	}
	return fmt.Sprintf("/cache/%d", a.ID)
}

// RemoveAsset deletes the file, its archived versions, then the record.
func (s *assetStoreSrv) RemoveAsset(ctx context.Context, a *model.Asset) error {
	if err := s.store.Remove(ctx, a.ObjectKey()); err != nil {
		return fmt.Errorf("remove file of asset #%d: %w", a.ID, err)
	}
	if err := s.store.RemovePrefix(ctx, a.VersionPrefix()); err != nil {
		logger.Warnf(ctx, "⚠️  Could not remove archived versions of asset #%d: %v", a.ID, err)
	}
	if err := s.repo.Delete(ctx, a.ID); err != nil {
		return fmt.Errorf("delete asset #%d: %w", a.ID, err)
	}
	return nil
}
