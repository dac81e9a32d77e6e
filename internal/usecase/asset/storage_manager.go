package asset

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/fhuszti/assets-ms-go/internal/logger"
	"github.com/fhuszti/assets-ms-go/internal/model"
	"github.com/fhuszti/assets-ms-go/internal/port"
	"github.com/gabriel-vasile/mimetype"
	"github.com/hashicorp/go-multierror"
)

type storageManagerSrv struct {
	channelID int64
	repo      port.AssetRepository
	store     port.FileStore
	assets    port.AssetStore
	now       port.Clock
}

// compile-time check: *storageManagerSrv must satisfy port.StorageManager
var _ port.StorageManager = (*storageManagerSrv)(nil)

// NewStorageManagerFactory returns a constructor of channel scoped storage managers.
func NewStorageManagerFactory(repo port.AssetRepository, store port.FileStore, assets port.AssetStore, now port.Clock) port.StorageManagerFactory {
	return func(channelID int64) port.StorageManager {
		return newStorageManager(channelID, repo, store, assets, now)
	}
}

func newStorageManager(channelID int64, repo port.AssetRepository, store port.FileStore, assets port.AssetStore, now port.Clock) *storageManagerSrv {
	if now == nil {
		now = time.Now
	}
	return &storageManagerSrv{channelID: channelID, repo: repo, store: store, assets: assets, now: now}
}

// CreateAsset registers an asset of the channel without writing any file.
func (s *storageManagerSrv) CreateAsset(ctx context.Context, in port.CreateAssetInput) (*model.Asset, error) {
	return s.create(ctx, s.newRecord(in))
}

func (s *storageManagerSrv) newRecord(in port.CreateAssetInput) *model.Asset {
	now := s.now()
	a := &model.Asset{
		ChannelID:     s.channelID,
		UserID:        in.UserID,
		Created:       now,
		LastReference: now,
		IsCached:      in.IsCached,
		InFlight:      in.InFlight,
	}
	if in.Filename != "" {
		stem, ext := model.SplitFilename(in.Filename)
		a.Filename, a.Extension = &stem, ext
	}
	if in.MimeType != "" {
		mt := in.MimeType
		a.MimeType = &mt
	}
	return a
}

func (s *storageManagerSrv) create(ctx context.Context, a *model.Asset) (*model.Asset, error) {
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create asset: %w", err)
	}
	return a, nil
}

// StoreFile creates an asset for content and writes it. The mime type is
// sniffed from the bytes, never taken from the filename.
func (s *storageManagerSrv) StoreFile(ctx context.Context, content []byte, filename string, userID *int64) (*model.Asset, error) {
	return s.storeFile(ctx, content, port.CreateAssetInput{Filename: filename, UserID: userID}, nil)
}

func (s *storageManagerSrv) storeFile(ctx context.Context, content []byte, in port.CreateAssetInput, cacheKey *string) (*model.Asset, error) {
	if len(content) == 0 {
		return nil, ErrEmptyContent
	}
	in.MimeType = mimetype.Detect(content).String()
	in.InFlight = true

	rec := s.newRecord(in)
	rec.CacheKey = cacheKey
	a, err := s.create(ctx, rec)
	if err != nil {
		return nil, err
	}

	if err := s.write(ctx, a, content); err != nil {
		if delErr := s.repo.Delete(ctx, a.ID); delErr != nil {
			logger.Warnf(ctx, "⚠️  Could not delete orphan asset #%d: %v", a.ID, delErr)
		}
		return nil, err
	}
	return a, nil
}

// write stores content as the file of a and marks the asset complete.
func (s *storageManagerSrv) write(ctx context.Context, a *model.Asset, content []byte) error {
	mt := mimetype.Detect(content).String()
	size := int64(len(content))
	if err := s.store.Save(ctx, a.ObjectKey(), bytes.NewReader(content), size, mt); err != nil {
		return fmt.Errorf("write file of asset #%d: %w", a.ID, err)
	}

	now := s.now()
	if err := s.repo.MarkFetched(ctx, a.ID, mt, size, now); err != nil {
		return fmt.Errorf("update asset #%d: %w", a.ID, err)
	}
	a.MimeType, a.FileSize, a.FetchedAt = &mt, &size, &now
	a.InFlight, a.Failed, a.FailureMessage = false, false, nil
	return nil
}

// DeleteAllAssets removes every asset of the channel with its files. It
// keeps going after a failure and reports all of them.
func (s *storageManagerSrv) DeleteAllAssets(ctx context.Context) error {
	assets, err := s.repo.ListByChannel(ctx, s.channelID)
	if err != nil {
		return fmt.Errorf("list assets of channel %d: %w", s.channelID, err)
	}

	var result *multierror.Error
	for _, a := range assets {
		if err := s.assets.RemoveAsset(ctx, a); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	logger.Infof(ctx, "Deleted %d asset(s) of channel %d", len(assets), s.channelID)
	return nil
}

func (s *storageManagerSrv) GetAssetPath(ctx context.Context, id int64) (string, bool) {
	return s.assets.GetAssetPath(ctx, id)
}
