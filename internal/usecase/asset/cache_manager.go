package asset

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/fhuszti/assets-ms-go/internal/logger"
	"github.com/fhuszti/assets-ms-go/internal/model"
	"github.com/fhuszti/assets-ms-go/internal/port"
)

// cacheManagerSrv materialises remote and generated resources of one
// channel. Callers racing on the same resource are split into one leader,
// which registers the asset and hands it to the downloader, and followers,
// which wait for the leader to let go of the key and reuse its asset.
type cacheManagerSrv struct {
	*storageManagerSrv
	downloader port.Downloader
	locks      port.KeyedLocker
	opts       CacheOptions
}

// compile-time check: *cacheManagerSrv must satisfy port.CacheManager
var _ port.CacheManager = (*cacheManagerSrv)(nil)

type CacheDeps struct {
	Repo       port.AssetRepository
	Store      port.FileStore
	Assets     port.AssetStore
	Downloader port.Downloader
	Locks      port.KeyedLocker
	Now        port.Clock
}

// NewCacheManagerFactory returns a constructor of channel scoped cache managers.
func NewCacheManagerFactory(deps CacheDeps, opts CacheOptions) port.CacheManagerFactory {
	opts = opts.withDefaults()
	return func(channelID int64) port.CacheManager {
		return &cacheManagerSrv{
			storageManagerSrv: newStorageManager(channelID, deps.Repo, deps.Store, deps.Assets, deps.Now),
			downloader:        deps.Downloader,
			locks:             deps.Locks,
			opts:              opts,
		}
	}
}

// GetCachedFile looks a cached asset up, nil when absent. name is either the
// logical name given to CacheFile or the source URL given to CacheFileAtURL;
// URL assets are not reachable through the filename derived from their URL.
func (s *cacheManagerSrv) GetCachedFile(ctx context.Context, name string) (*model.Asset, error) {
	key := name
	if _, err := filenameFromURL(name); err == nil {
		key = urlCacheKey(name)
	}
	return s.repo.GetCachedByKey(ctx, s.channelID, key)
}

// CacheFile stores content the caller already holds under a logical name.
// Caching the same name again rewrites the file of the existing asset.
func (s *cacheManagerSrv) CacheFile(ctx context.Context, content []byte, filename string) (*model.Asset, error) {
	if len(content) == 0 {
		return nil, ErrEmptyContent
	}

	unlock, err := s.locks.Lock(ctx, s.lockName(filename))
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := s.repo.GetCachedByKey(ctx, s.channelID, filename)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := s.write(ctx, existing, content); err != nil {
			return nil, err
		}
		return existing, nil
	}

	key := filename
	return s.storeFile(ctx, content, port.CreateAssetInput{Filename: filename, IsCached: true}, &key)
}

// CacheFileAtURL returns the cached asset of a remote resource, registering
// and enqueueing it on a miss. The returned asset may still be in flight.
// At most one download per resource runs at any time.
func (s *cacheManagerSrv) CacheFileAtURL(ctx context.Context, rawURL string) (*model.Asset, error) {
	filename, err := filenameFromURL(rawURL)
	if err != nil {
		return nil, err
	}
	key := urlCacheKey(rawURL)

	a, err := s.repo.GetCachedByKey(ctx, s.channelID, key)
	if err != nil {
		return nil, err
	}
	if a != nil && !s.stale(a) {
		return a, nil
	}

	if unlock, ok := s.locks.TryLock(s.lockName(key)); ok {
		defer unlock()
		return s.lead(ctx, rawURL, filename, key)
	}
	return s.follow(ctx, key)
}

func (s *cacheManagerSrv) lead(ctx context.Context, rawURL, filename, key string) (*model.Asset, error) {
	// someone may have led and released the key since our lookup
	a, err := s.repo.GetCachedByKey(ctx, s.channelID, key)
	if err != nil {
		return nil, err
	}
	if a != nil && !s.stale(a) {
		return a, nil
	}

	if a == nil {
		rec := s.newRecord(port.CreateAssetInput{Filename: filename, IsCached: true, InFlight: true})
		rec.SourceURL, rec.CacheKey = &rawURL, &key
		if a, err = s.create(ctx, rec); err != nil {
			logger.Warnf(ctx, "⚠️  Could not register cached asset for %q: %v", rawURL, err)
			return nil, err
		}
	} else {
		logger.Debugf(ctx, "refreshing cached asset #%d from %q", a.ID, rawURL)
	}

	if _, err := s.downloader.EnqueueAsset(ctx, a); err != nil {
		logger.Warnf(ctx, "⚠️  Could not enqueue download of %q: %v", rawURL, err)
		if markErr := s.repo.MarkFailed(ctx, a.ID, err.Error(), s.now()); markErr != nil {
			logger.Warnf(ctx, "⚠️  Could not mark asset #%d failed: %v", a.ID, markErr)
		}
		return nil, err
	}
	if !a.Fetched() {
		a.InFlight, a.Failed, a.FailureMessage = true, false, nil
	}
	return a, nil
}

func (s *cacheManagerSrv) follow(ctx context.Context, key string) (*model.Asset, error) {
	wctx, cancel := context.WithTimeout(ctx, s.opts.FollowerTimeout)
	defer cancel()

	unlock, err := s.locks.Lock(wctx, s.lockName(key))
	if err != nil {
		return nil, fmt.Errorf("wait for cached asset: %w", err)
	}
	unlock()

	a, err := s.repo.GetCachedByKey(ctx, s.channelID, key)
	if err != nil {
		return nil, err
	}
	if a == nil {
		// the leader gave up before registering anything
		return nil, ErrAssetNotFound
	}
	return a, nil
}

// stale reports whether a URL asset has to be fetched again: its download
// was lost, or its last fetch is older than the retry delay.
func (s *cacheManagerSrv) stale(a *model.Asset) bool {
	if a.SourceURL == nil {
		return false
	}
	if s.downloader.HasPendingTaskForAsset(a.ID) {
		return false
	}
	if a.InFlight || a.FetchedAt == nil {
		return true
	}
	return s.now().Sub(*a.FetchedAt) >= s.opts.RetryAfter
}

func (s *cacheManagerSrv) lockName(key string) string {
	return fmt.Sprintf("%d:%s", s.channelID, key)
}

// urlCacheKey is the logical name of a remote resource.
func urlCacheKey(rawURL string) string {
	return "url:" + strconv.FormatUint(xxhash.Sum64String(rawURL), 16)
}

// filenameFromURL derives the stored filename from the last path segment,
// falling back to the host for bare domains.
func filenameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidURL
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." || name == "" {
		name = u.Hostname()
	}
	return name, nil
}
