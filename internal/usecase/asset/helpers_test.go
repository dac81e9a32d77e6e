package asset

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/fhuszti/assets-ms-go/internal/lock"
	"github.com/fhuszti/assets-ms-go/internal/mock"
	"github.com/fhuszti/assets-ms-go/internal/model"
	"github.com/fhuszti/assets-ms-go/internal/port"
	"github.com/fhuszti/assets-ms-go/internal/storage"
	"github.com/spf13/afero"
)

func strPtr(s string) *string { return &s }
func int64Ptr(v int64) *int64 { return &v }

// clock is a settable port.Clock.
type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newClock() *clock {
	return &clock{t: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)}
}

type fixture struct {
	repo   *mock.AssetRepo
	store  *mock.FileStore
	assets port.AssetStore
	clock  *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := mock.NewAssetRepo()
	store := &mock.FileStore{FileStore: storage.NewLocalStoreFs(afero.NewMemMapFs(), "", "/static/storage")}
	c := newClock()
	return &fixture{repo: repo, store: store, assets: NewAssetStore(repo, store, c.Now), clock: c}
}

func (f *fixture) storage(channelID int64) *storageManagerSrv {
	return newStorageManager(channelID, f.repo, f.store, f.assets, f.clock.Now)
}

func (f *fixture) cache(channelID int64, dl port.Downloader) port.CacheManager {
	factory := NewCacheManagerFactory(CacheDeps{
		Repo:       f.repo,
		Store:      f.store,
		Assets:     f.assets,
		Downloader: dl,
		Locks:      lock.NewRegistry(),
		Now:        f.clock.Now,
	}, CacheOptions{FollowerTimeout: 2 * time.Second, RetryAfter: 10 * time.Minute})
	return factory(channelID)
}

func readFile(t *testing.T, store port.FileStore, a *model.Asset) []byte {
	t.Helper()
	rc, err := store.Open(context.Background(), a.ObjectKey())
	if err != nil {
		t.Fatalf("open %s: %v", a.ObjectKey(), err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", a.ObjectKey(), err)
	}
	return b
}
