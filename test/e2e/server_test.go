package e2e

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fhuszti/assets-ms-go/internal/download"
	"github.com/fhuszti/assets-ms-go/internal/handler/api"
	"github.com/fhuszti/assets-ms-go/internal/lock"
	cMiddleware "github.com/fhuszti/assets-ms-go/internal/middleware"
	"github.com/fhuszti/assets-ms-go/internal/repository/mariadb"
	"github.com/fhuszti/assets-ms-go/internal/storage"
	"github.com/fhuszti/assets-ms-go/internal/usecase/asset"
	"github.com/fhuszti/assets-ms-go/test/testutil"
	"github.com/go-chi/chi/v5"
)

type testServer struct {
	*httptest.Server
	repo  *mariadb.AssetRepository
	store *storage.LocalStore
}

// newTestServer mounts the public and channel routes over a migrated
// database and a local store in a temporary directory. Authentication is
// left out.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo := mariadb.NewAssetRepository(testutil.MigratedDB(t))
	strg, err := storage.NewLocalStore(t.TempDir(), "/static/storage")
	if err != nil {
		t.Fatalf("local store: %v", err)
	}

	dl := download.NewManager(repo, strg, download.Options{Workers: 2, Timeout: 5 * time.Second})
	dl.Start()
	t.Cleanup(dl.Stop)

	assets := asset.NewAssetStore(repo, strg, time.Now)
	storages := asset.NewStorageManagerFactory(repo, strg, assets, time.Now)
	caches := asset.NewCacheManagerFactory(asset.CacheDeps{
		Repo:       repo,
		Store:      strg,
		Assets:     assets,
		Downloader: dl,
		Locks:      lock.NewRegistry(),
		Now:        time.Now,
	}, asset.CacheOptions{FollowerTimeout: 5 * time.Second})

	r := chi.NewRouter()
	r.NotFound(api.NotFoundHandler())
	r.With(cMiddleware.WithAssetID()).
		Get("/cache/{id}", api.CacheWaitHandler(assets, dl))
	r.Handle("/static/storage/*", strg.Handler())
	r.Route("/channels/{channelID}", func(r chi.Router) {
		r.Use(cMiddleware.WithChannelID())
		r.Post("/cache", api.CacheURLHandler(caches, assets))
		r.Post("/qrcodes", api.CacheQRCodeHandler(caches, assets))
		r.Post("/assets", api.UploadAssetHandler(storages))
		r.Delete("/assets", api.DeleteChannelAssetsHandler(storages, nil))
	})
	r.With(cMiddleware.WithAssetID()).
		Get("/assets/{id}/path", api.GetAssetPathHandler(assets))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, repo: repo, store: strg}
}
