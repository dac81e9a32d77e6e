package download

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fhuszti/assets-ms-go/internal/mock"
	"github.com/fhuszti/assets-ms-go/internal/model"
	"github.com/fhuszti/assets-ms-go/internal/storage"
	"github.com/spf13/afero"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

func strPtr(s string) *string { return &s }

func setup(t *testing.T, handler http.HandlerFunc) (*Manager, *mock.AssetRepo, *storage.LocalStore, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	repo := mock.NewAssetRepo()
	store := storage.NewLocalStoreFs(afero.NewMemMapFs(), "", "/static/storage")
	m := NewManager(repo, store, Options{Workers: 2, Timeout: 5 * time.Second})
	m.Start()
	t.Cleanup(m.Stop)
	return m, repo, store, srv
}

func cachedAsset(repo *mock.AssetRepo, url string) *model.Asset {
	return repo.Put(&model.Asset{
		ChannelID: 1,
		Filename:  strPtr("img"),
		Extension: strPtr(".png"),
		SourceURL: &url,
		IsCached:  true,
	})
}

func wait(t *testing.T, m *Manager, a *model.Asset) error {
	t.Helper()
	task, err := m.EnqueueAsset(context.Background(), a)
	if err != nil {
		t.Fatalf("EnqueueAsset: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return task.Wait(ctx)
}

func TestManager_FetchSuccess(t *testing.T) {
	m, repo, store, srv := setup(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pngBytes)
	})
	a := cachedAsset(repo, srv.URL+"/img.png")

	if err := wait(t, m, a); err != nil {
		t.Fatalf("task error: %v", err)
	}

	got := repo.Snapshot(a.ID)
	if got.InFlight || got.Failed {
		t.Errorf("flags = in_flight:%v failed:%v; want both false", got.InFlight, got.Failed)
	}
	if got.MimeType == nil || *got.MimeType != "image/png" {
		t.Errorf("MimeType = %v; want image/png", got.MimeType)
	}
	if got.FileSize == nil || *got.FileSize != int64(len(pngBytes)) {
		t.Errorf("FileSize = %v; want %d", got.FileSize, len(pngBytes))
	}

	rc, err := store.Open(context.Background(), a.ObjectKey())
	if err != nil {
		t.Fatalf("file not written: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !bytes.Equal(body, pngBytes) {
		t.Error("stored bytes differ from origin")
	}
	if m.HasPendingTaskForAsset(a.ID) {
		t.Error("task should be removed once post-processed")
	}
}

func TestManager_NotModifiedKeepsFile(t *testing.T) {
	var sawHeader atomic.Bool
	m, repo, store, srv := setup(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-Modified-Since") != "" {
			sawHeader.Store(true)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		_, _ = w.Write([]byte("fresh"))
	})
	url := srv.URL + "/img.png"
	a := cachedAsset(repo, url)
	if err := store.Save(context.Background(), a.ObjectKey(), strings.NewReader("cached"), 6, ""); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	if err := wait(t, m, a); err != nil {
		t.Fatalf("task error: %v", err)
	}

	if !sawHeader.Load() {
		t.Error("conditional header was not sent")
	}
	rc, _ := store.Open(context.Background(), a.ObjectKey())
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "cached" {
		t.Errorf("file rewritten on 304: %q", body)
	}
	got := repo.Snapshot(a.ID)
	if got.InFlight || got.Failed || got.FetchedAt == nil {
		t.Errorf("unexpected state after 304: %+v", got)
	}
	if len(repo.FetchedIDs) != 0 {
		t.Error("MarkFetched must not be called on 304")
	}
	if repo.Count() != 1 {
		t.Errorf("records = %d; want 1", repo.Count())
	}
}

func TestManager_RefreshArchivesPreviousVersion(t *testing.T) {
	m, repo, store, srv := setup(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pngBytes)
	})
	a := cachedAsset(repo, srv.URL+"/img.png")
	if err := store.Save(context.Background(), a.ObjectKey(), strings.NewReader("old"), 3, ""); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	info, _ := store.Stat(context.Background(), a.ObjectKey())

	if err := wait(t, m, a); err != nil {
		t.Fatalf("task error: %v", err)
	}

	rc, err := store.Open(context.Background(), a.VersionKey(info.ModTime))
	if err != nil {
		t.Fatalf("previous version not archived: %v", err)
	}
	old, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(old) != "old" {
		t.Errorf("archived content = %q", old)
	}
}

func TestManager_RepeatedRefreshesKeepOneArchivedVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// origin ignoring If-Modified-Since
		_, _ = w.Write(pngBytes)
	}))
	t.Cleanup(srv.Close)

	fs := afero.NewMemMapFs()
	repo := mock.NewAssetRepo()
	store := storage.NewLocalStoreFs(fs, "", "/static/storage")
	m := NewManager(repo, store, Options{Workers: 1, Timeout: 5 * time.Second})
	m.Start()
	t.Cleanup(m.Stop)

	a := cachedAsset(repo, srv.URL+"/img.png")
	if err := store.Save(context.Background(), a.ObjectKey(), strings.NewReader("v0"), 2, ""); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	base := time.Unix(1700000000, 0)
	var last time.Time
	for i := 1; i <= 5; i++ {
		last = base.Add(time.Duration(i) * 10 * time.Minute)
		if err := fs.Chtimes("/"+a.ObjectKey(), last, last); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
		if err := wait(t, m, a); err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
	}

	versions, err := afero.Glob(fs, "/"+a.VersionPrefix()+"*")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if want := []string{"/" + a.VersionKey(last)}; len(versions) != 1 || versions[0] != want[0] {
		t.Errorf("archived versions = %v; want %v", versions, want)
	}
	if _, err := store.Stat(context.Background(), a.ObjectKey()); err != nil {
		t.Errorf("current file missing: %v", err)
	}
}

func TestManager_RefreshKeepsAssetServable(t *testing.T) {
	release := make(chan struct{})
	unblock := sync.OnceFunc(func() { close(release) })
	m, repo, store, srv := setup(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write(pngBytes)
	})

	t.Cleanup(unblock)

	fetchedAt := time.Now().Add(-time.Hour)
	a := cachedAsset(repo, srv.URL+"/img.png")
	a.FetchedAt = &fetchedAt
	repo.Put(a)
	if err := store.Save(context.Background(), a.ObjectKey(), strings.NewReader("old"), 3, ""); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	task, err := m.EnqueueAsset(context.Background(), a)
	if err != nil {
		t.Fatalf("EnqueueAsset: %v", err)
	}
	if a.InFlight {
		t.Error("caller's copy marked in flight during a refresh")
	}
	if got := repo.Snapshot(a.ID); got.InFlight || !got.Ready() {
		t.Errorf("flags during refresh = in_flight:%v failed:%v; want both false", got.InFlight, got.Failed)
	}

	read := func() string {
		t.Helper()
		rc, err := store.Open(context.Background(), a.ObjectKey())
		if err != nil {
			t.Fatalf("open current file: %v", err)
		}
		defer func() { _ = rc.Close() }()
		b, _ := io.ReadAll(rc)
		return string(b)
	}
	if got := read(); got != "old" {
		t.Errorf("content during refresh = %q; want old", got)
	}

	unblock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := task.Wait(ctx); err != nil {
		t.Fatalf("task error: %v", err)
	}
	if got := read(); got != string(pngBytes) {
		t.Errorf("content after refresh = %q", got)
	}
	if _, err := store.Stat(context.Background(), a.ObjectKey()+".next"); err == nil {
		t.Error("staging file left behind")
	}
}

func TestManager_FailureIsExplicit(t *testing.T) {
	m, repo, _, srv := setup(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	a := cachedAsset(repo, srv.URL+"/img.png")

	err := wait(t, m, a)
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("task error = %v; want status 500", err)
	}

	got := repo.Snapshot(a.ID)
	if got.InFlight {
		t.Error("failed asset must not stay in flight")
	}
	if !got.Failed || got.FailureMessage == nil {
		t.Errorf("asset not marked failed: %+v", got)
	}
}

func TestManager_NetworkErrorDoesNotStopWorker(t *testing.T) {
	m, repo, _, srv := setup(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pngBytes)
	})
	broken := cachedAsset(repo, "http://127.0.0.1:0/nothing.png")
	if err := wait(t, m, broken); err == nil {
		t.Fatal("expected a network error")
	}

	ok := cachedAsset(repo, srv.URL+"/img.png")
	if err := wait(t, m, ok); err != nil {
		t.Fatalf("second download failed: %v", err)
	}
}

func TestManager_EnqueueIsDeduplicated(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	m, repo, _, srv := setup(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		_, _ = w.Write(pngBytes)
	})
	a := cachedAsset(repo, srv.URL+"/img.png")

	first, err := m.EnqueueAsset(context.Background(), a)
	if err != nil {
		t.Fatalf("EnqueueAsset: %v", err)
	}
	second, err := m.EnqueueAsset(context.Background(), a)
	if err != nil {
		t.Fatalf("EnqueueAsset: %v", err)
	}
	if first != second {
		t.Error("second enqueue should return the pending task")
	}
	if got, ok := m.GetPendingTaskForAsset(a.ID); !ok || got != first {
		t.Error("GetPendingTaskForAsset should return the pending task")
	}

	close(release)
	if err := first.Wait(context.Background()); err != nil {
		t.Fatalf("task error: %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("origin hits = %d; want 1", n)
	}
}

func TestManager_ClearPendingTask(t *testing.T) {
	release := make(chan struct{})
	m, repo, _, srv := setup(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write(pngBytes)
	})
	a := cachedAsset(repo, srv.URL+"/img.png")
	task, _ := m.EnqueueAsset(context.Background(), a)

	m.ClearPendingTaskForAsset(a.ID)
	if m.HasPendingTaskForAsset(a.ID) {
		t.Error("task should be cleared")
	}

	close(release)
	if err := task.Wait(context.Background()); err != nil {
		t.Fatalf("cleared task should still complete: %v", err)
	}
}

func TestManager_StopIsIdempotentAndResolvesTasks(t *testing.T) {
	m, repo, _, srv := setup(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	var tasks []interface {
		Wait(context.Context) error
	}
	for i := 0; i < 5; i++ {
		task, err := m.EnqueueAsset(context.Background(), cachedAsset(repo, srv.URL+"/slow.png"))
		if err != nil {
			t.Fatalf("EnqueueAsset: %v", err)
		}
		tasks = append(tasks, task)
	}

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		m.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop deadlocked")
	}

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := task.Wait(ctx); !errors.Is(err, ErrStopped) {
				t.Errorf("task error = %v; want ErrStopped", err)
			}
		}()
	}
	wg.Wait()

	if _, err := m.EnqueueAsset(context.Background(), cachedAsset(repo, srv.URL+"/late.png")); !errors.Is(err, ErrStopped) {
		t.Errorf("enqueue after stop = %v; want ErrStopped", err)
	}
}

func TestManager_StopWithoutStart(t *testing.T) {
	m := NewManager(mock.NewAssetRepo(), storage.NewLocalStoreFs(afero.NewMemMapFs(), "", "/s"), Options{})
	m.Stop()
	m.Stop()
}

func TestManager_MissingSourceURL(t *testing.T) {
	m, repo, _, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {})
	a := repo.Put(&model.Asset{ChannelID: 1})
	if _, err := m.EnqueueAsset(context.Background(), a); err == nil {
		t.Fatal("expected error for asset without source url")
	}
}
