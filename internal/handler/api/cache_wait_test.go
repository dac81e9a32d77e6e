package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fhuszti/assets-ms-go/internal/mock"
	"github.com/fhuszti/assets-ms-go/internal/model"
	"github.com/fhuszti/assets-ms-go/internal/usecase/asset"
)

func TestCacheWaitHandler(t *testing.T) {
	tests := []struct {
		name         string
		asset        *model.Asset
		getErr       error
		noID         bool
		wantStatus   int
		wantLocation string
		wantForced   bool
	}{
		{
			name:       "missing ID",
			noID:       true,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown asset",
			getErr:     asset.ErrAssetNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "repository error",
			getErr:     errors.New("db down"),
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:         "ready asset redirects straight away",
			asset:        readyAsset(5, 1, "img", ".png"),
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/static/storage/1/5.png",
			wantForced:   true,
		},
		{
			name:       "failed asset",
			asset:      &model.Asset{ID: 5, ChannelID: 1, Failed: true},
			wantStatus: http.StatusNotFound,
		},
		{
			name:         "in flight without task is forced",
			asset:        &model.Asset{ID: 5, ChannelID: 1, Extension: strPtr(".png"), InFlight: true},
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/static/storage/1/5.png",
			wantForced:   true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := mock.NewAssetStore()
			if tc.asset != nil {
				store.Assets[tc.asset.ID] = tc.asset
			}
			store.GetErr = tc.getErr

			req := httptest.NewRequest(http.MethodGet, "/cache/5", nil)
			if !tc.noID {
				req = withID(req, 5)
			}
			rec := httptest.NewRecorder()

			CacheWaitHandler(store, mock.NewDownloader())(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d; want %d (body=%q)", rec.Code, tc.wantStatus, rec.Body.String())
			}
			if loc := rec.Header().Get("Location"); loc != tc.wantLocation {
				t.Errorf("Location = %q; want %q", loc, tc.wantLocation)
			}
			if got := len(store.Forced) > 0; got != tc.wantForced {
				t.Errorf("forced = %v; want %v", got, tc.wantForced)
			}
		})
	}
}

func TestCacheWaitHandler_WaitsForPendingTask(t *testing.T) {
	store := mock.NewAssetStore(&model.Asset{ID: 7, ChannelID: 2, Extension: strPtr(".jpg"), InFlight: true})
	dl := mock.NewDownloader()
	dl.Track(7)

	go func() {
		time.Sleep(20 * time.Millisecond)
		dl.Resolve(7, nil)
	}()

	req := withID(httptest.NewRequest(http.MethodGet, "/cache/7", nil), 7)
	rec := httptest.NewRecorder()
	CacheWaitHandler(store, dl)(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusSeeOther)
	}
	if loc := rec.Header().Get("Location"); loc != "/static/storage/2/7.jpg" {
		t.Errorf("Location = %q", loc)
	}
}

func TestCacheWaitHandler_FailedDownload(t *testing.T) {
	// post-processing already marked the record, the task resolves with the reason
	store := mock.NewAssetStore(&model.Asset{ID: 7, ChannelID: 2, Failed: true})
	dl := mock.NewDownloader()
	dl.Track(7)

	go func() {
		time.Sleep(10 * time.Millisecond)
		dl.Resolve(7, errors.New("404 from origin"))
	}()

	req := withID(httptest.NewRequest(http.MethodGet, "/cache/7", nil), 7)
	rec := httptest.NewRecorder()
	CacheWaitHandler(store, dl)(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusNotFound)
	}
}

func TestCacheWaitHandler_ClientGivesUp(t *testing.T) {
	store := mock.NewAssetStore(&model.Asset{ID: 7, ChannelID: 2, InFlight: true})
	dl := mock.NewDownloader()
	dl.Track(7)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := withID(httptest.NewRequest(http.MethodGet, "/cache/7", nil).WithContext(ctx), 7)
	rec := httptest.NewRecorder()
	CacheWaitHandler(store, dl)(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusGatewayTimeout)
	}
	if len(store.Forced) != 0 {
		t.Errorf("asset should not be forced, got %v", store.Forced)
	}
}
