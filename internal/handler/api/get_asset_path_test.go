package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fhuszti/assets-ms-go/internal/mock"
	"github.com/fhuszti/assets-ms-go/internal/model"
)

func TestGetAssetPathHandler(t *testing.T) {
	store := mock.NewAssetStore(
		readyAsset(1, 9, "logo", ".svg"),
		&model.Asset{ID: 2, ChannelID: 9, InFlight: true},
	)

	tests := []struct {
		name       string
		id         int64
		wantStatus int
		wantPath   string
	}{
		{"ready", 1, http.StatusOK, "/static/storage/9/1.svg"},
		{"in flight", 2, http.StatusNotFound, ""},
		{"unknown", 3, http.StatusNotFound, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := withID(httptest.NewRequest(http.MethodGet, "/assets/x/path", nil), tc.id)
			rec := httptest.NewRecorder()

			GetAssetPathHandler(store)(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d; want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantPath == "" {
				return
			}
			var got AssetPathResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Path != tc.wantPath {
				t.Errorf("path = %q; want %q", got.Path, tc.wantPath)
			}
		})
	}
}
