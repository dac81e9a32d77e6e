package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fhuszti/assets-ms-go/internal/api_context"
	"github.com/fhuszti/assets-ms-go/internal/logger"
	"github.com/fhuszti/assets-ms-go/internal/port"
	"github.com/fhuszti/assets-ms-go/internal/usecase/asset"
)

// CacheWaitHandler blocks until the pending download of an asset completes,
// then redirects to the file.
func CacheWaitHandler(assets port.AssetStore, dl port.Downloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := api_context.IDFromContext(r.Context())
		if !ok {
			WriteError(w, http.StatusBadRequest, "ID is required", nil)
			return
		}

		if _, err := assets.GetAsset(r.Context(), id); err != nil {
			if errors.Is(err, asset.ErrAssetNotFound) {
				WriteError(w, http.StatusNotFound, "Asset not found", nil)
				return
			}
			WriteError(w, http.StatusInternalServerError, "Could not get asset", err)
			return
		}

		if dl.HasPendingTaskForAsset(id) {
			task, ok := dl.GetPendingTaskForAsset(id)
			if !ok {
				// finished between both calls, start over
				http.Redirect(w, r, fmt.Sprintf("/cache/%d", id), http.StatusSeeOther)
				return
			}
			if err := task.Wait(r.Context()); err != nil {
				if r.Context().Err() != nil {
					WriteError(w, http.StatusGatewayTimeout, "Timed out waiting for asset", err)
					return
				}
				logger.Warnf(r.Context(), "⚠️  Download of asset #%d failed: %v", id, err)
			}
		}

		a, err := assets.GetAsset(r.Context(), id)
		if err != nil {
			if errors.Is(err, asset.ErrAssetNotFound) {
				WriteError(w, http.StatusNotFound, "Asset not found", nil)
				return
			}
			WriteError(w, http.StatusInternalServerError, "Could not get asset", err)
			return
		}

		// the task is complete, the record may still say in flight
		path, ok := assets.AssetPath(r.Context(), a, true)
		if !ok {
			WriteError(w, http.StatusNotFound, "Asset could not be fetched", nil)
			return
		}

		http.Redirect(w, r, path, http.StatusSeeOther)
		logger.Infof(r.Context(), "✅  Redirected to cached asset #%d", id)
	}
}
