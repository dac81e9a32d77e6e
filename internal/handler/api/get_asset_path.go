package api

import (
	"net/http"

	"github.com/fhuszti/assets-ms-go/internal/api_context"
	"github.com/fhuszti/assets-ms-go/internal/logger"
	"github.com/fhuszti/assets-ms-go/internal/port"
)

type AssetPathResponse struct {
	Path string `json:"path"`
}

// GetAssetPathHandler resolves the served path of a ready asset.
func GetAssetPathHandler(assets port.AssetStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := api_context.IDFromContext(r.Context())
		if !ok {
			WriteError(w, http.StatusBadRequest, "ID is required", nil)
			return
		}

		path, ok := assets.GetAssetPath(r.Context(), id)
		if !ok {
			WriteError(w, http.StatusNotFound, "Asset not found or not ready", nil)
			return
		}

		RespondJSON(w, http.StatusOK, AssetPathResponse{Path: path})
		logger.Infof(r.Context(), "✅  Resolved path of asset #%d", id)
	}
}
