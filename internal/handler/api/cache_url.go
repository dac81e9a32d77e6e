package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/fhuszti/assets-ms-go/internal/api_context"
	"github.com/fhuszti/assets-ms-go/internal/logger"
	"github.com/fhuszti/assets-ms-go/internal/model"
	"github.com/fhuszti/assets-ms-go/internal/port"
	"github.com/fhuszti/assets-ms-go/internal/usecase/asset"
)

type CacheURLRequest struct {
	URL string `json:"url" validate:"required,max=2048,httpurl"`
}

type CacheQRCodeRequest struct {
	Payload string `json:"payload" validate:"required,max=2048"`
}

// CachedAssetResponse pairs an asset with the reference to put in slide content.
type CachedAssetResponse struct {
	Asset     *model.Asset `json:"asset"`
	Reference string       `json:"reference"`
}

// CacheURLHandler caches a remote resource for a channel. The download runs in
// the background, the returned reference points at the wait endpoint meanwhile.
func CacheURLHandler(caches port.CacheManagerFactory, assets port.AssetStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channelID, ok := api_context.ChannelIDFromContext(r.Context())
		if !ok {
			WriteError(w, http.StatusBadRequest, "channel ID is required", nil)
			return
		}

		var req CacheURLRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		a, err := caches(channelID).CacheFileAtURL(r.Context(), req.URL)
		if err != nil {
			writeCacheError(w, err)
			return
		}

		RespondJSON(w, http.StatusOK, CachedAssetResponse{Asset: a, Reference: assets.Reference(r.Context(), a)})
		logger.Infof(r.Context(), "✅  Cached %s as asset #%d for channel #%d", req.URL, a.ID, channelID)
	}
}

// CacheQRCodeHandler caches the QR code image of a payload for a channel.
func CacheQRCodeHandler(caches port.CacheManagerFactory, assets port.AssetStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channelID, ok := api_context.ChannelIDFromContext(r.Context())
		if !ok {
			WriteError(w, http.StatusBadRequest, "channel ID is required", nil)
			return
		}

		var req CacheQRCodeRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		a, err := caches(channelID).CacheQRCode(r.Context(), req.Payload)
		if err != nil {
			writeCacheError(w, err)
			return
		}

		RespondJSON(w, http.StatusOK, CachedAssetResponse{Asset: a, Reference: assets.Reference(r.Context(), a)})
		logger.Infof(r.Context(), "✅  Cached QR code as asset #%d for channel #%d", a.ID, channelID)
	}
}

func writeCacheError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, asset.ErrInvalidURL), errors.Is(err, asset.ErrEmptyContent):
		WriteError(w, http.StatusBadRequest, "Invalid request", err)
	case errors.Is(err, context.DeadlineExceeded):
		WriteError(w, http.StatusGatewayTimeout, "Timed out waiting for the cached asset", err)
	case errors.Is(err, asset.ErrAssetNotFound):
		WriteError(w, http.StatusNotFound, "Asset could not be cached", err)
	default:
		WriteError(w, http.StatusInternalServerError, "Could not cache asset", err)
	}
}
