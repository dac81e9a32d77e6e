package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/fhuszti/assets-ms-go/internal/api_context"
	"github.com/fhuszti/assets-ms-go/internal/logger"
	"github.com/fhuszti/assets-ms-go/internal/port"
	"github.com/fhuszti/assets-ms-go/internal/usecase/asset"
)

const uploadMemory = 32 << 20

// UploadAssetHandler stores the "file" part of a multipart form as a new
// asset of the channel.
func UploadAssetHandler(storages port.StorageManagerFactory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channelID, ok := api_context.ChannelIDFromContext(r.Context())
		if !ok {
			WriteError(w, http.StatusBadRequest, "channel ID is required", nil)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, asset.MaxUploadSize)
		if err := r.ParseMultipartForm(uploadMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				WriteError(w, http.StatusRequestEntityTooLarge, "File is too large", err)
				return
			}
			WriteError(w, http.StatusBadRequest, "Invalid request", fmt.Errorf("invalid multipart form: %w", err))
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			WriteError(w, http.StatusBadRequest, "file is required", err)
			return
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "Could not read uploaded file", err)
			return
		}

		a, err := storages(channelID).StoreFile(r.Context(), content, header.Filename, uploaderID(r))
		if err != nil {
			if errors.Is(err, asset.ErrEmptyContent) {
				WriteError(w, http.StatusBadRequest, "Uploaded file is empty", nil)
				return
			}
			WriteError(w, http.StatusInternalServerError, "Could not store file", err)
			return
		}

		RespondJSON(w, http.StatusCreated, a)
		logger.Infof(r.Context(), "✅  Stored %q as asset #%d for channel #%d", header.Filename, a.ID, channelID)
	}
}

// uploaderID is the numeric user id of the authenticated caller, if any.
func uploaderID(r *http.Request) *int64 {
	id, ok := api_context.AuthUserNumericIDFromContext(r.Context())
	if !ok {
		return nil
	}
	return &id
}

// DeleteChannelAssetsHandler removes every asset of a channel. The channel's
// rendered slides are dropped as well, since they point at removed files.
// slides may be nil when slide rendering is disabled.
func DeleteChannelAssetsHandler(storages port.StorageManagerFactory, slides port.SlideRenderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channelID, ok := api_context.ChannelIDFromContext(r.Context())
		if !ok {
			WriteError(w, http.StatusBadRequest, "channel ID is required", nil)
			return
		}

		err := storages(channelID).DeleteAllAssets(r.Context())
		if slides != nil {
			slides.Invalidate(channelID)
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to delete channel assets", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
		logger.Infof(r.Context(), "✅  Successfully deleted assets of channel #%d", channelID)
	}
}
