package api

import (
	"errors"
	"net/http"

	"github.com/fhuszti/assets-ms-go/internal/api_context"
	"github.com/fhuszti/assets-ms-go/internal/logger"
	"github.com/fhuszti/assets-ms-go/internal/port"
	"github.com/fhuszti/assets-ms-go/internal/usecase/asset"
)

// TranscodeAssetHandler schedules the web conversion of a video asset.
func TranscodeAssetHandler(conv port.VideoConverter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := api_context.IDFromContext(r.Context())
		if !ok {
			WriteError(w, http.StatusBadRequest, "ID is required", nil)
			return
		}

		out, err := conv.ScheduleConversion(r.Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, asset.ErrAssetNotFound):
				WriteError(w, http.StatusNotFound, "Asset not found", nil)
			case errors.Is(err, asset.ErrNotReady):
				WriteError(w, http.StatusConflict, "Asset is not ready yet", nil)
			case errors.Is(err, asset.ErrNotVideo):
				WriteError(w, http.StatusUnprocessableEntity, "Asset is not a video", nil)
			default:
				WriteError(w, http.StatusInternalServerError, "Could not schedule conversion", err)
			}
			return
		}

		RespondJSON(w, http.StatusAccepted, out)
		logger.Infof(r.Context(), "✅  Scheduled conversion of asset #%d into asset #%d", id, out.Asset.ID)
	}
}
