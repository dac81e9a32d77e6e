package api

import (
	"net/http"

	"github.com/fhuszti/assets-ms-go/internal/logger"
	"github.com/fhuszti/assets-ms-go/internal/port"
	"github.com/fhuszti/assets-ms-go/internal/usecase/asset"
	"github.com/go-chi/chi/v5"
)

type ProgressResponse struct {
	Progress float64 `json:"progress"`
}

// TranscodingProgressHandler reports the progress of a conversion, identified
// by the id returned when it was scheduled.
func TranscodingProgressHandler(queue port.TranscodeQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		output, err := asset.ParseProgressID(chi.URLParam(r, "progressID"))
		if err != nil {
			WriteError(w, http.StatusNotFound, "Unknown transcoding job", err)
			return
		}

		progress, ok := queue.GetProgress(r.Context(), output)
		if !ok {
			WriteError(w, http.StatusNotFound, "Unknown transcoding job", nil)
			return
		}

		w.Header().Set("Cache-Control", "no-store, max-age=0, must-revalidate")
		RespondJSON(w, http.StatusOK, ProgressResponse{Progress: progress})
		logger.Debugf(r.Context(), "✅  Returned progress %.2f for %s", progress, output)
	}
}
