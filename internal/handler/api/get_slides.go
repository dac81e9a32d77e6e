package api

import (
	"net/http"

	"github.com/fhuszti/assets-ms-go/internal/api_context"
	"github.com/fhuszti/assets-ms-go/internal/logger"
	"github.com/fhuszti/assets-ms-go/internal/port"
)

// GetSlidesHandler returns the slides of a channel with their asset
// references resolved.
func GetSlidesHandler(renderer port.SlideRenderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channelID, ok := api_context.ChannelIDFromContext(r.Context())
		if !ok {
			WriteError(w, http.StatusBadRequest, "channel ID is required", nil)
			return
		}

		raw, etag, err := renderer.RenderSlides(r.Context(), channelID)
		if err != nil {
			WriteError(w, http.StatusBadGateway, "Could not render slides", err)
			return
		}

		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "no-cache")
		if match := r.Header.Get("If-None-Match"); match == etag {
			w.WriteHeader(http.StatusNotModified)
			logger.Infof(r.Context(), "✅  Slides of channel #%d not modified", channelID)
			return
		}

		RespondRawJSON(w, http.StatusOK, raw)
		logger.Infof(r.Context(), "✅  Successfully rendered slides of channel #%d", channelID)
	}
}
