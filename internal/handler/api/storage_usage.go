package api

import (
	"net/http"

	"github.com/fhuszti/assets-ms-go/internal/api_context"
	"github.com/fhuszti/assets-ms-go/internal/logger"
	"github.com/fhuszti/assets-ms-go/internal/port"
)

// StorageUsageHandler lists the storage consumed by every channel.
func StorageUsageHandler(usage port.UsageReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := usage.Usage(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "Could not compute storage usage", err)
			return
		}

		RespondJSON(w, http.StatusOK, out)
		logger.Infof(r.Context(), "✅  Returned storage usage of %d channels", len(out))
	}
}

// ChannelStorageUsageHandler breaks the storage of one channel down by mime type.
func ChannelStorageUsageHandler(usage port.UsageReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channelID, ok := api_context.ChannelIDFromContext(r.Context())
		if !ok {
			WriteError(w, http.StatusBadRequest, "channel ID is required", nil)
			return
		}

		out, err := usage.ChannelMimeUsage(r.Context(), channelID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "Could not compute channel storage usage", err)
			return
		}

		RespondJSON(w, http.StatusOK, out)
		logger.Infof(r.Context(), "✅  Returned storage usage of channel #%d", channelID)
	}
}

// CleanupHandler runs a cleanup pass right away.
func CleanupHandler(cleaner port.AssetCleaner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := cleaner.RunOnce(r.Context())
		if err != nil {
			if report.Failed == 0 {
				WriteError(w, http.StatusInternalServerError, "Cleanup pass failed", err)
				return
			}
			// some assets were removed, the report says which part failed
			logger.Errorf(r.Context(), "❌  Cleanup pass failed for %d assets: %v", report.Failed, err)
		}

		RespondJSON(w, http.StatusOK, report)
		logger.Infof(r.Context(), "✅  Cleanup pass removed %d assets", report.Removed)
	}
}
