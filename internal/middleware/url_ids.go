package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/fhuszti/assets-ms-go/internal/api_context"
	"github.com/fhuszti/assets-ms-go/internal/handler/api"
	"github.com/go-chi/chi/v5"
)

// WithAssetID parses the {id} URL parameter into the request context.
func WithAssetID() func(http.Handler) http.Handler {
	return withInt64Param("id", "ID", api_context.IDKey)
}

// WithChannelID parses the {channelID} URL parameter into the request context.
func WithChannelID() func(http.Handler) http.Handler {
	return withInt64Param("channelID", "channel ID", api_context.ChannelIDKey)
}

func withInt64Param(param, label string, key any) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := chi.URLParam(r, param)
			if raw == "" {
				api.WriteError(w, http.StatusBadRequest, label+" is required", nil)
				return
			}
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				api.WriteError(w, http.StatusBadRequest, fmt.Sprintf("%s %q is not a valid identifier", label, raw), nil)
				return
			}

			// stash it in context and call the real handler
			ctx := context.WithValue(r.Context(), key, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
