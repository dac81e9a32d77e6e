package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fhuszti/assets-ms-go/internal/api_context"
	"github.com/fhuszti/assets-ms-go/internal/model"
)

func withID(req *http.Request, id int64) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), api_context.IDKey, id))
}

func withChannelID(req *http.Request, id int64) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), api_context.ChannelIDKey, id))
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Error
}

func strPtr(s string) *string { return &s }

func readyAsset(id, channelID int64, name, ext string) *model.Asset {
	return &model.Asset{ID: id, ChannelID: channelID, Filename: strPtr(name), Extension: strPtr(ext)}
}
