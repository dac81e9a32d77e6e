package renderer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"testing"
	"time"

	"github.com/fhuszti/assets-ms-go/internal/mock"
	"github.com/fhuszti/assets-ms-go/internal/model"
)

type fakeContent struct {
	slides func() []model.Slide
	err    error
	calls  int
}

func (f *fakeContent) Content(ctx context.Context, channelID int64) ([]model.Slide, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.slides(), nil
}

func strPtr(s string) *string { return &s }

func decode(t *testing.T, raw []byte) []model.Slide {
	t.Helper()
	var out []model.Slide
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestRenderSlides_ResolvesAssetFields(t *testing.T) {
	ready := &model.Asset{ID: 1, ChannelID: 3, Extension: strPtr(".png")}
	qr := &model.Asset{ID: 2, ChannelID: 3, Extension: strPtr(".png")}
	video := &model.Asset{ID: 5, ChannelID: 3, Extension: strPtr(".webm"), MimeType: strPtr("video/webm")}

	cm := mock.NewCacheManager()
	cm.ByURL["https://x/a.png"] = ready
	cm.ByPayload["https://event"] = qr
	assets := mock.NewAssetStore(video)

	content := &fakeContent{slides: func() []model.Slide {
		return []model.Slide{{
			TemplateID: "template-image-bg",
			Duration:   5000,
			Fields: map[string]map[string]any{
				"title-1":      {"text": "Hello"},
				"image-1":      {"src": "https://x/a.png"},
				"logo-1":       {"qrcode": "https://event"},
				"background-1": {"file": float64(5)},
				"image-2":      {"src": "plugins/rss/logo.png"},
				"image-3":      {"src": "https://x/missing.png"},
			},
		}}
	}}
	r := NewSlideRenderer(content, cm.Factory(), assets, 8, time.Minute)

	raw, etag, err := r.RenderSlides(context.Background(), 3)
	if err != nil {
		t.Fatalf("RenderSlides: %v", err)
	}
	if want := fmt.Sprintf("\"%08x\"", crc32.ChecksumIEEE(raw)); etag != want {
		t.Errorf("etag = %s; want %s", etag, want)
	}

	f := decode(t, raw)[0].Fields
	if got := f["image-1"]["src"]; got != "/static/storage/3/1.png" {
		t.Errorf("image-1 src = %v", got)
	}
	if got := f["logo-1"]["src"]; got != "/static/storage/3/2.png" {
		t.Errorf("logo-1 src = %v", got)
	}
	if got := f["background-1"]["video"]; got != "/static/storage/3/5.webm" {
		t.Errorf("background-1 video = %v", got)
	}
	if _, ok := f["background-1"]["file"]; ok {
		t.Error("file reference should be replaced")
	}
	if got := f["image-2"]["src"]; got != "/static/plugins/rss/logo.png" {
		t.Errorf("image-2 src = %v", got)
	}
	if _, ok := f["image-3"]; ok {
		t.Error("field with a failed asset should be dropped")
	}
	if got := f["title-1"]["text"]; got != "Hello" {
		t.Errorf("title-1 = %v", got)
	}
}

func TestRenderSlides_CachesCompleteRenders(t *testing.T) {
	cm := mock.NewCacheManager()
	cm.ByURL["https://x/a.png"] = &model.Asset{ID: 1, ChannelID: 1}
	content := &fakeContent{slides: func() []model.Slide {
		return []model.Slide{{Fields: map[string]map[string]any{"image-1": {"src": "https://x/a.png"}}}}
	}}
	r := NewSlideRenderer(content, cm.Factory(), mock.NewAssetStore(), 8, time.Minute)
	ctx := context.Background()

	first, etag1, _ := r.RenderSlides(ctx, 1)
	second, etag2, _ := r.RenderSlides(ctx, 1)
	if content.calls != 1 {
		t.Errorf("content fetched %d times; want 1", content.calls)
	}
	if string(first) != string(second) || etag1 != etag2 {
		t.Error("cached render differs")
	}

	r.Invalidate(1)
	_, _, _ = r.RenderSlides(ctx, 1)
	if content.calls != 2 {
		t.Errorf("content fetched %d times after Invalidate; want 2", content.calls)
	}
}

func TestRenderSlides_InFlightIsNotCached(t *testing.T) {
	cm := mock.NewCacheManager()
	cm.ByURL["https://x/a.png"] = &model.Asset{ID: 9, ChannelID: 1, InFlight: true}
	content := &fakeContent{slides: func() []model.Slide {
		return []model.Slide{{Fields: map[string]map[string]any{"image-1": {"src": "https://x/a.png"}}}}
	}}
	r := NewSlideRenderer(content, cm.Factory(), mock.NewAssetStore(), 8, time.Minute)

	raw, _, err := r.RenderSlides(context.Background(), 1)
	if err != nil {
		t.Fatalf("RenderSlides: %v", err)
	}
	if got := decode(t, raw)[0].Fields["image-1"]["src"]; got != "/cache/9" {
		t.Errorf("src = %v; want the cache-wait endpoint", got)
	}
	_, _, _ = r.RenderSlides(context.Background(), 1)
	if content.calls != 2 {
		t.Errorf("content fetched %d times; want 2", content.calls)
	}
}

func TestRenderSlides_ContentError(t *testing.T) {
	content := &fakeContent{err: errors.New("plugin down")}
	r := NewSlideRenderer(content, mock.NewCacheManager().Factory(), mock.NewAssetStore(), 8, time.Minute)
	if _, _, err := r.RenderSlides(context.Background(), 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestAssetID(t *testing.T) {
	tests := []struct {
		in   any
		want int64
		ok   bool
	}{
		{float64(3), 3, true},
		{"12", 12, true},
		{"abc", 0, false},
		{float64(0), 0, false},
		{nil, 0, false},
	}
	for _, tc := range tests {
		got, ok := assetID(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("assetID(%v) = %d, %v; want %d, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
