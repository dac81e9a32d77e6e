package renderer

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"strconv"
	"strings"
	"time"

	"github.com/fhuszti/assets-ms-go/internal/logger"
	"github.com/fhuszti/assets-ms-go/internal/model"
	"github.com/fhuszti/assets-ms-go/internal/port"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

type rendered struct {
	raw  []byte
	etag string
}

// slideRenderer resolves the asset references of plugin content and keeps
// the JSON it produced per channel. Renders still pointing at in-flight
// assets are not kept, so the next request picks up their final path.
type slideRenderer struct {
	content port.ContentProvider
	caches  port.CacheManagerFactory
	assets  port.AssetStore
	cache   *expirable.LRU[int64, rendered]
}

// compile-time check: *slideRenderer must satisfy port.SlideRenderer
var _ port.SlideRenderer = (*slideRenderer)(nil)

// NewSlideRenderer creates a new port.SlideRenderer implementation keeping
// up to size channels for ttl.
func NewSlideRenderer(content port.ContentProvider, caches port.CacheManagerFactory, assets port.AssetStore, size int, ttl time.Duration) port.SlideRenderer {
	if size <= 0 {
		size = 256
	}
	return &slideRenderer{
		content: content,
		caches:  caches,
		assets:  assets,
		cache:   expirable.NewLRU[int64, rendered](size, nil, ttl),
	}
}

// RenderSlides returns the JSON encoded slides of a channel and a quoted ETag.
func (r *slideRenderer) RenderSlides(ctx context.Context, channelID int64) ([]byte, string, error) {
	if out, ok := r.cache.Get(channelID); ok {
		return out.raw, out.etag, nil
	}

	slides, err := r.content.Content(ctx, channelID)
	if err != nil {
		return nil, "", fmt.Errorf("get content of channel %d: %w", channelID, err)
	}

	complete := r.resolve(ctx, channelID, slides)

	raw, err := json.Marshal(slides)
	if err != nil {
		return nil, "", fmt.Errorf("json marshal: %w", err)
	}
	etag := fmt.Sprintf("\"%08x\"", crc32.ChecksumIEEE(raw))

	if complete {
		r.cache.Add(channelID, rendered{raw: raw, etag: etag})
	}
	return raw, etag, nil
}

func (r *slideRenderer) Invalidate(channelID int64) {
	r.cache.Remove(channelID)
}

// resolve rewrites asset fields in place. It reports false when a field
// points to an asset that is not ready yet.
func (r *slideRenderer) resolve(ctx context.Context, channelID int64, slides []model.Slide) bool {
	cm := r.caches(channelID)
	complete := true

	for _, slide := range slides {
		for name, data := range slide.Fields {
			if !model.IsAssetField(name) || data == nil {
				continue
			}

			if ref, ok := data["file"]; ok {
				delete(data, "file")
				r.resolveFile(ctx, data, ref)
				continue
			}

			var a *model.Asset
			var err error
			switch {
			case isURL(str(data["src"])):
				a, err = cm.CacheFileAtURL(ctx, str(data["src"]))
			case str(data["qrcode"]) != "":
				a, err = cm.CacheQRCode(ctx, str(data["qrcode"]))
			default:
				prefixStatic(data)
				continue
			}

			if err != nil || a == nil {
				logger.Warnf(ctx, "⚠️  Dropping field %q of channel %d: %v", name, channelID, err)
				delete(slide.Fields, name)
				continue
			}
			ref := r.assets.Reference(ctx, a)
			if ref == "" {
				delete(slide.Fields, name)
				continue
			}
			if !a.Ready() {
				complete = false
			}
			data["src"] = ref
		}
	}
	return complete
}

// resolveFile points a field at an uploaded asset, as a video when it is one.
func (r *slideRenderer) resolveFile(ctx context.Context, data map[string]any, ref any) {
	id, ok := assetID(ref)
	if !ok {
		return
	}
	a, err := r.assets.GetAsset(ctx, id)
	if err != nil {
		logger.Warnf(ctx, "⚠️  Slide references asset #%d: %v", id, err)
		return
	}
	p, ok := r.assets.AssetPath(ctx, a, false)
	if !ok {
		return
	}
	key := "src"
	if a.MimeType != nil && strings.HasPrefix(*a.MimeType, "video/") {
		key = "video"
	}
	data[key] = p
}

// prefixStatic turns paths relative to the static root into absolute ones.
func prefixStatic(data map[string]any) {
	for _, key := range []string{"src", "video"} {
		v := str(data[key])
		if v == "" || isURL(v) || strings.HasPrefix(v, "/static/") || strings.HasPrefix(v, "/cache/") {
			continue
		}
		data[key] = "/static/" + strings.TrimLeft(v, "/")
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func assetID(v any) (int64, bool) {
	switch x := v.(type) {
	case float64:
		return int64(x), x > 0
	case int64:
		return x, x > 0
	case int:
		return int64(x), x > 0
	case string:
		id, err := strconv.ParseInt(x, 10, 64)
		return id, err == nil && id > 0
	}
	return 0, false
}
