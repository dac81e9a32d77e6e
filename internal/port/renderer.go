package port

import (
	"context"

	"github.com/fhuszti/assets-ms-go/internal/model"
)

// ContentProvider returns the slides plugins generated for a channel.
type ContentProvider interface {
	Content(ctx context.Context, channelID int64) ([]model.Slide, error)
}

// SlideRenderer returns the JSON representation of a channel's slides, with
// asset references resolved, along with an ETag derived from it.
type SlideRenderer interface {
	RenderSlides(ctx context.Context, channelID int64) ([]byte, string, error)
	Invalidate(channelID int64)
}
