package task

import (
	"context"
	"errors"
	"sync"

	"github.com/fhuszti/assets-ms-go/internal/port"
)

var ErrUnbound = errors.New("local dispatcher has no converter")

// LocalDispatcher runs conversions on the transcoding queue of the current
// process. The converter is bound after construction since it needs the
// dispatcher itself.
type LocalDispatcher struct {
	mu   sync.RWMutex
	conv port.VideoConverter
}

var _ port.TranscodeDispatcher = (*LocalDispatcher)(nil)

func NewLocalDispatcher() *LocalDispatcher { return &LocalDispatcher{} }

func (d *LocalDispatcher) Bind(conv port.VideoConverter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conv = conv
}

func (d *LocalDispatcher) EnqueueTranscode(ctx context.Context, req port.TranscodeRequest) error {
	d.mu.RLock()
	conv := d.conv
	d.mu.RUnlock()
	if conv == nil {
		return ErrUnbound
	}
	return conv.Submit(ctx, req)
}
