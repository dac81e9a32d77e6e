package mock

import (
	"context"
	"sync"

	"github.com/fhuszti/assets-ms-go/internal/port"
)

type Dispatcher struct {
	mu       sync.Mutex
	Err      error
	Requests []port.TranscodeRequest
}

var _ port.TranscodeDispatcher = (*Dispatcher)(nil)

func (d *Dispatcher) EnqueueTranscode(ctx context.Context, req port.TranscodeRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.Requests = append(d.Requests, req)
	return nil
}
