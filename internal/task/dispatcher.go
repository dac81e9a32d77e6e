package task

import (
	"context"

	"github.com/fhuszti/assets-ms-go/internal/port"
	"github.com/hibiken/asynq"
)

// Dispatcher hands conversions over to the worker process through Redis.
type Dispatcher struct {
	client *asynq.Client
}

// compile-time check
var _ port.TranscodeDispatcher = (*Dispatcher)(nil)

func NewDispatcher(addr, password string) *Dispatcher {
	c := asynq.NewClient(asynq.RedisClientOpt{Addr: addr, Password: password})
	return &Dispatcher{client: c}
}

func (d *Dispatcher) EnqueueTranscode(ctx context.Context, req port.TranscodeRequest) error {
	t, err := NewTranscodeTask(req)
	if err != nil {
		return err
	}
	if _, err := d.client.EnqueueContext(ctx, t); err != nil {
		return err
	}
	return nil
}

func (d *Dispatcher) Close() error {
	return d.client.Close()
}
