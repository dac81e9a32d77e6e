package download

import (
	"context"
	"sync"

	"github.com/fhuszti/assets-ms-go/internal/port"
	"github.com/google/uuid"
)

// Task is the handle of one pending download.
type Task struct {
	ID      uuid.UUID
	AssetID int64

	once sync.Once
	done chan struct{}
	err  error
}

var _ port.PendingTask = (*Task)(nil)

func newTask(assetID int64) *Task {
	return &Task{ID: uuid.New(), AssetID: assetID, done: make(chan struct{})}
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err is the outcome of the download, only meaningful once Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the download was post-processed or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) finish(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}
