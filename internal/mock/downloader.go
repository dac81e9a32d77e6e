package mock

import (
	"context"
	"sync"

	"github.com/fhuszti/assets-ms-go/internal/model"
	"github.com/fhuszti/assets-ms-go/internal/port"
)

// Task is a port.PendingTask resolved by calling Finish.
type Task struct {
	once sync.Once
	done chan struct{}
	err  error
}

func NewTask() *Task { return &Task{done: make(chan struct{})} }

func (t *Task) Done() <-chan struct{} { return t.done }

func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) Finish(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// Downloader records enqueued assets without fetching anything.
type Downloader struct {
	mu sync.Mutex

	EnqueueErr error
	Enqueued   []int64
	Pending    map[int64]*Task
	Cleared    []int64
}

var _ port.Downloader = (*Downloader)(nil)

func NewDownloader() *Downloader {
	return &Downloader{Pending: make(map[int64]*Task)}
}

func (d *Downloader) EnqueueAsset(ctx context.Context, a *model.Asset) (port.PendingTask, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.EnqueueErr != nil {
		return nil, d.EnqueueErr
	}
	d.Enqueued = append(d.Enqueued, a.ID)
	t, ok := d.Pending[a.ID]
	if !ok {
		t = NewTask()
		d.Pending[a.ID] = t
	}
	return t, nil
}

func (d *Downloader) HasPendingTaskForAsset(id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.Pending[id]
	return ok
}

func (d *Downloader) GetPendingTaskForAsset(id int64) (port.PendingTask, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.Pending[id]
	if !ok {
		return nil, false
	}
	return t, true
}

func (d *Downloader) ClearPendingTaskForAsset(id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Cleared = append(d.Cleared, id)
	delete(d.Pending, id)
}

// Track registers a pending task for id as if it had been enqueued elsewhere.
func (d *Downloader) Track(id int64) *Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := NewTask()
	d.Pending[id] = t
	return t
}

// Resolve finishes and forgets the pending task of id.
func (d *Downloader) Resolve(id int64, err error) {
	d.mu.Lock()
	t, ok := d.Pending[id]
	delete(d.Pending, id)
	d.mu.Unlock()
	if ok {
		t.Finish(err)
	}
}
