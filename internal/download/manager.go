// Package download fetches remote assets in the background.
//
// Fetches run on a bounded pool of goroutines. Their results are applied
// to the asset records by a single post-processing goroutine, so slow
// database writes never hold a network slot.
package download

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/fhuszti/assets-ms-go/internal/logger"
	"github.com/fhuszti/assets-ms-go/internal/model"
	"github.com/fhuszti/assets-ms-go/internal/port"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sourcegraph/conc/pool"
)

var ErrStopped = errors.New("download manager stopped")

// sniffLen is how much of a body mimetype inspects.
const sniffLen = 3072

type Options struct {
	Workers   int
	Timeout   time.Duration
	QueueSize int
	Client    *http.Client
	Now       port.Clock
}

type outcome string

const (
	outcomeFetched     outcome = "fetched"
	outcomeNotModified outcome = "not_modified"
	outcomeFailed      outcome = "failed"
	outcomeStopped     outcome = "stopped"
)

type job struct {
	task  *Task
	asset model.Asset
}

type result struct {
	task     *Task
	asset    model.Asset
	outcome  outcome
	mimeType string
	size     int64
	err      error
}

type Manager struct {
	repo    port.AssetRepository
	store   port.FileStore
	client  *http.Client
	workers int
	now     port.Clock

	mu      sync.Mutex
	pending map[int64]*Task
	started bool
	stopped bool

	jobs    chan *job
	results chan result
	quit    chan struct{}
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc

	stopOnce sync.Once
}

// compile-time check: *Manager must satisfy port.Downloader
var _ port.Downloader = (*Manager)(nil)

func NewManager(repo port.AssetRepository, store port.FileStore, opts Options) *Manager {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Client.Timeout == 0 {
		opts.Client.Timeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		repo:    repo,
		store:   store,
		client:  opts.Client,
		workers: opts.Workers,
		now:     opts.Now,
		pending: make(map[int64]*Task),
		jobs:    make(chan *job, opts.QueueSize),
		results: make(chan result),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the fetch dispatcher and the post-processor.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.stopped {
		return
	}
	m.started = true

	go m.dispatch()
	go m.postProcess()
	logger.Infof(m.ctx, "✅  Download manager started with %d workers", m.workers)
}

// Stop cancels running fetches, resolves every pending task and waits for
// all goroutines to return. Calling it more than once is harmless.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		started := m.started
		m.mu.Unlock()

		close(m.quit)
		m.cancel()
		if started {
			<-m.done
		}

		m.mu.Lock()
		left := m.pending
		m.pending = make(map[int64]*Task)
		m.mu.Unlock()
		for _, t := range left {
			t.finish(ErrStopped)
		}
		if len(left) > 0 {
			logger.Warnf(context.Background(), "⚠️  Dropped %d pending downloads on shutdown", len(left))
		}
		logger.Info(context.Background(), "✅  Download manager stopped")
	})
}

// EnqueueAsset schedules a fetch of the asset's source URL, unless one is
// already pending for it, in which case the existing task is returned.
func (m *Manager) EnqueueAsset(ctx context.Context, a *model.Asset) (port.PendingTask, error) {
	if a.SourceURL == nil || *a.SourceURL == "" {
		return nil, fmt.Errorf("asset #%d has no source url", a.ID)
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrStopped
	}
	if t, ok := m.pending[a.ID]; ok {
		m.mu.Unlock()
		return t, nil
	}
	t := newTask(a.ID)
	m.pending[a.ID] = t
	m.mu.Unlock()

	// a refresh leaves the current file servable until the new one is in place
	if !a.Fetched() {
		if err := m.repo.MarkInFlight(ctx, a.ID); err != nil {
			m.resolve(t, err)
			return nil, fmt.Errorf("mark asset #%d in flight: %w", a.ID, err)
		}
		a.InFlight, a.Failed, a.FailureMessage = true, false, nil
	}

	pendingDownloads.Inc()
	select {
	case m.jobs <- &job{task: t, asset: *a}:
	case <-m.quit:
		pendingDownloads.Dec()
		m.resolve(t, ErrStopped)
		return nil, ErrStopped
	}

	logger.Debugf(ctx, "enqueued download %s for asset #%d", t.ID, a.ID)
	return t, nil
}

func (m *Manager) HasPendingTaskForAsset(id int64) bool {
	_, ok := m.GetPendingTaskForAsset(id)
	return ok
}

func (m *Manager) GetPendingTaskForAsset(id int64) (port.PendingTask, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.pending[id]
	if !ok {
		return nil, false
	}
	return t, true
}

// ClearPendingTaskForAsset forgets the task without cancelling it.
func (m *Manager) ClearPendingTaskForAsset(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, id)
}

func (m *Manager) resolve(t *Task, err error) {
	m.mu.Lock()
	if cur, ok := m.pending[t.AssetID]; ok && cur == t {
		delete(m.pending, t.AssetID)
	}
	m.mu.Unlock()
	t.finish(err)
}

func (m *Manager) dispatch() {
	p := pool.New().WithMaxGoroutines(m.workers)
	defer func() {
		p.Wait()
		close(m.results)
	}()

	for {
		select {
		case <-m.quit:
			for {
				select {
				case j := <-m.jobs:
					m.results <- result{task: j.task, asset: j.asset, outcome: outcomeStopped, err: ErrStopped}
				default:
					return
				}
			}
		case j := <-m.jobs:
			p.Go(func() {
				m.results <- m.fetch(j)
			})
		}
	}
}

func (m *Manager) fetch(j *job) (res result) {
	res = result{task: j.task, asset: j.asset}
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.outcome, res.err = outcomeFailed, fmt.Errorf("panic while fetching: %v", r)
		}
		downloadDuration.Observe(time.Since(started).Seconds())
	}()

	a := j.asset
	key := a.ObjectKey()

	req, err := http.NewRequestWithContext(m.ctx, http.MethodGet, *a.SourceURL, nil)
	if err != nil {
		res.outcome, res.err = outcomeFailed, err
		return res
	}

	existing, statErr := m.store.Stat(m.ctx, key)
	hasFile := statErr == nil
	if hasFile {
		req.Header.Set("If-Modified-Since", existing.ModTime.UTC().Format(http.TimeFormat))
	}

	resp, err := m.client.Do(req)
	if err != nil {
		if m.ctx.Err() != nil {
			res.outcome, res.err = outcomeStopped, ErrStopped
			return res
		}
		res.outcome, res.err = outcomeFailed, err
		return res
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		res.outcome = outcomeNotModified
		return res
	case resp.StatusCode < 200 || resp.StatusCode > 299 || resp.StatusCode == http.StatusNoContent:
		res.outcome, res.err = outcomeFailed, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, *a.SourceURL)
		return res
	}

	br := bufio.NewReaderSize(resp.Body, sniffLen)
	head, _ := br.Peek(sniffLen)
	mt := mimetype.Detect(head)

	cr := &countingReader{r: br}
	if err := m.write(a, key, cr, resp.ContentLength, mt.String(), hasFile, existing.ModTime); err != nil {
		if m.ctx.Err() != nil {
			res.outcome, res.err = outcomeStopped, ErrStopped
			return res
		}
		res.outcome, res.err = outcomeFailed, fmt.Errorf("write asset #%d: %w", a.ID, err)
		return res
	}

	res.outcome, res.mimeType, res.size = outcomeFetched, mt.String(), cr.n
	return res
}

// write stores a downloaded body under key. A file already there is only
// replaced once the new content is complete, and is kept as the single
// archived version of the asset.
func (m *Manager) write(a model.Asset, key string, r io.Reader, size int64, contentType string, hasFile bool, modTime time.Time) error {
	target := key
	if hasFile {
		target = key + ".next"
	}
	if err := m.store.Save(m.ctx, target, r, size, contentType); err != nil {
		if rmErr := m.store.Remove(context.Background(), target); rmErr != nil {
			logger.Warnf(m.ctx, "⚠️  Could not remove partial download of asset #%d: %v", a.ID, rmErr)
		}
		return err
	}
	if !hasFile {
		return nil
	}

	if err := m.store.RemovePrefix(m.ctx, a.VersionPrefix()); err != nil {
		logger.Warnf(m.ctx, "⚠️  Could not prune archived versions of asset #%d: %v", a.ID, err)
	}
	if err := m.store.Rename(m.ctx, key, a.VersionKey(modTime)); err != nil {
		logger.Warnf(m.ctx, "⚠️  Could not archive previous version of asset #%d: %v", a.ID, err)
	}
	return m.store.Rename(m.ctx, target, key)
}

func (m *Manager) postProcess() {
	defer close(m.done)
	for r := range m.results {
		m.apply(r)
	}
}

func (m *Manager) apply(r result) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	downloadsTotal.WithLabelValues(string(r.outcome)).Inc()
	pendingDownloads.Dec()

	id := r.asset.ID
	var err error
	switch r.outcome {
	case outcomeFetched:
		err = m.repo.MarkFetched(ctx, id, r.mimeType, r.size, m.now())
		if err == nil {
			logger.Infof(ctx, "✅  Successfully cached asset #%d (%s, %d bytes)", id, r.mimeType, r.size)
		}
	case outcomeNotModified:
		err = m.repo.MarkNotModified(ctx, id, m.now())
		if err == nil {
			logger.Debugf(ctx, "asset #%d not modified", id)
		}
	case outcomeFailed:
		logger.Warnf(ctx, "⚠️  Download of asset #%d failed: %v", id, r.err)
		if mErr := m.repo.MarkFailed(ctx, id, r.err.Error(), m.now()); mErr != nil {
			err = mErr
		}
	case outcomeStopped:
		// left in flight, picked up again as stale after a restart
	}

	if err != nil {
		logger.Errorf(ctx, "❌  Failed to update asset #%d after download: %v", id, err)
		m.resolve(r.task, err)
		return
	}
	m.resolve(r.task, r.err)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
