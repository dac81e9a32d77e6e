// Package transcode runs video conversions one at a time in the background.
package transcode

import (
	"context"
	"errors"
	"sync"

	"github.com/fhuszti/assets-ms-go/internal/logger"
	"github.com/fhuszti/assets-ms-go/internal/port"
)

var ErrStopped = errors.New("transcoding queue stopped")

// minStep is the smallest progress increase worth publishing.
const minStep = 0.01

type job struct {
	input    string
	output   string
	callback func(ok bool)
}

type Queue struct {
	transcoder port.Transcoder
	progress   port.ProgressStore

	mu      sync.Mutex
	jobs    []job
	started bool
	stopped bool

	signal chan struct{}
	quit   chan struct{}
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	stopOnce sync.Once
}

// compile-time check: *Queue must satisfy port.TranscodeQueue
var _ port.TranscodeQueue = (*Queue)(nil)

func NewQueue(transcoder port.Transcoder, progress port.ProgressStore) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		transcoder: transcoder,
		progress:   progress,
		signal:     make(chan struct{}, 1),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.started = true

	go q.work()
	logger.Info(q.ctx, "✅  Transcoding queue started")
}

// Stop aborts the running job and waits for the worker to exit. Jobs still
// queued are reported as failed. Calling it more than once is harmless.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		started := q.started
		q.mu.Unlock()

		close(q.quit)
		q.cancel()
		if started {
			<-q.done
		}

		q.mu.Lock()
		left := q.jobs
		q.jobs = nil
		q.mu.Unlock()
		for _, j := range left {
			queueLength.Dec()
			jobsTotal.WithLabelValues("dropped").Inc()
			q.finish(j, false)
		}
		logger.Infof(context.Background(), "🛑 Transcoding queue stopped, %d job(s) dropped", len(left))
	})
}

// EnqueueTask appends a job and records progress 0 for its output.
func (q *Queue) EnqueueTask(input, output string, callback func(ok bool)) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrStopped
	}
	q.jobs = append(q.jobs, job{input: input, output: output, callback: callback})
	q.mu.Unlock()
	queueLength.Inc()

	if err := q.progress.Set(q.ctx, output, 0); err != nil {
		logger.Warnf(q.ctx, "⚠️  Could not record progress for %q: %v", output, err)
	}

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

func (q *Queue) GetProgress(ctx context.Context, output string) (float64, bool) {
	v, ok, err := q.progress.Get(ctx, output)
	if err != nil {
		logger.Warnf(ctx, "⚠️  Could not read progress for %q: %v", output, err)
		return 0, false
	}
	return v, ok
}

// Len reports the jobs not yet picked up by the worker.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *Queue) work() {
	defer close(q.done)
	for {
		j, ok := q.next()
		if !ok {
			select {
			case <-q.signal:
				continue
			case <-q.quit:
				return
			}
		}

		select {
		case <-q.quit:
			// put it back so Stop reports it
			q.mu.Lock()
			q.jobs = append([]job{j}, q.jobs...)
			q.mu.Unlock()
			return
		default:
		}

		ok = q.run(j)
		queueLength.Dec()
		q.finish(j, ok)
	}
}

func (q *Queue) next() (job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return job{}, false
	}
	j := q.jobs[0]
	q.jobs = q.jobs[1:]
	return j, true
}

func (q *Queue) run(j job) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf(q.ctx, "❌  Transcoding %q panicked: %v", j.input, r)
			jobsTotal.WithLabelValues("failed").Inc()
			ok = false
		}
	}()

	logger.Infof(q.ctx, "🚀 Transcoding %q to %q", j.input, j.output)
	tracker := &tracker{ctx: q.ctx, key: j.output, store: q.progress}
	if err := q.transcoder.Transcode(q.ctx, j.input, j.output, tracker.report); err != nil {
		logger.Errorf(q.ctx, "❌  Transcoding %q failed: %v", j.input, err)
		jobsTotal.WithLabelValues("failed").Inc()
		return false
	}

	tracker.report(1)
	logger.Infof(q.ctx, "✅  Transcoded %q", j.output)
	jobsTotal.WithLabelValues("succeeded").Inc()
	return true
}

func (q *Queue) finish(j job, ok bool) {
	if j.callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf(q.ctx, "❌  Transcoding callback for %q panicked: %v", j.output, r)
		}
	}()
	j.callback(ok)
}

// tracker publishes a job's progress, never letting it go backwards.
type tracker struct {
	ctx   context.Context
	key   string
	store port.ProgressStore
	last  float64
}

func (t *tracker) report(p float64) {
	if p > 1 {
		p = 1
	}
	if p <= t.last || (p < 1 && p-t.last < minStep) {
		return
	}
	t.last = p
	if err := t.store.Set(t.ctx, t.key, p); err != nil {
		logger.Warnf(t.ctx, "⚠️  Could not record progress for %q: %v", t.key, err)
	}
}
