// Package cleanup evicts cached assets that were not referenced today.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fhuszti/assets-ms-go/internal/logger"
	"github.com/fhuszti/assets-ms-go/internal/port"
	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"
)

var ErrStopped = errors.New("cleanup scheduler stopped")

const DefaultSchedule = "55 23 * * *"

type Options struct {
	Schedule string
	Now      port.Clock
	Location *time.Location
}

type Scheduler struct {
	repo    port.AssetRepository
	remover port.AssetRemover
	now     port.Clock
	cron    *cron.Cron

	// passMu serialises passes, whoever triggers them
	passMu sync.Mutex

	mu      sync.Mutex
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	initial chan struct{}
}

// compile-time check: *Scheduler must satisfy port.AssetCleaner
var _ port.AssetCleaner = (*Scheduler)(nil)

func NewScheduler(repo port.AssetRepository, remover port.AssetRemover, opts Options) (*Scheduler, error) {
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	s := &Scheduler{
		repo:    repo,
		remover: remover,
		now:     opts.Now,
		initial: make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.cron = cron.New(
		cron.WithLocation(opts.Location),
		cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
	)
	if _, err := s.cron.AddFunc(opts.Schedule, s.pass); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", opts.Schedule, err)
	}
	return s, nil
}

// Start runs a first pass in the background, then follows the schedule.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}
	s.started = true

	go func() {
		defer close(s.initial)
		s.pass()
	}()
	s.cron.Start()
	logger.Info(s.ctx, "✅  Cleanup scheduler started")
	return nil
}

// Stop cancels a running pass and waits for it to return. A stopped
// scheduler cannot be started again.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	s.cancel()
	if started {
		<-s.initial
		<-s.cron.Stop().Done()
	}
	logger.Info(context.Background(), "🛑 Cleanup scheduler stopped")
}

func (s *Scheduler) pass() {
	if _, err := s.RunOnce(s.ctx); err != nil {
		logger.Errorf(s.ctx, "❌  Cleanup pass failed: %v", err)
	}
}

// RunOnce removes every cached asset last referenced before today. Passes
// never overlap: a call made during a pass waits for it to end.
func (s *Scheduler) RunOnce(ctx context.Context) (port.CleanupReport, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	report := port.CleanupReport{Cutoff: startOfDay(s.now())}

	stale, err := s.repo.ListStaleCached(ctx, report.Cutoff)
	if err != nil {
		passesTotal.WithLabelValues("failed").Inc()
		return report, fmt.Errorf("list stale assets: %w", err)
	}

	var total int64
	for _, a := range stale {
		if a.FileSize != nil {
			total += *a.FileSize
		}
	}
	logger.Infof(ctx, "Cleanup: %d cached asset(s) unreferenced since %s, %s",
		len(stale), report.Cutoff.Format(time.DateOnly), humanize.IBytes(uint64(total)))

	var result *multierror.Error
	for _, a := range stale {
		if err := ctx.Err(); err != nil {
			result = multierror.Append(result, err)
			break
		}
		if err := s.remover.RemoveAsset(ctx, a); err != nil {
			report.Failed++
			result = multierror.Append(result, fmt.Errorf("asset %d: %w", a.ID, err))
			continue
		}
		report.Removed++
		if a.FileSize != nil {
			report.Bytes += *a.FileSize
		}
	}

	removedTotal.Add(float64(report.Removed))
	reclaimedBytes.Add(float64(report.Bytes))

	if err := result.ErrorOrNil(); err != nil {
		passesTotal.WithLabelValues("partial").Inc()
		logger.Warnf(ctx, "⚠️  Cleanup removed %d asset(s), %d failed", report.Removed, report.Failed)
		return report, err
	}
	passesTotal.WithLabelValues("succeeded").Inc()
	logger.Infof(ctx, "✅  Cleanup removed %d asset(s), reclaimed %s", report.Removed, humanize.IBytes(uint64(report.Bytes)))
	return report, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// cronLogger routes cron's own messages through the service logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logger.Debug(context.Background(), "cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.Error(context.Background(), "cron: "+msg, append(keysAndValues, "error", err)...)
}
