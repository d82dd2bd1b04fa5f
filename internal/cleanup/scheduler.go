package cleanup

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fotobox/eventhub/internal/clock"
	"fotobox/eventhub/internal/repository"
)

const (
	DefaultInterval = 6 * time.Hour
	sweepLockKey    = "cleanup:sweep"
)

type SweepResult struct {
	Found    int           `json:"found"`
	Purged   int           `json:"purged"`
	Failed   int           `json:"failed"`
	Skipped  bool          `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

type Options struct {
	Interval   time.Duration
	RunOnStart bool
	// LockTTL bounds how long a crashed process can block other sweepers.
	LockTTL time.Duration
}

// Scheduler sweeps expired events on a fixed interval. Sweeps never
// overlap: within a process an atomic flag guards RunOnce, across processes
// the lock store does.
type Scheduler struct {
	events repository.EventRepository
	purger *Purger
	locks  repository.LockStore
	clock  clock.Clock
	opts   Options
	logger *zap.Logger

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewScheduler(events repository.EventRepository, purger *Purger, locks repository.LockStore, clk clock.Clock, opts Options, logger *zap.Logger) *Scheduler {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Minute
	}
	return &Scheduler{
		events: events,
		purger: purger,
		locks:  locks,
		clock:  clk,
		opts:   opts,
		logger: logger.Named("cleanup"),
	}
}

// Start launches the background loop. Calling Start on a running scheduler
// does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()

		if s.opts.RunOnStart {
			s.RunOnce(ctx)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}(s.done)

	s.logger.Info("cleanup scheduler started",
		zap.Duration("interval", s.opts.Interval),
		zap.Bool("run_on_start", s.opts.RunOnStart),
	)
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("cleanup scheduler stopped")
}

// RunOnce performs one sweep. A sweep requested while another is running is
// skipped, not queued.
func (s *Scheduler) RunOnce(ctx context.Context) SweepResult {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("sweep already running, skipped")
		return SweepResult{Skipped: true}
	}
	defer s.running.Store(false)

	if s.locks != nil {
		unlock, ok, err := s.locks.TryLock(ctx, sweepLockKey, s.opts.LockTTL)
		if err != nil {
			s.logger.Warn("sweep lock unavailable, skipped", zap.Error(err))
			return SweepResult{Skipped: true}
		}
		if !ok {
			s.logger.Info("sweep held by another process, skipped")
			return SweepResult{Skipped: true}
		}
		defer unlock()
	}

	// The sweep is short and idempotent; finish it even if shutdown starts.
	ctx = context.WithoutCancel(ctx)
	start := s.clock.Now()
	var res SweepResult

	expired, err := s.events.ListExpired(ctx, start)
	if err != nil {
		s.logger.Error("list expired events failed", zap.Error(err))
		return res
	}
	res.Found = len(expired)

	for i := range expired {
		rep := s.purger.Purge(ctx, &expired[i])
		if rep.Purged() {
			res.Purged++
		} else {
			res.Failed++
		}
	}

	res.Duration = s.clock.Now().Sub(start)
	if res.Found > 0 {
		s.logger.Info("sweep finished",
			zap.Int("found", res.Found),
			zap.Int("purged", res.Purged),
			zap.Int("failed", res.Failed),
			zap.Duration("duration", res.Duration),
		)
	} else {
		s.logger.Debug("sweep finished, nothing expired")
	}
	return res
}
