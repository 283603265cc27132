package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/stefanh12/holfuy/internal/weather"
)

// Scheduler drives poll cycles with gocron. Each provider runs as a
// singleton job; when a cycle changes the provider's interval the job is
// re-registered with the new period, so backoff takes effect from the next
// run on.
type Scheduler struct {
	scheduler *gocron.Scheduler
	providers []weather.SnapshotProvider
	logger    *slog.Logger

	// mu serializes gocron's builder chain, which is not goroutine-safe.
	mu        sync.Mutex
	intervals map[string]time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Scheduler.
func New(logger *slog.Logger, providers ...weather.SnapshotProvider) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		providers: providers,
		logger:    logger,
		intervals: make(map[string]time.Duration),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules every provider and starts the underlying scheduler.
// The first cycle of each provider runs immediately.
func (s *Scheduler) Start() error {
	if len(s.providers) == 0 {
		s.logger.Info("scheduler: no station groups configured; nothing to schedule")
		return nil
	}

	for i, p := range s.providers {
		if err := s.schedule(jobTag(i), p, p.Interval(), true); err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any running cycle.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// Interval returns the period currently registered for the i-th provider.
func (s *Scheduler) Interval(i int) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intervals[jobTag(i)]
}

func (s *Scheduler) schedule(tag string, p weather.SnapshotProvider, every time.Duration, immediately bool) error {
	if every <= 0 {
		every = weather.DefaultInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.scheduler.RemoveByTag(tag)

	chain := s.scheduler.Every(every).Tag(tag).SingletonMode()
	if !immediately {
		chain = chain.WaitForSchedule()
	}
	if _, err := chain.Do(s.run, tag, p); err != nil {
		return fmt.Errorf("schedule %s every %s: %w", tag, every, err)
	}
	s.intervals[tag] = every
	return nil
}

func (s *Scheduler) run(tag string, p weather.SnapshotProvider) {
	if s.ctx.Err() != nil {
		return
	}

	start := time.Now()
	stations, err := p.Poll(s.ctx)
	if err != nil {
		s.logger.Error("scheduler: poll cycle failed",
			"job", tag,
			"kind", weather.KindOf(err),
			"err", err,
		)
	} else {
		s.logger.Info("scheduler: poll cycle completed",
			"job", tag,
			"stations", len(stations),
			"duration", time.Since(start),
		)
	}

	next := p.Interval()

	s.mu.Lock()
	current := s.intervals[tag]
	s.mu.Unlock()

	if next == current || s.ctx.Err() != nil {
		return
	}

	s.logger.Info("scheduler: rescheduling", "job", tag, "from", current, "to", next)
	if err := s.schedule(tag, p, next, false); err != nil {
		s.logger.Error("scheduler: reschedule failed", "job", tag, "err", err)
	}
}

func jobTag(i int) string {
	return fmt.Sprintf("holfuy-poll-%d", i)
}
