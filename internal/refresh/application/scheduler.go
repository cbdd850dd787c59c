package application

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	refresh "tariffwatch/internal/refresh/domain"
)

const defaultMaxJitter = 5 * time.Second

// Runner executes one refresh cycle.
type Runner interface {
	Run(ctx context.Context, now time.Time) *refresh.Snapshot
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// ScheduleInfo describes scheduler timing for diagnostics.
type ScheduleInfo struct {
	Interval      time.Duration `json:"-"`
	IntervalText  string        `json:"interval"`
	NextRun       time.Time     `json:"next_run"`
	LastRun       time.Time     `json:"last_run"`
	LastDuration  float64       `json:"last_duration_seconds"`
	PendingForced bool          `json:"pending_forced"`
}

// Scheduler runs the pipeline on interval boundaries counted from UTC
// midnight, plus a small random delay. A single loop runs every cycle, so
// cycles never overlap.
type Scheduler struct {
	runner    Runner
	interval  time.Duration
	maxJitter time.Duration
	clock     Clock
	logger    *log.Logger
	trigger   chan struct{}

	mu           sync.Mutex
	nextRun      time.Time
	lastRun      time.Time
	lastDuration time.Duration
}

// SchedulerOption customizes the scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerClock assigns a clock.
func WithSchedulerClock(clock Clock) SchedulerOption {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMaxJitter bounds the random delay added to each boundary.
func WithMaxJitter(max time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if max >= 0 {
			s.maxJitter = max
		}
	}
}

// WithSchedulerLogger assigns a logger.
func WithSchedulerLogger(logger *log.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// NewScheduler constructs a Scheduler.
func NewScheduler(runner Runner, interval time.Duration, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		runner:    runner,
		interval:  interval,
		maxJitter: defaultMaxJitter,
		clock:     systemClock{},
		trigger:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs one cycle immediately, then one per boundary until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.runner == nil || s.interval <= 0 {
		return
	}
	s.runOnce(ctx)
	for {
		now := s.clock.Now()
		wait := NextBoundary(now, s.interval).Sub(now) + s.jitter()
		s.mu.Lock()
		s.nextRun = now.Add(wait)
		s.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-s.trigger:
			timer.Stop()
		}
		if ctx.Err() != nil {
			return
		}
		s.runOnce(ctx)
	}
}

// Trigger queues one forced cycle. An in-flight cycle is left to finish;
// it reports false when a forced cycle is already queued.
func (s *Scheduler) Trigger() bool {
	if s == nil {
		return false
	}
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Info returns current timing.
func (s *Scheduler) Info() ScheduleInfo {
	if s == nil {
		return ScheduleInfo{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return ScheduleInfo{
		Interval:      s.interval,
		IntervalText:  s.interval.String(),
		NextRun:       s.nextRun,
		LastRun:       s.lastRun,
		LastDuration:  s.lastDuration.Seconds(),
		PendingForced: len(s.trigger) > 0,
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	started := s.clock.Now()
	snap := s.runner.Run(ctx, started)
	elapsed := s.clock.Now().Sub(started)

	s.mu.Lock()
	s.lastRun = started
	s.lastDuration = elapsed
	s.mu.Unlock()

	if snap != nil && snap.Outcome != refresh.OutcomeOK && s.logger != nil {
		s.logger.Printf("refresh schedule warning: cycle=%s status=%s outcome=%s", snap.CycleID, snap.Status, snap.Outcome)
	}
}

func (s *Scheduler) jitter() time.Duration {
	if s.maxJitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(s.maxJitter + 1)))
}

// NextBoundary returns the first multiple of interval after UTC midnight
// that is strictly later than now.
func NextBoundary(now time.Time, interval time.Duration) time.Time {
	now = now.UTC()
	if interval <= 0 {
		return now
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	steps := now.Sub(midnight)/interval + 1
	return midnight.Add(steps * interval)
}
