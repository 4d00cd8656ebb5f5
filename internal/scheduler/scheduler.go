// Package scheduler runs a maintenance function at a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"
)

type Scheduler struct {
	name     string
	interval time.Duration
	tickFn   func(context.Context)
	clock    clock.WithTicker
	log      *slog.Logger

	running atomic.Bool
	ticks   atomic.Int64
	lastRun atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Scheduler)

func WithClock(c clock.WithTicker) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithName labels the scheduler's log lines.
func WithName(name string) Option {
	return func(s *Scheduler) { s.name = name }
}

func New(interval time.Duration, tickFn func(context.Context), opts ...Option) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	s := &Scheduler{
		name:     "scheduler",
		interval: interval,
		tickFn:   tickFn,
		clock:    clock.RealClock{},
		log:      slog.Default(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("scheduler", s.name)
	return s, nil
}

// Start launches the loop with an immediate first tick. It returns false if
// the scheduler was already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	ticker := s.clock.NewTicker(s.interval)
	go func() {
		defer close(s.done)
		defer ticker.Stop()

		s.log.Info("scheduler started", "interval", s.interval.String())

		s.safeTick(ctx)

		for {
			select {
			case <-ctx.Done():
				s.log.Info("scheduler stopping")
				return
			case <-ticker.C():
				s.safeTick(ctx)
			}
		}
	}()

	return true
}

// Stop cancels the loop and waits for a tick in progress to return.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	s.log.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

type Status struct {
	Running  bool       `json:"running"`
	Interval string     `json:"interval"`
	Ticks    int64      `json:"ticks"`
	LastRun  *time.Time `json:"lastRun,omitempty"`
}

func (s *Scheduler) Status() Status {
	st := Status{
		Running:  s.running.Load(),
		Interval: s.interval.String(),
		Ticks:    s.ticks.Load(),
	}
	if ns := s.lastRun.Load(); ns != 0 {
		t := time.Unix(0, ns).UTC()
		st.LastRun = &t
	}
	return st
}

func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler tick panic recovered", "panic", r)
		}
	}()

	start := s.clock.Now()
	s.lastRun.Store(start.UnixNano())
	s.ticks.Add(1)
	s.tickFn(ctx)
	s.log.Info("scheduler tick completed", "duration_ms", s.clock.Since(start).Milliseconds())
}
