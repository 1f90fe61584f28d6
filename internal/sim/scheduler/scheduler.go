package scheduler

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Ticker is stepped once per tick from a single goroutine.
type Ticker interface {
	Tick(ctx context.Context, tick uint64) error
}

type TickFunc func(ctx context.Context, tick uint64) error

func (f TickFunc) Tick(ctx context.Context, tick uint64) error { return f(ctx, tick) }

type Config struct {
	RateHz      int
	JoinTimeout time.Duration
	// StartTick is the last completed tick; the first Tick call gets
	// StartTick+1. Set it when resuming a saved world.
	StartTick uint64
}

func (c *Config) applyDefaults() {
	if c.RateHz <= 0 {
		c.RateHz = 60
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 2 * time.Second
	}
}

type Stats struct {
	Ticks    uint64
	Overruns uint64
	Faults   uint64
	Errors   uint64
	LastStep time.Duration
}

// Scheduler drives a Ticker at a fixed rate. An overrunning tick is logged
// and the next one starts right away; missed ticks are not replayed.
type Scheduler struct {
	cfg      Config
	target   Ticker
	logger   *log.Logger
	interval time.Duration

	running atomic.Bool
	paused  atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped sync.Once

	tick     atomic.Uint64
	overruns atomic.Uint64
	faults   atomic.Uint64
	errs     atomic.Uint64
	lastStep atomic.Int64
}

func New(cfg Config, target Ticker, logger *log.Logger) *Scheduler {
	cfg.applyDefaults()
	if logger == nil {
		logger = log.Default()
	}
	s := &Scheduler{
		cfg:      cfg,
		target:   target,
		logger:   logger,
		interval: time.Second / time.Duration(cfg.RateHz),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	s.tick.Store(cfg.StartTick)
	return s
}

func (s *Scheduler) Interval() time.Duration { return s.interval }

// Start runs the loop on its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	go func() { _ = s.Run(ctx) }()
}

// Run blocks until ctx is done or Stop is called.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.running.Swap(true) {
		return fmt.Errorf("scheduler: already running")
	}
	defer close(s.doneCh)

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		default:
		}

		if s.paused.Load() {
			if !s.sleep(ctx, timer, s.interval) {
				return nil
			}
			continue
		}

		start := time.Now()
		n := s.tick.Add(1)
		s.step(ctx, n)
		elapsed := time.Since(start)
		s.lastStep.Store(int64(elapsed))

		if elapsed >= s.interval {
			s.overruns.Add(1)
			s.logger.Printf("tick %d overran: %s > %s", n, elapsed, s.interval)
			continue
		}
		if !s.sleep(ctx, timer, s.interval-elapsed) {
			return nil
		}
	}
}

func (s *Scheduler) step(ctx context.Context, n uint64) {
	defer func() {
		if r := recover(); r != nil {
			s.faults.Add(1)
			s.logger.Printf("tick %d panic: %v\n%s", n, r, debug.Stack())
		}
	}()
	if err := s.target.Tick(ctx, n); err != nil {
		s.errs.Add(1)
		s.logger.Printf("tick %d: %v", n, err)
	}
}

// sleep returns false when the loop should exit.
func (s *Scheduler) sleep(ctx context.Context, timer *time.Timer, d time.Duration) bool {
	timer.Reset(d)
	select {
	case <-timer.C:
		return true
	case <-s.stopCh:
		if !timer.Stop() {
			<-timer.C
		}
		return false
	case <-ctx.Done():
		if !timer.Stop() {
			<-timer.C
		}
		return false
	}
}

func (s *Scheduler) SetPaused(p bool) { s.paused.Store(p) }

func (s *Scheduler) Paused() bool { return s.paused.Load() }

// Stop signals the loop and waits up to JoinTimeout for it to exit.
// It returns false if the loop is still running after the timeout.
func (s *Scheduler) Stop() bool {
	s.stopped.Do(func() { close(s.stopCh) })
	if !s.running.Load() {
		return true
	}
	select {
	case <-s.doneCh:
		return true
	case <-time.After(s.cfg.JoinTimeout):
		s.logger.Printf("scheduler: loop did not exit within %s", s.cfg.JoinTimeout)
		return false
	}
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Ticks:    s.tick.Load(),
		Overruns: s.overruns.Load(),
		Faults:   s.faults.Load(),
		Errors:   s.errs.Load(),
		LastStep: time.Duration(s.lastStep.Load()),
	}
}
