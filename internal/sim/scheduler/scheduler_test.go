package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger(buf *bytes.Buffer) *log.Logger {
	return log.New(buf, "", 0)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestScheduler_TicksInOrder(t *testing.T) {
	var last atomic.Uint64
	var outOfOrder atomic.Bool
	var buf bytes.Buffer
	s := New(Config{RateHz: 200}, TickFunc(func(ctx context.Context, tick uint64) error {
		if tick != last.Load()+1 {
			outOfOrder.Store(true)
		}
		last.Store(tick)
		return nil
	}), quietLogger(&buf))

	s.Start(context.Background())
	waitFor(t, func() bool { return s.Stats().Ticks >= 10 })
	if !s.Stop() {
		t.Fatalf("Stop timed out")
	}
	if outOfOrder.Load() {
		t.Fatalf("ticks delivered out of order")
	}
	if !s.Stop() {
		t.Fatalf("second Stop should be a no-op")
	}
}

func TestScheduler_PanicRecovered(t *testing.T) {
	var buf bytes.Buffer
	var calls atomic.Int32
	s := New(Config{RateHz: 200}, TickFunc(func(ctx context.Context, tick uint64) error {
		if calls.Add(1) == 2 {
			panic("boom")
		}
		if tick == 4 {
			return errors.New("soft failure")
		}
		return nil
	}), quietLogger(&buf))

	s.Start(context.Background())
	waitFor(t, func() bool { return s.Stats().Ticks >= 6 })
	s.Stop()

	st := s.Stats()
	if st.Faults != 1 {
		t.Fatalf("faults=%d want 1", st.Faults)
	}
	if st.Errors != 1 {
		t.Fatalf("errors=%d want 1", st.Errors)
	}
	if !strings.Contains(buf.String(), "panic: boom") {
		t.Fatalf("panic not logged: %q", buf.String())
	}
}

func TestScheduler_OverrunDoesNotCatchUp(t *testing.T) {
	var buf bytes.Buffer
	s := New(Config{RateHz: 100}, TickFunc(func(ctx context.Context, tick uint64) error {
		if tick == 1 {
			time.Sleep(60 * time.Millisecond)
		}
		return nil
	}), quietLogger(&buf))

	start := time.Now()
	s.Start(context.Background())
	waitFor(t, func() bool { return s.Stats().Ticks >= 3 })
	s.Stop()
	if s.Stats().Overruns < 1 {
		t.Fatalf("overrun not counted")
	}
	// Six missed 10ms slots must not be replayed in a burst.
	if elapsed := time.Since(start); s.Stats().Ticks > uint64(elapsed/(10*time.Millisecond))+2 {
		t.Fatalf("ticks=%d after %s suggests catch-up", s.Stats().Ticks, elapsed)
	}
}

func TestScheduler_Paused(t *testing.T) {
	var buf bytes.Buffer
	s := New(Config{RateHz: 200}, TickFunc(func(ctx context.Context, tick uint64) error { return nil }), quietLogger(&buf))
	s.SetPaused(true)
	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	if n := s.Stats().Ticks; n != 0 {
		t.Fatalf("ticked while paused: %d", n)
	}
	s.SetPaused(false)
	waitFor(t, func() bool { return s.Stats().Ticks >= 1 })
	s.Stop()
}

func TestScheduler_ContextCancel(t *testing.T) {
	var buf bytes.Buffer
	s := New(Config{RateHz: 100}, TickFunc(func(ctx context.Context, tick uint64) error { return nil }), quietLogger(&buf))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) && err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestScheduler_StopTimesOut(t *testing.T) {
	var buf bytes.Buffer
	block := make(chan struct{})
	s := New(Config{RateHz: 100, JoinTimeout: 30 * time.Millisecond}, TickFunc(func(ctx context.Context, tick uint64) error {
		<-block
		return nil
	}), quietLogger(&buf))
	s.Start(context.Background())
	waitFor(t, func() bool { return s.Stats().Ticks >= 1 })
	if s.Stop() {
		t.Fatalf("Stop should report timeout while a tick is blocked")
	}
	close(block)
}
