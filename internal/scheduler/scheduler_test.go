package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"
)

var epoch = time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, interval time.Duration, fn func(context.Context)) (*Scheduler, *testingclock.FakeClock) {
	t.Helper()

	fc := testingclock.NewFakeClock(epoch)
	s, err := New(interval, fn,
		WithClock(fc),
		WithName("test"),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return s, fc
}

func TestNew_InvalidArgs(t *testing.T) {
	t.Parallel()

	t.Run("interval must be > 0", func(t *testing.T) {
		t.Parallel()

		s, err := New(0, func(context.Context) {})
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if s != nil {
			t.Fatalf("expected nil scheduler, got %#v", s)
		}
	})

	t.Run("tickFn must not be nil", func(t *testing.T) {
		t.Parallel()

		s, err := New(100*time.Millisecond, nil)
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if s != nil {
			t.Fatalf("expected nil scheduler, got %#v", s)
		}
	})
}

func TestScheduler_StartStop_Basics(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	s, _ := newTestScheduler(t, time.Minute, func(context.Context) {
		calls.Add(1)
	})

	if s.IsRunning() {
		t.Fatalf("expected scheduler not running initially")
	}

	// Start should succeed first time.
	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true on first call")
	}

	if !s.IsRunning() {
		t.Fatalf("expected scheduler running after Start()")
	}

	// Start should fail when already running.
	if ok := s.Start(); ok {
		t.Fatalf("expected Start() false when already running")
	}

	// There is an immediate tick on Start().
	waitForAtLeast(t, &calls, 1, time.Second)

	if ok := s.Stop(); !ok {
		t.Fatalf("expected Stop() true on first call")
	}
	if s.IsRunning() {
		t.Fatalf("expected scheduler not running after Stop()")
	}

	// Stop should fail when already stopped.
	if ok := s.Stop(); ok {
		t.Fatalf("expected Stop() false when already stopped")
	}
}

func TestScheduler_TicksOnInterval(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	s, fc := newTestScheduler(t, time.Hour, func(context.Context) {
		calls.Add(1)
	})

	s.Start()
	defer s.Stop()

	waitForAtLeast(t, &calls, 1, time.Second)

	fc.Step(time.Hour)
	waitForAtLeast(t, &calls, 2, time.Second)

	fc.Step(time.Hour)
	waitForAtLeast(t, &calls, 3, time.Second)
}

func TestScheduler_DoesNotTickAfterStop(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	s, fc := newTestScheduler(t, time.Minute, func(context.Context) {
		calls.Add(1)
	})

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}

	waitForAtLeast(t, &calls, 1, time.Second)
	fc.Step(time.Minute)
	waitForAtLeast(t, &calls, 2, time.Second)

	if ok := s.Stop(); !ok {
		t.Fatalf("expected Stop() true")
	}
	beforeStop := calls.Load()

	fc.Step(10 * time.Minute)
	if afterStop := calls.Load(); afterStop != beforeStop {
		t.Fatalf("expected no ticks after Stop; before=%d after=%d", beforeStop, afterStop)
	}
}

func TestScheduler_PanicInTickIsRecoveredAndContinues(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	var panicked atomic.Bool

	s, fc := newTestScheduler(t, time.Minute, func(context.Context) {
		// First call panics, subsequent calls increment.
		if panicked.CompareAndSwap(false, true) {
			panic("boom")
		}
		calls.Add(1)
	})

	s.Start()
	defer s.Stop()

	waitFor(t, panicked.Load, time.Second)
	fc.Step(time.Minute)

	// If panic is recovered properly, the loop keeps ticking afterwards.
	waitForAtLeast(t, &calls, 1, time.Second)
}

func TestScheduler_StartStopMultipleTimes(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	s, _ := newTestScheduler(t, time.Minute, func(context.Context) {
		calls.Add(1)
	})

	for i := 0; i < 3; i++ {
		if ok := s.Start(); !ok {
			t.Fatalf("iteration %d: expected Start() true", i)
		}

		waitForAtLeast(t, &calls, 1, time.Second)

		if ok := s.Stop(); !ok {
			t.Fatalf("iteration %d: expected Stop() true", i)
		}

		calls.Store(0)
	}
}

func TestScheduler_TickFnReceivesCancelableContext(t *testing.T) {
	t.Parallel()

	var capturedMu sync.Mutex
	var captured context.Context

	s, _ := newTestScheduler(t, time.Minute, func(ctx context.Context) {
		capturedMu.Lock()
		if captured == nil {
			captured = ctx
		}
		capturedMu.Unlock()
	})

	s.Start()

	waitFor(t, func() bool {
		capturedMu.Lock()
		defer capturedMu.Unlock()
		return captured != nil
	}, time.Second)

	if ok := s.Stop(); !ok {
		t.Fatalf("expected Stop() true")
	}

	capturedMu.Lock()
	ctx := captured
	capturedMu.Unlock()

	select {
	case <-ctx.Done():
	default:
		t.Fatalf("expected tick context to be canceled after Stop()")
	}
}

func TestScheduler_Status(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	s, fc := newTestScheduler(t, 2*time.Hour, func(context.Context) {
		calls.Add(1)
	})

	st := s.Status()
	if st.Running || st.Ticks != 0 || st.LastRun != nil {
		t.Fatalf("unexpected initial status: %+v", st)
	}
	if st.Interval != "2h0m0s" {
		t.Fatalf("unexpected interval: %q", st.Interval)
	}

	s.Start()
	defer s.Stop()
	waitForAtLeast(t, &calls, 1, time.Second)

	fc.Step(2 * time.Hour)
	waitForAtLeast(t, &calls, 2, time.Second)

	st = s.Status()
	if !st.Running || st.Ticks != 2 {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.LastRun == nil || !st.LastRun.Equal(epoch.Add(2*time.Hour)) {
		t.Fatalf("expected last run at %v, got %v", epoch.Add(2*time.Hour), st.LastRun)
	}
}

// waitForAtLeast waits until calls >= n or fails the test after timeout.
func waitForAtLeast(t *testing.T, calls *atomic.Int64, n int64, timeout time.Duration) {
	t.Helper()
	waitFor(t, func() bool { return calls.Load() >= n }, timeout)
}

func waitFor(t *testing.T, cond func() bool, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
