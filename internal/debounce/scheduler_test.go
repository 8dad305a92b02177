package debounce_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lockwatch/internal/debounce"
	"lockwatch/internal/locker"
	"lockwatch/internal/logging"
	"lockwatch/internal/notify"
	"lockwatch/internal/worm"
)

// recordingSubmitter captures fire times and completes applies with a
// configurable result.
type recordingSubmitter struct {
	mu      sync.Mutex
	fires   []fireRecord
	applyFn func(event notify.Event) (locker.Outcome, error)
	fired   chan struct{}
}

type fireRecord struct {
	event notify.Event
	at    time.Time
}

func newRecordingSubmitter() *recordingSubmitter {
	return &recordingSubmitter{
		applyFn: func(notify.Event) (locker.Outcome, error) {
			return locker.Outcome{Attempts: 1}, nil
		},
		fired: make(chan struct{}, 32),
	}
}

func (r *recordingSubmitter) Submit(ctx context.Context, event notify.Event, done locker.DoneFunc) bool {
	r.mu.Lock()
	r.fires = append(r.fires, fireRecord{event: event, at: time.Now()})
	r.mu.Unlock()

	outcome, err := r.applyFn(event)
	if done != nil {
		done(outcome, err)
	}
	select {
	case r.fired <- struct{}{}:
	default:
	}
	return true
}

func (r *recordingSubmitter) fireCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fires)
}

func (r *recordingSubmitter) waitForFire(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-r.fired:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for trigger to fire")
	}
}

func event(id uint64, path string) notify.Event {
	return notify.Event{Kind: notify.KindChildFileAdded, FileID: id, Path: path, Timestamp: time.Now()}
}

func startScheduler(t *testing.T, interval time.Duration, policy debounce.Policy, sub debounce.Submitter, opts ...debounce.SchedulerOption) *debounce.Scheduler {
	t.Helper()
	s := debounce.NewScheduler(interval, policy, sub, logging.NewNop(), opts...)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func TestZeroIntervalFiresSynchronously(t *testing.T) {
	sub := newRecordingSubmitter()
	s := startScheduler(t, 0, debounce.PolicyFirstEvent, sub)

	s.Observe(event(1, "/vault/a"))
	if sub.fireCount() != 1 {
		t.Fatalf("fire count = %d, want 1 (synchronous)", sub.fireCount())
	}
	if s.PendingCount() != 0 {
		t.Fatalf("pending count = %d after success, want 0", s.PendingCount())
	}
}

func TestRepeatEventsCoalesceIntoOneTrigger(t *testing.T) {
	sub := newRecordingSubmitter()
	s := startScheduler(t, 80*time.Millisecond, debounce.PolicyFirstEvent, sub)

	start := time.Now()
	s.Observe(event(1, "/vault/a"))
	time.Sleep(25 * time.Millisecond)
	s.Observe(event(1, "/vault/a"))

	if sub.fireCount() != 0 {
		t.Fatal("trigger fired before the debounce interval elapsed")
	}

	sub.waitForFire(t, time.Second)
	if sub.fireCount() != 1 {
		t.Fatalf("fire count = %d, want 1", sub.fireCount())
	}

	sub.mu.Lock()
	elapsed := sub.fires[0].at.Sub(start)
	sub.mu.Unlock()
	if elapsed < 80*time.Millisecond {
		t.Fatalf("fired after %s, want >= interval from the first event", elapsed)
	}
}

func TestLastEventPolicySlidesDueTime(t *testing.T) {
	sub := newRecordingSubmitter()
	s := startScheduler(t, 60*time.Millisecond, debounce.PolicyLastEvent, sub)

	start := time.Now()
	s.Observe(event(1, "/vault/a"))
	time.Sleep(40 * time.Millisecond)
	s.Observe(event(1, "/vault/a"))

	sub.waitForFire(t, time.Second)

	sub.mu.Lock()
	elapsed := sub.fires[0].at.Sub(start)
	sub.mu.Unlock()
	if elapsed < 95*time.Millisecond {
		t.Fatalf("fired after %s, want the window to slide past 100ms", elapsed)
	}
}

func TestDistinctFilesDebounceIndependently(t *testing.T) {
	sub := newRecordingSubmitter()
	s := startScheduler(t, 0, debounce.PolicyFirstEvent, sub)

	s.Observe(event(1, "/vault/a"))
	s.Observe(event(2, "/vault/b"))
	if sub.fireCount() != 2 {
		t.Fatalf("fire count = %d, want 2", sub.fireCount())
	}
}

func TestFailureRetainsLastError(t *testing.T) {
	sub := newRecordingSubmitter()
	sub.applyFn = func(notify.Event) (locker.Outcome, error) {
		return locker.Outcome{Attempts: 3}, worm.Wrap(worm.ErrTransient, "cluster", "lock set", errors.New("timeout"))
	}
	s := startScheduler(t, 0, debounce.PolicyFirstEvent, sub)

	s.Observe(event(1, "/vault/a"))

	failures := s.Failures()
	if len(failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(failures))
	}
	if failures[0].Attempts != 3 {
		t.Fatalf("recorded attempts = %d, want 3", failures[0].Attempts)
	}
	if failures[0].LastError == "" {
		t.Fatal("last error not retained")
	}
	if s.PendingCount() != 0 {
		t.Fatal("failed entry must leave the pending table")
	}

	// A later qualifying event starts a fresh cycle for the same file.
	s.Observe(event(1, "/vault/a"))
	if sub.fireCount() != 2 {
		t.Fatalf("fire count = %d, want 2", sub.fireCount())
	}
}

func TestFailureTimestampComesFromSchedulerClock(t *testing.T) {
	pinned := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sub := newRecordingSubmitter()
	sub.applyFn = func(notify.Event) (locker.Outcome, error) {
		return locker.Outcome{Attempts: 1}, worm.Wrap(worm.ErrTransient, "cluster", "lock set", errors.New("timeout"))
	}
	s := startScheduler(t, 0, debounce.PolicyFirstEvent, sub,
		debounce.WithSchedulerClock(func() time.Time { return pinned }))

	s.Observe(event(4, "/vault/d"))

	failures := s.Failures()
	if len(failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(failures))
	}
	if !failures[0].FailedAt.Equal(pinned) {
		t.Fatalf("FailedAt = %s, want %s", failures[0].FailedAt, pinned)
	}
}

func TestStopLogsAndDropsPendingState(t *testing.T) {
	sub := newRecordingSubmitter()
	s := startScheduler(t, time.Hour, debounce.PolicyFirstEvent, sub)

	s.Observe(event(1, "/vault/a"))
	if s.PendingCount() != 1 {
		t.Fatalf("pending count = %d, want 1", s.PendingCount())
	}

	s.Stop()
	if s.PendingCount() != 0 {
		t.Fatal("pending state must be drained on stop")
	}

	s.Observe(event(2, "/vault/b"))
	if sub.fireCount() != 0 {
		t.Fatal("no trigger may fire after stop")
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := debounce.ParsePolicy(""); err != nil || p != debounce.PolicyFirstEvent {
		t.Fatalf("empty policy: %v %v", p, err)
	}
	if p, err := debounce.ParsePolicy("last-event"); err != nil || p != debounce.PolicyLastEvent {
		t.Fatalf("last-event policy: %v %v", p, err)
	}
	if _, err := debounce.ParsePolicy("sometimes"); !errors.Is(err, worm.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}
