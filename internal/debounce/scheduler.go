// Package debounce coalesces repeated qualifying events per file into a
// single delayed lock-apply trigger.
package debounce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lockwatch/internal/locker"
	"lockwatch/internal/logging"
	"lockwatch/internal/notify"
	"lockwatch/internal/worm"
)

// Policy decides what a repeat event during an active debounce window does
// to the pending due time.
type Policy string

const (
	// PolicyFirstEvent keeps the due time fixed at first_seen + interval;
	// repeats are absorbed. This is the default: it guarantees an apply
	// attempt no later than one interval after the first event.
	PolicyFirstEvent Policy = "first-event"
	// PolicyLastEvent slides the due time to last_seen + interval, so a
	// burst settles before the lock is applied.
	PolicyLastEvent Policy = "last-event"
)

// ParsePolicy validates a configured policy name.
func ParsePolicy(raw string) (Policy, error) {
	switch Policy(raw) {
	case PolicyFirstEvent, "":
		return PolicyFirstEvent, nil
	case PolicyLastEvent:
		return PolicyLastEvent, nil
	default:
		return "", fmt.Errorf("%w: unknown debounce policy %q", worm.ErrConfig, raw)
	}
}

type pendingState int

const (
	statePending pendingState = iota
	stateApplying
)

// PendingLock is the per-file debounce state between the first qualifying
// event and the terminal apply outcome.
type PendingLock struct {
	Key         string
	FileID      uint64
	Path        string
	FirstSeenAt time.Time
	DueAt       time.Time
	Attempts    int
	LastError   string

	event notify.Event
	state pendingState
	timer *time.Timer
}

// Failure is the retained observability record of a failed apply.
type Failure struct {
	Key       string
	Path      string
	Attempts  int
	LastError string
	FailedAt  time.Time
}

// failureRetention bounds the failures map so a pathological subtree does
// not grow it without limit.
const failureRetention = 256

// Submitter hands a fired trigger to the lock worker pool. Implemented by
// locker.Dispatcher.
type Submitter interface {
	Submit(ctx context.Context, event notify.Event, done locker.DoneFunc) bool
}

// Scheduler runs the per-file IDLE -> PENDING -> terminal state machine.
type Scheduler struct {
	interval  time.Duration
	policy    Policy
	submitter Submitter
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	ctx      context.Context
	stopped  bool
	pending  map[string]*PendingLock
	failures map[string]Failure
}

// SchedulerOption customizes the scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerClock overrides the time source (useful for tests).
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler builds a scheduler that fires triggers into submitter after
// interval. interval zero fires synchronously on the first event.
func NewScheduler(interval time.Duration, policy Policy, submitter Submitter, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if policy == "" {
		policy = PolicyFirstEvent
	}
	s := &Scheduler{
		interval:  interval,
		policy:    policy,
		submitter: submitter,
		logger:    logging.NewComponentLogger(logger, "debounce"),
		now:       time.Now,
		pending:   make(map[string]*PendingLock),
		failures:  make(map[string]Failure),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the scheduler to its run context. No timers are scheduled
// after the context is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return errors.New("scheduler already started")
	}
	s.ctx = ctx
	return nil
}

// Observe feeds one admitted event into the state machine.
func (s *Scheduler) Observe(event notify.Event) {
	key := event.Key()

	s.mu.Lock()
	if s.stopped || s.ctx == nil || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}

	if pend, ok := s.pending[key]; ok {
		// Single in-flight trigger per file: repeats never create a
		// second PendingLock.
		if pend.state == statePending && s.policy == PolicyLastEvent {
			pend.DueAt = s.now().Add(s.interval)
			if pend.timer != nil {
				pend.timer.Reset(s.interval)
			}
		}
		s.mu.Unlock()
		return
	}

	now := s.now()
	pend := &PendingLock{
		Key:         key,
		FileID:      event.FileID,
		Path:        event.Path,
		FirstSeenAt: now,
		DueAt:       now.Add(s.interval),
		event:       event,
		state:       statePending,
	}
	s.pending[key] = pend

	if s.interval <= 0 {
		pend.state = stateApplying
		s.mu.Unlock()
		s.fire(pend)
		return
	}

	pend.timer = time.AfterFunc(s.interval, func() { s.onTimer(key) })
	s.mu.Unlock()
}

func (s *Scheduler) onTimer(key string) {
	s.mu.Lock()
	pend, ok := s.pending[key]
	if !ok || s.stopped || pend.state != statePending {
		s.mu.Unlock()
		return
	}
	pend.state = stateApplying
	s.mu.Unlock()

	s.fire(pend)
}

func (s *Scheduler) fire(pend *PendingLock) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	submitted := s.submitter.Submit(ctx, pend.event, func(outcome locker.Outcome, err error) {
		s.complete(pend.Key, outcome, err)
	})
	if !submitted {
		s.logger.Warn("trigger dropped during shutdown",
			logging.Args(logging.String(logging.FieldPath, pend.Path))...)
	}
}

func (s *Scheduler) complete(key string, outcome locker.Outcome, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pend, ok := s.pending[key]
	if !ok {
		return
	}
	delete(s.pending, key)
	pend.Attempts = outcome.Attempts

	if err == nil {
		delete(s.failures, key)
		return
	}
	pend.LastError = err.Error()
	if len(s.failures) >= failureRetention {
		// Drop an arbitrary stale record to stay bounded.
		for stale := range s.failures {
			delete(s.failures, stale)
			break
		}
	}
	s.failures[key] = Failure{
		Key:       key,
		Path:      pend.Path,
		Attempts:  outcome.Attempts,
		LastError: err.Error(),
		FailedAt:  s.now(),
	}
}

// Stop cancels pending timers and logs every PendingLock left unresolved.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	unresolved := make([]*PendingLock, 0, len(s.pending))
	for _, pend := range s.pending {
		if pend.timer != nil {
			pend.timer.Stop()
		}
		unresolved = append(unresolved, pend)
	}
	s.pending = make(map[string]*PendingLock)
	s.mu.Unlock()

	for _, pend := range unresolved {
		s.logger.Warn("pending lock unresolved at shutdown",
			logging.Args(
				logging.String(logging.FieldPath, pend.Path),
				logging.Uint64(logging.FieldFileID, pend.FileID),
				logging.Time("first_seen_at", pend.FirstSeenAt),
				logging.Time("due_at", pend.DueAt),
			)...)
	}
}

// PendingCount reports the number of files currently in the PENDING or
// applying state.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Failures returns a copy of the retained failure records.
func (s *Scheduler) Failures() []Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Failure, 0, len(s.failures))
	for _, failure := range s.failures {
		out = append(out, failure)
	}
	return out
}
