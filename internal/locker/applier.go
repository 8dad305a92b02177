package locker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"lockwatch/internal/lockstatus"
	"lockwatch/internal/logging"
	"lockwatch/internal/qumulo"
	"lockwatch/internal/worm"
)

const (
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
)

// ClusterAPI is the slice of the cluster client the applier needs.
type ClusterAPI interface {
	FileInfo(ctx context.Context, ref qumulo.FileRef) (qumulo.FileAttr, error)
	GetLock(ctx context.Context, ref qumulo.FileRef) (qumulo.LockResult, error)
	SetLock(ctx context.Context, ref qumulo.FileRef, legalHold bool, retention *time.Time) error
}

// Outcome reports a terminal apply result.
type Outcome struct {
	Category      lockstatus.Category
	Mutated       bool
	Attempts      int
	FileID        uint64
	Path          string
	Deadline      *time.Time
	CorrelationID string
}

// Applier issues lock-set requests with idempotent re-application and
// bounded retry of transient failures.
type Applier struct {
	api    ClusterAPI
	spec   LockSpec
	logger *slog.Logger

	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleeper     func(time.Duration)
	now         func() time.Time
}

// ApplierOption customizes the applier.
type ApplierOption func(*Applier)

// WithMaxAttempts overrides the transient-failure attempt ceiling.
func WithMaxAttempts(attempts int) ApplierOption {
	return func(a *Applier) {
		if attempts > 0 {
			a.maxAttempts = attempts
		}
	}
}

// WithBackoff overrides the retry backoff delays.
func WithBackoff(base, maxDelay time.Duration) ApplierOption {
	return func(a *Applier) {
		if base > 0 {
			a.baseDelay = base
		}
		if maxDelay > 0 {
			a.maxDelay = maxDelay
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) ApplierOption {
	return func(a *Applier) { a.sleeper = sleeper }
}

// WithClock overrides the time source used for retention deadlines.
func WithClock(now func() time.Time) ApplierOption {
	return func(a *Applier) {
		if now != nil {
			a.now = now
		}
	}
}

// NewApplier constructs an applier enforcing spec through api.
func NewApplier(api ClusterAPI, spec LockSpec, logger *slog.Logger, opts ...ApplierOption) *Applier {
	a := &Applier{
		api:         api,
		spec:        spec,
		logger:      logging.NewComponentLogger(logger, "lock-applier"),
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultRetryBaseDelay,
		maxDelay:    defaultRetryMaxDelay,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Spec returns the lock spec the applier enforces.
func (a *Applier) Spec() LockSpec { return a.spec }

// Apply enforces the lock spec on the referenced file. Transient failures
// are retried with exponential backoff up to the attempt ceiling; permanent
// failures surface immediately. The returned outcome is valid whenever the
// error is nil and carries the confirmed classification.
func (a *Applier) Apply(ctx context.Context, ref qumulo.FileRef) (Outcome, error) {
	correlationID := uuid.NewString()
	var lastOutcome Outcome
	var lastErr error

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		outcome, err := a.attempt(ctx, ref, correlationID)
		outcome.Attempts = attempt
		outcome.CorrelationID = correlationID
		if err == nil {
			return outcome, nil
		}
		lastOutcome, lastErr = outcome, err

		if !worm.Retryable(err) || attempt == a.maxAttempts {
			break
		}

		delay := a.backoffDelay(attempt)
		a.logger.Warn("lock apply attempt failed; retrying",
			logging.Args(
				logging.String("file", ref.String()),
				logging.Int(logging.FieldAttempt, attempt),
				logging.Duration("retry_in", delay),
				logging.String(logging.FieldCorrelationID, correlationID),
				logging.Error(err),
			)...)
		if err := a.sleep(ctx, delay); err != nil {
			lastOutcome.Attempts = attempt
			return lastOutcome, err
		}
	}

	if worm.Retryable(lastErr) {
		lastErr = fmt.Errorf("%w: gave up after %d attempts: %w", worm.ErrTransient, lastOutcome.Attempts, lastErr)
	}
	return lastOutcome, lastErr
}

func (a *Applier) attempt(ctx context.Context, ref qumulo.FileRef, correlationID string) (Outcome, error) {
	attr, err := a.api.FileInfo(ctx, ref)
	if err != nil {
		return Outcome{}, err
	}
	if !attr.IsRegularFile() {
		return Outcome{}, fmt.Errorf("%w: %s is not a regular file (%s)", worm.ErrPermanent, attr.Path, attr.Type)
	}

	canonical := qumulo.RefByID(attr.ID)
	outcome := Outcome{FileID: attr.ID, Path: attr.Path}

	current, err := a.api.GetLock(ctx, canonical)
	if err != nil {
		outcome.Category = lockstatus.InvalidResponse
		if errors.Is(err, worm.ErrClassification) {
			return outcome, err
		}
		return Outcome{FileID: attr.ID, Path: attr.Path}, err
	}

	requestedDeadline := a.requestedDeadline()
	if a.satisfies(current, requestedDeadline) {
		outcome.Category = lockstatus.Classify(current)
		a.logger.Debug("lock already satisfies spec; leaving untouched",
			logging.Args(
				logging.Uint64(logging.FieldFileID, attr.ID),
				logging.String(logging.FieldPath, attr.Path),
				logging.String(logging.FieldCategory, outcome.Category.String()),
				logging.String(logging.FieldCorrelationID, correlationID),
			)...)
		return outcome, nil
	}

	legalHold := a.spec.LegalHold || current.LegalHold
	var retentionArg *time.Time
	if requestedDeadline != nil {
		retentionArg = requestedDeadline
		if existing, ok := lockstatus.RetentionDeadline(current); ok && existing.After(*requestedDeadline) {
			// Never shorten an existing retention deadline.
			retentionArg = nil
		}
	}

	if err := a.api.SetLock(ctx, canonical, legalHold, retentionArg); err != nil {
		return outcome, err
	}
	outcome.Mutated = true
	outcome.Deadline = retentionArg

	confirmed, err := a.api.GetLock(ctx, canonical)
	category := lockstatus.FromQuery(confirmed, err)
	outcome.Category = category
	if err != nil {
		return outcome, err
	}
	if !a.satisfies(confirmed, requestedDeadline) {
		return outcome, fmt.Errorf("%w: lock set accepted but state %s does not reflect spec %s",
			worm.ErrTransient, category, a.spec)
	}
	return outcome, nil
}

// requestedDeadline computes the retention deadline for this apply. It is
// recomputed per attempt so each file's deadline reflects its own trigger
// time.
func (a *Applier) requestedDeadline() *time.Time {
	if !a.spec.WantsRetention() {
		return nil
	}
	deadline := a.spec.Retention.Deadline(a.now())
	return &deadline
}

func (a *Applier) satisfies(current qumulo.LockResult, requested *time.Time) bool {
	if a.spec.LegalHold && !current.LegalHold {
		return false
	}
	if requested != nil {
		existing, ok := lockstatus.RetentionDeadline(current)
		if !ok || existing.Before(*requested) {
			return false
		}
	}
	return true
}

// backoffDelay grows exponentially from the base: attempt 1 waits base,
// attempt 2 waits base*2, capped at the configured maximum.
func (a *Applier) backoffDelay(attempt int) time.Duration {
	delay := a.baseDelay
	for i := 1; i < attempt; i++ {
		if delay > a.maxDelay/2 {
			return a.maxDelay
		}
		delay *= 2
	}
	if delay > a.maxDelay {
		return a.maxDelay
	}
	return delay
}

func (a *Applier) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if a.sleeper != nil {
		a.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
