package locker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"lockwatch/internal/lockstatus"
	"lockwatch/internal/logging"
	"lockwatch/internal/notify"
	"lockwatch/internal/worm"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 64
)

// Recorder persists terminal lock outcomes. Implemented by the journal
// store; nil disables recording.
type Recorder interface {
	RecordOutcome(ctx context.Context, outcome Outcome, applyErr error) error
}

// DoneFunc receives the terminal result of a dispatched apply.
type DoneFunc func(outcome Outcome, err error)

type job struct {
	event notify.Event
	done  DoneFunc
}

// Dispatcher executes lock applies on a bounded worker pool while a keyed
// mutex guarantees at most one in-flight apply per file.
type Dispatcher struct {
	applier  *Applier
	recorder Recorder
	logger   *slog.Logger
	counters *Counters

	workers int
	jobs    chan job

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	keys    *keyedMutex
}

// NewDispatcher builds a dispatcher around the applier. workers <= 0
// selects the default pool size.
func NewDispatcher(applier *Applier, workers int, logger *slog.Logger, recorder Recorder) *Dispatcher {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Dispatcher{
		applier:  applier,
		recorder: recorder,
		logger:   logging.NewComponentLogger(logger, "lock-dispatcher"),
		counters: NewCounters(),
		workers:  workers,
		jobs:     make(chan job, defaultQueueSize),
		keys:     newKeyedMutex(),
	}
}

// Counters exposes the shared outcome counters.
func (d *Dispatcher) Counters() *Counters { return d.counters }

// Start launches the worker pool.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("dispatcher already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true

	d.wg.Add(d.workers)
	for i := 0; i < d.workers; i++ {
		go d.runWorker(runCtx)
	}
	return nil
}

// Stop cancels in-flight work and waits for the workers to drain.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	cancel()
	d.wg.Wait()
}

// Submit queues an apply for the event's file. It blocks while the queue
// is full and reports false once the dispatcher is shutting down.
func (d *Dispatcher) Submit(ctx context.Context, event notify.Event, done DoneFunc) bool {
	select {
	case d.jobs <- job{event: event, done: done}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *Dispatcher) runWorker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.jobs:
			d.execute(ctx, j)
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, j job) {
	key := j.event.Key()
	d.keys.Lock(key)
	defer d.keys.Unlock(key)

	outcome, err := d.applier.Apply(ctx, j.event.Ref())
	d.counters.Record(outcome, err)

	switch {
	case err == nil:
		d.logger.Info("lock applied",
			logging.Args(
				logging.Uint64(logging.FieldFileID, outcome.FileID),
				logging.String(logging.FieldPath, outcome.Path),
				logging.String(logging.FieldCategory, outcome.Category.String()),
				logging.Bool("mutated", outcome.Mutated),
				logging.Int(logging.FieldAttempt, outcome.Attempts),
				logging.String(logging.FieldCorrelationID, outcome.CorrelationID),
			)...)
	case errors.Is(err, context.Canceled):
		// Shutdown mid-apply; the scheduler logs the unresolved state.
	default:
		d.logger.Error("lock apply failed",
			logging.Args(
				logging.String("file", j.event.Ref().String()),
				logging.Int(logging.FieldAttempt, outcome.Attempts),
				logging.String(logging.FieldCorrelationID, outcome.CorrelationID),
				logging.Error(err),
			)...)
	}

	if d.recorder != nil && !errors.Is(err, context.Canceled) {
		if recordErr := d.recorder.RecordOutcome(ctx, outcome, err); recordErr != nil {
			d.logger.Warn("journal write failed", logging.Args(logging.Error(recordErr))...)
		}
	}

	if j.done != nil {
		j.done(outcome, err)
	}
}

// Counters tracks terminal apply outcomes. Failure buckets mirror the
// error taxonomy: transient, permanent, and classification failures are
// tallied apart. Safe for concurrent use.
type Counters struct {
	mu             sync.Mutex
	categories     map[lockstatus.Category]int
	transient      int
	permanent      int
	classification int
}

func NewCounters() *Counters {
	return &Counters{categories: make(map[lockstatus.Category]int)}
}

// Record tallies one terminal apply result.
func (c *Counters) Record(outcome Outcome, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case err == nil:
		c.categories[outcome.Category]++
	case errors.Is(err, worm.ErrClassification):
		c.classification++
	case errors.Is(err, worm.ErrPermanent):
		c.permanent++
	case errors.Is(err, context.Canceled):
	default:
		c.transient++
	}
}

// CounterSnapshot is a point-in-time copy of the outcome counters.
type CounterSnapshot struct {
	Categories     map[lockstatus.Category]int
	Transient      int
	Permanent      int
	Classification int
}

// Snapshot copies the current counter state.
func (c *Counters) Snapshot() CounterSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	categories := make(map[lockstatus.Category]int, len(c.categories))
	for category, count := range c.categories {
		categories[category] = count
	}
	return CounterSnapshot{
		Categories:     categories,
		Transient:      c.transient,
		Permanent:      c.permanent,
		Classification: c.classification,
	}
}
