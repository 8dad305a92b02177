package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"lockwatch/internal/config"
	"lockwatch/internal/debounce"
	"lockwatch/internal/journal"
	"lockwatch/internal/locker"
	"lockwatch/internal/logging"
	"lockwatch/internal/qumulo"
	"lockwatch/internal/watcher"
)

// Daemon wires the notification consumer, debounce scheduler, lock worker
// pool, and outcome journal into one supervised pipeline.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	journal    *journal.Store
	dispatcher *locker.Dispatcher
	scheduler  *debounce.Scheduler
	consumer   *watcher.Consumer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status is a point-in-time view of the daemon's runtime state.
type Status struct {
	Running      bool
	PendingLocks int
	Outcomes     locker.CounterSnapshot
	Failures     []debounce.Failure
	JournalPath  string
	LockFilePath string
}

// clusterSource adapts the concrete cluster client to the consumer's
// stream interface.
type clusterSource struct {
	client *qumulo.Client
}

func (s clusterSource) FileInfo(ctx context.Context, ref qumulo.FileRef) (qumulo.FileAttr, error) {
	return s.client.FileInfo(ctx, ref)
}

func (s clusterSource) Notifications(ctx context.Context, ref qumulo.FileRef, recursive bool, kinds []string) (watcher.RecordStream, error) {
	return s.client.Notifications(ctx, ref, recursive, kinds)
}

// New builds a daemon from a validated configuration. It creates the
// daemon's directories and opens the outcome journal; Close releases them.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	spec, err := cfg.LockSpec()
	if err != nil {
		return nil, err
	}
	kinds, err := cfg.KindSet()
	if err != nil {
		return nil, err
	}
	policy, err := cfg.DebouncePolicy()
	if err != nil {
		return nil, err
	}

	store, err := journal.Open(cfg.Paths.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	client := qumulo.NewClient(cfg.ClusterConfig())
	applier := locker.NewApplier(client, spec, logger,
		locker.WithMaxAttempts(cfg.Workers.MaxAttempts),
		locker.WithBackoff(
			time.Duration(cfg.Workers.RetryBaseSeconds)*time.Second,
			time.Duration(cfg.Workers.RetryMaxSeconds)*time.Second,
		))
	dispatcher := locker.NewDispatcher(applier, cfg.Workers.Count, logger, store)
	scheduler := debounce.NewScheduler(cfg.DebounceInterval(), policy, dispatcher, logger)
	consumer := watcher.NewConsumer(
		clusterSource{client: client},
		cfg.WatchRef(),
		cfg.Watch.Recursive,
		kinds,
		scheduler,
		logger,
		watcher.WithReconnectBackoff(
			time.Duration(cfg.Workers.ReconnectBaseSecs)*time.Second,
			time.Duration(cfg.Workers.ReconnectMaxSecs)*time.Second,
		))

	lockPath := filepath.Join(cfg.Paths.LogDir, "lockwatchd.lock")
	return &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		journal:    store,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		consumer:   consumer,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and launches the pipeline: workers
// first, then the scheduler, then the notification consumer.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another lockwatchd instance holds %s", d.lockPath)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.dispatcher.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	if err := d.scheduler.Start(runCtx); err != nil {
		d.dispatcher.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	if err := d.consumer.Start(runCtx); err != nil {
		d.scheduler.Stop()
		d.dispatcher.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("lockwatch daemon started",
		logging.Args(
			logging.String("instance_lock", d.lockPath),
			logging.String("journal", d.journal.Path()),
		)...)
	return nil
}

// Stop shuts the pipeline down in reverse order: the consumer stops feeding
// events, the scheduler logs its unresolved pending locks, and the worker
// pool drains last.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.consumer.Stop()
	d.scheduler.Stop()
	d.dispatcher.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release instance lock", logging.Args(logging.Error(err))...)
	}
	d.running.Store(false)
	d.logger.Info("lockwatch daemon stopped")
}

// Close stops the daemon and releases the journal.
func (d *Daemon) Close() error {
	d.Stop()
	if d.journal != nil {
		return d.journal.Close()
	}
	return nil
}

// Journal exposes the outcome journal for status commands.
func (d *Daemon) Journal() *journal.Store { return d.journal }

// Status reports the daemon's current runtime state.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		PendingLocks: d.scheduler.PendingCount(),
		Outcomes:     d.dispatcher.Counters().Snapshot(),
		Failures:     d.scheduler.Failures(),
		JournalPath:  d.journal.Path(),
		LockFilePath: d.lockPath,
	}
}
