// Package watcher drives the live change-notification stream: it resolves
// the watch target, subscribes, and feeds records through the event filter
// into the debounce scheduler, reconnecting with backoff when the stream
// drops. Events occurring during a reconnection gap may be missed; that is
// a documented limitation of the cluster's notification feed, not a
// correctness failure.
package watcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"lockwatch/internal/logging"
	"lockwatch/internal/notify"
	"lockwatch/internal/qumulo"
	"lockwatch/internal/worm"
)

const (
	defaultReconnectBase = 1 * time.Second
	defaultReconnectMax  = 30 * time.Second
)

// RecordStream is a live subscription yielding notification record batches.
type RecordStream interface {
	Next() ([]qumulo.RawNotification, error)
	Close() error
}

// StreamSource is the slice of the cluster client the consumer needs.
type StreamSource interface {
	FileInfo(ctx context.Context, ref qumulo.FileRef) (qumulo.FileAttr, error)
	Notifications(ctx context.Context, ref qumulo.FileRef, recursive bool, kinds []string) (RecordStream, error)
}

// Observer receives admitted events. Implemented by debounce.Scheduler.
type Observer interface {
	Observe(event notify.Event)
}

// Consumer owns the notification subscription for one watch target.
type Consumer struct {
	source    StreamSource
	rootRef   qumulo.FileRef
	recursive bool
	admitted  notify.KindSet
	observer  Observer
	logger    *slog.Logger

	reconnectBase time.Duration
	reconnectMax  time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// ConsumerOption customizes the consumer.
type ConsumerOption func(*Consumer)

// WithReconnectBackoff overrides the reconnect backoff bounds.
func WithReconnectBackoff(base, maxDelay time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if base > 0 {
			c.reconnectBase = base
		}
		if maxDelay > 0 {
			c.reconnectMax = maxDelay
		}
	}
}

// NewConsumer builds a consumer for the watch root identified by rootRef.
func NewConsumer(source StreamSource, rootRef qumulo.FileRef, recursive bool, admitted notify.KindSet, observer Observer, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		source:        source,
		rootRef:       rootRef,
		recursive:     recursive,
		admitted:      admitted,
		observer:      observer,
		logger:        logging.NewComponentLogger(logger, "watcher"),
		reconnectBase: defaultReconnectBase,
		reconnectMax:  defaultReconnectMax,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the consumer loop in the background.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.New("consumer already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(runCtx)
	}()
	return nil
}

// Stop terminates stream consumption and waits for the loop to exit.
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	c.running = false
	c.cancel = nil
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
}

func (c *Consumer) run(ctx context.Context) {
	target, ok := c.resolveTarget(ctx)
	if !ok {
		return
	}
	filter := notify.Filter{Target: target, Admitted: c.admitted}
	kinds := c.admitted.Names()

	c.logger.Info("watching for change notifications",
		logging.Args(
			logging.Uint64(logging.FieldFileID, target.RootID),
			logging.String(logging.FieldPath, target.RootPath),
			logging.Bool("recursive", target.Recursive),
			logging.Any("kinds", kinds),
		)...)

	delay := c.reconnectBase
	for ctx.Err() == nil {
		stream, err := c.source.Notifications(ctx, qumulo.RefByID(target.RootID), target.Recursive, kinds)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("notification subscribe failed; retrying",
				logging.Args(logging.Duration("retry_in", delay), logging.Error(err))...)
			if !sleep(ctx, delay) {
				return
			}
			delay = nextDelay(delay, c.reconnectMax)
			continue
		}

		healthy := c.consume(ctx, stream, filter)
		_ = stream.Close()
		if ctx.Err() != nil {
			return
		}
		if healthy {
			delay = c.reconnectBase
		}
		c.logger.Warn("notification stream ended; resubscribing. Events during the gap may be missed",
			logging.Args(logging.Duration("retry_in", delay))...)
		if !sleep(ctx, delay) {
			return
		}
		delay = nextDelay(delay, c.reconnectMax)
	}
}

// resolveTarget looks up the watch root once, retrying connection failures
// until the cluster answers or the context ends. A permanent rejection of
// the root (missing path, access denied) is a configuration problem that
// retrying cannot solve, so it ends the consumer instead of spinning.
func (c *Consumer) resolveTarget(ctx context.Context) (notify.WatchTarget, bool) {
	delay := c.reconnectBase
	for ctx.Err() == nil {
		attr, err := c.source.FileInfo(ctx, c.rootRef)
		if err == nil {
			return notify.WatchTarget{RootID: attr.ID, RootPath: attr.Path, Recursive: c.recursive}, true
		}
		if ctx.Err() != nil {
			return notify.WatchTarget{}, false
		}
		if errors.Is(err, worm.ErrPermanent) {
			c.logger.Error("watch target rejected by the cluster; not retrying",
				logging.Args(logging.String("root", c.rootRef.String()), logging.Error(err))...)
			return notify.WatchTarget{}, false
		}
		c.logger.Error("watch target lookup failed; retrying",
			logging.Args(logging.String("root", c.rootRef.String()), logging.Duration("retry_in", delay), logging.Error(err))...)
		if !sleep(ctx, delay) {
			return notify.WatchTarget{}, false
		}
		delay = nextDelay(delay, c.reconnectMax)
	}
	return notify.WatchTarget{}, false
}

// consume reads record batches until the stream fails. It reports whether
// at least one batch was read, which resets the reconnect backoff.
func (c *Consumer) consume(ctx context.Context, stream RecordStream, filter notify.Filter) bool {
	healthy := false
	for ctx.Err() == nil {
		batch, err := stream.Next()
		if err != nil {
			if errors.Is(err, worm.ErrClassification) {
				// One undecodable record batch does not invalidate the
				// subscription.
				c.logger.Warn("skipping undecodable notification batch", logging.Args(logging.Error(err))...)
				continue
			}
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				c.logger.Error("notification stream read failed", logging.Args(logging.Error(err))...)
			}
			return healthy
		}
		healthy = true

		for _, raw := range batch {
			event, ok := filter.Admit(raw)
			if !ok {
				c.logger.Debug("discarded notification",
					logging.Args(logging.String(logging.FieldKind, raw.Type), logging.String(logging.FieldPath, raw.Path))...)
				continue
			}
			c.logger.Info("qualifying change detected",
				logging.Args(
					logging.String(logging.FieldKind, event.Kind.String()),
					logging.String(logging.FieldPath, event.Path),
					logging.Uint64(logging.FieldFileID, event.FileID),
				)...)
			c.observer.Observe(event)
		}
	}
	return healthy
}

func sleep(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(current, maxDelay time.Duration) time.Duration {
	next := current * 2
	if next > maxDelay {
		return maxDelay
	}
	return next
}
