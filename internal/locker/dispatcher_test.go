package locker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lockwatch/internal/locker"
	"lockwatch/internal/lockstatus"
	"lockwatch/internal/logging"
	"lockwatch/internal/notify"
	"lockwatch/internal/qumulo"
	"lockwatch/internal/worm"
)

// contentionCluster tracks concurrent GetLock calls per file id.
type contentionCluster struct {
	fakeCluster

	inflight   map[uint64]*int32
	inflightMu sync.Mutex
	overlap    atomic.Bool
}

func newContentionCluster() *contentionCluster {
	return &contentionCluster{
		fakeCluster: fakeCluster{},
		inflight:    map[uint64]*int32{},
	}
}

func (c *contentionCluster) FileInfo(ctx context.Context, ref qumulo.FileRef) (qumulo.FileAttr, error) {
	return qumulo.FileAttr{ID: ref.ID, Path: "/vault/file", Type: qumulo.FileTypeFile}, nil
}

func (c *contentionCluster) GetLock(ctx context.Context, ref qumulo.FileRef) (qumulo.LockResult, error) {
	c.inflightMu.Lock()
	counter, ok := c.inflight[ref.ID]
	if !ok {
		counter = new(int32)
		c.inflight[ref.ID] = counter
	}
	c.inflightMu.Unlock()

	if atomic.AddInt32(counter, 1) > 1 {
		c.overlap.Store(true)
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(counter, -1)

	return c.fakeCluster.GetLock(ctx, ref)
}

func TestDispatcherSerializesPerFile(t *testing.T) {
	api := newContentionCluster()
	applier := newApplier(t, api, mustSpec(t, true, ""))
	dispatcher := locker.NewDispatcher(applier, 8, logging.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := dispatcher.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer dispatcher.Stop()

	var wg sync.WaitGroup
	submit := func(id uint64) {
		wg.Add(1)
		ok := dispatcher.Submit(ctx, notify.Event{FileID: id, Path: "/vault/file"}, func(locker.Outcome, error) {
			wg.Done()
		})
		if !ok {
			t.Error("Submit reported shutdown")
			wg.Done()
		}
	}

	for i := 0; i < 6; i++ {
		submit(101)
		submit(202)
	}
	wg.Wait()

	if api.overlap.Load() {
		t.Fatal("two applies overlapped on the same file id")
	}
}

func TestCountersRecordOutcomes(t *testing.T) {
	counters := locker.NewCounters()
	counters.Record(locker.Outcome{Category: lockstatus.BothSet}, nil)
	counters.Record(locker.Outcome{Category: lockstatus.BothSet}, nil)
	counters.Record(locker.Outcome{Category: lockstatus.LegalHoldOnly}, nil)

	snapshot := counters.Snapshot()
	if snapshot.Categories[lockstatus.BothSet] != 2 {
		t.Fatalf("BOTH_SET count = %d, want 2", snapshot.Categories[lockstatus.BothSet])
	}
	if snapshot.Categories[lockstatus.LegalHoldOnly] != 1 {
		t.Fatalf("LEGAL_HOLD_ONLY count = %d, want 1", snapshot.Categories[lockstatus.LegalHoldOnly])
	}
}

func TestCountersSeparateFailureBuckets(t *testing.T) {
	counters := locker.NewCounters()
	counters.Record(locker.Outcome{}, worm.Wrap(worm.ErrTransient, "cluster", "lock set", errors.New("timeout")))
	counters.Record(locker.Outcome{}, worm.Wrap(worm.ErrPermanent, "cluster", "lock set", errors.New("403")))
	counters.Record(locker.Outcome{}, worm.Wrap(worm.ErrClassification, "cluster", "lock query", errors.New("undecodable body")))
	counters.Record(locker.Outcome{}, context.Canceled)

	snapshot := counters.Snapshot()
	if snapshot.Transient != 1 {
		t.Fatalf("transient count = %d, want 1", snapshot.Transient)
	}
	if snapshot.Permanent != 1 {
		t.Fatalf("permanent count = %d, want 1", snapshot.Permanent)
	}
	if snapshot.Classification != 1 {
		t.Fatalf("classification count = %d, want 1", snapshot.Classification)
	}
}
