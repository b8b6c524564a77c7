package syncqueue_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tarafreight/syncqueue"
	"github.com/tarafreight/syncqueue/pkg/dispatch"
	"github.com/tarafreight/syncqueue/pkg/remediate"
	"github.com/tarafreight/syncqueue/pkg/worker"
)

var dbCounter atomic.Int64

type harness struct {
	store      *syncqueue.GormStorage
	service    syncqueue.Service
	monitor    *syncqueue.Monitor
	aggregator *syncqueue.Aggregator
	dispatcher *syncqueue.Dispatcher
	remediator *syncqueue.Remediator
}

func setupHarness(t *testing.T) *harness {
	t.Helper()
	n := dbCounter.Add(1)
	dbPath := fmt.Sprintf("/tmp/syncqueue_integration_test_%d_%d.db", os.Getpid(), n)
	t.Cleanup(func() {
		_ = os.Remove(dbPath)
	})

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store := syncqueue.NewGormStorage(db)
	require.NoError(t, store.Migrate(context.Background()))

	svc := syncqueue.NewLocalService(store)
	monitor := syncqueue.NewMonitor(true)
	agg := syncqueue.NewAggregator(svc, monitor)

	return &harness{
		store:      store,
		service:    svc,
		monitor:    monitor,
		aggregator: agg,
		dispatcher: syncqueue.NewDispatcher(svc, monitor, dispatch.WithRefresher(agg)),
		remediator: syncqueue.NewRemediator(svc, remediate.WithRefresher(agg)),
	}
}

func acceptAssignment(t *testing.T) *syncqueue.Descriptor {
	t.Helper()
	payload, err := json.Marshal(map[string]int{"shipmentId": 42})
	require.NoError(t, err)
	entityID := "42"
	return &syncqueue.Descriptor{
		EntityType: "SHIPMENT",
		Action:     "ACCEPT_ASSIGNMENT",
		Payload:    payload,
		EntityID:   &entityID,
	}
}

// startWorker runs w until the returned stop function is called.
func startWorker(t *testing.T, w *syncqueue.Worker) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Start(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestOfflineDispatchThenReplay(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()

	h.monitor.SetOffline()
	result, err := h.dispatcher.Dispatch(ctx,
		func(ctx context.Context) (any, error) {
			t.Fatal("executor must not run while offline")
			return nil, nil
		},
		acceptAssignment(t),
	)
	require.NoError(t, err)
	require.True(t, result.Queued)

	// The intent survives as a PENDING entry visible in the snapshot.
	snap := h.aggregator.Snapshot()
	require.Equal(t, 1, snap.PendingCount)
	assert.Equal(t, "SHIPMENT", snap.Entries[0].EntityType)
	assert.True(t, snap.Offline)

	// Connectivity returns and the worker replays it.
	h.monitor.SetOnline()
	var replayed atomic.Int32
	w := syncqueue.NewWorker(h.store, worker.ApplierFunc(func(ctx context.Context, e *syncqueue.Entry) error {
		replayed.Add(1)
		return nil
	}), worker.WithPollInterval(10*time.Millisecond))
	stop := startWorker(t, w)
	defer stop()

	require.Eventually(t, func() bool {
		return replayed.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, h.aggregator.Refresh(ctx))
	snap = h.aggregator.Snapshot()
	assert.Zero(t, snap.PendingCount)
	assert.Zero(t, snap.ErrorCount)
}

func TestFailedReplayRemediation(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()

	h.monitor.SetOffline()
	_, err := h.dispatcher.Dispatch(ctx,
		func(ctx context.Context) (any, error) { return nil, nil },
		acceptAssignment(t),
	)
	require.NoError(t, err)

	// Replay fails once; with a single allowed attempt the entry lands in ERROR.
	w := syncqueue.NewWorker(h.store, worker.ApplierFunc(func(ctx context.Context, e *syncqueue.Entry) error {
		return errors.New("domain API rejected")
	}), worker.WithMaxAttempts(1), worker.WithPollInterval(10*time.Millisecond))
	stop := startWorker(t, w)

	require.Eventually(t, func() bool {
		if err := h.aggregator.Refresh(ctx); err != nil {
			return false
		}
		return h.aggregator.Snapshot().ErrorCount == 1
	}, 5*time.Second, 20*time.Millisecond)
	stop()

	failed := h.aggregator.Snapshot().ErrorEntries[0]
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "domain API rejected", *failed.ErrorMessage)

	// Manual retry re-offers it and a healthy replay clears the queue.
	entry, err := h.remediator.Retry(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, syncqueue.StatusPending, entry.Status)
	assert.Nil(t, entry.ErrorMessage)

	healthy := syncqueue.NewWorker(h.store, worker.ApplierFunc(func(ctx context.Context, e *syncqueue.Entry) error {
		return nil
	}), worker.WithPollInterval(10*time.Millisecond))
	stop = startWorker(t, healthy)
	defer stop()

	require.Eventually(t, func() bool {
		if err := h.aggregator.Refresh(ctx); err != nil {
			return false
		}
		snap := h.aggregator.Snapshot()
		return snap.PendingCount == 0 && snap.ErrorCount == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestDiscardPreventsReplay(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()

	h.monitor.SetOffline()
	result, err := h.dispatcher.Dispatch(ctx,
		func(ctx context.Context) (any, error) { return nil, nil },
		acceptAssignment(t),
	)
	require.NoError(t, err)

	entry, err := h.remediator.Discard(ctx, result.Entry.ID, "")
	require.NoError(t, err)
	assert.Equal(t, syncqueue.StatusError, entry.Status)
	require.NotNil(t, entry.ErrorMessage)
	assert.Equal(t, syncqueue.DefaultDiscardNote, *entry.ErrorMessage)

	// Discarded entries are invisible to the worker.
	var replayed atomic.Int32
	w := syncqueue.NewWorker(h.store, worker.ApplierFunc(func(ctx context.Context, e *syncqueue.Entry) error {
		replayed.Add(1)
		return nil
	}), worker.WithPollInterval(10*time.Millisecond))
	stop := startWorker(t, w)
	time.Sleep(100 * time.Millisecond)
	stop()

	assert.Zero(t, replayed.Load())
	require.NoError(t, h.aggregator.Refresh(ctx))
	assert.Equal(t, 1, h.aggregator.Snapshot().ErrorCount)
}

func TestOnlineFallbackPreservesError(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()

	execErr := errors.New("500")
	result, err := h.dispatcher.Dispatch(ctx,
		func(ctx context.Context) (any, error) { return nil, execErr },
		acceptAssignment(t),
	)
	require.NoError(t, err)
	assert.True(t, result.Queued)
	assert.Equal(t, execErr, result.Err)

	snap := h.aggregator.Snapshot()
	assert.Equal(t, 1, snap.PendingCount)
}
