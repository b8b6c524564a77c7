package worker

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

	"github.com/tarafreight/syncqueue/pkg/core"
	"github.com/tarafreight/syncqueue/pkg/storage"
)

var dbCounter atomic.Int64

func setupTestStore(t *testing.T) *storage.GormStorage {
	t.Helper()
	n := dbCounter.Add(1)
	dbPath := fmt.Sprintf("/tmp/syncqueue_worker_test_%d_%d.db", os.Getpid(), n)
	t.Cleanup(func() {
		_ = os.Remove(dbPath)
	})

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store := storage.NewGormStorage(db)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func pendingEntry(t *testing.T, store *storage.GormStorage) *core.Entry {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"k": "v"})
	e := &core.Entry{EntityType: "SHIPMENT", Action: "ACCEPT_ASSIGNMENT", Payload: payload}
	require.NoError(t, store.Create(context.Background(), e))
	return e
}

func TestProcessBatch_AppliesEntry(t *testing.T) {
	store := setupTestStore(t)
	entry := pendingEntry(t, store)

	var applied atomic.Int32
	w := New(store, ApplierFunc(func(ctx context.Context, e *core.Entry) error {
		applied.Add(1)
		assert.Equal(t, entry.ID, e.ID)
		// The entry is claimed before replay.
		assert.Equal(t, core.StatusProcessing, e.Status)
		return nil
	}))

	w.processBatch(context.Background())

	assert.Equal(t, int32(1), applied.Load())
	got, err := store.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Nil(t, got.ErrorMessage)
}

func TestProcessBatch_FailureStaysPending(t *testing.T) {
	store := setupTestStore(t)
	entry := pendingEntry(t, store)

	w := New(store, ApplierFunc(func(ctx context.Context, e *core.Entry) error {
		return errors.New("webhook returned 502")
	}), WithMaxAttempts(5))

	w.processBatch(context.Background())

	got, err := store.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "webhook returned 502", *got.ErrorMessage)
}

func TestProcessBatch_ExhaustedAttemptsMoveToError(t *testing.T) {
	store := setupTestStore(t)
	entry := pendingEntry(t, store)

	w := New(store, ApplierFunc(func(ctx context.Context, e *core.Entry) error {
		return errors.New("still failing")
	}), WithMaxAttempts(2))

	w.processBatch(context.Background())
	w.processBatch(context.Background())

	got, err := store.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, got.Status)
	assert.Equal(t, 2, got.Attempts)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "still failing", *got.ErrorMessage)

	// ERROR entries are never picked up again without a manual retry.
	w.processBatch(context.Background())
	got, err = store.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
}

func TestProcessBatch_ManualRetryReenters(t *testing.T) {
	store := setupTestStore(t)
	entry := pendingEntry(t, store)

	shouldFail := atomic.Bool{}
	shouldFail.Store(true)
	w := New(store, ApplierFunc(func(ctx context.Context, e *core.Entry) error {
		if shouldFail.Load() {
			return errors.New("transient")
		}
		return nil
	}), WithMaxAttempts(1))

	w.processBatch(context.Background())
	got, err := store.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	require.Equal(t, core.StatusError, got.Status)

	_, err = store.UpdateStatus(context.Background(), entry.ID, core.Patch{Status: core.StatusPending})
	require.NoError(t, err)

	shouldFail.Store(false)
	w.processBatch(context.Background())

	got, err = store.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, got.Status)
}

func TestProcessBatch_PanicCountsAsFailure(t *testing.T) {
	store := setupTestStore(t)
	entry := pendingEntry(t, store)

	w := New(store, ApplierFunc(func(ctx context.Context, e *core.Entry) error {
		panic("boom")
	}), WithMaxAttempts(1))

	w.processBatch(context.Background())

	got, err := store.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, got.Status)
}

func TestProcessBatch_RespectsBatchSize(t *testing.T) {
	store := setupTestStore(t)
	for i := 0; i < 5; i++ {
		pendingEntry(t, store)
	}

	var applied atomic.Int32
	w := New(store, ApplierFunc(func(ctx context.Context, e *core.Entry) error {
		applied.Add(1)
		return nil
	}), WithBatchSize(3))

	w.processBatch(context.Background())
	assert.Equal(t, int32(3), applied.Load())
}

func TestWorker_EmitsEvents(t *testing.T) {
	store := setupTestStore(t)
	pendingEntry(t, store)

	w := New(store, ApplierFunc(func(ctx context.Context, e *core.Entry) error {
		return nil
	}))
	events := w.Events()
	defer w.Unsubscribe(events)

	w.processBatch(context.Background())

	select {
	case e := <-events:
		applied, ok := e.(*core.EntryApplied)
		require.True(t, ok)
		assert.Equal(t, core.StatusProcessing, applied.Entry.Status)
	default:
		t.Fatal("expected an EntryApplied event")
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	store := setupTestStore(t)

	w := New(store, ApplierFunc(func(ctx context.Context, e *core.Entry) error {
		return nil
	}), WithPollInterval(10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := w.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
