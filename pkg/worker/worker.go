// Package worker replays pending queue entries against the domain API.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tarafreight/syncqueue/pkg/core"
	"github.com/tarafreight/syncqueue/pkg/schedule"
	"github.com/tarafreight/syncqueue/pkg/security"
)

// Config holds worker configuration.
type Config struct {
	// PollInterval is how often the worker checks for pending entries.
	PollInterval time.Duration
	// BatchSize is how many entries are claimed per poll.
	BatchSize int
	// MaxAttempts is the attempt count after which an entry moves to ERROR.
	MaxAttempts int
	// PurgeSchedule, when set, drives periodic deletion of applied entries.
	PurgeSchedule schedule.Schedule
	// PurgeAfter is the minimum age of applied entries eligible for purge.
	PurgeAfter time.Duration
	// StorageRetry controls retry of storage calls on transient failures.
	StorageRetry *RetryConfig
}

// Option configures a Worker.
type Option func(*Config)

// WithPollInterval sets the poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) { c.PollInterval = d }
}

// WithBatchSize sets the per-poll claim size.
func WithBatchSize(n int) Option {
	return func(c *Config) { c.BatchSize = n }
}

// WithMaxAttempts sets the attempt limit before an entry moves to ERROR.
func WithMaxAttempts(n int) Option {
	return func(c *Config) { c.MaxAttempts = security.ClampAttempts(n) }
}

// WithPurge enables the purge loop for applied entries.
func WithPurge(s schedule.Schedule, olderThan time.Duration) Option {
	return func(c *Config) {
		c.PurgeSchedule = s
		c.PurgeAfter = olderThan
	}
}

// WithStorageRetry overrides the storage retry policy.
func WithStorageRetry(rc RetryConfig) Option {
	return func(c *Config) { c.StorageRetry = &rc }
}

// Worker polls the store for PENDING entries and replays them through an
// Applier. Replay outcome drives the entry's status: SUCCESS when applied,
// back to PENDING while attempts remain, ERROR once exhausted.
type Worker struct {
	storage core.Storage
	applier Applier
	config  Config
	logger  *slog.Logger

	mu        sync.RWMutex
	eventSubs []chan core.Event
}

// New creates a worker over the given storage and applier.
func New(storage core.Storage, applier Applier, opts ...Option) *Worker {
	config := Config{
		PollInterval: 15 * time.Second,
		BatchSize:    10,
		MaxAttempts:  5,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.StorageRetry == nil {
		defaultCfg := DefaultRetryConfig()
		config.StorageRetry = &defaultCfg
	}

	return &Worker{
		storage: storage,
		applier: applier,
		config:  config,
		logger:  slog.Default(),
	}
}

// SetLogger replaces the worker's logger.
func (w *Worker) SetLogger(l *slog.Logger) {
	w.logger = l
}

// Start begins processing entries. Blocks until the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	if w.config.PurgeSchedule != nil {
		go w.runPurge(ctx)
	}

	// Kick off immediately, then poll.
	w.processBatch(ctx)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.processBatch(ctx)
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) {
	var entries []*core.Entry
	err := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		var listErr error
		entries, listErr = w.storage.NextBatch(ctx, w.config.BatchSize)
		return listErr
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Error("failed to list pending entries after retries", "error", err)
		}
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		w.processEntry(ctx, entry)
	}
}

func (w *Worker) processEntry(ctx context.Context, entry *core.Entry) {
	startTime := time.Now()

	claimed, err := w.storage.BeginAttempt(ctx, entry.ID)
	if err != nil {
		if errors.Is(err, core.ErrEntryNotFound) {
			// Retried, discarded, or purged since it was listed.
			return
		}
		w.logger.Error("failed to claim entry", "entry_id", entry.ID, "error", err)
		return
	}

	applyErr := w.apply(ctx, claimed)
	if applyErr == nil {
		w.finish(ctx, claimed.ID, core.StatusSuccess, nil)
		w.emit(&core.EntryApplied{Entry: claimed, Duration: time.Since(startTime), Timestamp: time.Now()})
		return
	}

	msg := applyErr.Error()
	if claimed.Attempts >= w.config.MaxAttempts {
		w.finish(ctx, claimed.ID, core.StatusError, &msg)
		w.emit(&core.EntryFailed{Entry: claimed, Error: applyErr, Timestamp: time.Now()})
		w.logger.Warn("entry exhausted attempts",
			"entry_id", claimed.ID,
			"attempts", claimed.Attempts,
			"error", msg,
		)
		return
	}

	w.finish(ctx, claimed.ID, core.StatusPending, &msg)
	w.emit(&core.EntryRetrying{Entry: claimed, Attempt: claimed.Attempts, Error: applyErr, Timestamp: time.Now()})
	w.logger.Warn("entry replay failed",
		"entry_id", claimed.ID,
		"attempt", claimed.Attempts,
		"error", msg,
	)
}

func (w *Worker) apply(ctx context.Context, entry *core.Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("panic during replay")
			w.logger.Error("applier panicked", "entry_id", entry.ID, "panic", r)
		}
	}()
	return w.applier.Apply(ctx, entry)
}

func (w *Worker) finish(ctx context.Context, id string, status core.Status, errMsg *string) {
	err := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		return w.storage.FinishAttempt(ctx, id, status, errMsg)
	})
	if err != nil {
		w.logger.Error("failed to record attempt outcome after retries",
			"entry_id", id,
			"status", status,
			"error", err,
		)
	}
}

func (w *Worker) runPurge(ctx context.Context) {
	next := w.config.PurgeSchedule.Next(time.Now())

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
			count, err := w.storage.PurgeApplied(ctx, w.config.PurgeAfter)
			if err != nil {
				w.logger.Error("purge failed", "error", err)
			} else if count > 0 {
				w.logger.Info("purged applied entries", "count", count)
				w.emit(&core.EntriesPurged{Count: count, Timestamp: time.Now()})
			}
			next = w.config.PurgeSchedule.Next(time.Now())
		}
	}
}

// Events returns a channel for receiving replay events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (w *Worker) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	w.mu.Lock()
	w.eventSubs = append(w.eventSubs, ch)
	w.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
func (w *Worker) Unsubscribe(ch <-chan core.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, sub := range w.eventSubs {
		if sub == ch {
			w.eventSubs = append(w.eventSubs[:i], w.eventSubs[i+1:]...)
			return
		}
	}
}

func (w *Worker) emit(e core.Event) {
	w.mu.RLock()
	subs := make([]chan core.Event, len(w.eventSubs))
	copy(subs, w.eventSubs)
	w.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			// Drop if full - this prevents blocking on slow consumers
		}
	}
}
