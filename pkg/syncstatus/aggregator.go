// Package syncstatus maintains the aggregated, point-in-time view of queue
// health and keeps it fresh on a fixed interval.
package syncstatus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tarafreight/syncqueue/pkg/connectivity"
	"github.com/tarafreight/syncqueue/pkg/core"
	"github.com/tarafreight/syncqueue/pkg/security"
)

// DefaultRefreshInterval is the cadence of automatic refreshes.
const DefaultRefreshInterval = 30 * time.Second

// Snapshot is the derived view of queue health. It has no independent
// lifecycle; it is recomputed wholesale on every refresh.
type Snapshot struct {
	Entries      []*core.Entry
	ErrorEntries []*core.Entry
	PendingCount int
	ErrorCount   int
	Err          string
	LastUpdated  time.Time
	Offline      bool
}

// Aggregator owns the snapshot and the periodic refresh loop. It never
// mutates entry status; the dispatcher and remediator only trigger refreshes
// through it.
type Aggregator struct {
	service  core.Service
	monitor  *connectivity.Monitor
	clock    core.Clock
	interval time.Duration
	limit    int
	authed   func() bool
	logger   *slog.Logger

	mu      sync.RWMutex
	snap    Snapshot
	loading bool
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithInterval sets the automatic refresh cadence.
func WithInterval(d time.Duration) Option {
	return func(a *Aggregator) { a.interval = d }
}

// WithLimit sets the page size for each partition fetch.
func WithLimit(n int) Option {
	return func(a *Aggregator) { a.limit = security.ClampListLimit(n) }
}

// WithClock sets the clock used for LastUpdated stamps.
func WithClock(c core.Clock) Option {
	return func(a *Aggregator) { a.clock = c }
}

// WithAuthCheck gates refreshes on an identity. While the check returns
// false, refreshes clear the pending partition instead of fetching.
func WithAuthCheck(fn func() bool) Option {
	return func(a *Aggregator) { a.authed = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// New creates an aggregator over the given service and connectivity monitor.
func New(service core.Service, monitor *connectivity.Monitor, opts ...Option) *Aggregator {
	a := &Aggregator{
		service:  service,
		monitor:  monitor,
		clock:    core.SystemClock{},
		interval: DefaultRefreshInterval,
		limit:    security.DefaultListLimit,
		authed:   func() bool { return true },
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Refresh fetches both partitions in parallel and swaps them into the
// snapshot atomically. On failure the previous snapshot stays in place and
// only the error message is recorded; stale-but-present data is preferred
// over blanking the view.
func (a *Aggregator) Refresh(ctx context.Context) error {
	if !a.authed() {
		a.mu.Lock()
		a.snap.Entries = nil
		a.snap.PendingCount = 0
		a.mu.Unlock()
		return nil
	}

	a.setLoading(true)
	defer a.setLoading(false)

	var (
		wg         sync.WaitGroup
		pending    []*core.Entry
		pendingErr error
		failed     []*core.Entry
		failedErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		pending, pendingErr = a.service.ListEntries(ctx, core.StatusPending, a.limit)
	}()
	go func() {
		defer wg.Done()
		failed, failedErr = a.service.ListEntries(ctx, core.StatusError, a.limit)
	}()
	wg.Wait()

	if pendingErr != nil || failedErr != nil {
		err := pendingErr
		if err == nil {
			err = failedErr
		}
		a.mu.Lock()
		a.snap.Err = "failed to load sync queue: " + err.Error()
		a.mu.Unlock()
		a.logger.Warn("sync queue refresh failed", "error", err)
		return err
	}

	now := a.clock.Now()
	a.mu.Lock()
	a.snap.Entries = pending
	a.snap.ErrorEntries = failed
	a.snap.PendingCount = len(pending)
	a.snap.ErrorCount = len(failed)
	a.snap.Err = ""
	a.snap.LastUpdated = now
	a.mu.Unlock()
	return nil
}

// Start refreshes immediately and then on the configured interval until the
// context is cancelled. Ticks while unauthenticated do not hit the service;
// regaining authentication picks up again on the next tick.
func (a *Aggregator) Start(ctx context.Context) error {
	if err := a.Refresh(ctx); err != nil {
		a.logger.Debug("initial refresh failed", "error", err)
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.Refresh(ctx); err != nil {
				// Recorded in the snapshot; retried on the next tick.
				continue
			}
		}
	}
}

// Snapshot returns a copy of the current snapshot with the offline flag read
// from the monitor at call time.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	snap := a.snap
	snap.Entries = append([]*core.Entry(nil), a.snap.Entries...)
	snap.ErrorEntries = append([]*core.Entry(nil), a.snap.ErrorEntries...)
	a.mu.RUnlock()

	if a.monitor != nil {
		snap.Offline = a.monitor.Offline()
	}
	return snap
}

// Loading reports whether a refresh is in flight.
func (a *Aggregator) Loading() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loading
}

func (a *Aggregator) setLoading(v bool) {
	a.mu.Lock()
	a.loading = v
	a.mu.Unlock()
}
