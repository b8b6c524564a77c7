// Package dispatch decides, per mutation, whether to execute against the
// domain API immediately or to record the intent as a queue entry.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tarafreight/syncqueue/pkg/connectivity"
	"github.com/tarafreight/syncqueue/pkg/core"
)

// Executor performs the actual domain API call. It resolves with an opaque
// response on success and rejects with an error on any failure; the
// dispatcher does not distinguish failure kinds.
type Executor func(ctx context.Context) (any, error)

// Result is the outcome of a single dispatch.
type Result struct {
	// Queued reports whether the mutation was recorded as a queue entry
	// instead of (or in addition to attempting) immediate execution.
	Queued bool
	// Response is the executor's response when it ran and succeeded.
	Response any
	// Entry is the created queue entry when Queued is true.
	Entry *core.Entry
	// Err preserves the executor's failure when the mutation was queued as
	// a fallback, for caller-side messaging.
	Err error
}

// Dispatcher routes mutations between the domain API and the queue service.
//
// The connectivity flag is only a hint: it short-circuits a doomed round-trip
// while believed-offline, but the authoritative signal for queueing is an
// actual execution failure. This protects against false online signals such
// as captive portals.
type Dispatcher struct {
	service   core.Service
	monitor   *connectivity.Monitor
	refresher core.Refresher
	logger    *slog.Logger
	newKey    func() string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRefresher sets the snapshot refresher triggered after enqueues and
// successful executions.
func WithRefresher(r core.Refresher) Option {
	return func(d *Dispatcher) { d.refresher = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithDedupeKeyFunc overrides the dedupe key generator. Passing a function
// that returns "" disables dedupe keys entirely.
func WithDedupeKeyFunc(fn func() string) Option {
	return func(d *Dispatcher) { d.newKey = fn }
}

// New creates a dispatcher over the given queue service and monitor.
func New(service core.Service, monitor *connectivity.Monitor, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		service: service,
		monitor: monitor,
		logger:  slog.Default(),
		newKey:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch attempts (or defers) a single state-changing operation.
//
// While believed-offline with a descriptor, the executor is never invoked and
// the intent is recorded directly. While believed-online the executor runs
// first; on failure with a descriptor the intent is recorded as a fallback
// and the original error preserved on the result. Without a descriptor the
// mutation is best effort and failures propagate to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, exec Executor, desc *core.Descriptor) (Result, error) {
	if exec == nil {
		return Result{}, core.ErrNilExecutor
	}

	if d.monitor.Offline() {
		if desc == nil {
			return Result{}, core.ErrNotDeferrable
		}
		entry, err := d.enqueue(ctx, *desc)
		if err != nil {
			return Result{}, err
		}
		return Result{Queued: true, Entry: entry}, nil
	}

	response, execErr := exec(ctx)
	if execErr == nil {
		// Queued entries may have succeeded server-side and should
		// disappear from view.
		d.triggerRefresh(ctx)
		return Result{Response: response}, nil
	}

	if desc == nil {
		return Result{}, execErr
	}

	entry, err := d.enqueue(ctx, *desc)
	if err != nil {
		return Result{}, fmt.Errorf("execute failed (%v); enqueue fallback failed: %w", execErr, err)
	}
	return Result{Queued: true, Entry: entry, Err: execErr}, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, desc core.Descriptor) (*core.Entry, error) {
	if desc.DedupeKey == "" {
		desc.DedupeKey = d.newKey()
	}

	entry, err := d.service.CreateEntry(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("syncqueue: failed to enqueue %s/%s: %w", desc.EntityType, desc.Action, err)
	}

	d.logger.Info("mutation queued",
		"entry_id", entry.ID,
		"entity_type", entry.EntityType,
		"action", entry.Action,
	)
	d.triggerRefresh(ctx)
	return entry, nil
}

// triggerRefresh is best effort: a failed refresh is recorded in the snapshot
// and retried on the next scheduled tick, never surfaced to the dispatching
// caller.
func (d *Dispatcher) triggerRefresh(ctx context.Context) {
	if d.refresher == nil {
		return
	}
	if err := d.refresher.Refresh(ctx); err != nil {
		d.logger.Debug("snapshot refresh after dispatch failed", "error", err)
	}
}
