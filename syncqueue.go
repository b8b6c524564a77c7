// Package syncqueue implements an offline-resilient mutation queue: clients
// keep issuing state-changing operations against a remote service when the
// network is unreliable, with failed-or-offline intents durably recorded as
// queue entries, aggregate queue health polled on an interval, and manual
// retry/discard remediation over queued entries.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	// Open storage and build an embedded queue service
//	db, _ := gorm.Open(sqlite.Open("syncqueue.db"), &gorm.Config{})
//	store := syncqueue.NewGormStorage(db)
//	store.Migrate(context.Background())
//	svc := syncqueue.NewLocalService(store)
//
//	// Wire the client core
//	monitor := syncqueue.NewMonitor(true)
//	agg := syncqueue.NewAggregator(svc, monitor)
//	dispatcher := syncqueue.NewDispatcher(svc, monitor, dispatch.WithRefresher(agg))
//
//	// Dispatch a deferrable mutation
//	result, err := dispatcher.Dispatch(ctx, executor, &syncqueue.Descriptor{
//	    EntityType: "SHIPMENT",
//	    Action:     "ACCEPT_ASSIGNMENT",
//	    Payload:    payload,
//	})
package syncqueue

import (
	"gorm.io/gorm"

	"github.com/tarafreight/syncqueue/pkg/connectivity"
	"github.com/tarafreight/syncqueue/pkg/core"
	"github.com/tarafreight/syncqueue/pkg/dispatch"
	"github.com/tarafreight/syncqueue/pkg/remediate"
	"github.com/tarafreight/syncqueue/pkg/security"
	"github.com/tarafreight/syncqueue/pkg/service"
	"github.com/tarafreight/syncqueue/pkg/storage"
	"github.com/tarafreight/syncqueue/pkg/syncstatus"
	"github.com/tarafreight/syncqueue/pkg/worker"
)

// Type aliases for the public surface
type (
	// Entry is the durable record of a deferred mutation intent.
	Entry = core.Entry

	// Descriptor is the tuple a caller supplies to make a mutation deferrable.
	Descriptor = core.Descriptor

	// Patch describes a client-requested status transition.
	Patch = core.Patch

	// Status represents the current state of a queue entry.
	Status = core.Status

	// Service is the client-facing surface of the queue service.
	Service = core.Service

	// Storage defines the persistence layer for queue entries.
	Storage = core.Storage

	// Clock abstracts time for deterministic tests.
	Clock = core.Clock

	// Event is the interface for all replay worker events.
	Event = core.Event

	// EntryApplied is emitted when a replay attempt succeeds.
	EntryApplied = core.EntryApplied

	// EntryRetrying is emitted when a failed entry stays PENDING.
	EntryRetrying = core.EntryRetrying

	// EntryFailed is emitted when an entry exhausts its attempts.
	EntryFailed = core.EntryFailed

	// Monitor holds the advisory offline flag.
	Monitor = connectivity.Monitor

	// Prober combines the offline flag with an active health probe.
	Prober = connectivity.Prober

	// Dispatcher routes mutations between the domain API and the queue.
	Dispatcher = dispatch.Dispatcher

	// Executor performs the actual domain API call.
	Executor = dispatch.Executor

	// Result is the outcome of a single dispatch.
	Result = dispatch.Result

	// Aggregator owns the queue health snapshot and its refresh loop.
	Aggregator = syncstatus.Aggregator

	// Snapshot is the aggregated view of queue health.
	Snapshot = syncstatus.Snapshot

	// Remediator applies manual retry/discard transitions.
	Remediator = remediate.Remediator

	// Worker replays pending entries against the domain API.
	Worker = worker.Worker

	// Applier replays a single queue entry against the domain API.
	Applier = worker.Applier

	// GormStorage implements Storage using GORM.
	GormStorage = storage.GormStorage
)

// Status constants
const (
	StatusPending    = core.StatusPending
	StatusProcessing = core.StatusProcessing
	StatusSuccess    = core.StatusSuccess
	StatusError      = core.StatusError
)

// Limits
const (
	MaxTagLength          = security.MaxTagLength
	MaxPayloadSize        = security.MaxPayloadSize
	MaxAttempts           = security.MaxAttempts
	MaxErrorMessageLength = security.MaxErrorMessageLength
	MaxListLimit          = security.MaxListLimit
	DefaultListLimit      = security.DefaultListLimit
)

// Error variables
var (
	ErrInvalidEntityType = core.ErrInvalidEntityType
	ErrInvalidAction     = core.ErrInvalidAction
	ErrPayloadTooLarge   = core.ErrPayloadTooLarge
	ErrInvalidStatus     = core.ErrInvalidStatus
	ErrEntryNotFound     = core.ErrEntryNotFound
	ErrDuplicateEntry    = core.ErrDuplicateEntry
	ErrNotDeferrable     = core.ErrNotDeferrable
	ErrNilExecutor       = core.ErrNilExecutor
)

// DefaultDiscardNote distinguishes a manual discard from a replay failure.
const DefaultDiscardNote = remediate.DefaultDiscardNote

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return storage.NewGormStorage(db)
}

// NewLocalService creates an embedded queue service over a storage backend.
func NewLocalService(s core.Storage) *service.Local {
	return service.NewLocal(s)
}

// NewHTTPService creates a queue service client for the REST surface rooted
// at baseURL.
func NewHTTPService(baseURL string, opts ...service.HTTPOption) *service.HTTP {
	return service.NewHTTP(baseURL, opts...)
}

// NewMonitor creates a connectivity monitor initialized from the host's
// current state.
func NewMonitor(online bool) *Monitor {
	return connectivity.NewMonitor(online)
}

// NewAggregator creates a sync status aggregator.
func NewAggregator(svc core.Service, m *Monitor, opts ...syncstatus.Option) *Aggregator {
	return syncstatus.New(svc, m, opts...)
}

// NewDispatcher creates a mutation dispatcher.
func NewDispatcher(svc core.Service, m *Monitor, opts ...dispatch.Option) *Dispatcher {
	return dispatch.New(svc, m, opts...)
}

// NewRemediator creates a remediation controller.
func NewRemediator(svc core.Service, opts ...remediate.Option) *Remediator {
	return remediate.New(svc, opts...)
}

// NewWorker creates a replay worker over the given storage and applier.
func NewWorker(s core.Storage, a Applier, opts ...worker.Option) *Worker {
	return worker.New(s, a, opts...)
}
