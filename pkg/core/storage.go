package core

import (
	"context"
	"time"
)

// Starter is the interface for long-running loops (worker, aggregator).
type Starter interface {
	Start(ctx context.Context) error
}

// Storage defines the persistence layer for queue entries on the service
// side. Clients never touch it directly; they go through a Service.
type Storage interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Entry lifecycle
	Create(ctx context.Context, e *Entry) error
	CreateUnique(ctx context.Context, e *Entry, dedupeKey string) error
	Get(ctx context.Context, id string) (*Entry, error)
	List(ctx context.Context, status Status, limit int) ([]*Entry, error)
	UpdateStatus(ctx context.Context, id string, patch Patch) (*Entry, error)

	// Replay worker operations
	NextBatch(ctx context.Context, limit int) ([]*Entry, error)
	BeginAttempt(ctx context.Context, id string) (*Entry, error)
	FinishAttempt(ctx context.Context, id string, status Status, errMsg *string) error

	// Housekeeping
	PurgeApplied(ctx context.Context, olderThan time.Duration) (int64, error)
}
