package core

import "context"

// Service is the client-facing surface of the queue service: the three
// operations a client consumes, regardless of whether the service is reached
// over HTTP or embedded in-process.
type Service interface {
	// ListEntries returns up to limit entries with the given status,
	// oldest first.
	ListEntries(ctx context.Context, status Status, limit int) ([]*Entry, error)

	// CreateEntry persists a new PENDING entry from a queue descriptor.
	CreateEntry(ctx context.Context, d Descriptor) (*Entry, error)

	// PatchEntry applies a status transition to an existing entry.
	PatchEntry(ctx context.Context, id string, patch Patch) (*Entry, error)
}

// Refresher triggers a refresh of the aggregated queue snapshot. It is
// satisfied by syncstatus.Aggregator and consumed by the dispatcher and the
// remediator, which only ever trigger a refresh and never write the snapshot.
type Refresher interface {
	Refresh(ctx context.Context) error
}
