// Package service provides queue service implementations: an embedded one
// over a core.Storage and a client for the REST surface.
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tarafreight/syncqueue/pkg/core"
	"github.com/tarafreight/syncqueue/pkg/security"
)

// Local implements core.Service directly over a storage backend, for
// deployments where the queue service runs in the same process as the client
// (the desktop shell case).
type Local struct {
	storage core.Storage
}

// NewLocal creates an embedded queue service.
func NewLocal(storage core.Storage) *Local {
	return &Local{storage: storage}
}

// ListEntries returns up to limit entries with the given status, oldest first.
func (l *Local) ListEntries(ctx context.Context, status core.Status, limit int) ([]*core.Entry, error) {
	if !status.Valid() {
		return nil, core.ErrInvalidStatus
	}
	return l.storage.List(ctx, status, security.ClampListLimit(limit))
}

// CreateEntry validates a descriptor and persists it as a PENDING entry.
func (l *Local) CreateEntry(ctx context.Context, d core.Descriptor) (*core.Entry, error) {
	if err := security.ValidateEntityType(d.EntityType); err != nil {
		return nil, err
	}
	if err := security.ValidateAction(d.Action); err != nil {
		return nil, err
	}
	if len(d.Payload) > security.MaxPayloadSize {
		return nil, core.ErrPayloadTooLarge
	}

	entry := &core.Entry{
		ID:         uuid.New().String(),
		EntityType: d.EntityType,
		Action:     d.Action,
		EntityID:   d.EntityID,
		Payload:    d.Payload,
		Status:     core.StatusPending,
	}

	if d.DedupeKey != "" {
		if err := security.ValidateDedupeKey(d.DedupeKey); err != nil {
			return nil, err
		}
		if err := l.storage.CreateUnique(ctx, entry, d.DedupeKey); err != nil {
			return nil, err
		}
		return entry, nil
	}

	if err := l.storage.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("syncqueue: failed to create entry: %w", err)
	}
	return entry, nil
}

// PatchEntry applies a status transition.
func (l *Local) PatchEntry(ctx context.Context, id string, patch core.Patch) (*core.Entry, error) {
	if !patch.Status.Valid() {
		return nil, core.ErrInvalidStatus
	}
	return l.storage.UpdateStatus(ctx, id, patch)
}
