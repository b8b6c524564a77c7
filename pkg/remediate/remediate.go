// Package remediate issues manual status transitions on individual queue
// entries: retry (re-offer for replay) and discard (dismiss for good).
package remediate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tarafreight/syncqueue/pkg/core"
)

// DefaultDiscardNote distinguishes a manual discard from a genuine replay
// failure when inspecting ERROR entries.
const DefaultDiscardNote = "Manually discarded"

// Remediator applies the two client-initiated transitions, both implemented
// as a single patch call against the queue service.
type Remediator struct {
	service   core.Service
	refresher core.Refresher
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

// Option configures a Remediator.
type Option func(*Remediator)

// WithRefresher sets the snapshot refresher triggered after each transition.
func WithRefresher(r core.Refresher) Option {
	return func(rm *Remediator) { rm.refresher = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(rm *Remediator) { rm.logger = l }
}

// New creates a remediator over the given queue service.
func New(service core.Service, opts ...Option) *Remediator {
	rm := &Remediator{
		service:  service,
		logger:   slog.Default(),
		inflight: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(rm)
	}
	return rm
}

// Retry re-offers an ERROR entry for replay: status back to PENDING, error
// message cleared.
func (rm *Remediator) Retry(ctx context.Context, id string) (*core.Entry, error) {
	return rm.patch(ctx, id, core.Patch{Status: core.StatusPending, ErrorMessage: nil})
}

// Discard dismisses an entry: status to ERROR with a note so it is never
// replayed until a subsequent manual retry. An empty note gets
// DefaultDiscardNote.
func (rm *Remediator) Discard(ctx context.Context, id string, note string) (*core.Entry, error) {
	if note == "" {
		note = DefaultDiscardNote
	}
	return rm.patch(ctx, id, core.Patch{Status: core.StatusError, ErrorMessage: &note})
}

// Updating reports whether a transition on the given entry is in flight, so
// a remediation view can disable the acted-upon row without blocking others.
func (rm *Remediator) Updating(id string) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.inflight[id]
}

func (rm *Remediator) patch(ctx context.Context, id string, p core.Patch) (*core.Entry, error) {
	rm.mu.Lock()
	if rm.inflight[id] {
		rm.mu.Unlock()
		return nil, fmt.Errorf("syncqueue: entry %s already being updated", id)
	}
	rm.inflight[id] = true
	rm.mu.Unlock()

	defer func() {
		rm.mu.Lock()
		delete(rm.inflight, id)
		rm.mu.Unlock()
	}()

	entry, err := rm.service.PatchEntry(ctx, id, p)
	if err != nil {
		// The entry keeps its prior status until the next refresh.
		return nil, fmt.Errorf("syncqueue: failed to update entry %s: %w", id, err)
	}

	rm.logger.Info("entry transitioned",
		"entry_id", id,
		"status", entry.Status,
	)

	if rm.refresher != nil {
		if err := rm.refresher.Refresh(ctx); err != nil {
			rm.logger.Debug("snapshot refresh after remediation failed", "error", err)
		}
	}
	return entry, nil
}
