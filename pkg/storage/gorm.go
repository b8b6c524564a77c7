// Package storage provides storage implementations for the syncqueue package.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tarafreight/syncqueue/pkg/core"
	"github.com/tarafreight/syncqueue/pkg/security"
)

// GormStorage implements core.Storage using GORM.
type GormStorage struct {
	db *gorm.DB
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

// DB exposes the underlying handle for callers that layer extra queries on
// top of the entry table.
func (s *GormStorage) DB() *gorm.DB {
	return s.db
}

// Migrate creates the necessary tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Entry{})
}

// Create persists a new entry.
func (s *GormStorage) Create(ctx context.Context, e *core.Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Status == "" {
		e.Status = core.StatusPending
	}
	return s.db.WithContext(ctx).Create(e).Error
}

// CreateUnique persists an entry only if no unapplied entry with the same
// dedupe key exists. This is the dedupe barrier against a mutation being
// queued twice when its response was lost after a server-side commit.
func (s *GormStorage) CreateUnique(ctx context.Context, e *core.Entry, dedupeKey string) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Status == "" {
		e.Status = core.StatusPending
	}
	e.DedupeKey = dedupeKey

	var count int64
	err := s.db.WithContext(ctx).
		Model(&core.Entry{}).
		Where("dedupe_key = ?", dedupeKey).
		Where("status IN ?", []core.Status{core.StatusPending, core.StatusProcessing}).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return core.ErrDuplicateEntry
	}

	return s.db.WithContext(ctx).Create(e).Error
}

// Get fetches a single entry by ID.
func (s *GormStorage) Get(ctx context.Context, id string) (*core.Entry, error) {
	var e core.Entry
	err := s.db.WithContext(ctx).First(&e, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrEntryNotFound
		}
		return nil, err
	}
	return &e, nil
}

// List returns up to limit entries with the given status, oldest first.
func (s *GormStorage) List(ctx context.Context, status core.Status, limit int) ([]*core.Entry, error) {
	var entries []*core.Entry
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(security.ClampListLimit(limit)).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// UpdateStatus applies a client-requested transition. The error message is
// always replaced, never merged.
func (s *GormStorage) UpdateStatus(ctx context.Context, id string, patch core.Patch) (*core.Entry, error) {
	updates := map[string]any{
		"status":        patch.Status,
		"error_message": patch.ErrorMessage,
	}
	if patch.ErrorMessage != nil {
		sanitized := security.SanitizeErrorMessage(*patch.ErrorMessage)
		updates["error_message"] = &sanitized
	}

	result := s.db.WithContext(ctx).
		Model(&core.Entry{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, core.ErrEntryNotFound
	}
	return s.Get(ctx, id)
}

// NextBatch returns the oldest PENDING entries up to limit, for the replay
// worker.
func (s *GormStorage) NextBatch(ctx context.Context, limit int) ([]*core.Entry, error) {
	return s.List(ctx, core.StatusPending, limit)
}

// BeginAttempt moves a PENDING entry to PROCESSING, increments its attempt
// counter, and clears the previous error message. Returns ErrEntryNotFound
// when the entry was retried, discarded, or removed since it was listed.
func (s *GormStorage) BeginAttempt(ctx context.Context, id string) (*core.Entry, error) {
	result := s.db.WithContext(ctx).
		Model(&core.Entry{}).
		Where("id = ? AND status = ?", id, core.StatusPending).
		Updates(map[string]any{
			"status":        core.StatusProcessing,
			"attempts":      gorm.Expr("attempts + 1"),
			"error_message": nil,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, core.ErrEntryNotFound
	}
	return s.Get(ctx, id)
}

// FinishAttempt records the outcome of a replay attempt.
func (s *GormStorage) FinishAttempt(ctx context.Context, id string, status core.Status, errMsg *string) error {
	updates := map[string]any{
		"status":        status,
		"error_message": errMsg,
	}
	if errMsg != nil {
		sanitized := security.SanitizeErrorMessage(*errMsg)
		updates["error_message"] = &sanitized
	}

	result := s.db.WithContext(ctx).
		Model(&core.Entry{}).
		Where("id = ? AND status = ?", id, core.StatusProcessing).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrEntryNotFound
	}
	return nil
}

// PurgeApplied deletes SUCCESS entries older than the cutoff and returns the
// number removed.
func (s *GormStorage) PurgeApplied(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", core.StatusSuccess, cutoff).
		Delete(&core.Entry{})
	return result.RowsAffected, result.Error
}
