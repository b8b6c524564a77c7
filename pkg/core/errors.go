package core

import "errors"

// Validation and lifecycle errors
var (
	ErrInvalidEntityType = errors.New("syncqueue: invalid entity type tag (must be alphanumeric, start with letter)")
	ErrEntityTypeTooLong = errors.New("syncqueue: entity type tag too long")
	ErrInvalidAction     = errors.New("syncqueue: invalid action tag")
	ErrActionTooLong     = errors.New("syncqueue: action tag too long")
	ErrPayloadTooLarge   = errors.New("syncqueue: payload exceeds size limit")
	ErrInvalidStatus     = errors.New("syncqueue: invalid status value")
	ErrEntryNotFound     = errors.New("syncqueue: entry not found")
	ErrDuplicateEntry    = errors.New("syncqueue: duplicate entry with same dedupe key")
	ErrNotDeferrable     = errors.New("syncqueue: offline and no queue descriptor supplied")
	ErrNilExecutor       = errors.New("syncqueue: dispatch requires an executor")
	ErrDedupeKeyTooLong  = errors.New("syncqueue: dedupe key exceeds maximum length")
)
