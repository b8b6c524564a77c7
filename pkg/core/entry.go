package core

import (
	"encoding/json"
	"time"
)

// Status represents the current state of a queue entry.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING" // Claimed by the replay worker
	StatusSuccess    Status = "SUCCESS"
	StatusError      Status = "ERROR" // Replay exhausted or manually discarded
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSuccess, StatusError:
		return true
	}
	return false
}

// Entry represents a deferred mutation awaiting replay against the domain API.
type Entry struct {
	ID           string          `gorm:"primaryKey;size:36" json:"id"`
	EntityType   string          `gorm:"index;size:64;not null" json:"entityType"`
	EntityID     *string         `gorm:"size:64" json:"entityId"`
	Action       string          `gorm:"index;size:64;not null" json:"action"`
	Payload      json.RawMessage `gorm:"type:bytes" json:"payload"`
	Status       Status          `gorm:"index;size:20;default:'PENDING'" json:"status"`
	Attempts     int             `gorm:"default:0" json:"attempts"`
	ErrorMessage *string         `gorm:"type:text" json:"errorMessage"`
	DedupeKey    string          `gorm:"index;size:64" json:"dedupeKey,omitempty"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Descriptor is the enqueue request: everything needed to record a mutation
// intent so it can be replayed later.
type Descriptor struct {
	EntityType string          `json:"entityType"`
	Action     string          `json:"action"`
	Payload    json.RawMessage `json:"payload"`
	EntityID   *string         `json:"entityId,omitempty"`
	DedupeKey  string          `json:"dedupeKey,omitempty"`
}

// Patch is a manual status transition. A nil ErrorMessage clears the stored
// message; a non-nil one replaces it.
type Patch struct {
	Status       Status  `json:"status"`
	ErrorMessage *string `json:"errorMessage"`
}
