package core

import "time"

// Event is the interface for all replay worker events.
type Event interface {
	eventMarker()
}

// EntryApplied is emitted when a replay attempt succeeds.
type EntryApplied struct {
	Entry     *Entry
	Duration  time.Duration
	Timestamp time.Time
}

func (*EntryApplied) eventMarker() {}

// EntryRetrying is emitted when a replay attempt fails but the entry stays
// PENDING for another attempt.
type EntryRetrying struct {
	Entry     *Entry
	Attempt   int
	Error     error
	Timestamp time.Time
}

func (*EntryRetrying) eventMarker() {}

// EntryFailed is emitted when an entry exhausts its attempts and moves to ERROR.
type EntryFailed struct {
	Entry     *Entry
	Error     error
	Timestamp time.Time
}

func (*EntryFailed) eventMarker() {}

// EntriesPurged is emitted when applied entries are removed by the purge loop.
type EntriesPurged struct {
	Count     int64
	Timestamp time.Time
}

func (*EntriesPurged) eventMarker() {}
