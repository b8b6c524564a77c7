// Package core defines the queue entry model, the status enum, the
// client-facing Service surface, the server-side Storage interface, and the
// events emitted by the replay worker.
//
// The other syncqueue packages depend only on core; core depends on nothing
// but the standard library and gorm struct tags.
package core
