// Package connectivity wraps the host's online/offline signal into a single
// advisory flag, optionally combined with an active health probe of the
// backend.
package connectivity

import "sync"

// Monitor holds the advisory "believed offline" flag. The flag is a hint: a
// client can be online by this flag and still fail a request, which the
// dispatcher handles by falling back to enqueueing. The monitor itself makes
// no network calls and cannot fail.
type Monitor struct {
	mu      sync.RWMutex
	offline bool
	subs    []func(online bool)
}

// NewMonitor creates a monitor initialized from the host's current
// connectivity state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{offline: !online}
}

// SetOnline records a host "became online" transition.
func (m *Monitor) SetOnline() { m.set(true) }

// SetOffline records a host "became offline" transition.
func (m *Monitor) SetOffline() { m.set(false) }

func (m *Monitor) set(online bool) {
	m.mu.Lock()
	changed := m.offline == online
	m.offline = !online
	subs := make([]func(bool), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range subs {
		fn(online)
	}
}

// Offline reports whether the client is currently believed to be offline.
func (m *Monitor) Offline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.offline
}

// Online reports the inverse of Offline.
func (m *Monitor) Online() bool {
	return !m.Offline()
}

// Notify registers a callback invoked on every online/offline transition.
// Callbacks run synchronously on the goroutine that signalled the transition.
func (m *Monitor) Notify(fn func(online bool)) {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
}
