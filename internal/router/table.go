// Package router implements the host→target routing table consulted by the
// reverse proxy on every inbound connection and mutated exclusively by the
// deployment manager on swap-in/swap-out.
package router

import "sync"

// Table is a concurrent host→target map. The zero value is not usable; use New.
//
// Upsert/Remove/Lookup are all guarded by a single RWMutex, matching the
// mutex-over-map idiom used throughout the host panel (buildLocks in the
// deploy service, attempts in the login rate limiter) rather than a
// lock-free structure — readers never block writers longer than it takes to
// acquire the lock, which for an in-memory map is a single map access.
type Table struct {
	mu      sync.RWMutex
	targets map[string]string
}

// New creates an empty Table.
func New() *Table {
	return &Table{targets: make(map[string]string)}
}

// Upsert installs or replaces the target for host. It is atomic from the
// reader's perspective: a Lookup that starts after Upsert returns always
// observes the new target.
func (t *Table) Upsert(host, target string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.targets[host] = target
}

// Remove deletes the entry for host, if any.
func (t *Table) Remove(host string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.targets, host)
}

// Lookup returns the target for host and whether an entry exists.
func (t *Table) Lookup(host string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	target, ok := t.targets[host]
	return target, ok
}

// Len reports the number of routed hosts, mainly for status/dashboard use.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.targets)
}
