package codecache

import (
	"sync"

	uberatomic "go.uber.org/atomic"
)

// RootEntry names a boot-region bundle that contains at least one direct
// call into the baseline region. Eviction re-examines every call site in
// Caller looking for baseline targets that moved.
type RootEntry struct {
	Caller *Bundle
}

const rootTableInitialCapacity = 10

// RootTable is a growable list of boot-to-baseline call-site roots. It grows
// by doubling starting at a small constant and is never shrunk: boot-region
// callers are immortal, so once registered an entry is never removed.
type RootTable struct {
	mu      sync.Mutex
	entries []RootEntry
	n       int
	size    uberatomic.Int64
}

// NewRootTable creates an empty root table.
func NewRootTable() *RootTable {
	return &RootTable{entries: make([]RootEntry, rootTableInitialCapacity)}
}

// Append registers caller as having a direct call into the baseline region.
func (rt *RootTable) Append(caller *Bundle) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.n == len(rt.entries) {
		grown := make([]RootEntry, len(rt.entries)*2)
		copy(grown, rt.entries)
		rt.entries = grown
	}
	rt.entries[rt.n] = RootEntry{Caller: caller}
	rt.n++
	rt.size.Store(int64(rt.n))
}

// Len returns the number of registered entries.
func (rt *RootTable) Len() int { return int(rt.size.Load()) }

// Snapshot returns a copy of the registered entries.
func (rt *RootTable) Snapshot() []RootEntry {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]RootEntry, rt.n)
	copy(out, rt.entries[:rt.n])
	return out
}

// ForEach iterates entries in registration order. It is intended to be
// called only while every other mutator is stopped at a safepoint, so it
// takes no lock; concurrent Append during a ForEach is a usage error.
func (rt *RootTable) ForEach(fn func(RootEntry) bool) {
	for i := 0; i < rt.n; i++ {
		if !fn(rt.entries[i]) {
			return
		}
	}
}
