// Package queue implements the bounded admission set: a fixed-capacity
// in-flight table keyed by asset id, guarding backpressure ahead of the
// Worker Manager dispatch.
package queue

import (
	"errors"
	"sync"
)

// ErrFull is returned by Admit when the set is already at capacity and
// assetID is not already admitted.
var ErrFull = errors.New("queue full")

// Admission is the bounded in-flight set. Default capacity is 100. A
// second caller for an asset id already admitted joins that entry's
// refcount instead of being rejected as if the set were full; actual
// dispatch dedup for a shared asset id happens one layer down, in the
// Worker Manager's pending table.
type Admission struct {
	mu       sync.Mutex
	capacity int
	refcount map[string]int // per-asset-id reference count; capacity accounting only
}

// New builds an Admission set with the given capacity.
func New(capacity int) *Admission {
	return &Admission{
		capacity: capacity,
		refcount: make(map[string]int),
	}
}

// Admit reserves a slot for assetID, or joins an existing one. joined is
// true when another caller already holds this asset id's slot; this only
// affects capacity accounting here; dispatch-level dedup for a shared
// asset id is the Worker Manager's pending table, not this set's concern.
// Returns ErrFull only when the set is at capacity and assetID is not
// already present.
func (a *Admission) Admit(assetID string) (joined bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n, ok := a.refcount[assetID]; ok {
		a.refcount[assetID] = n + 1
		return true, nil
	}
	if len(a.refcount) >= a.capacity {
		return false, ErrFull
	}
	a.refcount[assetID] = 1
	return false, nil
}

// Release drops one reference to assetID's slot, freeing it once every
// joined caller has released, on completion, timeout, or terminal
// rejection.
func (a *Admission) Release(assetID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n, ok := a.refcount[assetID]
	if !ok {
		return
	}
	if n <= 1 {
		delete(a.refcount, assetID)
		return
	}
	a.refcount[assetID] = n - 1
}

// Len reports the current number of distinct in-flight asset ids.
func (a *Admission) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.refcount)
}
