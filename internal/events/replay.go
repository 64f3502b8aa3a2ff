// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

package events

import (
	"sync"
)

// ReplayBuffer retains the most recent world update events per
// mutable-world unit so reconnecting clients can be caught up with
// exactly the deltas they missed. When a client's gap has rotated out
// of the buffer, the connection manager falls back to a full snapshot.
type ReplayBuffer struct {
	capacity int

	mu    sync.RWMutex
	rings map[string][]*WorldUpdateEvent
}

// DefaultReplayCapacity bounds the retained events per unit.
const DefaultReplayCapacity = 128

// NewReplayBuffer creates a buffer retaining up to capacity events per
// unit.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = DefaultReplayCapacity
	}
	return &ReplayBuffer{
		capacity: capacity,
		rings:    make(map[string][]*WorldUpdateEvent),
	}
}

// Append records a committed event for its unit. Events must arrive in
// version order per unit; the store's critical section guarantees this
// as long as the publisher appends while processing commits serially
// per unit. Out-of-order or duplicate versions are dropped.
func (b *ReplayBuffer) Append(unitKey string, e *WorldUpdateEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ring := b.rings[unitKey]
	if n := len(ring); n > 0 && e.Version <= ring[n-1].Version {
		return
	}
	ring = append(ring, e)
	if len(ring) > b.capacity {
		ring = ring[len(ring)-b.capacity:]
	}
	b.rings[unitKey] = ring
}

// Since returns, in order, every buffered event with version greater
// than afterVersion, and ok=true when that run is contiguous from
// afterVersion (nothing has rotated out). ok=false means the caller
// must fall back to a full snapshot.
func (b *ReplayBuffer) Since(unitKey string, afterVersion uint64) ([]*WorldUpdateEvent, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ring := b.rings[unitKey]
	if len(ring) == 0 {
		return nil, afterVersion == 0
	}

	latest := ring[len(ring)-1].Version
	if afterVersion >= latest {
		return nil, true
	}
	oldest := ring[0].Version
	if afterVersion+1 < oldest {
		return nil, false
	}

	out := make([]*WorldUpdateEvent, 0, latest-afterVersion)
	for _, e := range ring {
		if e.Version > afterVersion {
			out = append(out, e)
		}
	}
	// Verify contiguity; a reset drops the version counter and makes
	// the buffered run unusable for replay.
	want := afterVersion + 1
	for _, e := range out {
		if e.Version != want {
			return nil, false
		}
		want++
	}
	return out, true
}

// Drop forgets a unit's retained events. Called on administrative
// reset, where the version counter restarts and buffered deltas no
// longer describe the document.
func (b *ReplayBuffer) Drop(unitKey string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.rings, unitKey)
}

// Latest returns the newest buffered version for a unit, or 0.
func (b *ReplayBuffer) Latest(unitKey string) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ring := b.rings[unitKey]
	if len(ring) == 0 {
		return 0
	}
	return ring[len(ring)-1].Version
}
