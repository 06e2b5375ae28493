// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/gputypes"
)

// Manager owns the texture memory budget for one compositor.
//
// Layers register PrioritizedResources and request priorities; the host
// runs a prioritization pass before each commit, which grants backings to
// resources in priority order until the active byte limit is exhausted and
// evicts everything below the line.
//
// Manager is safe for concurrent use. The host and the compositor
// goroutine share one instance.
type Manager struct {
	mu             sync.Mutex
	resources      map[uint64]*PrioritizedResource
	nextID         uint64
	bytesLimit     uint64
	cutoff         MemoryCutoff
	memoryUseBytes uint64
	purged         bool
	purgeCallback  func()
}

// NewManager creates a manager with the given byte limit and an
// AllowAnything cutoff.
func NewManager(bytesLimit uint64) *Manager {
	return &Manager{
		resources:  make(map[uint64]*PrioritizedResource),
		nextID:     1,
		bytesLimit: bytesLimit,
		cutoff:     AllowAnything,
	}
}

// Register creates a resource of the given shape, initially unbacked and
// at the lowest priority.
func (m *Manager) Register(width, height int, format gputypes.TextureFormat) *PrioritizedResource {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &PrioritizedResource{
		manager:         m,
		id:              m.nextID,
		width:           width,
		height:          height,
		format:          format,
		requestPriority: PriorityLowest,
	}
	m.nextID++
	m.resources[r.id] = r
	return r
}

func (m *Manager) release(r *PrioritizedResource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resources[r.id]; !ok {
		return
	}
	if r.backed {
		m.memoryUseBytes -= r.bytesLocked()
		r.backed = false
	}
	delete(m.resources, r.id)
}

// SetMemoryAllocation installs the active byte limit and cutoff. The new
// allocation takes effect on the next prioritization pass.
func (m *Manager) SetMemoryAllocation(bytesLimit uint64, cutoff MemoryCutoff) {
	m.mu.Lock()
	m.bytesLimit = bytesLimit
	m.cutoff = cutoff
	m.mu.Unlock()
}

// BytesLimit returns the active byte limit.
func (m *Manager) BytesLimit() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bytesLimit
}

// MemoryUseBytes returns the bytes currently held by backed resources.
func (m *Manager) MemoryUseBytes() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memoryUseBytes
}

// SetPurgeCallback registers fn to run whenever a pass or eviction drops
// the backing of a previously backed resource. The callback runs outside
// the manager's lock.
func (m *Manager) SetPurgeCallback(fn func()) {
	m.mu.Lock()
	m.purgeCallback = fn
	m.mu.Unlock()
}

// ContentsTexturesPurged reports whether any backing has been dropped
// since the last reset. The host checks this before drawing: a tree whose
// textures were purged behind its back must commit again first.
func (m *Manager) ContentsTexturesPurged() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purged
}

// ResetPurgedState clears the purged flag, typically after a commit has
// repainted the evicted content.
func (m *Manager) ResetPurgedState() {
	m.mu.Lock()
	m.purged = false
	m.mu.Unlock()
}

// PrioritizePass grants backings in priority order within the active
// limit and evicts every backed resource below the line.
//
// The pass is idempotent: running it twice with unchanged priorities and
// limits changes nothing. The single most important resource is granted a
// backing even when it alone exceeds the limit, so a huge root layer still
// makes forward progress instead of flickering between backed and evicted.
func (m *Manager) PrioritizePass() {
	m.mu.Lock()

	sorted := make([]*PrioritizedResource, 0, len(m.resources))
	for _, r := range m.resources {
		sorted = append(sorted, r)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].requestPriority != sorted[j].requestPriority {
			return sorted[i].requestPriority < sorted[j].requestPriority
		}
		return sorted[i].id < sorted[j].id
	})

	allowAny := m.cutoff != AllowNothing && m.bytesLimit > 0
	var used uint64
	evicted := 0
	allBacked := true
	for i, r := range sorted {
		grant := false
		if allowAny {
			if used+r.bytesLocked() <= m.bytesLimit {
				grant = true
			} else if i == 0 {
				// Forward-progress exception for the top resource.
				grant = true
			}
		}
		r.aboveCutoff = grant
		if grant {
			used += r.bytesLocked()
			if !r.backed {
				r.backed = true
				r.backingGen++
			}
		} else {
			if r.backed {
				evicted++
				r.backed = false
			}
			allBacked = false
		}
	}
	m.memoryUseBytes = used

	if evicted > 0 {
		m.purged = true
	} else if allBacked {
		m.purged = false
	}

	limit := m.bytesLimit
	cb := m.purgeCallback
	m.mu.Unlock()

	if evicted > 0 {
		slogger().Warn("resource: evicted backings under memory pressure",
			"evicted", evicted, "inUse", used, "limit", limit)
		if cb != nil {
			cb()
		}
	}
}

// EvictAll drops every backing, for example when the output surface is
// lost and the GPU textures are gone regardless of what was granted.
func (m *Manager) EvictAll() {
	m.mu.Lock()
	evicted := 0
	for _, r := range m.resources {
		if r.backed {
			evicted++
			r.backed = false
		}
		r.aboveCutoff = false
	}
	m.memoryUseBytes = 0
	if evicted > 0 {
		m.purged = true
	}
	cb := m.purgeCallback
	m.mu.Unlock()

	if evicted > 0 {
		slogger().Warn("resource: evicted all backings", "evicted", evicted)
		if cb != nil {
			cb()
		}
	}
}

// Stats summarizes the manager's state at one instant.
type Stats struct {
	ResourceCount int
	BytesInUse    uint64
	BytesLimit    uint64
	Purged        bool
}

// Stats returns a snapshot of the manager's state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		ResourceCount: len(m.resources),
		BytesInUse:    m.memoryUseBytes,
		BytesLimit:    m.bytesLimit,
		Purged:        m.purged,
	}
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return fmt.Sprintf("resource.Manager{resources: %d, in use: %d B, limit: %d B, purged: %v}",
		s.ResourceCount, s.BytesInUse, s.BytesLimit, s.Purged)
}
