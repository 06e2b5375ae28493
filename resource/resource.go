// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"github.com/gogpu/gputypes"
)

// PrioritizedResource is a handle to one texture-sized chunk of the
// compositor's memory budget.
//
// A resource describes its dimensions and format, requests a priority each
// frame, and is granted or denied a backing during the manager's
// prioritization pass. All methods are safe for concurrent use; the manager
// serializes state changes under its own lock.
type PrioritizedResource struct {
	manager *Manager
	id      uint64

	// Guarded by manager.mu.
	width           int
	height          int
	format          gputypes.TextureFormat
	requestPriority Priority
	aboveCutoff     bool
	backed          bool
	backingGen      uint64
}

// ID returns the manager-scoped identity of the resource. IDs are assigned
// in registration order and never reused.
func (r *PrioritizedResource) ID() uint64 { return r.id }

// SetDimensions updates the pixel size and format. Changing either drops
// the current backing: the old pixels are the wrong shape to draw with.
func (r *PrioritizedResource) SetDimensions(width, height int, format gputypes.TextureFormat) {
	r.manager.mu.Lock()
	defer r.manager.mu.Unlock()
	if r.width == width && r.height == height && r.format == format {
		return
	}
	if r.backed {
		r.manager.memoryUseBytes -= r.bytesLocked()
		r.backed = false
	}
	r.width = width
	r.height = height
	r.format = format
}

// Width returns the pixel width.
func (r *PrioritizedResource) Width() int {
	r.manager.mu.Lock()
	defer r.manager.mu.Unlock()
	return r.width
}

// Height returns the pixel height.
func (r *PrioritizedResource) Height() int {
	r.manager.mu.Lock()
	defer r.manager.mu.Unlock()
	return r.height
}

// Format returns the texture format.
func (r *PrioritizedResource) Format() gputypes.TextureFormat {
	r.manager.mu.Lock()
	defer r.manager.mu.Unlock()
	return r.format
}

// Bytes returns the memory footprint of the resource's backing.
func (r *PrioritizedResource) Bytes() uint64 {
	r.manager.mu.Lock()
	defer r.manager.mu.Unlock()
	return r.bytesLocked()
}

func (r *PrioritizedResource) bytesLocked() uint64 {
	return uint64(r.width) * uint64(r.height) * uint64(formatBytesPerPixel(r.format))
}

// SetRequestPriority records the priority for the next prioritization
// pass. It does not take effect until the manager runs the pass.
func (r *PrioritizedResource) SetRequestPriority(p Priority) {
	r.manager.mu.Lock()
	r.requestPriority = p
	r.manager.mu.Unlock()
}

// RequestPriority returns the most recently requested priority.
func (r *PrioritizedResource) RequestPriority() Priority {
	r.manager.mu.Lock()
	defer r.manager.mu.Unlock()
	return r.requestPriority
}

// AboveCutoff reports whether the last prioritization pass placed the
// resource above the memory cutoff.
func (r *PrioritizedResource) AboveCutoff() bool {
	r.manager.mu.Lock()
	defer r.manager.mu.Unlock()
	return r.aboveCutoff
}

// HaveBacking reports whether the resource currently holds a backing and
// its pixels are safe to draw.
func (r *PrioritizedResource) HaveBacking() bool {
	r.manager.mu.Lock()
	defer r.manager.mu.Unlock()
	return r.backed
}

// BackingGeneration counts how many times the resource has been granted a
// fresh backing. A fresh backing holds undefined pixels, so a consumer that
// cached contents against an earlier generation must repaint in full.
func (r *PrioritizedResource) BackingGeneration() uint64 {
	r.manager.mu.Lock()
	defer r.manager.mu.Unlock()
	return r.backingGen
}

// Release unregisters the resource and frees its backing. The resource
// must not be used afterwards.
func (r *PrioritizedResource) Release() {
	r.manager.release(r)
}

// formatBytesPerPixel returns the per-pixel footprint of the formats the
// compositor allocates.
func formatBytesPerPixel(format gputypes.TextureFormat) int {
	switch format {
	case gputypes.TextureFormatR8Unorm:
		return 1
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm:
		return 4
	default:
		return 4
	}
}
