// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package resource manages the compositor's texture memory: each layer
// registers prioritized resources, and a manager grants GPU backings to the
// most important ones within a byte budget, evicting the rest.
package resource

import "fmt"

// MemoryCutoff classifies which priority bands may hold backings under the
// current memory allocation.
type MemoryCutoff int32

const (
	// AllowNothing grants no backings at all.
	AllowNothing MemoryCutoff = iota

	// AllowAbsoluteMinimum grants only what is required for correctness,
	// such as visible content.
	AllowAbsoluteMinimum

	// AllowNiceToHave additionally grants content near the viewport.
	AllowNiceToHave

	// AllowAnything grants every requested backing that fits the budget.
	AllowAnything
)

// String returns the cutoff name.
func (c MemoryCutoff) String() string {
	switch c {
	case AllowNothing:
		return "AllowNothing"
	case AllowAbsoluteMinimum:
		return "AllowAbsoluteMinimum"
	case AllowNiceToHave:
		return "AllowNiceToHave"
	case AllowAnything:
		return "AllowAnything"
	default:
		return fmt.Sprintf("MemoryCutoff(%d)", int32(c))
	}
}

// ManagedMemoryPolicy describes the texture budget for the visible and
// hidden states. The host applies the side matching its current visibility
// to the resource manager.
type ManagedMemoryPolicy struct {
	BytesLimitWhenVisible    uint64
	CutoffWhenVisible        MemoryCutoff
	BytesLimitWhenNotVisible uint64
	CutoffWhenNotVisible     MemoryCutoff
}

// NewManagedMemoryPolicy returns a policy that allows anything up to
// bytesLimit while visible and nothing while hidden.
func NewManagedMemoryPolicy(bytesLimit uint64) ManagedMemoryPolicy {
	return ManagedMemoryPolicy{
		BytesLimitWhenVisible: bytesLimit,
		CutoffWhenVisible:     AllowAnything,
		CutoffWhenNotVisible:  AllowNothing,
	}
}

// Priority orders resources for memory grants. Lower values are more
// important.
type Priority int32

const (
	// PriorityHighest is reserved for resources that must never lose
	// their backing while the tree is drawable.
	PriorityHighest Priority = -(1 << 15)

	// PriorityScrollbar keeps scrollbars above regular content so they
	// survive memory pressure during fast scrolls.
	PriorityScrollbar Priority = PriorityHighest + 1

	// PriorityVisible marks content inside the viewport.
	PriorityVisible Priority = 0

	// PriorityNearby marks content just outside the viewport that is
	// nice to have pre-rendered.
	PriorityNearby Priority = 1

	// PriorityLowest marks content nothing currently needs.
	PriorityLowest Priority = 1 << 15
)
