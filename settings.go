// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import "time"

// Settings configures a LayerTreeHost at construction. The zero value is
// not useful; start from DefaultSettings.
type Settings struct {
	// RefreshRate is the display refresh rate in frames per second used
	// for begin-frame emulation.
	RefreshRate float64

	// ThrottleFrameProduction aligns frame production to the refresh
	// rate. Disabled, frames run back-to-back as fast as the output
	// acknowledges swaps.
	ThrottleFrameProduction bool

	// MaxFramesPending caps unacknowledged swaps before frame production
	// pauses. Zero disables the cap.
	MaxFramesPending int

	// MaxPartialTextureUpdates caps partial texture uploads per commit.
	// The effective cap is the smaller of this and the output surface's
	// capability.
	MaxPartialTextureUpdates int

	// MemoryBudgetBytes is the default texture memory budget while
	// visible. SetMemoryPolicy overrides it.
	MemoryBudgetBytes uint64
}

// DefaultSettings returns the settings used by desktop embedders.
func DefaultSettings() Settings {
	return Settings{
		RefreshRate:              60,
		ThrottleFrameProduction:  true,
		MaxFramesPending:         2,
		MaxPartialTextureUpdates: 12,
		MemoryBudgetBytes:        128 << 20,
	}
}

// frameInterval converts the refresh rate to a tick interval.
func (s Settings) frameInterval() time.Duration {
	if s.RefreshRate <= 0 {
		return 16 * time.Millisecond
	}
	return time.Duration(float64(time.Second) / s.RefreshRate)
}
