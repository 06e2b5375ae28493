// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package output

import (
	"image"
	stddraw "image/draw"

	"golang.org/x/image/draw"
)

// SoftwareDevice is a PresentDevice rendering into an in-memory RGBA
// framebuffer. It backs headless compositing and readback tests; Present
// is a no-op because the framebuffer is the final destination.
type SoftwareDevice struct {
	frame *image.RGBA
}

// NewSoftwareDevice creates a device with a width x height framebuffer.
func NewSoftwareDevice(width, height int) *SoftwareDevice {
	return &SoftwareDevice{
		frame: image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

// Resize reallocates the framebuffer. Previous contents are discarded.
func (d *SoftwareDevice) Resize(width, height int) {
	if b := d.frame.Bounds(); b.Dx() == width && b.Dy() == height {
		return
	}
	d.frame = image.NewRGBA(image.Rect(0, 0, width, height))
}

// Present implements PresentDevice.
func (d *SoftwareDevice) Present() error { return nil }

// Framebuffer returns the current frame's pixels.
func (d *SoftwareDevice) Framebuffer() *image.RGBA { return d.frame }

// Clear fills the framebuffer with zero pixels.
func (d *SoftwareDevice) Clear() {
	for i := range d.frame.Pix {
		d.frame.Pix[i] = 0
	}
}

// DrawTexture composites src over the framebuffer rectangle dst, scaling
// when the sizes differ. Nearest-neighbor keeps magnified low-resolution
// content crisp at tile boundaries.
func (d *SoftwareDevice) DrawTexture(src *image.RGBA, dst image.Rectangle) {
	if src == nil || dst.Empty() {
		return
	}
	if src.Bounds().Dx() == dst.Dx() && src.Bounds().Dy() == dst.Dy() {
		stddraw.Draw(d.frame, dst, src, src.Bounds().Min, stddraw.Over)
		return
	}
	draw.NearestNeighbor.Scale(d.frame, dst, src, src.Bounds(), draw.Over, nil)
}

// WriteFrame replaces the framebuffer contents with frame.
func (d *SoftwareDevice) WriteFrame(frame *image.RGBA) error {
	stddraw.Draw(d.frame, d.frame.Bounds(), frame, frame.Bounds().Min, stddraw.Src)
	return nil
}

// CopyToPixels reads the framebuffer region matching dst's bounds back
// into dst.
func (d *SoftwareDevice) CopyToPixels(dst *image.RGBA) {
	stddraw.Draw(dst, dst.Bounds(), d.frame, dst.Bounds().Min, stddraw.Src)
}

var _ PresentDevice = (*SoftwareDevice)(nil)
