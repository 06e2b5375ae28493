// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpupresent implements an output present device on top of
// gogpu/wgpu's hardware abstraction layer. Composited frames are uploaded
// into a GPU texture that the embedding window system samples from.
package wgpupresent

import (
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/wgpu/hal"
	types "github.com/gogpu/gputypes"

	"github.com/gogpu/compositor/output"
)

// Device presents frames by uploading them into a wgpu texture.
//
// Device is safe for concurrent use; texture reallocation and uploads are
// serialized by a mutex.
type Device struct {
	mu      sync.Mutex
	device  hal.Device
	queue   hal.Queue
	texture hal.Texture
	width   int
	height  int
}

// NewDevice creates a present device over the given hal device and queue.
// The backing texture is allocated on the first Resize.
func NewDevice(device hal.Device, queue hal.Queue) *Device {
	return &Device{device: device, queue: queue}
}

// Resize reallocates the frame texture for a new device-pixel size.
func (d *Device) Resize(width, height int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.width == width && d.height == height && d.texture != nil {
		return
	}
	if d.texture != nil {
		d.device.DestroyTexture(d.texture)
		d.texture = nil
	}
	d.width = width
	d.height = height
	if width <= 0 || height <= 0 {
		return
	}

	desc := &hal.TextureDescriptor{
		Label: "compositor-frame",
		Size: hal.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     types.TextureDimension2D,
		Format:        types.TextureFormatRGBA8Unorm,
		Usage:         types.TextureUsageCopySrc | types.TextureUsageCopyDst | types.TextureUsageStorageBinding,
	}
	texture, err := d.device.CreateTexture(desc)
	if err != nil {
		// Leave the device textureless; WriteFrame reports the failure.
		return
	}
	d.texture = texture
}

// WriteFrame uploads a finished frame. The image must match the size of
// the last Resize.
func (d *Device) WriteFrame(frame *image.RGBA) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.texture == nil {
		return fmt.Errorf("wgpupresent: no frame texture (size %dx%d)", d.width, d.height)
	}
	b := frame.Bounds()
	if b.Dx() != d.width || b.Dy() != d.height {
		return fmt.Errorf("wgpupresent: frame is %dx%d, texture is %dx%d",
			b.Dx(), b.Dy(), d.width, d.height)
	}

	dst := &hal.ImageCopyTexture{
		Texture:  d.texture,
		MipLevel: 0,
		Origin:   hal.Origin3D{X: 0, Y: 0, Z: 0},
		Aspect:   types.TextureAspectAll,
	}
	layout := &hal.ImageDataLayout{
		Offset:       0,
		BytesPerRow:  uint32(frame.Stride),
		RowsPerImage: uint32(b.Dy()),
	}
	size := &hal.Extent3D{
		Width:              uint32(b.Dx()),
		Height:             uint32(b.Dy()),
		DepthOrArrayLayers: 1,
	}
	d.queue.WriteTexture(dst, frame.Pix, layout, size)
	return nil
}

// Present flushes the queued uploads to the GPU.
func (d *Device) Present() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.texture == nil {
		return nil
	}
	if _, err := d.queue.Submit(nil); err != nil {
		return fmt.Errorf("wgpupresent: submit failed: %w", err)
	}
	return nil
}

// Texture returns the frame texture the window system samples from, nil
// before the first successful Resize.
func (d *Device) Texture() hal.Texture {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.texture
}

var (
	_ output.PresentDevice = (*Device)(nil)
	_ output.FrameWriter   = (*Device)(nil)
)

// Close releases the frame texture.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.texture != nil {
		d.device.DestroyTexture(d.texture)
		d.texture = nil
	}
}
