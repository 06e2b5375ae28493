// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	"errors"
	"fmt"
	"image"
	stddraw "image/draw"
	"math"

	"golang.org/x/image/draw"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/compositor/layers"
	"github.com/gogpu/compositor/output"
)

// ErrReadbackUnsupported is returned when a renderer cannot copy its
// framebuffer back to the CPU.
var ErrReadbackUnsupported = errors.New("compositor: renderer does not support readback")

// Renderer turns a committed layer tree into presented frames. It runs on
// the compositor goroutine only.
type Renderer interface {
	// ViewportChanged resizes the render target.
	ViewportChanged(size layers.Size)

	// ProcessUploads applies a commit's texture uploads.
	ProcessUploads(uploads []layers.Upload) error

	// DrawFrame composites the tree's renderable layers into the
	// framebuffer. The tree's draw properties must be up to date.
	DrawFrame(tree *layers.TreeImpl) error

	// SwapBuffers presents the drawn frame.
	SwapBuffers() error

	// ReadPixels copies the device-space rect of the last drawn frame
	// into dst, which must be at least rect's size. Renderers without CPU
	// access to the framebuffer return ErrReadbackUnsupported.
	ReadPixels(dst *image.RGBA, rect image.Rectangle) error

	// TexturePixels returns the CPU-side pixels of a layer texture, nil
	// when the renderer holds none for that resource.
	TexturePixels(resourceID uint64) *image.RGBA

	// ReleaseTextures drops every layer texture, for example after the
	// output surface is lost.
	ReleaseTextures()
}

// newRendererFor picks a renderer for the surface's present device: a GPU
// renderer when the device can draw textures itself, otherwise a software
// compositor feeding finished frames to the device.
func newRendererFor(surface *output.OutputSurface) (Renderer, error) {
	switch dev := surface.Device().(type) {
	case gpucontext.TextureDrawer:
		return NewGPURenderer(dev, surface.Device()), nil
	case output.FrameWriter:
		return newSoftwareRenderer(surface.Device(), dev), nil
	default:
		return nil, fmt.Errorf("compositor: no renderer for present device %T", surface.Device())
	}
}

// softwareRenderer composites on the CPU into a backbuffer and hands the
// finished frame to the present device. Layer textures live in host
// memory, which also makes readback and picture capture trivial.
type softwareRenderer struct {
	device   output.PresentDevice
	writer   output.FrameWriter
	back     *image.RGBA
	textures map[uint64]*image.RGBA
}

func newSoftwareRenderer(device output.PresentDevice, writer output.FrameWriter) *softwareRenderer {
	return &softwareRenderer{
		device:   device,
		writer:   writer,
		back:     image.NewRGBA(image.Rect(0, 0, 0, 0)),
		textures: make(map[uint64]*image.RGBA),
	}
}

func (r *softwareRenderer) ViewportChanged(size layers.Size) {
	r.device.Resize(size.Width, size.Height)
	if b := r.back.Bounds(); b.Dx() == size.Width && b.Dy() == size.Height {
		return
	}
	r.back = image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
}

func (r *softwareRenderer) ProcessUploads(uploads []layers.Upload) error {
	for _, u := range uploads {
		if u.Resource == nil || u.Pixels == nil {
			continue
		}
		id := u.Resource.ID()
		w, h := u.Resource.Width(), u.Resource.Height()
		tex := r.textures[id]
		if tex == nil || tex.Bounds().Dx() != w || tex.Bounds().Dy() != h {
			tex = image.NewRGBA(image.Rect(0, 0, w, h))
			r.textures[id] = tex
		}
		src := u.Pixels.Bounds()
		dst := image.Rect(u.DestX, u.DestY, u.DestX+src.Dx(), u.DestY+src.Dy())
		stddraw.Draw(tex, dst, u.Pixels, src.Min, stddraw.Src)
	}
	return nil
}

func (r *softwareRenderer) DrawFrame(tree *layers.TreeImpl) error {
	for i := range r.back.Pix {
		r.back.Pix[i] = 0
	}
	for _, l := range tree.RenderableLayers() {
		tex := r.textures[l.Resource().ID()]
		if tex == nil {
			continue
		}
		dst := deviceRect(l.DrawTransform(), tex.Bounds())
		if dst.Empty() {
			continue
		}
		if dst.Dx() == tex.Bounds().Dx() && dst.Dy() == tex.Bounds().Dy() {
			stddraw.Draw(r.back, dst, tex, tex.Bounds().Min, stddraw.Over)
		} else {
			draw.NearestNeighbor.Scale(r.back, dst, tex, tex.Bounds(), draw.Over, nil)
		}
	}
	return nil
}

func (r *softwareRenderer) SwapBuffers() error {
	if err := r.writer.WriteFrame(r.back); err != nil {
		return err
	}
	return r.device.Present()
}

func (r *softwareRenderer) ReadPixels(dst *image.RGBA, rect image.Rectangle) error {
	target := image.Rectangle{Min: dst.Bounds().Min, Max: dst.Bounds().Min.Add(rect.Size())}
	stddraw.Draw(dst, target, r.back, rect.Min, stddraw.Src)
	return nil
}

func (r *softwareRenderer) TexturePixels(resourceID uint64) *image.RGBA {
	return r.textures[resourceID]
}

func (r *softwareRenderer) ReleaseTextures() {
	r.textures = make(map[uint64]*image.RGBA)
}

// deviceRect maps a texture's content rectangle to device pixels through
// the layer's draw transform. Draw transforms are scale plus translation;
// rotation never reaches the renderer.
func deviceRect(m layers.Affine, content image.Rectangle) image.Rectangle {
	x0, y0 := m.TransformPoint(float32(content.Min.X), float32(content.Min.Y))
	x1, y1 := m.TransformPoint(float32(content.Max.X), float32(content.Max.Y))
	return image.Rect(
		int(math.Floor(float64(x0))), int(math.Floor(float64(y0))),
		int(math.Ceil(float64(x1))), int(math.Ceil(float64(y1))),
	)
}

var _ Renderer = (*softwareRenderer)(nil)
