// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	"fmt"
	"image"
	stddraw "image/draw"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/compositor/layers"
	"github.com/gogpu/compositor/output"
)

// textureDestroyer releases GPU texture resources. Textures from gogpu
// implement it; the interface stays structural so the renderer does not
// depend on a concrete texture type.
type textureDestroyer interface {
	Destroy()
}

// gpuRenderer draws layer textures through a gpucontext.TextureDrawer,
// typically a gogpu draw context shared with the embedding application.
//
// Layer pixels are kept in a CPU-side copy as well: partial uploads patch
// the copy and the whole texture is pushed to the GPU in one update, which
// matches how the texture updater API works. The copy also serves picture
// capture.
type gpuRenderer struct {
	drawer   gpucontext.TextureDrawer
	device   output.PresentDevice
	viewport layers.Size
	cpu      map[uint64]*image.RGBA
	gpu      map[uint64]gpucontext.Texture
	dirty    map[uint64]bool
}

// NewGPURenderer creates a renderer that composites through drawer and
// presents through device.
func NewGPURenderer(drawer gpucontext.TextureDrawer, device output.PresentDevice) Renderer {
	return &gpuRenderer{
		drawer: drawer,
		device: device,
		cpu:    make(map[uint64]*image.RGBA),
		gpu:    make(map[uint64]gpucontext.Texture),
		dirty:  make(map[uint64]bool),
	}
}

func (r *gpuRenderer) ViewportChanged(size layers.Size) {
	r.viewport = size
	r.device.Resize(size.Width, size.Height)
}

func (r *gpuRenderer) ProcessUploads(uploads []layers.Upload) error {
	for _, u := range uploads {
		if u.Resource == nil || u.Pixels == nil {
			continue
		}
		id := u.Resource.ID()
		w, h := u.Resource.Width(), u.Resource.Height()
		tex := r.cpu[id]
		if tex == nil || tex.Bounds().Dx() != w || tex.Bounds().Dy() != h {
			tex = image.NewRGBA(image.Rect(0, 0, w, h))
			r.cpu[id] = tex
		}
		src := u.Pixels.Bounds()
		dst := image.Rect(u.DestX, u.DestY, u.DestX+src.Dx(), u.DestY+src.Dy())
		stddraw.Draw(tex, dst, u.Pixels, src.Min, stddraw.Src)
		r.dirty[id] = true
	}
	return nil
}

func (r *gpuRenderer) DrawFrame(tree *layers.TreeImpl) error {
	for _, l := range tree.RenderableLayers() {
		id := l.Resource().ID()
		tex, err := r.textureFor(id)
		if err != nil {
			return err
		}
		if tex == nil {
			continue
		}
		// The drawer places textures by position; content scaling was
		// already baked in when the layer rasterized at its contents
		// scale.
		m := l.DrawTransform()
		if err := r.drawer.DrawTexture(tex, m.C, m.F); err != nil {
			return fmt.Errorf("compositor: draw layer %d: %w", l.ID(), err)
		}
	}
	return nil
}

// textureFor returns the GPU texture for a resource, uploading the CPU
// copy if it changed since the last frame.
func (r *gpuRenderer) textureFor(id uint64) (gpucontext.Texture, error) {
	pixels := r.cpu[id]
	if pixels == nil {
		return nil, nil
	}
	tex, ok := r.gpu[id]
	if ok && !r.dirty[id] {
		return tex, nil
	}

	b := pixels.Bounds()
	if ok {
		if int(tex.Width()) == b.Dx() && int(tex.Height()) == b.Dy() {
			if updater, isUpdater := tex.(gpucontext.TextureUpdater); isUpdater {
				if err := updater.UpdateData(pixels.Pix); err != nil {
					return nil, fmt.Errorf("compositor: texture update failed: %w", err)
				}
				r.dirty[id] = false
				return tex, nil
			}
		}
		// Size changed or the texture cannot update in place.
		if d, isDestroyer := tex.(textureDestroyer); isDestroyer {
			d.Destroy()
		}
		delete(r.gpu, id)
	}

	creator := r.drawer.TextureCreator()
	if creator == nil {
		return nil, fmt.Errorf("compositor: drawer has no texture creator")
	}
	fresh, err := creator.NewTextureFromRGBA(b.Dx(), b.Dy(), pixels.Pix)
	if err != nil {
		return nil, fmt.Errorf("compositor: texture creation failed: %w", err)
	}
	r.gpu[id] = fresh
	r.dirty[id] = false
	return fresh, nil
}

func (r *gpuRenderer) SwapBuffers() error {
	return r.device.Present()
}

func (r *gpuRenderer) ReadPixels(*image.RGBA, image.Rectangle) error {
	return ErrReadbackUnsupported
}

func (r *gpuRenderer) TexturePixels(resourceID uint64) *image.RGBA {
	return r.cpu[resourceID]
}

func (r *gpuRenderer) ReleaseTextures() {
	for id, tex := range r.gpu {
		if d, ok := tex.(textureDestroyer); ok {
			d.Destroy()
		}
		delete(r.gpu, id)
	}
	r.cpu = make(map[uint64]*image.RGBA)
	r.dirty = make(map[uint64]bool)
}

var _ Renderer = (*gpuRenderer)(nil)
