// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	"image"
	stddraw "image/draw"

	"golang.org/x/image/draw"

	"github.com/gogpu/compositor/layers"
)

// Picture is a self-contained snapshot of one composited frame: every
// renderable layer's pixels at capture time plus the transform that placed
// them. A Picture has no ties to the host that produced it and can be
// played back at any later time on any goroutine.
type Picture struct {
	viewport layers.Size
	records  []pictureRecord
}

type pictureRecord struct {
	pixels    *image.RGBA
	transform layers.Affine
}

// capturePicture snapshots the active tree. Runs on the compositor
// goroutine; layer pixels are deep-copied so the picture outlives the
// renderer's texture store.
func capturePicture(tree *layers.TreeImpl, renderer Renderer) *Picture {
	p := &Picture{viewport: tree.DeviceViewport()}
	for _, l := range tree.RenderableLayers() {
		src := renderer.TexturePixels(l.Resource().ID())
		if src == nil {
			continue
		}
		cp := image.NewRGBA(src.Bounds())
		copy(cp.Pix, src.Pix)
		p.records = append(p.records, pictureRecord{
			pixels:    cp,
			transform: l.DrawTransform(),
		})
	}
	return p
}

// Viewport returns the device-pixel size the picture was captured at.
func (p *Picture) Viewport() layers.Size { return p.viewport }

// LayerCount returns the number of recorded layers.
func (p *Picture) LayerCount() int { return len(p.records) }

// Playback composites the recorded layers into dst, scaled from the
// capture viewport to dst's bounds.
func (p *Picture) Playback(dst *image.RGBA) {
	for i := range dst.Pix {
		dst.Pix[i] = 0
	}
	if p.viewport.IsEmpty() {
		return
	}
	b := dst.Bounds()
	sx := float32(b.Dx()) / float32(p.viewport.Width)
	sy := float32(b.Dy()) / float32(p.viewport.Height)
	fit := layers.ScaleAffine(sx, sy)

	for _, rec := range p.records {
		m := fit.Multiply(rec.transform)
		target := deviceRect(m, rec.pixels.Bounds()).Add(b.Min)
		if target.Empty() {
			continue
		}
		if target.Dx() == rec.pixels.Bounds().Dx() && target.Dy() == rec.pixels.Bounds().Dy() {
			stddraw.Draw(dst, target, rec.pixels, rec.pixels.Bounds().Min, stddraw.Over)
		} else {
			draw.NearestNeighbor.Scale(dst, target, rec.pixels, rec.pixels.Bounds(), draw.Over, nil)
		}
	}
}
