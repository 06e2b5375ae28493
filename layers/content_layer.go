// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package layers

import (
	"image"
	"math"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/compositor/resource"
)

// Painter rasterizes layer content on the client goroutine.
type Painter interface {
	// Paint fills dst with the layer's content. dst.Rect is the region to
	// paint in content pixels; scale is the layer's contents scale, so
	// painters drawing layout-space primitives know how much to magnify.
	Paint(dst *image.RGBA, scale float32)
}

// PainterFunc adapts a function to the Painter interface.
type PainterFunc func(dst *image.RGBA, scale float32)

func (f PainterFunc) Paint(dst *image.RGBA, scale float32) { f(dst, scale) }

// ContentLayer is a layer whose pixels come from a Painter and live in a
// managed texture resource.
type ContentLayer struct {
	BaseLayer
	manager *resource.Manager
	painter Painter
	res     *resource.PrioritizedResource

	// bypassPartialBudget exempts damage uploads from the per-commit
	// partial-update cap. Set by the scrollbar layer.
	bypassPartialBudget bool

	pixelsValid    bool
	lastBackingGen uint64
}

// NewContentLayer creates a painted layer backed by a resource from
// manager.
func NewContentLayer(manager *resource.Manager, painter Painter) *ContentLayer {
	l := &ContentLayer{
		BaseLayer: *NewBaseLayer(),
		manager:   manager,
		painter:   painter,
	}
	l.bindOuter(l)
	return l
}

// DrawsContent reports whether the layer has pixels to contribute.
func (l *ContentLayer) DrawsContent() bool {
	return !l.bounds.IsEmpty()
}

// SetTexturePriorities sizes the backing resource for the coming commit
// and requests a priority reflecting the host's visibility.
func (l *ContentLayer) SetTexturePriorities(visible bool) {
	if !l.DrawsContent() {
		return
	}
	cb := l.ContentBounds()
	if l.res == nil {
		l.res = l.manager.Register(cb.Width, cb.Height, gputypes.TextureFormatRGBA8Unorm)
	} else {
		l.res.SetDimensions(cb.Width, cb.Height, gputypes.TextureFormatRGBA8Unorm)
	}
	if visible {
		l.res.SetRequestPriority(resource.PriorityVisible)
	} else {
		l.res.SetRequestPriority(resource.PriorityNearby)
	}
}

// Update paints the dirty region and enqueues the upload. A layer whose
// resource was denied backing skips painting entirely; a layer whose
// backing is fresh repaints in full regardless of the dirty region.
func (l *ContentLayer) Update(queue *UpdateQueue, stats *RenderingStats) {
	if !l.DrawsContent() || l.res == nil || !l.res.AboveCutoff() {
		return
	}

	gen := l.res.BackingGeneration()
	full := !l.pixelsValid || gen != l.lastBackingGen
	if !full && !l.needsDisplay {
		return
	}

	cb := l.ContentBounds()
	damage := l.contentDamage(cb)
	if !full && damage.Empty() {
		l.resetNeedsDisplay()
		return
	}
	// Whole-layer damage is a full upload however it was requested.
	if damage == image.Rect(0, 0, cb.Width, cb.Height) {
		full = true
	}

	start := time.Now()
	if full {
		img := image.NewRGBA(image.Rect(0, 0, cb.Width, cb.Height))
		l.painter.Paint(img, l.contentsScale)
		queue.AppendFullUpload(Upload{Resource: l.res, Pixels: img})
		stats.PaintedPixelCount += int64(cb.Width) * int64(cb.Height)
	} else {
		img := image.NewRGBA(damage)
		l.painter.Paint(img, l.contentsScale)
		u := Upload{Resource: l.res, Pixels: img, DestX: damage.Min.X, DestY: damage.Min.Y}
		switch {
		case l.bypassPartialBudget:
			queue.AppendScrollbarUpload(u)
			stats.PaintedPixelCount += int64(damage.Dx()) * int64(damage.Dy())
		case queue.AppendPartialUpload(u):
			stats.PaintedPixelCount += int64(damage.Dx()) * int64(damage.Dy())
		default:
			// Out of partial budget: repaint and upload everything.
			whole := image.NewRGBA(image.Rect(0, 0, cb.Width, cb.Height))
			l.painter.Paint(whole, l.contentsScale)
			queue.AppendFullUpload(Upload{Resource: l.res, Pixels: whole})
			stats.PaintedPixelCount += int64(cb.Width) * int64(cb.Height)
		}
	}
	stats.PaintTime += time.Since(start)
	stats.UpdatedTextureCount++

	l.pixelsValid = true
	l.lastBackingGen = gen
	l.resetNeedsDisplay()
}

// contentDamage converts the layout-space dirty region to a content-pixel
// rectangle clamped to the content bounds.
func (l *ContentLayer) contentDamage(cb Size) image.Rectangle {
	s := l.contentsScale
	x0 := int(math.Floor(float64(l.dirtyRect.X * s)))
	y0 := int(math.Floor(float64(l.dirtyRect.Y * s)))
	x1 := int(math.Ceil(float64((l.dirtyRect.X + l.dirtyRect.Width) * s)))
	y1 := int(math.Ceil(float64((l.dirtyRect.Y + l.dirtyRect.Height) * s)))
	return image.Rect(x0, y0, x1, y1).Intersect(image.Rect(0, 0, cb.Width, cb.Height))
}

// CreateImpl creates the compositor-side mirror node.
func (l *ContentLayer) CreateImpl() *LayerImpl {
	return &LayerImpl{id: l.id, contentsScale: 1}
}

// PushPropertiesTo copies geometry, content flags, and the texture handle
// onto the mirror node.
func (l *ContentLayer) PushPropertiesTo(impl *LayerImpl) {
	l.BaseLayer.PushPropertiesTo(impl)
	impl.drawsContent = l.DrawsContent()
	impl.resource = l.res
}

// ReleaseResources drops the backing resource. The next commit registers
// and repaints a fresh one.
func (l *ContentLayer) ReleaseResources() {
	if l.res != nil {
		l.res.Release()
		l.res = nil
	}
	l.pixelsValid = false
}

// Resource returns the layer's texture handle, or nil before the first
// prioritization.
func (l *ContentLayer) Resource() *resource.PrioritizedResource { return l.res }

var _ Layer = (*ContentLayer)(nil)

// ScrollbarLayer is a content layer for scrollbar thumbs and tracks. Its
// damage uploads bypass the partial-update budget and its resource is
// pinned near the top of the priority order, so scrollbars keep moving
// even when content textures are starved.
type ScrollbarLayer struct {
	ContentLayer
}

// NewScrollbarLayer creates a scrollbar layer painted by painter.
func NewScrollbarLayer(manager *resource.Manager, painter Painter) *ScrollbarLayer {
	l := &ScrollbarLayer{
		ContentLayer: ContentLayer{
			BaseLayer:           *NewBaseLayer(),
			manager:             manager,
			painter:             painter,
			bypassPartialBudget: true,
		},
	}
	l.bindOuter(l)
	return l
}

// SetTexturePriorities pins the scrollbar above content priorities.
func (l *ScrollbarLayer) SetTexturePriorities(visible bool) {
	l.ContentLayer.SetTexturePriorities(visible)
	if l.res != nil {
		l.res.SetRequestPriority(resource.PriorityScrollbar)
	}
}

var _ Layer = (*ScrollbarLayer)(nil)
