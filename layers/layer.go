// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package layers

import (
	"sync/atomic"
	"time"
)

var nextLayerID atomic.Int64

// Layer is one node of the client-side scene tree.
//
// Layers are owned and mutated by the client goroutine only. During a
// commit the host walks the tree, asks each layer to update its textures,
// and pushes an immutable snapshot to the compositor side.
type Layer interface {
	// ID returns the process-unique layer identity. The compositor-side
	// mirror of this layer carries the same ID.
	ID() int64

	SetBounds(bounds Size)
	Bounds() Size

	SetPosition(pos PointF)
	Position() PointF

	// SetContentsScale sets the ratio of content pixels to layout units.
	// A layer rendered at device resolution uses the device scale factor;
	// a layer that the compositor scales up keeps 1.
	SetContentsScale(scale float32)
	ContentsScale() float32

	// ContentBounds returns the texture size in content pixels.
	ContentBounds() Size

	AddChild(child Layer)
	RemoveFromParent()
	Children() []Layer
	Parent() Layer

	// SetNeedsDisplay marks the whole layer dirty.
	SetNeedsDisplay()

	// SetNeedsDisplayInRect marks a layout-space region dirty.
	SetNeedsDisplayInRect(rect RectF)

	// NeedsDisplay reports whether any region is dirty.
	NeedsDisplay() bool

	// DrawsContent reports whether the layer produces pixels of its own.
	DrawsContent() bool

	// SetTexturePriorities requests memory priorities for the coming
	// commit. visible reports whether the hosting compositor is visible.
	SetTexturePriorities(visible bool)

	// Update paints dirty content and enqueues the resulting texture
	// uploads. It runs on the client goroutine before the commit.
	Update(queue *UpdateQueue, stats *RenderingStats)

	// CreateImpl creates the compositor-side mirror node.
	CreateImpl() *LayerImpl

	// PushPropertiesTo copies the committed state onto the mirror node.
	PushPropertiesTo(impl *LayerImpl)

	// ReleaseResources drops any texture resources the layer holds, for
	// example when the host shuts down or the output surface is lost.
	ReleaseResources()

	base() *BaseLayer
}

// BaseLayer implements the structural part of Layer. Content-producing
// layer types embed it and override the texture-related methods.
type BaseLayer struct {
	id            int64
	bounds        Size
	position      PointF
	contentsScale float32
	parent        Layer
	children      []Layer
	needsDisplay  bool
	dirtyRect     RectF

	// outer points at the embedding layer so parent/child links reference
	// the full type rather than the embedded base. Nil for a plain
	// BaseLayer.
	outer Layer
}

// NewBaseLayer creates a layer with no content and contents scale 1.
func NewBaseLayer() *BaseLayer {
	return &BaseLayer{
		id:            nextLayerID.Add(1),
		contentsScale: 1,
	}
}

func (l *BaseLayer) ID() int64 { return l.id }

// SetBounds sets the layout-space size. Growing or shrinking dirties the
// whole layer.
func (l *BaseLayer) SetBounds(bounds Size) {
	if l.bounds == bounds {
		return
	}
	l.bounds = bounds
	l.SetNeedsDisplay()
}

func (l *BaseLayer) Bounds() Size { return l.bounds }

func (l *BaseLayer) SetPosition(pos PointF) { l.position = pos }
func (l *BaseLayer) Position() PointF       { return l.position }

func (l *BaseLayer) SetContentsScale(scale float32) {
	if l.contentsScale == scale {
		return
	}
	l.contentsScale = scale
	l.SetNeedsDisplay()
}

func (l *BaseLayer) ContentsScale() float32 { return l.contentsScale }

// ContentBounds returns the layout bounds scaled to content pixels.
func (l *BaseLayer) ContentBounds() Size {
	return l.bounds.Scale(l.contentsScale)
}

// AddChild appends child, detaching it from any previous parent.
func (l *BaseLayer) AddChild(child Layer) {
	child.RemoveFromParent()
	child.base().parent = l.self()
	l.children = append(l.children, child)
}

// RemoveFromParent detaches the layer from its parent, if any.
func (l *BaseLayer) RemoveFromParent() {
	if l.parent == nil {
		return
	}
	p := l.parent.base()
	for i, c := range p.children {
		if c.ID() == l.id {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	l.parent = nil
}

func (l *BaseLayer) Children() []Layer { return l.children }
func (l *BaseLayer) Parent() Layer     { return l.parent }

// SetNeedsDisplay marks the whole layer dirty.
func (l *BaseLayer) SetNeedsDisplay() {
	l.needsDisplay = true
	l.dirtyRect = RectF{Width: float32(l.bounds.Width), Height: float32(l.bounds.Height)}
}

// SetNeedsDisplayInRect widens the dirty region by rect.
func (l *BaseLayer) SetNeedsDisplayInRect(rect RectF) {
	if rect.IsEmpty() {
		return
	}
	l.needsDisplay = true
	l.dirtyRect = l.dirtyRect.Union(rect)
}

func (l *BaseLayer) NeedsDisplay() bool { return l.needsDisplay }

// resetNeedsDisplay clears the dirty region after an update.
func (l *BaseLayer) resetNeedsDisplay() {
	l.needsDisplay = false
	l.dirtyRect = RectF{}
}

// DrawsContent is false for the plain structural layer.
func (l *BaseLayer) DrawsContent() bool { return false }

// SetTexturePriorities is a no-op for a layer with no textures.
func (l *BaseLayer) SetTexturePriorities(bool) {}

// Update is a no-op for a layer with no content.
func (l *BaseLayer) Update(*UpdateQueue, *RenderingStats) {}

// CreateImpl creates the compositor-side mirror node.
func (l *BaseLayer) CreateImpl() *LayerImpl {
	return &LayerImpl{id: l.id, contentsScale: 1}
}

// PushPropertiesTo copies geometry onto the mirror node.
func (l *BaseLayer) PushPropertiesTo(impl *LayerImpl) {
	impl.bounds = l.bounds
	impl.position = l.position
	impl.contentsScale = l.contentsScale
}

// ReleaseResources is a no-op for a layer with no textures.
func (l *BaseLayer) ReleaseResources() {}

func (l *BaseLayer) base() *BaseLayer { return l }

// bindOuter records the embedding layer. Constructors of embedding types
// call it so tree links carry the full type.
func (l *BaseLayer) bindOuter(outer Layer) { l.outer = outer }

func (l *BaseLayer) self() Layer {
	if l.outer != nil {
		return l.outer
	}
	return l
}

var _ Layer = (*BaseLayer)(nil)

// RenderingStats accumulates per-host counters across commits and frames.
type RenderingStats struct {
	CommitCount         int64
	FrameCount          int64
	PaintTime           time.Duration
	PaintedPixelCount   int64
	UpdatedTextureCount int64
}
