// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package layers

import (
	"github.com/gogpu/compositor/resource"
)

// LayerImpl is the compositor-side mirror of one Layer. It is built during
// a commit and read-only afterwards; only the compositor goroutine touches
// it.
type LayerImpl struct {
	id            int64
	bounds        Size
	position      PointF
	contentsScale float32
	drawsContent  bool
	resource      *resource.PrioritizedResource
	children      []*LayerImpl

	// Derived by TreeImpl.UpdateDrawProperties.
	drawTransform        Affine
	screenSpaceTransform Affine
}

// ID returns the identity shared with the client-side layer.
func (l *LayerImpl) ID() int64 { return l.id }

// Bounds returns the layout-space size.
func (l *LayerImpl) Bounds() Size { return l.bounds }

// Position returns the layout-space position in the parent.
func (l *LayerImpl) Position() PointF { return l.position }

// ContentsScale returns the content-pixels-per-layout-unit ratio.
func (l *LayerImpl) ContentsScale() float32 { return l.contentsScale }

// DrawsContent reports whether the layer contributes pixels.
func (l *LayerImpl) DrawsContent() bool { return l.drawsContent }

// Resource returns the texture handle, nil for structural layers.
func (l *LayerImpl) Resource() *resource.PrioritizedResource { return l.resource }

// AddChild appends a child node.
func (l *LayerImpl) AddChild(child *LayerImpl) {
	l.children = append(l.children, child)
}

// Children returns the child nodes in paint order.
func (l *LayerImpl) Children() []*LayerImpl { return l.children }

// DrawTransform maps the layer's content pixels to device pixels. It is
// valid after UpdateDrawProperties.
func (l *LayerImpl) DrawTransform() Affine { return l.drawTransform }

// ScreenSpaceTransform maps the layer's device-resolution origin space to
// device pixels. It is valid after UpdateDrawProperties.
func (l *LayerImpl) ScreenSpaceTransform() Affine { return l.screenSpaceTransform }

// CanDraw reports whether the layer has valid pixels to draw this frame.
func (l *LayerImpl) CanDraw() bool {
	return l.drawsContent && l.resource != nil && l.resource.HaveBacking()
}

// TreeImpl is the compositor-side layer tree. The active tree is the one
// frames are drawn from; a commit builds a replacement and swaps it in
// atomically from the compositor goroutine's point of view.
type TreeImpl struct {
	root              *LayerImpl
	deviceViewport    Size
	deviceScaleFactor float32
	sourceFrameNumber int
}

// NewTreeImpl creates an empty tree at device scale 1. The source frame
// number starts at -1: no commit has populated the tree yet.
func NewTreeImpl() *TreeImpl {
	return &TreeImpl{
		deviceScaleFactor: 1,
		sourceFrameNumber: -1,
	}
}

// SetRoot installs the root node.
func (t *TreeImpl) SetRoot(root *LayerImpl) { t.root = root }

// Root returns the root node, nil for an empty tree.
func (t *TreeImpl) Root() *LayerImpl { return t.root }

// SetDeviceViewport sets the output size in device pixels.
func (t *TreeImpl) SetDeviceViewport(size Size) { t.deviceViewport = size }

// DeviceViewport returns the output size in device pixels.
func (t *TreeImpl) DeviceViewport() Size { return t.deviceViewport }

// SetDeviceScaleFactor sets the device-pixels-per-layout-unit ratio.
func (t *TreeImpl) SetDeviceScaleFactor(dsf float32) { t.deviceScaleFactor = dsf }

// DeviceScaleFactor returns the device-pixels-per-layout-unit ratio.
func (t *TreeImpl) DeviceScaleFactor() float32 { return t.deviceScaleFactor }

// SetSourceFrameNumber records which commit produced the tree.
func (t *TreeImpl) SetSourceFrameNumber(n int) { t.sourceFrameNumber = n }

// SourceFrameNumber returns the commit number that produced the tree, or
// -1 before the first commit.
func (t *TreeImpl) SourceFrameNumber() int { return t.sourceFrameNumber }

// RenderSurfaceContentRect returns the root render target rectangle in
// device pixels.
func (t *TreeImpl) RenderSurfaceContentRect() RectF {
	return RectF{
		Width:  float32(t.deviceViewport.Width),
		Height: float32(t.deviceViewport.Height),
	}
}

// UpdateDrawProperties derives draw and screen-space transforms for every
// layer.
//
// A layer's origin in device pixels is its parent's origin translated by
// the layer's position times the device scale factor. The draw transform
// additionally scales content pixels up or down by the ratio of the device
// scale factor to the layer's contents scale: a layer rasterized at device
// resolution draws one-to-one, a layer rasterized at scale 1 is magnified
// by the compositor.
func (t *TreeImpl) UpdateDrawProperties() {
	if t.root == nil {
		return
	}
	t.updateLayer(t.root, IdentityAffine())
}

func (t *TreeImpl) updateLayer(l *LayerImpl, parent Affine) {
	dsf := t.deviceScaleFactor
	origin := parent.Multiply(TranslateAffine(l.position.X*dsf, l.position.Y*dsf))
	l.screenSpaceTransform = origin

	cs := l.contentsScale
	if cs == 0 {
		cs = 1
	}
	l.drawTransform = origin.Multiply(ScaleAffine(dsf/cs, dsf/cs))

	for _, c := range l.children {
		t.updateLayer(c, origin)
	}
}

// RenderableLayers returns the drawable layers in paint order, back to
// front.
func (t *TreeImpl) RenderableLayers() []*LayerImpl {
	var out []*LayerImpl
	var walk func(*LayerImpl)
	walk = func(l *LayerImpl) {
		if l.CanDraw() {
			out = append(out, l)
		}
		for _, c := range l.children {
			walk(c)
		}
	}
	if t.root != nil {
		walk(t.root)
	}
	return out
}
