// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package layers

import (
	"testing"
)

func TestSizeScaleRoundsUp(t *testing.T) {
	got := Size{Width: 41, Height: 41}.Scale(1.5)
	want := Size{Width: 62, Height: 62}
	if got != want {
		t.Errorf("Scale(1.5) = %v, want %v (partial pixels round up)", got, want)
	}
}

func TestAffineCompose(t *testing.T) {
	m := TranslateAffine(3, 3).Multiply(ScaleAffine(2, 2))
	x, y := m.TransformPoint(1, 1)
	if x != 5 || y != 5 {
		t.Errorf("TransformPoint(1,1) = (%v,%v), want (5,5)", x, y)
	}
	if !IdentityAffine().IsIdentity() {
		t.Error("IdentityAffine().IsIdentity() = false")
	}
	if m.IsIdentity() {
		t.Error("composed transform reported as identity")
	}
}

// TestDeviceScaleTransforms checks the derived transforms for a tree at
// device scale factor 1.5: a 40x40 layout viewport becomes 60x60 device
// pixels, a child at layout position (2,2) lands at device (3,3), and
// content rasterized at device resolution draws one-to-one while content
// rasterized at scale 1 is magnified by 1.5.
func TestDeviceScaleTransforms(t *testing.T) {
	root := &LayerImpl{id: 1, bounds: Size{Width: 40, Height: 40}, contentsScale: 1}
	child := &LayerImpl{
		id:            2,
		bounds:        Size{Width: 10, Height: 10},
		position:      PointF{X: 2, Y: 2},
		contentsScale: 1.5,
	}
	root.AddChild(child)

	tree := NewTreeImpl()
	tree.SetRoot(root)
	tree.SetDeviceScaleFactor(1.5)
	tree.SetDeviceViewport(Size{Width: 60, Height: 60})
	tree.UpdateDrawProperties()

	// Root content at scale 1 is magnified by the compositor.
	if got, want := root.DrawTransform(), ScaleAffine(1.5, 1.5); got != want {
		t.Errorf("root DrawTransform() = %+v, want %+v", got, want)
	}

	// Child content at device resolution draws one-to-one, translated to
	// its device-pixel position.
	if got, want := child.DrawTransform(), TranslateAffine(3, 3); got != want {
		t.Errorf("child DrawTransform() = %+v, want %+v", got, want)
	}
	if got, want := child.ScreenSpaceTransform(), TranslateAffine(3, 3); got != want {
		t.Errorf("child ScreenSpaceTransform() = %+v, want %+v", got, want)
	}

	// The root render surface covers the device viewport.
	if got := tree.RenderSurfaceContentRect(); got != (RectF{Width: 60, Height: 60}) {
		t.Errorf("RenderSurfaceContentRect() = %+v, want 60x60 at origin", got)
	}
}

func TestNestedPositionsAccumulate(t *testing.T) {
	root := &LayerImpl{id: 1, contentsScale: 1}
	mid := &LayerImpl{id: 2, position: PointF{X: 10, Y: 0}, contentsScale: 1}
	leaf := &LayerImpl{id: 3, position: PointF{X: 0, Y: 5}, contentsScale: 2}
	root.AddChild(mid)
	mid.AddChild(leaf)

	tree := NewTreeImpl()
	tree.SetRoot(root)
	tree.SetDeviceScaleFactor(2)
	tree.UpdateDrawProperties()

	if got, want := leaf.ScreenSpaceTransform(), TranslateAffine(20, 10); got != want {
		t.Errorf("leaf ScreenSpaceTransform() = %+v, want %+v", got, want)
	}
	// contentsScale matches dsf, so the draw transform is pure translation.
	if got, want := leaf.DrawTransform(), TranslateAffine(20, 10); got != want {
		t.Errorf("leaf DrawTransform() = %+v, want %+v", got, want)
	}
}

func TestTreeStartsUncommitted(t *testing.T) {
	tree := NewTreeImpl()
	if got := tree.SourceFrameNumber(); got != -1 {
		t.Errorf("SourceFrameNumber() = %d, want -1", got)
	}
	if got := tree.DeviceScaleFactor(); got != 1 {
		t.Errorf("DeviceScaleFactor() = %v, want 1", got)
	}
	tree.UpdateDrawProperties() // Empty tree must not panic.
	if layers := tree.RenderableLayers(); len(layers) != 0 {
		t.Errorf("RenderableLayers() on empty tree = %d layers, want 0", len(layers))
	}
}

func TestLayerTreeStructure(t *testing.T) {
	root := NewBaseLayer()
	a := NewBaseLayer()
	b := NewBaseLayer()

	root.AddChild(a)
	root.AddChild(b)
	if len(root.Children()) != 2 {
		t.Fatalf("children = %d, want 2", len(root.Children()))
	}
	if a.Parent() == nil || a.Parent().ID() != root.ID() {
		t.Error("a.Parent() should be root")
	}

	a.RemoveFromParent()
	if len(root.Children()) != 1 || root.Children()[0].ID() != b.ID() {
		t.Error("removing a should leave only b")
	}
	if a.Parent() != nil {
		t.Error("removed layer should have no parent")
	}

	// Reparenting detaches from the old parent first.
	other := NewBaseLayer()
	other.AddChild(b)
	if len(root.Children()) != 0 {
		t.Error("b should have left root when reparented")
	}
	if b.Parent().ID() != other.ID() {
		t.Error("b.Parent() should be other")
	}
}

func TestSetNeedsDisplayInRectAccumulates(t *testing.T) {
	l := NewBaseLayer()
	l.SetBounds(Size{Width: 100, Height: 100})
	l.resetNeedsDisplay()

	l.SetNeedsDisplayInRect(RectF{X: 10, Y: 10, Width: 10, Height: 10})
	l.SetNeedsDisplayInRect(RectF{X: 50, Y: 50, Width: 10, Height: 10})
	if !l.NeedsDisplay() {
		t.Fatal("layer should be dirty")
	}
	want := RectF{X: 10, Y: 10, Width: 50, Height: 50}
	if l.dirtyRect != want {
		t.Errorf("dirtyRect = %+v, want union %+v", l.dirtyRect, want)
	}

	l.SetNeedsDisplayInRect(RectF{}) // Empty damage changes nothing.
	if l.dirtyRect != want {
		t.Errorf("empty rect widened damage to %+v", l.dirtyRect)
	}
}
