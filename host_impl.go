// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	"errors"
	"image"
	"time"

	"github.com/gogpu/compositor/layers"
	"github.com/gogpu/compositor/output"
	"github.com/gogpu/compositor/resource"
	"github.com/gogpu/compositor/taskqueue"
)

var (
	// ErrNoOutputSurface is returned when drawing is requested before an
	// output surface exists.
	ErrNoOutputSurface = errors.New("compositor: no output surface")

	// ErrNothingToDraw is returned when a forced draw finds no committed
	// content.
	ErrNothingToDraw = errors.New("compositor: nothing to draw")
)

// LayerTreeHostImpl is the compositor-goroutine half of a LayerTreeHost.
// It owns the active layer tree, decides when frames are produced, and
// drives the renderer and output surface. Every method runs on the
// compositor runner; the host side reaches it only by posting tasks.
type LayerTreeHostImpl struct {
	settings Settings
	manager  *resource.Manager
	runner   taskqueue.Runner

	activeTree *layers.TreeImpl
	renderer   Renderer
	surface    *output.OutputSurface

	visible     bool
	needsRedraw bool

	deviceViewport layers.Size

	frameCount int64

	// readbackAllocations counts temporary readback surfaces in flight.
	// It must return to zero after every CompositeAndReadback.
	readbackAllocations int

	// Host-side notification hooks. Each posts to the main runner.
	onSwapComplete func()
	onDidDraw      func()
	onLostSurface  func()
}

func newLayerTreeHostImpl(settings Settings, manager *resource.Manager, runner taskqueue.Runner) *LayerTreeHostImpl {
	return &LayerTreeHostImpl{
		settings:   settings,
		manager:    manager,
		runner:     runner,
		activeTree: layers.NewTreeImpl(),
	}
}

// initializeOutputSurface binds the surface and starts begin-frame
// emulation. Renderer selection happens inside the bind, via
// DeferredInitialize.
func (impl *LayerTreeHostImpl) initializeOutputSurface(surface *output.OutputSurface) error {
	if !surface.BindToClient(impl) {
		return output.ErrContextLost
	}
	impl.surface = surface

	surface.SetMaxFramesPending(impl.settings.MaxFramesPending)
	surface.InitializeBeginFrameEmulation(
		impl.runner,
		impl.settings.ThrottleFrameProduction,
		impl.settings.frameInterval(),
	)

	Logger().Info("compositor: output surface initialized",
		"maxPartialTextureUpdates", surface.Capabilities().MaxPartialTextureUpdates,
		"throttled", impl.settings.ThrottleFrameProduction)
	return nil
}

// DeferredInitialize implements output.Client. It runs during the surface
// bind and again on context replacement, picking a renderer for the
// surface's present device.
func (impl *LayerTreeHostImpl) DeferredInitialize(surface *output.OutputSurface) bool {
	renderer, err := newRendererFor(surface)
	if err != nil {
		Logger().Warn("compositor: renderer selection failed", "error", err)
		return false
	}
	impl.renderer = renderer
	if !impl.deviceViewport.IsEmpty() {
		renderer.ViewportChanged(impl.deviceViewport)
	}
	return true
}

// commit atomically replaces the active tree with a snapshot of the host's
// layer tree and applies the commit's texture uploads. The host goroutine
// is blocked for the duration, which is what makes the swap atomic.
func (impl *LayerTreeHostImpl) commit(
	root layers.Layer,
	uploads []layers.Upload,
	sourceFrameNumber int,
	deviceScaleFactor float32,
) error {
	tree := layers.NewTreeImpl()
	if root != nil {
		tree.SetRoot(buildImplTree(root))
	}
	tree.SetDeviceViewport(impl.deviceViewport)
	tree.SetDeviceScaleFactor(deviceScaleFactor)
	tree.SetSourceFrameNumber(sourceFrameNumber)

	if impl.renderer != nil {
		if err := impl.renderer.ProcessUploads(uploads); err != nil {
			return err
		}
	}
	impl.activeTree = tree

	impl.needsRedraw = true
	if impl.visible && impl.surface != nil {
		impl.surface.SetNeedsBeginFrame(true)
	}
	Logger().Debug("compositor: committed",
		"sourceFrameNumber", sourceFrameNumber,
		"uploads", len(uploads))
	return nil
}

func buildImplTree(l layers.Layer) *layers.LayerImpl {
	impl := l.CreateImpl()
	l.PushPropertiesTo(impl)
	for _, c := range l.Children() {
		impl.AddChild(buildImplTree(c))
	}
	return impl
}

// canDraw reports whether a meaningful frame can be produced right now.
func (impl *LayerTreeHostImpl) canDraw() bool {
	return impl.activeTree.Root() != nil &&
		!impl.deviceViewport.IsEmpty() &&
		impl.renderer != nil &&
		!impl.manager.ContentsTexturesPurged()
}

// BeginFrame implements output.Client. It runs once per paced frame.
func (impl *LayerTreeHostImpl) BeginFrame(frameTime time.Time) {
	if !impl.visible || !impl.needsRedraw || !impl.canDraw() {
		// Nothing will swap for this begin-frame; reset the stream so it
		// does not stay wedged on the undelivered frame.
		impl.surface.SetNeedsBeginFrame(impl.visible && impl.needsRedraw)
		return
	}
	if err := impl.drawAndSwap(); err != nil {
		Logger().Warn("compositor: draw failed", "error", err)
		return
	}
	impl.needsRedraw = false
	impl.surface.SetNeedsBeginFrame(false)
	if impl.onDidDraw != nil {
		impl.onDidDraw()
	}
}

func (impl *LayerTreeHostImpl) drawAndSwap() error {
	impl.activeTree.UpdateDrawProperties()
	if err := impl.renderer.DrawFrame(impl.activeTree); err != nil {
		return err
	}
	if err := impl.renderer.SwapBuffers(); err != nil {
		return err
	}
	impl.surface.DidSwapBuffers()
	impl.frameCount++
	return nil
}

// readback forces one frame and copies the device pixels under rect into
// dst. Unlike BeginFrame it ignores visibility and redraw state: the
// caller asked for pixels.
func (impl *LayerTreeHostImpl) readback(dst *image.RGBA, rect image.Rectangle) error {
	if impl.renderer == nil {
		return ErrNoOutputSurface
	}
	if impl.activeTree.Root() == nil {
		return ErrNothingToDraw
	}
	impl.readbackAllocations++
	defer func() { impl.readbackAllocations-- }()

	impl.activeTree.UpdateDrawProperties()
	if err := impl.renderer.DrawFrame(impl.activeTree); err != nil {
		return err
	}
	impl.frameCount++
	return impl.renderer.ReadPixels(dst, rect)
}

// setVisible flips draw permission. Going invisible aborts in-flight
// swaps: those frames will never reach the display.
func (impl *LayerTreeHostImpl) setVisible(visible bool) {
	if impl.visible == visible {
		return
	}
	impl.visible = visible
	if impl.surface == nil {
		return
	}
	if !visible {
		impl.surface.DidAbortAllPendingSwaps()
		impl.surface.SetNeedsBeginFrame(false)
		return
	}
	if impl.needsRedraw {
		impl.surface.SetNeedsBeginFrame(true)
	}
}

// setNeedsRedraw requests one frame from the current active tree.
func (impl *LayerTreeHostImpl) setNeedsRedraw() {
	impl.needsRedraw = true
	if impl.visible && impl.surface != nil {
		impl.surface.SetNeedsBeginFrame(true)
	}
}

// viewportChanged resizes the render target.
func (impl *LayerTreeHostImpl) viewportChanged(size layers.Size) {
	impl.deviceViewport = size
	impl.activeTree.SetDeviceViewport(size)
	if impl.renderer != nil {
		impl.renderer.ViewportChanged(size)
	}
	impl.setNeedsRedraw()
}

// OnSwapBuffersComplete implements output.Client.
func (impl *LayerTreeHostImpl) OnSwapBuffersComplete() {
	if impl.onSwapComplete != nil {
		impl.onSwapComplete()
	}
}

// OnVSyncParametersChanged implements output.Client. The surface has
// already retargeted begin-frame emulation; nothing else depends on the
// raw parameters yet.
func (impl *LayerTreeHostImpl) OnVSyncParametersChanged(timebase time.Time, interval time.Duration) {
	Logger().Debug("compositor: vsync parameters changed",
		"timebase", timebase, "interval", interval)
}

// DidLoseOutputSurface implements output.Client. GPU textures are gone
// with the context: drop every backing and tell the host to recreate the
// surface and repaint.
func (impl *LayerTreeHostImpl) DidLoseOutputSurface() {
	Logger().Warn("compositor: output surface lost")
	if impl.renderer != nil {
		impl.renderer.ReleaseTextures()
	}
	impl.manager.EvictAll()
	impl.surface = nil
	impl.renderer = nil
	if impl.onLostSurface != nil {
		impl.onLostSurface()
	}
}

var _ output.Client = (*LayerTreeHostImpl)(nil)
