// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	"errors"
	"image"
	"sync/atomic"

	"github.com/gogpu/compositor/layers"
	"github.com/gogpu/compositor/output"
	"github.com/gogpu/compositor/resource"
	"github.com/gogpu/compositor/taskqueue"
)

// ErrHostClosed is returned by synchronous host operations after Close.
var ErrHostClosed = errors.New("compositor: host closed")

// HostClient is implemented by the embedding application. Layout and the
// Did callbacks run on the host's main runner; CreateOutputSurface runs
// there too and may block.
type HostClient interface {
	// Layout lets the client mutate the layer tree before a commit
	// snapshots it.
	Layout()

	// CreateOutputSurface produces the surface frames are presented to.
	// It is called before the first commit and again after a surface
	// loss.
	CreateOutputSurface() *output.OutputSurface

	// WillCommit runs right before the prepared tree is handed to the
	// compositor side.
	WillCommit()

	// DidCommit runs after each commit has been applied, before the
	// resulting frame is drawn.
	DidCommit()

	// DidCommitAndDrawFrame runs after a committed frame has been drawn
	// and swapped.
	DidCommitAndDrawFrame()

	// DidCompleteSwapBuffers runs when the display acknowledges a swap.
	DidCompleteSwapBuffers()
}

// LayerTreeHost is the client-side entry point of the compositor.
//
// The host owns two serial runners: the main runner, where layout, layer
// updates, and client callbacks execute, and the compositor runner, where
// the LayerTreeHostImpl draws. Public methods are safe to call from any
// goroutine; mutations are posted to the main runner, and the synchronous
// operations (Composite, CompositeAndReadback, FinishAllRendering, Close)
// block until both sides have finished.
type LayerTreeHost struct {
	client   HostClient
	settings Settings

	mainRunner *taskqueue.SerialRunner
	implRunner *taskqueue.SerialRunner
	impl       *LayerTreeHostImpl
	manager    *resource.Manager

	commitRequested atomic.Bool
	commitPosted    atomic.Bool
	deferCommits    atomic.Bool
	closed          atomic.Bool

	// Main-runner state. Touched only from tasks on mainRunner.
	rootLayer         layers.Layer
	layoutViewport    layers.Size
	deviceViewport    layers.Size
	deviceScaleFactor float32
	visible           bool
	surfaceReady      bool
	maxPartialUpdates int
	sourceFrameNumber int
	memoryPolicy      resource.ManagedMemoryPolicy
	stats             layers.RenderingStats
}

// NewLayerTreeHost creates a host with its compositor goroutine started
// and no output surface yet; the surface is requested from the client
// before the first commit.
func NewLayerTreeHost(client HostClient, settings Settings) *LayerTreeHost {
	h := &LayerTreeHost{
		client:            client,
		settings:          settings,
		mainRunner:        taskqueue.NewSerialRunner(),
		implRunner:        taskqueue.NewSerialRunner(),
		manager:           resource.NewManager(settings.MemoryBudgetBytes),
		deviceScaleFactor: 1,
		memoryPolicy:      resource.NewManagedMemoryPolicy(settings.MemoryBudgetBytes),
		maxPartialUpdates: settings.MaxPartialTextureUpdates,
	}
	h.impl = newLayerTreeHostImpl(settings, h.manager, h.implRunner)
	h.impl.onSwapComplete = func() {
		h.mainRunner.PostTask(h.client.DidCompleteSwapBuffers)
	}
	h.impl.onDidDraw = func() {
		h.mainRunner.PostTask(h.client.DidCommitAndDrawFrame)
	}
	h.impl.onLostSurface = func() {
		h.mainRunner.PostTask(h.handleLostSurface)
	}
	// Evictions invalidate drawn content; the next commit repaints it.
	h.manager.SetPurgeCallback(func() {
		if !h.closed.Load() {
			h.SetNeedsCommit()
		}
	})
	return h
}

// Manager returns the texture memory manager shared by the host's layers.
func (h *LayerTreeHost) Manager() *resource.Manager { return h.manager }

// Settings returns the construction settings.
func (h *LayerTreeHost) Settings() Settings { return h.settings }

// SetRootLayer installs the layer tree root.
func (h *LayerTreeHost) SetRootLayer(root layers.Layer) {
	h.mainRunner.PostTask(func() { h.rootLayer = root })
	h.SetNeedsCommit()
}

// SetViewportSize sets the layout-space and device-space viewport sizes.
func (h *LayerTreeHost) SetViewportSize(layout, device layers.Size) {
	h.mainRunner.PostTask(func() {
		h.layoutViewport = layout
		h.deviceViewport = device
		h.implRunner.PostTask(func() { h.impl.viewportChanged(device) })
	})
	h.SetNeedsCommit()
}

// SetDeviceScaleFactor sets the device-pixels-per-layout-unit ratio.
func (h *LayerTreeHost) SetDeviceScaleFactor(dsf float32) {
	h.mainRunner.PostTask(func() { h.deviceScaleFactor = dsf })
	h.SetNeedsCommit()
}

// SetVisible flips compositor visibility. Hiding aborts in-flight frames
// and applies the hidden side of the memory policy; commits continue
// either way.
func (h *LayerTreeHost) SetVisible(visible bool) {
	h.mainRunner.PostTask(func() {
		if h.visible == visible {
			return
		}
		h.visible = visible
		h.applyMemoryPolicy()
		if visible {
			// Backings regranted on show hold stale pixels until a commit
			// repaints them.
			h.SetNeedsCommit()
		}
		h.implRunner.PostTask(func() { h.impl.setVisible(visible) })
	})
}

// SetMemoryPolicy replaces the texture memory policy.
func (h *LayerTreeHost) SetMemoryPolicy(policy resource.ManagedMemoryPolicy) {
	h.mainRunner.PostTask(func() {
		h.memoryPolicy = policy
		h.applyMemoryPolicy()
	})
	h.SetNeedsCommit()
}

// applyMemoryPolicy installs the side of the policy matching visibility
// and runs a prioritization pass so the new budget takes effect
// immediately: hiding under a zero hidden budget evicts right away rather
// than waiting for the next commit. Main runner only.
func (h *LayerTreeHost) applyMemoryPolicy() {
	if h.visible {
		h.manager.SetMemoryAllocation(h.memoryPolicy.BytesLimitWhenVisible, h.memoryPolicy.CutoffWhenVisible)
	} else {
		h.manager.SetMemoryAllocation(h.memoryPolicy.BytesLimitWhenNotVisible, h.memoryPolicy.CutoffWhenNotVisible)
	}
	h.manager.PrioritizePass()
}

// SetNeedsCommit requests a commit. Requests coalesce: any number of
// calls before the commit runs produce exactly one commit. A request made
// before the host has a root layer or an output surface stays pending
// until both exist.
func (h *LayerTreeHost) SetNeedsCommit() {
	if h.closed.Load() {
		return
	}
	h.commitRequested.Store(true)
	h.postCommitTask()
}

// postCommitTask schedules one performCommit task for the pending request.
// At most one task is queued at a time; the request flag outlives the task
// when the commit cannot run yet.
func (h *LayerTreeHost) postCommitTask() {
	if h.deferCommits.Load() {
		return
	}
	if !h.commitPosted.CompareAndSwap(false, true) {
		return
	}
	h.mainRunner.PostTask(func() {
		h.commitPosted.Store(false)
		h.performCommit(false)
	})
}

// CommitRequested reports whether a commit is pending.
func (h *LayerTreeHost) CommitRequested() bool {
	return h.commitRequested.Load()
}

// SetDeferCommits pauses or resumes commit processing. Requests made
// while deferred accumulate into a single commit that runs on resume.
func (h *LayerTreeHost) SetDeferCommits(deferred bool) {
	h.deferCommits.Store(deferred)
	if !deferred && h.commitRequested.Load() && !h.closed.Load() {
		h.postCommitTask()
	}
}

// SetNeedsRedraw requests one frame from the already committed tree,
// without a commit.
func (h *LayerTreeHost) SetNeedsRedraw() {
	if h.closed.Load() {
		return
	}
	h.implRunner.PostTask(h.impl.setNeedsRedraw)
}

// performCommit runs the full commit pipeline on the main runner: layout,
// texture prioritization, layer updates, then a blocking hand-off to the
// compositor runner. force skips deferral and runs even without a prior
// request.
func (h *LayerTreeHost) performCommit(force bool) {
	if h.closed.Load() {
		return
	}
	if !force {
		if h.deferCommits.Load() {
			// Leave the request pending; SetDeferCommits(false) reposts.
			return
		}
		if !h.commitRequested.Load() {
			return
		}
	}
	// The request is consumed only past these guards: a commit asked for
	// before a root layer or surface exists runs once they arrive.
	if h.rootLayer == nil {
		return
	}
	if !h.ensureSurface() {
		return
	}
	h.commitRequested.Store(false)

	h.client.Layout()

	// A forced commit exists to produce pixels (readback, capture), so it
	// prioritizes textures as if visible even when the host is hidden.
	asVisible := h.visible || force
	forEachLayer(h.rootLayer, func(l layers.Layer) {
		l.SetTexturePriorities(asVisible)
	})
	if asVisible {
		h.manager.SetMemoryAllocation(h.memoryPolicy.BytesLimitWhenVisible, h.memoryPolicy.CutoffWhenVisible)
		h.manager.PrioritizePass()
	} else {
		h.applyMemoryPolicy()
	}

	queue := layers.NewUpdateQueue(h.maxPartialUpdates)
	forEachLayer(h.rootLayer, func(l layers.Layer) {
		l.Update(queue, &h.stats)
	})
	uploads := queue.TakeUploads()

	frame := h.sourceFrameNumber
	h.sourceFrameNumber++

	dsf := h.deviceScaleFactor
	root := h.rootLayer
	h.client.WillCommit()
	var commitErr error
	err := h.implRunner.RunSynchronously(func() {
		commitErr = h.impl.commit(root, uploads, frame, dsf)
	})
	if err != nil {
		return
	}
	// An aborted commit changed nothing on the compositor side, so the
	// client must not be told one happened.
	if commitErr != nil {
		Logger().Warn("compositor: commit failed", "error", commitErr)
		return
	}
	h.stats.CommitCount++
	h.client.DidCommit()
}

// ensureSurface creates and initializes the output surface on first use
// and after a loss. Main runner only.
func (h *LayerTreeHost) ensureSurface() bool {
	if h.surfaceReady {
		return true
	}
	surface := h.client.CreateOutputSurface()
	if surface == nil {
		Logger().Warn("compositor: client returned no output surface")
		return false
	}
	var initErr error
	if err := h.implRunner.RunSynchronously(func() {
		initErr = h.impl.initializeOutputSurface(surface)
	}); err != nil {
		return false
	}
	if initErr != nil {
		Logger().Warn("compositor: output surface initialization failed", "error", initErr)
		return false
	}
	h.surfaceReady = true
	if caps := surface.Capabilities().MaxPartialTextureUpdates; caps < h.settings.MaxPartialTextureUpdates {
		h.maxPartialUpdates = caps
	} else {
		h.maxPartialUpdates = h.settings.MaxPartialTextureUpdates
	}
	return true
}

// handleLostSurface runs on the main runner after the compositor side has
// torn down the lost surface. Content must be repainted from scratch.
func (h *LayerTreeHost) handleLostSurface() {
	h.surfaceReady = false
	if h.rootLayer != nil {
		forEachLayer(h.rootLayer, func(l layers.Layer) { l.ReleaseResources() })
	}
	h.SetNeedsCommit()
}

// Composite synchronously commits pending changes and, when visible,
// draws the resulting frame. It returns once both runners are idle again.
func (h *LayerTreeHost) Composite() error {
	if h.closed.Load() {
		return ErrHostClosed
	}
	return h.mainRunner.RunSynchronously(func() {
		h.performCommit(true)
		h.implRunner.RunSynchronously(func() {
			if h.impl.visible && h.impl.canDraw() {
				if err := h.impl.drawAndSwap(); err != nil {
					Logger().Warn("compositor: composite draw failed", "error", err)
				}
			}
		})
	})
}

// CompositeAndReadback commits, draws one frame regardless of visibility
// or deferred commits, and copies the device pixels covered by rect into
// dst. rect is in device space; dst must be at least rect's size.
func (h *LayerTreeHost) CompositeAndReadback(dst *image.RGBA, rect image.Rectangle) error {
	if h.closed.Load() {
		return ErrHostClosed
	}
	var readbackErr error
	err := h.mainRunner.RunSynchronously(func() {
		h.performCommit(true)
		if rerr := h.implRunner.RunSynchronously(func() {
			readbackErr = h.impl.readback(dst, rect)
		}); rerr != nil {
			readbackErr = rerr
		}
	})
	if err != nil {
		return err
	}
	return readbackErr
}

// CapturePicture snapshots the committed frame as a playback-able
// Picture.
func (h *LayerTreeHost) CapturePicture() (*Picture, error) {
	if h.closed.Load() {
		return nil, ErrHostClosed
	}
	var pic *Picture
	err := h.mainRunner.RunSynchronously(func() {
		h.performCommit(true)
		h.implRunner.RunSynchronously(func() {
			if h.impl.renderer != nil {
				h.impl.activeTree.UpdateDrawProperties()
				pic = capturePicture(h.impl.activeTree, h.impl.renderer)
			}
		})
	})
	if err != nil {
		return nil, err
	}
	if pic == nil {
		return nil, ErrNoOutputSurface
	}
	return pic, nil
}

// FinishAllRendering blocks until every posted task on both runners has
// drained, including frames already scheduled.
func (h *LayerTreeHost) FinishAllRendering() error {
	if h.closed.Load() {
		return ErrHostClosed
	}
	return h.mainRunner.RunSynchronously(func() {
		h.implRunner.RunSynchronously(func() {})
	})
}

// RenderingStats returns a snapshot of the host's counters.
func (h *LayerTreeHost) RenderingStats() layers.RenderingStats {
	var out layers.RenderingStats
	if h.closed.Load() {
		return out
	}
	h.mainRunner.RunSynchronously(func() {
		out = h.stats
		h.implRunner.RunSynchronously(func() {
			out.FrameCount = h.impl.frameCount
		})
	})
	return out
}

// SourceFrameNumber returns the number of commits performed.
func (h *LayerTreeHost) SourceFrameNumber() int {
	var n int
	h.mainRunner.RunSynchronously(func() { n = h.sourceFrameNumber })
	return n
}

// Close releases layer resources and stops both runners. It is
// idempotent; other methods fail or no-op afterwards.
func (h *LayerTreeHost) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	h.mainRunner.RunSynchronously(func() {
		if h.rootLayer != nil {
			forEachLayer(h.rootLayer, func(l layers.Layer) { l.ReleaseResources() })
		}
		h.implRunner.RunSynchronously(func() {
			if h.impl.renderer != nil {
				h.impl.renderer.ReleaseTextures()
			}
		})
	})
	h.implRunner.Quit()
	h.mainRunner.Quit()
}

// forEachLayer visits the tree rooted at l in pre-order.
func forEachLayer(l layers.Layer, fn func(layers.Layer)) {
	fn(l)
	for _, c := range l.Children() {
		forEachLayer(c, fn)
	}
}
