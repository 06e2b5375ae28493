// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/compositor/layers"
	"github.com/gogpu/compositor/output"
)

// testClient implements HostClient and records the event order of every
// callback.
type testClient struct {
	mu              sync.Mutex
	events          []string
	layouts         int
	commits         int
	draws           int
	swapCompletes   int
	surfacesCreated int
	failBind        bool
	device          *output.SoftwareDevice
}

func (c *testClient) record(ev string) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *testClient) Layout() {
	c.mu.Lock()
	c.layouts++
	c.mu.Unlock()
	c.record("layout")
}

func (c *testClient) CreateOutputSurface() *output.OutputSurface {
	c.mu.Lock()
	c.surfacesCreated++
	c.device = output.NewSoftwareDevice(0, 0)
	dev := c.device
	c.mu.Unlock()
	return output.NewOutputSurface(nil, dev, output.Capabilities{
		MaxPartialTextureUpdates:       8,
		HasSwapBuffersCompleteCallback: true,
	})
}

func (c *testClient) WillCommit() {
	c.record("willCommit")
}

func (c *testClient) DidCommit() {
	c.mu.Lock()
	c.commits++
	c.mu.Unlock()
	c.record("commit")
}

func (c *testClient) DidCommitAndDrawFrame() {
	c.mu.Lock()
	c.draws++
	c.mu.Unlock()
	c.record("draw")
}

func (c *testClient) DidCompleteSwapBuffers() {
	c.mu.Lock()
	c.swapCompletes++
	c.mu.Unlock()
	c.record("swapComplete")
}

func (c *testClient) commitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits
}

func (c *testClient) drawCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draws
}

// waitFor polls cond for up to five seconds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func solidPainter(c color.RGBA) layers.PainterFunc {
	return func(dst *image.RGBA, _ float32) {
		b := dst.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				dst.SetRGBA(x, y, c)
			}
		}
	}
}

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
)

func newTestHost(t *testing.T) (*LayerTreeHost, *testClient) {
	t.Helper()
	client := &testClient{}
	host := NewLayerTreeHost(client, DefaultSettings())
	t.Cleanup(host.Close)
	return host, client
}

func TestCommitCoalescing(t *testing.T) {
	host, client := newTestHost(t)

	// Hold commits so the whole burst lands before the first one runs.
	host.SetDeferCommits(true)
	root := layers.NewContentLayer(host.Manager(), solidPainter(red))
	root.SetBounds(layers.Size{Width: 10, Height: 10})
	host.SetRootLayer(root)
	host.SetViewportSize(layers.Size{Width: 10, Height: 10}, layers.Size{Width: 10, Height: 10})
	for i := 0; i < 20; i++ {
		host.SetNeedsCommit()
	}
	host.SetDeferCommits(false)
	if err := host.FinishAllRendering(); err != nil {
		t.Fatalf("FinishAllRendering() error = %v", err)
	}

	// SetRootLayer and SetViewportSize fold into the same request, so the
	// burst produces exactly one commit.
	if got := client.commitCount(); got != 1 {
		t.Errorf("commits = %d, want 1", got)
	}
	if got := host.SourceFrameNumber(); got != 1 {
		t.Errorf("SourceFrameNumber() = %d, want 1", got)
	}
}

func TestCommitRequestSurvivesMissingRootLayer(t *testing.T) {
	host, client := newTestHost(t)

	// A request made before any root layer exists cannot run yet; it must
	// stay pending rather than being consumed and dropped.
	host.SetNeedsCommit()
	if err := host.FinishAllRendering(); err != nil {
		t.Fatalf("FinishAllRendering() error = %v", err)
	}
	if got := client.commitCount(); got != 0 {
		t.Fatalf("commits without a root layer = %d, want 0", got)
	}
	if !host.CommitRequested() {
		t.Fatal("CommitRequested() = false, want the early request still pending")
	}

	root := layers.NewContentLayer(host.Manager(), solidPainter(red))
	root.SetBounds(layers.Size{Width: 4, Height: 4})
	host.SetRootLayer(root)
	host.SetViewportSize(layers.Size{Width: 4, Height: 4}, layers.Size{Width: 4, Height: 4})

	waitFor(t, "commit of the early request", func() bool { return client.commitCount() >= 1 })
}

func TestCommitThenDrawOrdering(t *testing.T) {
	host, client := newTestHost(t)

	root := layers.NewContentLayer(host.Manager(), solidPainter(red))
	root.SetBounds(layers.Size{Width: 8, Height: 8})
	host.SetRootLayer(root)
	host.SetViewportSize(layers.Size{Width: 8, Height: 8}, layers.Size{Width: 8, Height: 8})
	host.SetVisible(true)

	waitFor(t, "first drawn frame", func() bool { return client.drawCount() >= 1 })

	client.mu.Lock()
	defer client.mu.Unlock()
	commitIdx, drawIdx := -1, -1
	for i, ev := range client.events {
		if ev == "commit" && commitIdx < 0 {
			commitIdx = i
		}
		if ev == "draw" && drawIdx < 0 {
			drawIdx = i
		}
	}
	if commitIdx < 0 || drawIdx < 0 || commitIdx > drawIdx {
		t.Errorf("event order = %v, want commit before draw", client.events)
	}
}

func TestDeferredCommitsYieldOneCommit(t *testing.T) {
	host, client := newTestHost(t)

	root := layers.NewContentLayer(host.Manager(), solidPainter(red))
	root.SetBounds(layers.Size{Width: 4, Height: 4})

	host.SetDeferCommits(true)
	host.SetRootLayer(root)
	host.SetViewportSize(layers.Size{Width: 4, Height: 4}, layers.Size{Width: 4, Height: 4})
	for i := 0; i < 10; i++ {
		host.SetNeedsCommit()
	}
	if err := host.FinishAllRendering(); err != nil {
		t.Fatalf("FinishAllRendering() error = %v", err)
	}
	if got := client.commitCount(); got != 0 {
		t.Fatalf("commits while deferred = %d, want 0", got)
	}

	host.SetDeferCommits(false)
	if err := host.FinishAllRendering(); err != nil {
		t.Fatalf("FinishAllRendering() error = %v", err)
	}
	if got := client.commitCount(); got != 1 {
		t.Errorf("commits after resume = %d, want exactly 1", got)
	}
}

func TestHiddenHostCommitsButDoesNotDraw(t *testing.T) {
	host, client := newTestHost(t)

	root := layers.NewContentLayer(host.Manager(), solidPainter(red))
	root.SetBounds(layers.Size{Width: 4, Height: 4})
	host.SetRootLayer(root)
	host.SetViewportSize(layers.Size{Width: 4, Height: 4}, layers.Size{Width: 4, Height: 4})
	// Never made visible.

	waitFor(t, "commit", func() bool { return client.commitCount() >= 1 })
	if err := host.FinishAllRendering(); err != nil {
		t.Fatalf("FinishAllRendering() error = %v", err)
	}
	if got := client.drawCount(); got != 0 {
		t.Errorf("draws while hidden = %d, want 0", got)
	}
	if got := host.RenderingStats().FrameCount; got != 0 {
		t.Errorf("FrameCount while hidden = %d, want 0", got)
	}
}

func TestHidingEvictsTextures(t *testing.T) {
	host, client := newTestHost(t)

	root := layers.NewContentLayer(host.Manager(), solidPainter(red))
	root.SetBounds(layers.Size{Width: 8, Height: 8})
	host.SetRootLayer(root)
	host.SetViewportSize(layers.Size{Width: 8, Height: 8}, layers.Size{Width: 8, Height: 8})
	host.SetVisible(true)

	waitFor(t, "first drawn frame", func() bool { return client.drawCount() >= 1 })
	if host.Manager().MemoryUseBytes() == 0 {
		t.Fatal("no texture memory in use after a visible commit")
	}

	// Hiding applies the zero hidden budget immediately: every backing is
	// evicted and the purge requests a recovery commit.
	commits := client.commitCount()
	host.SetVisible(false)
	waitFor(t, "eviction", func() bool { return host.Manager().MemoryUseBytes() == 0 })
	if !host.Manager().ContentsTexturesPurged() {
		t.Error("ContentsTexturesPurged() = false after hiding, want true")
	}
	waitFor(t, "recovery commit", func() bool { return client.commitCount() > commits })

	// Showing regrants backings under the visible budget and repaints them.
	host.SetVisible(true)
	waitFor(t, "regranted memory", func() bool { return host.Manager().MemoryUseBytes() > 0 })

	dst := image.NewRGBA(image.Rect(0, 0, 8, 8))
	if err := host.CompositeAndReadback(dst, dst.Bounds()); err != nil {
		t.Fatalf("CompositeAndReadback() after show error = %v", err)
	}
	if got := dst.RGBAAt(4, 4); got != red {
		t.Errorf("pixel after show = %v, want red", got)
	}
}

func TestCompositeAndReadback(t *testing.T) {
	host, _ := newTestHost(t)

	// Layout 40x40 at device scale 1.5 composites to 60x60 device pixels.
	root := layers.NewContentLayer(host.Manager(), solidPainter(red))
	root.SetBounds(layers.Size{Width: 40, Height: 40})
	root.SetContentsScale(1.5)

	child := layers.NewContentLayer(host.Manager(), solidPainter(green))
	child.SetBounds(layers.Size{Width: 10, Height: 10})
	child.SetPosition(layers.PointF{X: 2, Y: 2})
	child.SetContentsScale(1.5)
	root.AddChild(child)

	host.SetRootLayer(root)
	host.SetDeviceScaleFactor(1.5)
	host.SetViewportSize(layers.Size{Width: 40, Height: 40}, layers.Size{Width: 60, Height: 60})

	// Readback works even though the host was never made visible.
	dst := image.NewRGBA(image.Rect(0, 0, 60, 60))
	if err := host.CompositeAndReadback(dst, dst.Bounds()); err != nil {
		t.Fatalf("CompositeAndReadback() error = %v", err)
	}

	if got := dst.RGBAAt(0, 0); got != red {
		t.Errorf("pixel (0,0) = %v, want root red", got)
	}
	// Child layout position (2,2) lands at device (3,3).
	if got := dst.RGBAAt(4, 4); got != green {
		t.Errorf("pixel (4,4) = %v, want child green", got)
	}
	if got := dst.RGBAAt(59, 59); got != red {
		t.Errorf("pixel (59,59) = %v, want root red", got)
	}

	// The temporary readback surface is gone once the call returns.
	var allocations int
	host.mainRunner.RunSynchronously(func() {
		host.implRunner.RunSynchronously(func() {
			allocations = host.impl.readbackAllocations
		})
	})
	if allocations != 0 {
		t.Errorf("readback allocations = %d, want 0", allocations)
	}
}

func TestCompositeAndReadbackSubRect(t *testing.T) {
	host, _ := newTestHost(t)

	root := layers.NewContentLayer(host.Manager(), solidPainter(red))
	root.SetBounds(layers.Size{Width: 8, Height: 8})
	child := layers.NewContentLayer(host.Manager(), solidPainter(green))
	child.SetBounds(layers.Size{Width: 4, Height: 4})
	child.SetPosition(layers.PointF{X: 2, Y: 2})
	root.AddChild(child)

	host.SetRootLayer(root)
	host.SetViewportSize(layers.Size{Width: 8, Height: 8}, layers.Size{Width: 8, Height: 8})

	// The child covers device pixels (2,2)-(6,6); reading back exactly
	// that rect yields only child pixels.
	dst := image.NewRGBA(image.Rect(0, 0, 4, 4))
	if err := host.CompositeAndReadback(dst, image.Rect(2, 2, 6, 6)); err != nil {
		t.Fatalf("CompositeAndReadback() error = %v", err)
	}
	if got := dst.RGBAAt(0, 0); got != green {
		t.Errorf("sub-rect pixel (0,0) = %v, want child green", got)
	}
	if got := dst.RGBAAt(3, 3); got != green {
		t.Errorf("sub-rect pixel (3,3) = %v, want child green", got)
	}

	// A rect outside the child sees the root.
	corner := image.NewRGBA(image.Rect(0, 0, 2, 2))
	if err := host.CompositeAndReadback(corner, image.Rect(0, 0, 2, 2)); err != nil {
		t.Fatalf("CompositeAndReadback() error = %v", err)
	}
	if got := corner.RGBAAt(1, 1); got != red {
		t.Errorf("corner pixel = %v, want root red", got)
	}
}

func TestCompositeAndReadbackDuringDeferral(t *testing.T) {
	host, client := newTestHost(t)

	host.SetDeferCommits(true)
	root := layers.NewContentLayer(host.Manager(), solidPainter(red))
	root.SetBounds(layers.Size{Width: 4, Height: 4})
	host.SetRootLayer(root)
	host.SetViewportSize(layers.Size{Width: 4, Height: 4}, layers.Size{Width: 4, Height: 4})

	dst := image.NewRGBA(image.Rect(0, 0, 4, 4))
	if err := host.CompositeAndReadback(dst, dst.Bounds()); err != nil {
		t.Fatalf("CompositeAndReadback() error = %v", err)
	}
	if got := dst.RGBAAt(2, 2); got != red {
		t.Errorf("pixel = %v, want red despite deferred commits", got)
	}
	if got := client.commitCount(); got != 1 {
		t.Errorf("commits = %d, want 1 forced commit", got)
	}
}

func TestSwapCompleteReachesClient(t *testing.T) {
	host, client := newTestHost(t)

	root := layers.NewContentLayer(host.Manager(), solidPainter(red))
	root.SetBounds(layers.Size{Width: 4, Height: 4})
	host.SetRootLayer(root)
	host.SetViewportSize(layers.Size{Width: 4, Height: 4}, layers.Size{Width: 4, Height: 4})
	host.SetVisible(true)

	waitFor(t, "drawn frame", func() bool { return client.drawCount() >= 1 })

	// The software device never acknowledges on its own; deliver the
	// acknowledgement as a window system would.
	host.implRunner.PostTask(func() {
		host.impl.surface.OnSwapBuffersComplete()
	})
	waitFor(t, "swap completion", func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.swapCompletes >= 1
	})
}

func TestLostOutputSurfaceRecreates(t *testing.T) {
	host, client := newTestHost(t)

	root := layers.NewContentLayer(host.Manager(), solidPainter(red))
	root.SetBounds(layers.Size{Width: 4, Height: 4})
	host.SetRootLayer(root)
	host.SetViewportSize(layers.Size{Width: 4, Height: 4}, layers.Size{Width: 4, Height: 4})

	waitFor(t, "first commit", func() bool { return client.commitCount() >= 1 })

	host.implRunner.PostTask(func() {
		host.impl.DidLoseOutputSurface()
	})

	// The host requests a fresh surface and repaints through it.
	waitFor(t, "surface recreation", func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.surfacesCreated >= 2
	})
	waitFor(t, "recommit", func() bool { return client.commitCount() >= 2 })

	dst := image.NewRGBA(image.Rect(0, 0, 4, 4))
	if err := host.CompositeAndReadback(dst, dst.Bounds()); err != nil {
		t.Fatalf("CompositeAndReadback() after loss error = %v", err)
	}
	if got := dst.RGBAAt(1, 1); got != red {
		t.Errorf("pixel after recreation = %v, want red", got)
	}
}

func TestCapturePicture(t *testing.T) {
	host, _ := newTestHost(t)

	root := layers.NewContentLayer(host.Manager(), solidPainter(red))
	root.SetBounds(layers.Size{Width: 8, Height: 8})
	host.SetRootLayer(root)
	host.SetViewportSize(layers.Size{Width: 8, Height: 8}, layers.Size{Width: 8, Height: 8})

	pic, err := host.CapturePicture()
	if err != nil {
		t.Fatalf("CapturePicture() error = %v", err)
	}
	if pic.LayerCount() != 1 {
		t.Fatalf("LayerCount() = %d, want 1", pic.LayerCount())
	}
	if pic.Viewport() != (layers.Size{Width: 8, Height: 8}) {
		t.Errorf("Viewport() = %v, want 8x8", pic.Viewport())
	}

	// Playback works after the host is gone.
	host.Close()
	dst := image.NewRGBA(image.Rect(0, 0, 16, 16))
	pic.Playback(dst)
	if got := dst.RGBAAt(8, 8); got != red {
		t.Errorf("playback pixel = %v, want red (scaled 2x)", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	host, _ := newTestHost(t)
	host.Close()
	host.Close()

	if err := host.Composite(); err != ErrHostClosed {
		t.Errorf("Composite() after close error = %v, want ErrHostClosed", err)
	}
	if err := host.CompositeAndReadback(nil, image.Rectangle{}); err != ErrHostClosed {
		t.Errorf("CompositeAndReadback() after close error = %v, want ErrHostClosed", err)
	}
	host.SetNeedsCommit() // Must not panic or deadlock.
}

// failingRenderer rejects every upload, aborting any commit that reaches
// the compositor side.
type failingRenderer struct{}

func (failingRenderer) ViewportChanged(layers.Size) {}
func (failingRenderer) ProcessUploads([]layers.Upload) error {
	return errors.New("upload rejected")
}
func (failingRenderer) DrawFrame(*layers.TreeImpl) error              { return nil }
func (failingRenderer) SwapBuffers() error                            { return nil }
func (failingRenderer) ReadPixels(*image.RGBA, image.Rectangle) error { return nil }
func (failingRenderer) TexturePixels(uint64) *image.RGBA              { return nil }
func (failingRenderer) ReleaseTextures()                              {}

func TestFailedCommitSkipsDidCommit(t *testing.T) {
	host, client := newTestHost(t)

	root := layers.NewContentLayer(host.Manager(), solidPainter(red))
	root.SetBounds(layers.Size{Width: 4, Height: 4})
	host.SetRootLayer(root)
	host.SetViewportSize(layers.Size{Width: 4, Height: 4}, layers.Size{Width: 4, Height: 4})

	waitFor(t, "first commit", func() bool { return client.commitCount() >= 1 })
	if err := host.FinishAllRendering(); err != nil {
		t.Fatalf("FinishAllRendering() error = %v", err)
	}
	didCommits := client.commitCount()
	counted := host.RenderingStats().CommitCount

	// An aborted commit changes nothing on the compositor side, so neither
	// DidCommit nor the commit counter may record it.
	host.implRunner.RunSynchronously(func() { host.impl.renderer = failingRenderer{} })
	root.SetNeedsDisplay()
	host.SetNeedsCommit()
	if err := host.FinishAllRendering(); err != nil {
		t.Fatalf("FinishAllRendering() error = %v", err)
	}

	if got := client.commitCount(); got != didCommits {
		t.Errorf("commits after aborted commit = %d, want %d", got, didCommits)
	}
	if got := host.RenderingStats().CommitCount; got != counted {
		t.Errorf("CommitCount after aborted commit = %d, want %d", got, counted)
	}
}

func TestRenderingStats(t *testing.T) {
	host, _ := newTestHost(t)

	root := layers.NewContentLayer(host.Manager(), solidPainter(red))
	root.SetBounds(layers.Size{Width: 4, Height: 4})
	host.SetRootLayer(root)
	host.SetViewportSize(layers.Size{Width: 4, Height: 4}, layers.Size{Width: 4, Height: 4})

	dst := image.NewRGBA(image.Rect(0, 0, 4, 4))
	if err := host.CompositeAndReadback(dst, dst.Bounds()); err != nil {
		t.Fatalf("CompositeAndReadback() error = %v", err)
	}

	stats := host.RenderingStats()
	if stats.CommitCount < 1 {
		t.Errorf("CommitCount = %d, want >= 1", stats.CommitCount)
	}
	if stats.FrameCount < 1 {
		t.Errorf("FrameCount = %d, want >= 1", stats.FrameCount)
	}
	if stats.UpdatedTextureCount < 1 {
		t.Errorf("UpdatedTextureCount = %d, want >= 1", stats.UpdatedTextureCount)
	}
}
