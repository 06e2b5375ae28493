// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package output

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/gogpu/compositor/taskqueue"
)

// fakeContext is a Context whose MakeCurrent can be made to fail.
type fakeContext struct {
	fail         bool
	currentCount int
}

func (c *fakeContext) MakeCurrent() error {
	if c.fail {
		return ErrContextLost
	}
	c.currentCount++
	return nil
}

// fakeClient records every surface callback.
type fakeClient struct {
	surface       *OutputSurface
	swapOnBegin   bool
	failDeferred  bool
	deferredInits int
	beginFrames   []time.Time
	swapCompletes int
	vsyncTimebase time.Time
	vsyncInterval time.Duration
	lostSurface   bool
}

func (c *fakeClient) DeferredInitialize(*OutputSurface) bool {
	c.deferredInits++
	return !c.failDeferred
}

func (c *fakeClient) BeginFrame(frameTime time.Time) {
	c.beginFrames = append(c.beginFrames, frameTime)
	if c.swapOnBegin {
		c.surface.DidSwapBuffers()
	}
}

func (c *fakeClient) OnSwapBuffersComplete() { c.swapCompletes++ }

func (c *fakeClient) OnVSyncParametersChanged(timebase time.Time, interval time.Duration) {
	c.vsyncTimebase = timebase
	c.vsyncInterval = interval
}

func (c *fakeClient) DidLoseOutputSurface() { c.lostSurface = true }

func newBoundSurface(t *testing.T, ctx Context) (*OutputSurface, *fakeClient) {
	t.Helper()
	s := NewOutputSurface(ctx, NewSoftwareDevice(4, 4), Capabilities{
		MaxPartialTextureUpdates:       4,
		HasSwapBuffersCompleteCallback: true,
	})
	client := &fakeClient{surface: s}
	if !s.BindToClient(client) {
		t.Fatal("BindToClient() failed")
	}
	return s, client
}

func TestBindToClient(t *testing.T) {
	ctx := &fakeContext{}
	s, _ := newBoundSurface(t, ctx)
	if !s.HasClient() {
		t.Error("HasClient() = false after successful bind")
	}
	if ctx.currentCount != 1 {
		t.Errorf("MakeCurrent called %d times, want 1", ctx.currentCount)
	}
}

func TestBindToClientFailsCleanly(t *testing.T) {
	s := NewOutputSurface(&fakeContext{fail: true}, NewSoftwareDevice(4, 4), Capabilities{})
	client := &fakeClient{surface: s}
	if s.BindToClient(client) {
		t.Fatal("BindToClient() succeeded with a dead context")
	}
	if s.HasClient() {
		t.Error("failed bind must not retain the client")
	}
}

func TestBindToClientDeferredInitializeFails(t *testing.T) {
	ctx := &fakeContext{}
	s := NewOutputSurface(ctx, NewSoftwareDevice(4, 4), Capabilities{})
	client := &fakeClient{surface: s, failDeferred: true}
	if s.BindToClient(client) {
		t.Fatal("BindToClient() succeeded despite deferred initialization failing")
	}
	if s.HasClient() {
		t.Error("failed bind must not retain the client")
	}
	if client.deferredInits != 1 {
		t.Errorf("deferredInits = %d, want 1", client.deferredInits)
	}
}

func TestBindToClientSoftware(t *testing.T) {
	// A software surface has no context to make current.
	s := NewOutputSurface(nil, NewSoftwareDevice(4, 4), Capabilities{})
	if !s.BindToClient(&fakeClient{surface: s}) {
		t.Error("BindToClient() failed for software surface")
	}
}

func TestInitializeNewContext(t *testing.T) {
	s, client := newBoundSurface(t, &fakeContext{})

	fresh := &fakeContext{}
	if err := s.InitializeNewContext(fresh); err != nil {
		t.Fatalf("InitializeNewContext() error = %v", err)
	}
	if s.Context() != fresh {
		t.Error("surface should use the new context")
	}
	if client.deferredInits != 2 {
		t.Errorf("deferredInits = %d, want 2 (bind + new context)", client.deferredInits)
	}
}

func TestInitializeNewContextRequiresClient(t *testing.T) {
	s := NewOutputSurface(&fakeContext{}, NewSoftwareDevice(4, 4), Capabilities{})
	if err := s.InitializeNewContext(&fakeContext{}); err != ErrNotBound {
		t.Errorf("InitializeNewContext() error = %v, want ErrNotBound", err)
	}
}

func TestInitializeNewContextFailureKeepsState(t *testing.T) {
	old := &fakeContext{}
	s, _ := newBoundSurface(t, old)

	if err := s.InitializeNewContext(&fakeContext{fail: true}); err == nil {
		t.Fatal("InitializeNewContext() with a dead context should fail")
	}
	if s.Context() != old {
		t.Error("failed initialization must leave the old context in place")
	}
	if !s.HasClient() {
		t.Error("failed initialization must keep the client")
	}
}

func TestInitializeNewContextDeferredInitializeFails(t *testing.T) {
	old := &fakeContext{}
	s, client := newBoundSurface(t, old)

	client.failDeferred = true
	if err := s.InitializeNewContext(&fakeContext{}); err == nil {
		t.Fatal("InitializeNewContext() should fail when deferred initialization fails")
	}
	if s.Context() != old {
		t.Error("failed deferred initialization must restore the old context")
	}
}

// TestInjectedBeginFrames drives BeginFrame directly and checks the two
// throttles: an undelivered begin-frame suppresses further ones, and so
// does reaching the swap limit.
func TestInjectedBeginFrames(t *testing.T) {
	s, client := newBoundSurface(t, &fakeContext{})
	runner := taskqueue.NewManualRunner()
	s.InitializeBeginFrameEmulation(runner, false, 16*time.Millisecond)
	s.SetMaxFramesPending(1)
	s.SetNeedsBeginFrame(true)

	tick := time.Unix(2000, 0)
	s.BeginFrame(tick)
	if len(client.beginFrames) != 1 || !client.beginFrames[0].Equal(tick) {
		t.Fatalf("beginFrames = %v, want one at %v", client.beginFrames, tick)
	}

	// Outstanding begin-frame: suppressed.
	s.BeginFrame(tick.Add(time.Millisecond))
	if len(client.beginFrames) != 1 {
		t.Fatal("begin-frame delivered while one was already pending")
	}

	// Swapping clears the flag but puts us at the swap limit: still
	// suppressed.
	s.DidSwapBuffers()
	s.BeginFrame(tick.Add(2 * time.Millisecond))
	if len(client.beginFrames) != 1 {
		t.Fatal("begin-frame delivered at the swap limit")
	}
	if got := s.PendingSwapBuffers(); got != 1 {
		t.Fatalf("PendingSwapBuffers() = %d, want 1", got)
	}

	// Swap acknowledgement opens both gates.
	s.OnSwapBuffersComplete()
	if client.swapCompletes != 1 {
		t.Fatalf("swapCompletes = %d, want 1", client.swapCompletes)
	}
	s.BeginFrame(tick.Add(3 * time.Millisecond))
	if len(client.beginFrames) != 2 {
		t.Fatal("begin-frame not delivered after acknowledgement")
	}

	// Toggling the stream clears a wedged pending flag.
	s.SetNeedsBeginFrame(true)
	s.BeginFrame(tick.Add(4 * time.Millisecond))
	if len(client.beginFrames) != 3 {
		t.Fatal("SetNeedsBeginFrame should clear the pending begin-frame")
	}

	// Disabled stream delivers nothing.
	s.SetNeedsBeginFrame(false)
	s.BeginFrame(tick.Add(5 * time.Millisecond))
	if len(client.beginFrames) != 3 {
		t.Fatal("begin-frame delivered while disabled")
	}
}

// TestThrottledBeginFrameEmulation runs the emulation through its time
// source on a manual runner.
func TestThrottledBeginFrameEmulation(t *testing.T) {
	s, client := newBoundSurface(t, &fakeContext{})
	runner := taskqueue.NewManualRunner()
	s.InitializeBeginFrameEmulation(runner, true, 16*time.Millisecond)
	s.SetMaxFramesPending(2)

	s.SetNeedsBeginFrame(true)
	runner.RunPendingTasks()
	if len(client.beginFrames) != 1 {
		t.Fatalf("beginFrames after first tick = %d, want 1", len(client.beginFrames))
	}

	// No swap was issued, so the pending begin-frame blocks the next tick.
	runner.RunPendingTasks()
	if len(client.beginFrames) != 1 {
		t.Fatal("second begin-frame delivered before the first was swapped")
	}

	s.DidSwapBuffers()
	runner.RunPendingTasks()
	if len(client.beginFrames) != 2 {
		t.Fatalf("beginFrames after swap = %d, want 2", len(client.beginFrames))
	}

	s.SetNeedsBeginFrame(false)
	runner.RunUntilIdle()
	if len(client.beginFrames) != 2 {
		t.Error("begin-frames delivered after the stream was disabled")
	}
}

// TestUnthrottledBeginFrameEmulation checks the manual frame rate
// controller path: frames run back-to-back, re-armed by completions.
func TestUnthrottledBeginFrameEmulation(t *testing.T) {
	s, client := newBoundSurface(t, &fakeContext{})
	client.swapOnBegin = true
	runner := taskqueue.NewManualRunner()
	s.InitializeBeginFrameEmulation(runner, false, 0)
	s.SetMaxFramesPending(1)

	s.SetNeedsBeginFrame(true)
	runner.RunPendingTasks()
	if len(client.beginFrames) != 1 {
		t.Fatalf("beginFrames = %d, want 1", len(client.beginFrames))
	}
	// The swap hit the limit, so no tick is queued until it completes.
	if runner.HasPendingTasks() {
		t.Fatal("tick queued while at the swap limit")
	}

	s.OnSwapBuffersComplete()
	runner.RunPendingTasks()
	if len(client.beginFrames) != 2 {
		t.Fatalf("beginFrames = %d, want 2 after completion", len(client.beginFrames))
	}
}

func TestVSyncParametersForwarded(t *testing.T) {
	s, client := newBoundSurface(t, &fakeContext{})
	timebase := time.Unix(3000, 0)
	s.OnVSyncParametersChanged(timebase, 16*time.Millisecond)
	if !client.vsyncTimebase.Equal(timebase) || client.vsyncInterval != 16*time.Millisecond {
		t.Error("vsync parameters not forwarded to the client")
	}
}

func TestDidLoseContext(t *testing.T) {
	s, client := newBoundSurface(t, &fakeContext{})
	s.DidLoseContext()
	if !client.lostSurface {
		t.Error("context loss not forwarded to the client")
	}
}

func TestSoftwareDevice(t *testing.T) {
	d := NewSoftwareDevice(4, 4)
	if err := d.Present(); err != nil {
		t.Fatalf("Present() error = %v", err)
	}

	// Scale a 1x1 red texture over the whole framebuffer.
	src := image.NewRGBA(image.Rect(0, 0, 1, 1))
	src.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	d.DrawTexture(src, image.Rect(0, 0, 4, 4))
	if got := d.Framebuffer().RGBAAt(3, 3); got != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("scaled pixel = %v, want red", got)
	}

	// Readback.
	dst := image.NewRGBA(image.Rect(0, 0, 4, 4))
	d.CopyToPixels(dst)
	if got := dst.RGBAAt(0, 0); got != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("readback pixel = %v, want red", got)
	}

	d.Resize(8, 8)
	if b := d.Framebuffer().Bounds(); b.Dx() != 8 || b.Dy() != 8 {
		t.Errorf("framebuffer bounds = %v, want 8x8", b)
	}
	if got := d.Framebuffer().RGBAAt(0, 0); got != (color.RGBA{}) {
		t.Error("resize should discard old contents")
	}

	d.Clear()
	if got := d.Framebuffer().RGBAAt(7, 7); got != (color.RGBA{}) {
		t.Error("Clear should zero the framebuffer")
	}
}
