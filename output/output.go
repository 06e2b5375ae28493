// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package output abstracts where composited frames go: a GPU swapchain, a
// software framebuffer, or a test double. It also emulates a display's
// begin-frame signal for outputs that do not provide one.
package output

import (
	"errors"
	"image"
	"time"

	"github.com/gogpu/compositor/scheduler"
	"github.com/gogpu/compositor/taskqueue"
)

var (
	// ErrNotBound is returned when an operation requires a bound client.
	ErrNotBound = errors.New("output: surface not bound to a client")

	// ErrContextLost is returned when the GPU context cannot be made
	// current.
	ErrContextLost = errors.New("output: context lost")
)

// Context is the GPU context backing a surface. A software surface has
// none.
type Context interface {
	// MakeCurrent binds the context to the calling goroutine. It fails
	// when the context has been lost.
	MakeCurrent() error
}

// PresentDevice owns the pixels of the output and presents finished
// frames.
type PresentDevice interface {
	// Resize reallocates the output for a new device-pixel size.
	Resize(width, height int)

	// Present pushes the finished frame to the display or window system.
	Present() error
}

// FrameWriter is implemented by present devices that accept a fully
// composited CPU-side frame.
type FrameWriter interface {
	// WriteFrame hands the finished frame to the device. The image must
	// match the device's current size.
	WriteFrame(frame *image.RGBA) error
}

// Client receives surface events. The compositor-side of the pipeline
// implements it.
type Client interface {
	// DeferredInitialize sets up the client's per-surface state, typically
	// a renderer for the surface's device. It runs during BindToClient and
	// again when a replacement context is installed. Returning false fails
	// the bind or context switch cleanly.
	DeferredInitialize(surface *OutputSurface) bool

	// BeginFrame tells the client it may produce a frame targeting
	// frameTime.
	BeginFrame(frameTime time.Time)

	// OnSwapBuffersComplete acknowledges one previously issued swap.
	OnSwapBuffersComplete()

	// OnVSyncParametersChanged delivers new display timing.
	OnVSyncParametersChanged(timebase time.Time, interval time.Duration)

	// DidLoseOutputSurface tells the client the surface's context is gone
	// and its GPU resources with it.
	DidLoseOutputSurface()
}

// Capabilities describes what the surface's backend supports.
type Capabilities struct {
	// MaxPartialTextureUpdates caps per-commit partial texture uploads.
	MaxPartialTextureUpdates int

	// HasSwapBuffersCompleteCallback reports whether the backend
	// acknowledges swaps. Without it, swaps self-acknowledge immediately.
	HasSwapBuffersCompleteCallback bool
}

// OutputSurface connects the compositor to one output.
//
// The surface must be bound to a Client before use. Backends without a
// native begin-frame signal enable begin-frame emulation, which paces
// BeginFrame callbacks with a FrameRateController: vsync-aligned when
// throttling is on, back-to-back otherwise, in both cases gated by the
// number of unacknowledged swaps.
//
// OutputSurface is confined to the compositor goroutine.
type OutputSurface struct {
	context Context
	device  PresentDevice
	caps    Capabilities
	client  Client

	frc               *scheduler.FrameRateController
	beginFramePending bool
	needsBeginFrame   bool
	maxFramesPending  int
}

// NewOutputSurface creates a surface over the given context and present
// device. context may be nil for software outputs.
func NewOutputSurface(context Context, device PresentDevice, caps Capabilities) *OutputSurface {
	return &OutputSurface{
		context: context,
		device:  device,
		caps:    caps,
	}
}

// Capabilities returns the backend capabilities.
func (s *OutputSurface) Capabilities() Capabilities { return s.caps }

// Context returns the GPU context, nil for software outputs.
func (s *OutputSurface) Context() Context { return s.context }

// Device returns the present device.
func (s *OutputSurface) Device() PresentDevice { return s.device }

// BindToClient attaches the surface to its client. With a GPU context the
// context is made current first, then the client's deferred initialization
// runs. Failure of either leaves no client retained; the bind fails as a
// whole, never partially.
func (s *OutputSurface) BindToClient(client Client) bool {
	if s.context != nil {
		if err := s.context.MakeCurrent(); err != nil {
			return false
		}
	}
	if !client.DeferredInitialize(s) {
		return false
	}
	s.client = client
	return true
}

// HasClient reports whether BindToClient has succeeded.
func (s *OutputSurface) HasClient() bool { return s.client != nil }

// InitializeNewContext replaces the GPU context after a loss. The surface
// must already be bound. If the new context cannot be made current, or the
// client's deferred initialization against it fails, the surface keeps its
// previous context.
func (s *OutputSurface) InitializeNewContext(context Context) error {
	if s.client == nil {
		return ErrNotBound
	}
	if err := context.MakeCurrent(); err != nil {
		return err
	}
	prev := s.context
	s.context = context
	if !s.client.DeferredInitialize(s) {
		s.context = prev
		return ErrContextLost
	}
	return nil
}

// InitializeBeginFrameEmulation starts emitting BeginFrame callbacks.
// With throttle, ticks align to the display interval; without, they run
// back-to-back as fast as swap acknowledgements allow.
func (s *OutputSurface) InitializeBeginFrameEmulation(
	runner taskqueue.Runner,
	throttle bool,
	interval time.Duration,
) {
	if throttle {
		ts := scheduler.NewDelayBasedTimeSource(interval, runner)
		s.frc = scheduler.NewFrameRateController(ts)
	} else {
		s.frc = scheduler.NewManualFrameRateController(runner)
	}
	s.frc.SetClient(frcClient{s})
	s.frc.SetMaxFramesPending(s.maxFramesPending)
	s.frc.SetSwapBuffersCompleteSupported(s.caps.HasSwapBuffersCompleteCallback)
}

// SetMaxFramesPending sets the swap throttle depth for begin-frame
// emulation. Zero means unthrottled.
func (s *OutputSurface) SetMaxFramesPending(max int) {
	s.maxFramesPending = max
	if s.frc != nil {
		s.frc.SetMaxFramesPending(max)
	}
}

// SetNeedsBeginFrame turns the begin-frame stream on or off. Either edge
// clears a pending begin-frame, so a frame the client never produced does
// not wedge the stream.
func (s *OutputSurface) SetNeedsBeginFrame(enable bool) {
	s.needsBeginFrame = enable
	s.beginFramePending = false
	if s.frc != nil {
		s.frc.SetActive(enable)
	}
}

// NeedsBeginFrame reports whether the client has asked for begin-frames.
func (s *OutputSurface) NeedsBeginFrame() bool { return s.needsBeginFrame }

// BeginFrame delivers one begin-frame to the client if the stream is
// enabled, no begin-frame is already outstanding, and swap backpressure
// allows another frame. Emulation calls it on every unthrottled tick;
// tests and native backends may inject it directly.
func (s *OutputSurface) BeginFrame(frameTime time.Time) {
	if !s.needsBeginFrame || s.beginFramePending {
		return
	}
	if s.maxFramesPending > 0 && s.PendingSwapBuffers() >= s.maxFramesPending {
		return
	}
	s.beginFramePending = true
	s.client.BeginFrame(frameTime)
}

// DidSwapBuffers records that the client issued a swap for the pending
// begin-frame.
func (s *OutputSurface) DidSwapBuffers() {
	s.beginFramePending = false
	if s.frc != nil {
		s.frc.DidSwapBuffers()
	}
}

// OnSwapBuffersComplete acknowledges one swap and forwards to the client.
func (s *OutputSurface) OnSwapBuffersComplete() {
	if s.frc != nil {
		s.frc.DidSwapBuffersComplete()
	}
	if s.client != nil {
		s.client.OnSwapBuffersComplete()
	}
}

// DidAbortAllPendingSwaps discards unacknowledged swaps, for example when
// the surface goes invisible and its frames will never present.
func (s *OutputSurface) DidAbortAllPendingSwaps() {
	s.beginFramePending = false
	if s.frc != nil {
		s.frc.DidAbortAllPendingFrames()
	}
}

// PendingSwapBuffers returns the number of unacknowledged swaps.
func (s *OutputSurface) PendingSwapBuffers() int {
	if s.frc == nil {
		return 0
	}
	return s.frc.NumFramesPending()
}

// OnVSyncParametersChanged retargets begin-frame emulation to the new
// display timing and forwards the parameters to the client.
func (s *OutputSurface) OnVSyncParametersChanged(timebase time.Time, interval time.Duration) {
	if s.frc != nil {
		s.frc.SetTimebaseAndInterval(timebase, interval)
	}
	if s.client != nil {
		s.client.OnVSyncParametersChanged(timebase, interval)
	}
}

// DidLoseContext reports a lost GPU context to the client.
func (s *OutputSurface) DidLoseContext() {
	if s.client != nil {
		s.client.DidLoseOutputSurface()
	}
}

// frcClient adapts the surface to the frame rate controller's client
// interface without exporting the method on OutputSurface itself.
type frcClient struct {
	s *OutputSurface
}

func (c frcClient) FrameRateControllerTick(throttled bool, frameTime time.Time) {
	if throttled {
		return
	}
	c.s.BeginFrame(frameTime)
}
