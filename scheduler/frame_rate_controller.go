// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scheduler

import (
	"time"

	"github.com/gogpu/compositor/taskqueue"
)

// FrameRateControllerClient receives paced frame ticks.
type FrameRateControllerClient interface {
	// FrameRateControllerTick is called once per paced frame. throttled
	// reports whether swap-buffer backpressure is currently suppressing
	// ticks; a throttled notification carries no frame budget and the
	// client should not draw. frameTime is the target display time of the
	// frame.
	FrameRateControllerTick(throttled bool, frameTime time.Time)
}

// FrameRateController meters frame ticks against swap-buffer backpressure.
//
// It operates in one of two modes, fixed at construction:
//
//   - Timer mode wraps a TimeSource and forwards its periodic ticks.
//   - Manual mode self-schedules: each tick posts the next one as an
//     immediate task, so frames run back-to-back as fast as swap
//     completions allow.
//
// In both modes the controller tracks the number of swaps the client has
// issued but the display has not yet acknowledged. When that number reaches
// the configured maximum, tick notifications are delivered with
// throttled=true until a swap completes or the pending frames are aborted.
type FrameRateController struct {
	client FrameRateControllerClient

	// Timer mode.
	timeSource TimeSource

	// Manual mode.
	runner            taskqueue.Runner
	factory           taskqueue.TaskFactory
	manualTickPending bool

	active            bool
	numFramesPending  int
	maxFramesPending  int
	swapBuffersEnable bool
	now               func() time.Time
}

// NewFrameRateController creates a timer-mode controller driven by the
// given time source. The controller registers itself as the source's
// client.
func NewFrameRateController(timeSource TimeSource) *FrameRateController {
	frc := &FrameRateController{
		timeSource:        timeSource,
		swapBuffersEnable: true,
		now:               time.Now,
	}
	timeSource.SetClient(frc)
	return frc
}

// NewManualFrameRateController creates a manual-mode controller that
// self-schedules ticks on runner. Ticks run back-to-back, gated only by
// swap backpressure.
func NewManualFrameRateController(runner taskqueue.Runner) *FrameRateController {
	return &FrameRateController{
		runner:            runner,
		swapBuffersEnable: true,
		now:               time.Now,
	}
}

// SetClient registers the tick recipient.
func (frc *FrameRateController) SetClient(client FrameRateControllerClient) {
	frc.client = client
}

// SetMaxFramesPending sets the swap throttle depth. Zero disables
// throttling.
func (frc *FrameRateController) SetMaxFramesPending(max int) {
	frc.maxFramesPending = max
}

// MaxFramesPending returns the configured swap throttle depth.
func (frc *FrameRateController) MaxFramesPending() int {
	return frc.maxFramesPending
}

// SetSwapBuffersCompleteSupported records whether the output surface
// reports swap completions. When it does not, DidSwapBuffers immediately
// self-acknowledges so the pending count stays at zero.
func (frc *FrameRateController) SetSwapBuffersCompleteSupported(supported bool) {
	frc.swapBuffersEnable = supported
}

// SetActive starts or stops tick delivery. In manual mode, activating
// schedules an immediate tick; deactivating cancels any outstanding one.
func (frc *FrameRateController) SetActive(active bool) {
	if frc.active == active {
		return
	}
	frc.active = active
	slogger().Debug("scheduler: frame rate controller activity changed", "active", active)

	if frc.timeSource != nil {
		frc.timeSource.SetActive(active)
		return
	}
	if active {
		frc.postManualTick()
	} else {
		frc.factory.Invalidate()
		frc.manualTickPending = false
	}
}

// Active reports whether tick delivery is on.
func (frc *FrameRateController) Active() bool {
	return frc.active
}

// NumFramesPending returns the count of unacknowledged swaps.
func (frc *FrameRateController) NumFramesPending() int {
	return frc.numFramesPending
}

// SetTimebaseAndInterval forwards new vsync parameters to the underlying
// time source. It is a no-op in manual mode.
func (frc *FrameRateController) SetTimebaseAndInterval(timebase time.Time, interval time.Duration) {
	if frc.timeSource != nil {
		frc.timeSource.SetTimebaseAndInterval(timebase, interval)
	}
}

// NextTickTime returns the target time of the next timer tick, or the zero
// time in manual mode or while inactive.
func (frc *FrameRateController) NextTickTime() time.Time {
	if frc.timeSource == nil {
		return time.Time{}
	}
	return frc.timeSource.NextTickTime()
}

// DidSwapBuffers records a swap issued by the client. With swap-complete
// reporting unsupported, the swap is acknowledged on the spot.
func (frc *FrameRateController) DidSwapBuffers() {
	frc.numFramesPending++
	if !frc.swapBuffersEnable {
		frc.DidSwapBuffersComplete()
	}
}

// DidSwapBuffersComplete acknowledges one previously issued swap. Calling
// it with no swaps pending is a bug in the caller and panics.
func (frc *FrameRateController) DidSwapBuffersComplete() {
	if frc.numFramesPending <= 0 {
		panic("scheduler: DidSwapBuffersComplete called with no pending swaps")
	}
	frc.numFramesPending--
	if frc.timeSource == nil && frc.active {
		frc.postManualTick()
	}
}

// DidAbortAllPendingFrames discards every unacknowledged swap, for example
// when the compositor is hidden and its frames will never reach the
// display.
func (frc *FrameRateController) DidAbortAllPendingFrames() {
	if frc.numFramesPending > 0 {
		slogger().Debug("scheduler: aborted pending frames", "aborted", frc.numFramesPending)
	}
	frc.numFramesPending = 0
	if frc.timeSource == nil && frc.active {
		frc.postManualTick()
	}
}

// OnTimerTick implements TimeSourceClient for timer mode.
func (frc *FrameRateController) OnTimerTick() {
	frc.onTick()
}

func (frc *FrameRateController) throttled() bool {
	return frc.maxFramesPending > 0 && frc.numFramesPending >= frc.maxFramesPending
}

// postManualTick schedules the next manual tick unless one is already
// queued or backpressure would make it a throttled no-draw tick anyway.
func (frc *FrameRateController) postManualTick() {
	if frc.manualTickPending || frc.throttled() {
		return
	}
	frc.manualTickPending = true
	frc.runner.PostTask(frc.factory.Bind(frc.manualTick))
}

func (frc *FrameRateController) manualTick() {
	frc.manualTickPending = false
	frc.onTick()
}

func (frc *FrameRateController) onTick() {
	if !frc.active {
		return
	}
	throttled := frc.throttled()
	if throttled {
		slogger().Debug("scheduler: tick throttled by swap backpressure",
			"framesPending", frc.numFramesPending, "maxFramesPending", frc.maxFramesPending)
	}

	frameTime := frc.now()
	if frc.timeSource != nil {
		if last := frc.timeSource.LastTickTime(); !last.IsZero() {
			frameTime = last
		}
	}

	if frc.client != nil {
		frc.client.FrameRateControllerTick(throttled, frameTime)
	}

	// In manual mode an unthrottled tick immediately schedules the next
	// one; a throttled tick waits for a swap acknowledgement to re-arm.
	if frc.timeSource == nil && !throttled {
		frc.postManualTick()
	}
}

var _ TimeSourceClient = (*FrameRateController)(nil)
