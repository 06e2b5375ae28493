// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package scheduler provides the frame pacing primitives of the compositor:
// periodic tick sources aligned to display vsync and a frame rate controller
// that throttles tick delivery against swap-buffer backpressure.
package scheduler

import (
	"sync"
	"time"

	"github.com/gogpu/compositor/taskqueue"
)

// TimeSourceClient receives tick notifications from a TimeSource.
type TimeSourceClient interface {
	OnTimerTick()
}

// TimeSource produces periodic tick notifications at a configurable
// phase and interval.
//
// Ticks are strictly serialized: a TimeSource never has two ticks
// outstanding at the same time, and delivers to a single registered client.
type TimeSource interface {
	// SetClient registers the single tick recipient.
	SetClient(client TimeSourceClient)

	// SetActive starts or stops periodic notification.
	SetActive(active bool)

	// Active reports whether the source is currently ticking.
	Active() bool

	// SetTimebaseAndInterval reconfigures the tick phase. An already
	// scheduled tick is re-targeted rather than dropped or duplicated.
	SetTimebaseAndInterval(timebase time.Time, interval time.Duration)

	// NextTickTime returns the target time of the next tick, or the zero
	// time while inactive.
	NextTickTime() time.Time

	// LastTickTime returns the target time of the most recently delivered
	// tick, or the zero time if none has fired.
	LastTickTime() time.Time
}

// DelayBasedTimeSource is a TimeSource that schedules ticks as delayed
// tasks on a taskqueue.Runner, phase-locked to a timebase plus a whole
// number of intervals. This is the vsync-aligned source: the timebase and
// interval come from the display's vsync parameters.
type DelayBasedTimeSource struct {
	mu       sync.Mutex
	client   TimeSourceClient
	runner   taskqueue.Runner
	factory  taskqueue.TaskFactory
	timebase time.Time
	interval time.Duration
	active   bool
	lastTick time.Time
	nextTick time.Time

	// now is replaceable in tests.
	now func() time.Time
}

// NewDelayBasedTimeSource creates an inactive time source ticking every
// interval once activated.
func NewDelayBasedTimeSource(interval time.Duration, runner taskqueue.Runner) *DelayBasedTimeSource {
	return &DelayBasedTimeSource{
		runner:   runner,
		interval: interval,
		now:      time.Now,
	}
}

// SetClient registers the tick recipient.
func (ts *DelayBasedTimeSource) SetClient(client TimeSourceClient) {
	ts.mu.Lock()
	ts.client = client
	ts.mu.Unlock()
}

// SetActive starts or stops ticking. Deactivating cancels the outstanding
// scheduled tick.
func (ts *DelayBasedTimeSource) SetActive(active bool) {
	ts.mu.Lock()
	if ts.active == active {
		ts.mu.Unlock()
		return
	}
	ts.active = active
	if active {
		ts.scheduleNextTickLocked()
	} else {
		ts.factory.Invalidate()
		ts.nextTick = time.Time{}
	}
	ts.mu.Unlock()
}

// Active reports whether the source is ticking.
func (ts *DelayBasedTimeSource) Active() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.active
}

// SetTimebaseAndInterval re-phases the tick train. If the already scheduled
// tick still lands on the new phase it is left untouched; otherwise it is
// canceled and rescheduled for the corrected target.
func (ts *DelayBasedTimeSource) SetTimebaseAndInterval(timebase time.Time, interval time.Duration) {
	ts.mu.Lock()
	ts.timebase = timebase
	ts.interval = interval
	if ts.active {
		next := ts.nextTickTargetLocked(ts.now())
		if !next.Equal(ts.nextTick) {
			ts.factory.Invalidate()
			ts.scheduleNextTickLocked()
		}
	}
	ts.mu.Unlock()
}

// NextTickTime returns the next tick target, or the zero time while
// inactive.
func (ts *DelayBasedTimeSource) NextTickTime() time.Time {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if !ts.active {
		return time.Time{}
	}
	return ts.nextTick
}

// LastTickTime returns the most recent tick target.
func (ts *DelayBasedTimeSource) LastTickTime() time.Time {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.lastTick
}

// nextTickTargetLocked computes the first phase-aligned instant strictly
// after now. With a non-positive interval the target is now itself.
//
// The phase is derived arithmetically, never by stepping interval by
// interval: a timebase far from now (the zero time included, where the
// elapsed duration clamps at its maximum) costs the same as a near one.
func (ts *DelayBasedTimeSource) nextTickTargetLocked(now time.Time) time.Time {
	if ts.interval <= 0 {
		return now
	}
	rem := now.Sub(ts.timebase) % ts.interval
	if rem < 0 {
		rem += ts.interval
	}
	return now.Add(ts.interval - rem)
}

// scheduleNextTickLocked posts the next tick task. Caller must hold mu.
func (ts *DelayBasedTimeSource) scheduleNextTickLocked() {
	now := ts.now()
	ts.nextTick = ts.nextTickTargetLocked(now)
	ts.runner.PostDelayedTask(ts.factory.Bind(ts.onTick), ts.nextTick.Sub(now))
}

// onTick fires a tick and schedules the next one. Only one tick task is
// ever outstanding: the next is posted before the client is notified, but
// the runner's serial execution keeps deliveries ordered.
func (ts *DelayBasedTimeSource) onTick() {
	ts.mu.Lock()
	if !ts.active {
		ts.mu.Unlock()
		return
	}
	ts.lastTick = ts.nextTick
	ts.scheduleNextTickLocked()
	client := ts.client
	ts.mu.Unlock()

	if client != nil {
		client.OnTimerTick()
	}
}

var _ TimeSource = (*DelayBasedTimeSource)(nil)
