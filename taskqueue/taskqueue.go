// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package taskqueue provides serial task execution primitives used to model
// the compositor's per-thread message loops.
//
// A Runner executes posted closures one at a time, in post order. The
// compositor uses two runners: one for the client ("main") side of the
// pipeline and one for the compositor side. Cross-thread requests become
// closures posted onto the receiving runner, which gives the same ordering
// guarantees as a single-threaded message loop without shared-state locks.
package taskqueue

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrRunnerStopped is returned when posting to a runner that has quit.
var ErrRunnerStopped = errors.New("taskqueue: runner stopped")

// Runner executes closures serially in post order.
type Runner interface {
	// PostTask enqueues fn for execution. It never blocks.
	PostTask(fn func())

	// PostDelayedTask enqueues fn for execution after at least delay has
	// elapsed. Delayed tasks do not block tasks posted after them.
	PostDelayedTask(fn func(), delay time.Duration)
}

// SerialRunner is a Runner backed by a dedicated goroutine.
//
// Tasks run strictly one at a time in FIFO order. SerialRunner is safe for
// concurrent use from any goroutine.
type SerialRunner struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []func()
	quit  bool
	done  chan struct{}
}

// NewSerialRunner creates a SerialRunner and starts its goroutine.
func NewSerialRunner() *SerialRunner {
	r := &SerialRunner{done: make(chan struct{})}
	r.cond = sync.NewCond(&r.mu)
	go r.loop()
	return r
}

func (r *SerialRunner) loop() {
	defer close(r.done)
	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.quit {
			r.cond.Wait()
		}
		if len(r.queue) == 0 && r.quit {
			r.mu.Unlock()
			return
		}
		fn := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()

		fn()
	}
}

// PostTask enqueues fn. Tasks posted after Quit are dropped.
func (r *SerialRunner) PostTask(fn func()) {
	r.mu.Lock()
	if r.quit {
		r.mu.Unlock()
		return
	}
	r.queue = append(r.queue, fn)
	r.mu.Unlock()
	r.cond.Signal()
}

// PostDelayedTask enqueues fn after delay. A non-positive delay posts
// immediately.
func (r *SerialRunner) PostDelayedTask(fn func(), delay time.Duration) {
	if delay <= 0 {
		r.PostTask(fn)
		return
	}
	time.AfterFunc(delay, func() { r.PostTask(fn) })
}

// RunSynchronously posts fn and blocks the calling goroutine until it has
// executed. It must not be called from the runner's own goroutine, as that
// would deadlock. Returns ErrRunnerStopped if the runner has quit.
func (r *SerialRunner) RunSynchronously(fn func()) error {
	ran := make(chan struct{})
	r.mu.Lock()
	if r.quit {
		r.mu.Unlock()
		return ErrRunnerStopped
	}
	r.queue = append(r.queue, func() {
		fn()
		close(ran)
	})
	r.mu.Unlock()
	r.cond.Signal()

	select {
	case <-ran:
		return nil
	case <-r.done:
		return ErrRunnerStopped
	}
}

// Quit drains already-posted tasks and stops the runner goroutine.
// Quit blocks until the goroutine has exited. It is idempotent.
func (r *SerialRunner) Quit() {
	r.mu.Lock()
	if r.quit {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.quit = true
	r.mu.Unlock()
	r.cond.Signal()
	<-r.done
}

// ManualRunner is a Runner whose tasks execute only when the test or
// emulation driver pumps them explicitly. It mirrors the role of a simple
// test task runner: delayed tasks are stored alongside immediate ones and
// run on the next pump regardless of their delay.
//
// ManualRunner is safe for concurrent use.
type ManualRunner struct {
	mu    sync.Mutex
	tasks []func()
}

// NewManualRunner creates an empty ManualRunner.
func NewManualRunner() *ManualRunner {
	return &ManualRunner{}
}

// PostTask enqueues fn for the next pump.
func (r *ManualRunner) PostTask(fn func()) {
	r.mu.Lock()
	r.tasks = append(r.tasks, fn)
	r.mu.Unlock()
}

// PostDelayedTask enqueues fn for the next pump. The delay only orders the
// task after already-pending ones; wall-clock time is not consulted.
func (r *ManualRunner) PostDelayedTask(fn func(), _ time.Duration) {
	r.PostTask(fn)
}

// HasPendingTasks reports whether any tasks are waiting for a pump.
func (r *ManualRunner) HasPendingTasks() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks) > 0
}

// PendingTaskCount returns the number of tasks waiting for a pump.
func (r *ManualRunner) PendingTaskCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// RunPendingTasks runs a snapshot of the currently pending tasks. Tasks
// posted while the snapshot runs wait for the next pump.
func (r *ManualRunner) RunPendingTasks() {
	r.mu.Lock()
	tasks := r.tasks
	r.tasks = nil
	r.mu.Unlock()

	for _, fn := range tasks {
		fn()
	}
}

// RunUntilIdle pumps repeatedly until no tasks remain, including tasks
// posted by tasks.
func (r *ManualRunner) RunUntilIdle() {
	for r.HasPendingTasks() {
		r.RunPendingTasks()
	}
}

// TaskFactory issues cancelable task closures. Invalidate revokes every
// closure bound before the call; a revoked closure becomes a no-op. This is
// the mechanism behind "cancel any outstanding self-scheduled tick":
// the tick stays in its runner's queue but does nothing when it fires.
type TaskFactory struct {
	gen atomic.Uint64
}

// Bind wraps fn so that it only executes if the factory has not been
// invalidated since the call to Bind.
func (f *TaskFactory) Bind(fn func()) func() {
	gen := f.gen.Load()
	return func() {
		if f.gen.Load() == gen {
			fn()
		}
	}
}

// Invalidate revokes all closures previously returned by Bind.
func (f *TaskFactory) Invalidate() {
	f.gen.Add(1)
}
