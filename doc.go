// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package compositor implements a threaded commit/draw scheduling core for
// GPU-backed compositing.
//
// A client goroutine builds and mutates a scene-graph of layers while an
// independent compositor goroutine rasterizes and presents frames at a
// throttled cadence. The package coordinates the hand-off between the two:
//
//   - LayerTreeHost is the client-side entry point. It owns the mutable
//     layer tree and accepts commit, visibility, and memory-policy requests
//     from the embedding application.
//   - LayerTreeHostImpl lives on the compositor goroutine. It owns the
//     immutable active tree, decides when to draw, and submits swaps
//     through an output.OutputSurface.
//   - Commits are atomic: the compositor never observes a half-updated
//     tree, at most one commit is in flight at a time, and redundant
//     SetNeedsCommit calls coalesce into a single commit.
//
// Frame pacing is handled by the scheduler package (vsync-aligned or
// manually self-scheduled ticks with swap-buffer backpressure), and texture
// memory is managed by the resource package (priority-ordered eviction
// under a byte budget).
//
// Rasterization, GPU command encoding, and presentation are external
// collaborators reached through narrow interfaces (Renderer,
// output.PresentDevice, output.Context); this package schedules them but
// does not implement them.
//
// Basic usage:
//
//	host := compositor.NewLayerTreeHost(client, compositor.DefaultSettings())
//	defer host.Close()
//
//	root := layers.NewContentLayer(host.Manager(), painter)
//	host.SetRootLayer(root)
//	host.SetViewportSize(layers.Size{Width: 800, Height: 600}, layers.Size{Width: 800, Height: 600})
//	host.SetVisible(true)
//	host.SetNeedsCommit()
package compositor
