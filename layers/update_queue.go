// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package layers

import (
	"image"

	"github.com/gogpu/compositor/resource"
)

// Upload is one pending texture write produced by a layer update.
type Upload struct {
	// Resource receives the pixels.
	Resource *resource.PrioritizedResource

	// Pixels holds the content to write. For a partial upload this is the
	// dirty sub-region only.
	Pixels *image.RGBA

	// DestX, DestY position Pixels inside the resource, in content pixels.
	DestX, DestY int
}

// UpdateQueue collects the texture uploads of one commit.
//
// Full uploads replace a resource's entire contents and are unbudgeted: a
// layer that must repaint everything gets to. Partial uploads patch a
// sub-region of an already valid texture; they are cheap individually but
// force the committed frame to wait on in-flight draws, so their count per
// commit is capped. A layer denied partial budget falls back to a full
// upload. Scrollbar uploads bypass the cap: scrollbars are tiny and
// stuttering ones are immediately visible.
type UpdateQueue struct {
	partialBudget  int
	fullUploads    []Upload
	partialUploads []Upload
}

// NewUpdateQueue creates a queue allowing at most maxPartialUpdates
// budgeted partial uploads.
func NewUpdateQueue(maxPartialUpdates int) *UpdateQueue {
	return &UpdateQueue{partialBudget: maxPartialUpdates}
}

// AppendFullUpload enqueues a whole-texture write.
func (q *UpdateQueue) AppendFullUpload(u Upload) {
	q.fullUploads = append(q.fullUploads, u)
}

// AllowPartialUpdate reports whether partial budget remains.
func (q *UpdateQueue) AllowPartialUpdate() bool {
	return q.partialBudget > 0
}

// AppendPartialUpload enqueues a sub-region write if budget remains. It
// returns false, enqueuing nothing, when the budget is exhausted.
func (q *UpdateQueue) AppendPartialUpload(u Upload) bool {
	if q.partialBudget <= 0 {
		return false
	}
	q.partialBudget--
	q.partialUploads = append(q.partialUploads, u)
	return true
}

// AppendScrollbarUpload enqueues a sub-region write without consuming
// partial budget.
func (q *UpdateQueue) AppendScrollbarUpload(u Upload) {
	q.partialUploads = append(q.partialUploads, u)
}

// FullUploadCount returns the number of queued full uploads.
func (q *UpdateQueue) FullUploadCount() int { return len(q.fullUploads) }

// PartialUploadCount returns the number of queued partial uploads,
// scrollbar uploads included.
func (q *UpdateQueue) PartialUploadCount() int { return len(q.partialUploads) }

// HasUploads reports whether anything is queued.
func (q *UpdateQueue) HasUploads() bool {
	return len(q.fullUploads) > 0 || len(q.partialUploads) > 0
}

// TakeUploads drains the queue, full uploads first.
func (q *UpdateQueue) TakeUploads() []Upload {
	uploads := make([]Upload, 0, len(q.fullUploads)+len(q.partialUploads))
	uploads = append(uploads, q.fullUploads...)
	uploads = append(uploads, q.partialUploads...)
	q.fullUploads = nil
	q.partialUploads = nil
	return uploads
}
