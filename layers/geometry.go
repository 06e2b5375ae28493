// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package layers provides the compositor's scene description: a tree of
// layers on the client side, its immutable compositor-side mirror, and the
// texture upload queue a commit produces.
package layers

import "math"

// Size is a width and height in whole pixels.
type Size struct {
	Width, Height int
}

// IsEmpty reports whether the size spans no pixels.
func (s Size) IsEmpty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Scale returns the size multiplied by factor, rounded up so scaled
// content never loses its last partial pixel row or column.
func (s Size) Scale(factor float32) Size {
	return Size{
		Width:  int(math.Ceil(float64(float32(s.Width) * factor))),
		Height: int(math.Ceil(float64(float32(s.Height) * factor))),
	}
}

// PointF is a position in layout coordinates.
type PointF struct {
	X, Y float32
}

// RectF is an axis-aligned rectangle.
type RectF struct {
	X, Y, Width, Height float32
}

// IsEmpty reports whether the rectangle spans no area.
func (r RectF) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Intersect returns the overlap of two rectangles, or an empty RectF.
func (r RectF) Intersect(o RectF) RectF {
	x0 := maxf(r.X, o.X)
	y0 := maxf(r.Y, o.Y)
	x1 := minf(r.X+r.Width, o.X+o.Width)
	y1 := minf(r.Y+r.Height, o.Y+o.Height)
	if x1 <= x0 || y1 <= y0 {
		return RectF{}
	}
	return RectF{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Union returns the smallest rectangle containing both. An empty operand
// contributes nothing.
func (r RectF) Union(o RectF) RectF {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	x0 := minf(r.X, o.X)
	y0 := minf(r.Y, o.Y)
	x1 := maxf(r.X+r.Width, o.X+o.Width)
	y1 := maxf(r.Y+r.Height, o.Y+o.Height)
	return RectF{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

// Affine represents a 2D affine transformation matrix.
// The matrix is stored in row-major order as:
//
//	| A  B  C |
//	| D  E  F |
//
// Where a point (x, y) is transformed to:
//
//	x' = A*x + B*y + C
//	y' = D*x + E*y + F
type Affine struct {
	A, B, C float32
	D, E, F float32
}

// IdentityAffine returns the identity transformation.
func IdentityAffine() Affine {
	return Affine{A: 1, B: 0, C: 0, D: 0, E: 1, F: 0}
}

// TranslateAffine creates a translation transformation.
func TranslateAffine(x, y float32) Affine {
	return Affine{A: 1, B: 0, C: x, D: 0, E: 1, F: y}
}

// ScaleAffine creates a scaling transformation.
func ScaleAffine(x, y float32) Affine {
	return Affine{A: x, B: 0, C: 0, D: 0, E: y, F: 0}
}

// Multiply returns the product of two affine transformations.
func (a Affine) Multiply(b Affine) Affine {
	return Affine{
		A: a.A*b.A + a.B*b.D,
		B: a.A*b.B + a.B*b.E,
		C: a.A*b.C + a.B*b.F + a.C,
		D: a.D*b.A + a.E*b.D,
		E: a.D*b.B + a.E*b.E,
		F: a.D*b.C + a.E*b.F + a.F,
	}
}

// TransformPoint transforms a point by the affine matrix.
func (a Affine) TransformPoint(x, y float32) (float32, float32) {
	return a.A*x + a.B*y + a.C, a.D*x + a.E*y + a.F
}

// IsIdentity returns true if this is the identity transformation.
func (a Affine) IsIdentity() bool {
	return a.A == 1 && a.B == 0 && a.C == 0 &&
		a.D == 0 && a.E == 1 && a.F == 0
}
