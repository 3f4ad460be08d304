// Package images - Image processing utilities
package images

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// Rect is a corner-form bounding box in continuous coordinates.
type Rect struct {
	X1, Y1, X2, Y2 float32
}

// RectFromCenter converts a (center x, center y, width, height) box into corner form.
func RectFromCenter(cx, cy, w, h float32) Rect {
	return Rect{
		X1: cx - w/2,
		Y1: cy - h/2,
		X2: cx + w/2,
		Y2: cy + h/2,
	}
}

// Width returns the horizontal extent, never negative.
func (r Rect) Width() float32 {
	w := r.X2 - r.X1
	if !(w > 0) {
		return 0
	}
	return w
}

// Height returns the vertical extent, never negative.
func (r Rect) Height() float32 {
	h := r.Y2 - r.Y1
	if !(h > 0) {
		return 0
	}
	return h
}

// Area returns the box area; inverted or NaN boxes have zero area.
func (r Rect) Area() float32 {
	return r.Width() * r.Height()
}

// Clamp limits the box to [0, width] x [0, height].
func (r Rect) Clamp(width, height float32) Rect {
	return Rect{
		X1: math32.Min(math32.Max(r.X1, 0), width),
		Y1: math32.Min(math32.Max(r.Y1, 0), height),
		X2: math32.Min(math32.Max(r.X2, 0), width),
		Y2: math32.Min(math32.Max(r.Y2, 0), height),
	}
}

// ToRectangle returns the smallest integer rectangle covering the box.
func (r Rect) ToRectangle() image.Rectangle {
	return image.Rect(
		int(math32.Floor(r.X1)),
		int(math32.Floor(r.Y1)),
		int(math32.Ceil(r.X2)),
		int(math32.Ceil(r.Y2)),
	).Canon()
}

func (r Rect) String() string {
	return fmt.Sprintf("(%.2f, %.2f), (%.2f, %.2f)", r.X1, r.Y1, r.X2, r.Y2)
}

// CalculateIoU returns the Intersection over Union of two boxes, a value in [0, 1].
//
// The intersection is bounded by the larger of the two top-left corners and
// the smaller of the two bottom-right corners; when that region has no width
// or height the boxes do not overlap. The union follows inclusion-exclusion:
//
//	Union(A, B) = Area(A) + Area(B) - Intersection(A, B)
//
// A box with zero area has IoU 0 with everything, including itself, and a
// zero union never reaches the division.
//
// Arguments:
//   - r: The first box.
//   - o: The other box.
//
// Returns:
//   - float32: The IoU score.
//
// Example Usage:
// ```go
//
//	a := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	b := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//	iou := CalculateIoU(a, b) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	areaR := r.Area()
	areaO := o.Area()
	if !(areaR > 0) || !(areaO > 0) {
		return 0
	}

	interW := math32.Min(r.X2, o.X2) - math32.Max(r.X1, o.X1)
	interH := math32.Min(r.Y2, o.Y2) - math32.Max(r.Y1, o.Y1)
	if !(interW > 0) || !(interH > 0) {
		return 0
	}
	interArea := interW * interH

	unionArea := areaR + areaO - interArea
	if !(unionArea > 0) {
		return 0
	}

	return math32.Min(interArea/unionArea, 1)
}
