package tracker

import (
	"github.com/roadeye/vtrack/postprocess/result"
)

// Rect is a box in tlwh (top left x, top left y, width, height) form
type Rect struct {
	X, Y, W, H float32
}

// NewRect creates a new Rect with given coordinates
func NewRect(x, y, width, height float32) Rect {
	return Rect{X: x, Y: y, W: width, H: height}
}

// RectFromBox converts a detection box into tlwh form
func RectFromBox(b result.Box) Rect {
	return Rect{X: b.X1, Y: b.Y1, W: b.Width(), H: b.Height()}
}

// rectFromMean converts the position part of a kalman state mean back to a
// Rect
func rectFromMean(x, y, a, h float64) Rect {
	w := a * h
	return Rect{
		X: float32(x - w/2),
		Y: float32(y - h/2),
		W: float32(w),
		H: float32(h),
	}
}

// Box converts the rect to a detection box
func (r Rect) Box() result.Box {
	return result.Box{X1: r.X, Y1: r.Y, X2: r.X + r.W, Y2: r.Y + r.H}
}

// BRX returns the bottom-right x coordinate of the rectangle
func (r Rect) BRX() float32 {
	return r.X + r.W
}

// BRY returns the bottom-right y coordinate of the rectangle
func (r Rect) BRY() float32 {
	return r.Y + r.H
}

// Center returns the center point of the rectangle
func (r Rect) Center() (float32, float32) {
	return r.X + r.W/2, r.Y + r.H/2
}

// Xyah converts the rectangle to the measurement space of the kalman filter
func (r Rect) Xyah() Measurement {
	cx, cy := r.Center()
	aspect := float32(0)

	if r.H > 0 {
		aspect = r.W / r.H
	}

	return Measurement{float64(cx), float64(cy), float64(aspect), float64(r.H)}
}

// IoU calculates the Intersection over Union with another rectangle using
// inclusive pixel extents
func (r Rect) IoU(o Rect) float32 {

	iw := min(r.BRX(), o.BRX()) - max(r.X, o.X) + 1

	if iw <= 0 {
		return 0
	}

	ih := min(r.BRY(), o.BRY()) - max(r.Y, o.Y) + 1

	if ih <= 0 {
		return 0
	}

	inter := iw * ih
	union := (r.W+1)*(r.H+1) + (o.W+1)*(o.H+1) - inter

	return inter / union
}
