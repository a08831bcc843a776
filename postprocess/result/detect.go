package result

import (
	"image"
	"math"
)

// Box is a bounding box in x1,y1 (top left) and x2,y2 (bottom right) pixel
// coordinates of the frame the detection belongs to
type Box struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

// Width of the box
func (b Box) Width() float32 {
	return b.X2 - b.X1
}

// Height of the box
func (b Box) Height() float32 {
	return b.Y2 - b.Y1
}

// Area of the box, zero for degenerate boxes
func (b Box) Area() float32 {
	w, h := b.Width(), b.Height()

	if w <= 0 || h <= 0 {
		return 0
	}

	return w * h
}

// Center returns the center point of the box
func (b Box) Center() (float32, float32) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Scale multiplies the x coordinates by sx and y coordinates by sy
func (b Box) Scale(sx, sy float32) Box {
	return Box{
		X1: b.X1 * sx,
		Y1: b.Y1 * sy,
		X2: b.X2 * sx,
		Y2: b.Y2 * sy,
	}
}

// Clamp restricts the box to the region [0,width]x[0,height]
func (b Box) Clamp(width, height int) Box {
	w := float32(width)
	h := float32(height)

	return Box{
		X1: clampf(b.X1, 0, w),
		Y1: clampf(b.Y1, 0, h),
		X2: clampf(b.X2, 0, w),
		Y2: clampf(b.Y2, 0, h),
	}
}

// Within reports whether the box lies inside [0,width]x[0,height], boundary
// inclusive
func (b Box) Within(width, height int) bool {
	w := float32(width)
	h := float32(height)

	return b.X1 >= 0 && b.Y1 >= 0 && b.X2 <= w && b.Y2 <= h &&
		b.X1 <= b.X2 && b.Y1 <= b.Y2
}

// IoU calculates the Intersection over Union of two boxes
func (b Box) IoU(o Box) float32 {
	iw := min(b.X2, o.X2) - max(b.X1, o.X1)
	ih := min(b.Y2, o.Y2) - max(b.Y1, o.Y1)

	if iw <= 0 || ih <= 0 {
		return 0
	}

	inter := iw * ih
	union := b.Area() + o.Area() - inter

	if union <= 0 {
		return 0
	}

	return inter / union
}

// Rect converts the box to an integer image.Rectangle for drawing
func (b Box) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(float64(b.X1))),
		int(math.Round(float64(b.Y1))),
		int(math.Round(float64(b.X2))),
		int(math.Round(float64(b.Y2))),
	)
}

// DetectResult defines the attributes of a single object detected
type DetectResult struct {
	// Box is the bounding box of the object location
	Box Box
	// Class is the index into the class names the Model was trained on
	Class int
	// Probability is the confidence score of the object detected
	Probability float32
	// ID is a unique ID assigned to the detection result, used to match
	// the detection with its tracker output
	ID int64
	// TrackID is the persistent tracker identity, zero when untracked
	TrackID int
}

// Tracked reports whether a track id has been assigned
func (d DetectResult) Tracked() bool {
	return d.TrackID > 0
}

func clampf(val, lo, hi float32) float32 {
	if val < lo {
		return lo
	}

	if val > hi {
		return hi
	}

	return val
}
