package render

import (
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"
)

// Stats are the figures shown in the overlay header
type Stats struct {
	Vehicles  int
	FPS       float64
	Frame     int
	Inference time.Duration
	Processed image.Point
}

// Lines formats the stats as the two overlay text lines
func (s Stats) Lines() []string {
	return []string{
		fmt.Sprintf("Vehicles: %d | FPS: %.1f | Frame: %d", s.Vehicles, s.FPS, s.Frame),
		fmt.Sprintf("Inference: %.1fms | Processed: %dx%d",
			float64(s.Inference.Microseconds())/1000, s.Processed.X, s.Processed.Y),
	}
}

// Overlay draws the text lines on a filled black header bar in the top left
// corner of the image and returns the area it covered, clipped to the image
func Overlay(img *gocv.Mat, lines []string, font Font) image.Rectangle {

	if len(lines) == 0 || img.Empty() {
		return image.Rectangle{}
	}

	maxW, lineH := 0, 0

	for _, l := range lines {
		sz := font.Measure(l)

		if sz.X > maxW {
			maxW = sz.X
		}
		if sz.Y > lineH {
			lineH = sz.Y
		}
	}

	pad := font.Pad
	step := lineH + pad.Top + pad.Bottom
	bar := image.Rect(0, 0, maxW+pad.Left+pad.Right, step*len(lines)+pad.Bottom)
	bar = bar.Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))

	gocv.Rectangle(img, bar, Black, -1)

	for i, l := range lines {
		font.Put(img, l, image.Pt(pad.Left, step*(i+1)))
	}

	return bar
}
