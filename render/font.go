package render

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Inset is the padding kept between text and the edge of its background
type Inset struct {
	Left, Right, Top, Bottom int
}

// Font is a Hershey face with the styling and padding used for captions
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	LineType  gocv.LineType
	Pad       Inset
}

// Measure returns the size of text rendered in f
func (f Font) Measure(text string) image.Point {
	return gocv.GetTextSize(text, f.Face, f.Scale, f.Thickness)
}

// Put writes text with its baseline starting at pos
func (f Font) Put(img *gocv.Mat, text string, pos image.Point) {
	gocv.PutTextWithParams(img, text, pos, f.Face, f.Scale, f.Color,
		f.Thickness, f.LineType, false)
}

// DefaultFont is used for box captions
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.5,
		Color:     White,
		Thickness: 1,
		LineType:  gocv.LineAA,
		Pad:       Inset{Left: 4, Right: 4, Top: 4, Bottom: 6},
	}
}

// OverlayFont is used for the stats header
func OverlayFont() Font {
	f := DefaultFont()
	f.Scale = 0.6
	f.Thickness = 2
	f.Pad = Inset{Left: 10, Right: 10, Top: 8, Bottom: 8}
	return f
}
