package preprocess

import (
	"image"
	"image/color"
	"math"

	"github.com/roadeye/vtrack/postprocess/result"
	"gocv.io/x/gocv"
)

// LetterboxColor is the gray padding color used by YOLOv8 when training
var LetterboxColor = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// Resizer letterboxes frames of one size into the model input tensor and
// maps boxes back.  The geometry is calculated once per source size.
type Resizer struct {
	src  image.Point
	dest image.Point
	// resized is the frame size inside the padding
	resized image.Point
	// padding at the top left, the bottom right takes the remainder
	pad   image.Point
	scale float32
	// tempMat holds the resized frame before padding
	tempMat gocv.Mat
}

// NewResizer returns a resizer for srcWidth x srcHeight frames into a
// destWidth x destHeight tensor
func NewResizer(srcWidth, srcHeight, destWidth, destHeight int) *Resizer {

	r := &Resizer{
		src:     image.Pt(srcWidth, srcHeight),
		dest:    image.Pt(destWidth, destHeight),
		tempMat: gocv.NewMat(),
	}

	scale := math.Min(float64(destWidth)/float64(srcWidth),
		float64(destHeight)/float64(srcHeight))

	r.scale = float32(scale)
	r.resized = image.Pt(
		int(math.Round(float64(srcWidth)*scale)),
		int(math.Round(float64(srcHeight)*scale)),
	)

	// split the padding as ultralytics does, rounding the smaller half down
	r.pad = image.Pt(
		int(math.Round(float64(destWidth-r.resized.X)/2-0.1)),
		int(math.Round(float64(destHeight-r.resized.Y)/2-0.1)),
	)

	return r
}

// Close frees memory allocated during resize process
func (r *Resizer) Close() error {
	return r.tempMat.Close()
}

// Matches reports whether the resizer was calculated for the given source
// dimensions
func (r *Resizer) Matches(srcWidth, srcHeight int) bool {
	return r.src.X == srcWidth && r.src.Y == srcHeight
}

// LetterBoxResize scales src into dest keeping its aspect ratio and fills the
// border with clr
func (r *Resizer) LetterBoxResize(src gocv.Mat, dest *gocv.Mat, clr color.RGBA) {

	if r.resized == r.src {
		src.CopyTo(&r.tempMat)
	} else {
		gocv.Resize(src, &r.tempMat, r.resized, 0, 0, gocv.InterpolationLinear)
	}

	gocv.CopyMakeBorder(r.tempMat, dest,
		r.pad.Y, r.dest.Y-r.resized.Y-r.pad.Y,
		r.pad.X, r.dest.X-r.resized.X-r.pad.X,
		gocv.BorderConstant, clr)
}

// Unletterbox maps a box in tensor pixels back to the source frame, clamped
// to its bounds
func (r *Resizer) Unletterbox(b result.Box) result.Box {

	xPad := float32(r.pad.X)
	yPad := float32(r.pad.Y)

	return result.Box{
		X1: (b.X1 - xPad) / r.scale,
		Y1: (b.Y1 - yPad) / r.scale,
		X2: (b.X2 - xPad) / r.scale,
		Y2: (b.Y2 - yPad) / r.scale,
	}.Clamp(r.src.X, r.src.Y)
}

// ScaleFactor returns the scale factor used in letterbox resize
func (r *Resizer) ScaleFactor() float32 {
	return r.scale
}

// XPad returns the left padding
func (r *Resizer) XPad() int {
	return r.pad.X
}

// YPad returns the top padding
func (r *Resizer) YPad() int {
	return r.pad.Y
}

// SrcWidth returns the width of the source image
func (r *Resizer) SrcWidth() int {
	return r.src.X
}

// SrcHeight returns the height of the source image
func (r *Resizer) SrcHeight() int {
	return r.src.Y
}
