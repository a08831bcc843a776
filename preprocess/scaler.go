package preprocess

import (
	"errors"
	"image"

	"github.com/roadeye/vtrack/postprocess/result"
	"gocv.io/x/gocv"
)

// DefaultTargetHeight is the height frames are downsized to before inference
const DefaultTargetHeight = 480

// ErrEmptyFrame is returned when a frame has no pixels
var ErrEmptyFrame = errors.New("empty frame")

// Scaler downsizes a frame to a fixed height for inference, preserving aspect
// ratio, and maps detections found on the downsized frame back to the
// original frame
type Scaler struct {
	srcWidth  int
	srcHeight int
	dstWidth  int
	dstHeight int
	// per axis ratio of original to downsized dimensions
	scaleX float32
	scaleY float32
}

// NewScaler precalculates the downsize dimensions for a source frame size
func NewScaler(srcWidth, srcHeight, targetHeight int) (*Scaler, error) {

	if srcWidth <= 0 || srcHeight <= 0 {
		return nil, ErrEmptyFrame
	}

	if targetHeight <= 0 {
		targetHeight = DefaultTargetHeight
	}

	dstWidth := int(float64(srcWidth) * float64(targetHeight) / float64(srcHeight))

	if dstWidth < 1 {
		dstWidth = 1
	}

	return &Scaler{
		srcWidth:  srcWidth,
		srcHeight: srcHeight,
		dstWidth:  dstWidth,
		dstHeight: targetHeight,
		scaleX:    float32(srcWidth) / float32(dstWidth),
		scaleY:    float32(srcHeight) / float32(targetHeight),
	}, nil
}

// Matches reports whether the scaler was calculated for the frame size
func (s *Scaler) Matches(srcWidth, srcHeight int) bool {
	return s.srcWidth == srcWidth && s.srcHeight == srcHeight
}

// Size returns the downsized dimensions used for inference
func (s *Scaler) Size() image.Point {
	return image.Pt(s.dstWidth, s.dstHeight)
}

// Downscale resizes src into dst at the target height
func (s *Scaler) Downscale(src gocv.Mat, dst *gocv.Mat) {

	if s.dstWidth == s.srcWidth && s.dstHeight == s.srcHeight {
		src.CopyTo(dst)
		return
	}

	gocv.Resize(src, dst, s.Size(), 0, 0, gocv.InterpolationLinear)
}

// Rescale maps detections from downsized coordinates back to the original
// frame, clamped to its bounds.  The input slice is not modified.
func (s *Scaler) Rescale(dets []result.DetectResult) []result.DetectResult {

	if len(dets) == 0 {
		return dets
	}

	out := make([]result.DetectResult, len(dets))

	for i, det := range dets {
		det.Box = det.Box.Scale(s.scaleX, s.scaleY).Clamp(s.srcWidth, s.srcHeight)
		out[i] = det
	}

	return out
}
