package vtrack

import (
	"image"

	"github.com/roadeye/vtrack/postprocess/result"
	"gocv.io/x/gocv"
)

// Detector runs object detection on a single BGR image
type Detector interface {
	// Detect returns the detections scoring at least conf, with boxes in the
	// pixel space of img
	Detect(img gocv.Mat, conf float32) ([]result.DetectResult, error)
	// Classes returns the class names indexed by class id
	Classes() []string
	// InputSize returns the model input tensor width and height
	InputSize() image.Point
	// Close releases the model
	Close() error
}
