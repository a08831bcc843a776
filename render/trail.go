package render

import (
	"image/color"

	"github.com/roadeye/vtrack/postprocess/result"
	"github.com/roadeye/vtrack/tracker"
	"gocv.io/x/gocv"
)

// TrailStyle defines the parameters used for rendering the trail style
type TrailStyle struct {
	// LineSame draws the trail in the box color instead of LineColor
	LineSame      bool
	LineColor     color.RGBA
	LineThickness int
	// CircleSame draws the current center point in the box color instead
	// of CircleColor
	CircleSame   bool
	CircleColor  color.RGBA
	CircleRadius int
}

// DefaultTrailStyle returns default trail style settings
func DefaultTrailStyle() TrailStyle {
	return TrailStyle{
		LineSame:      false,
		LineColor:     Yellow,
		LineThickness: 1,
		CircleSame:    true,
		CircleColor:   Pink,
		CircleRadius:  3,
	}
}

// Trail draws the motion history of each tracked detection
func Trail(img *gocv.Mat, dets []result.DetectResult, trail *tracker.Trail,
	style TrailStyle) {

	if trail == nil {
		return
	}

	for _, det := range dets {

		if !det.Tracked() {
			continue
		}

		objClr := ColorFor(det.TrackID)
		lineClr, circleClr := objClr, objClr

		if !style.LineSame {
			lineClr = style.LineColor
		}

		if !style.CircleSame {
			circleClr = style.CircleColor
		}

		points := trail.GetPoints(det.TrackID)

		if len(points) < 2 {
			continue
		}

		for i := 1; i < len(points); i++ {
			gocv.Line(img, points[i-1], points[i], lineClr, style.LineThickness)
		}

		gocv.Circle(img, points[len(points)-1], style.CircleRadius, circleClr, -1)
	}
}
