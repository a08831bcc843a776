// Package zone restricts detections to a polygon region of the frame
package zone

import (
	"errors"
	"fmt"
	"image"
	"math"

	clipper "github.com/ctessum/go.clipper"
	"github.com/roadeye/vtrack/postprocess/result"
)

// precision is the fixed point scale applied to coordinates since clipper
// works on integer paths
const precision = 16

var (
	// ErrTooFewPoints is returned for polygons of less than three points
	ErrTooFewPoints = errors.New("zone: polygon needs at least 3 points")
	// ErrThreshold is returned for an overlap threshold outside (0,1]
	ErrThreshold = errors.New("zone: overlap threshold must be in (0,1]")
)

// Zone is a closed polygon in frame pixel coordinates
type Zone struct {
	points    []image.Point
	path      clipper.Path
	threshold float64
}

// New returns a zone for the polygon.  Threshold is the minimum fraction of a
// box's area that must fall inside the polygon for the box to be kept.
func New(points []image.Point, threshold float64) (*Zone, error) {

	if len(points) < 3 {
		return nil, ErrTooFewPoints
	}

	if threshold <= 0 || threshold > 1 || math.IsNaN(threshold) {
		return nil, fmt.Errorf("%w: %v", ErrThreshold, threshold)
	}

	path := make(clipper.Path, 0, len(points))

	for _, pt := range points {
		path = append(path, &clipper.IntPoint{
			X: clipper.CInt(pt.X * precision),
			Y: clipper.CInt(pt.Y * precision),
		})
	}

	if clipper.Area(path) == 0 {
		return nil, fmt.Errorf("zone: polygon has no area")
	}

	pts := make([]image.Point, len(points))
	copy(pts, points)

	return &Zone{points: pts, path: path, threshold: threshold}, nil
}

// Points returns the polygon vertices
func (z *Zone) Points() []image.Point {
	out := make([]image.Point, len(z.points))
	copy(out, z.points)
	return out
}

// Threshold returns the minimum overlap fraction
func (z *Zone) Threshold() float64 {
	return z.threshold
}

// Overlap returns the fraction of the box area inside the polygon, 0 for
// degenerate boxes
func (z *Zone) Overlap(b result.Box) float64 {

	box := boxPath(b)
	boxArea := math.Abs(clipper.Area(box))

	if boxArea == 0 {
		return 0
	}

	c := clipper.NewClipper(clipper.IoNone)
	c.AddPath(box, clipper.PtSubject, true)
	c.AddPath(z.path, clipper.PtClip, true)

	solution, ok := c.Execute1(clipper.CtIntersection, clipper.PftNonZero, clipper.PftNonZero)

	if !ok {
		return 0
	}

	inside := 0.0

	for _, p := range solution {
		inside += clipper.Area(p)
	}

	return math.Min(math.Abs(inside)/boxArea, 1)
}

// Filter returns the detections overlapping the zone by at least the
// threshold, keeping order
func (z *Zone) Filter(dets []result.DetectResult) []result.DetectResult {

	out := make([]result.DetectResult, 0, len(dets))

	for _, d := range dets {
		if z.Overlap(d.Box) >= z.threshold {
			out = append(out, d)
		}
	}

	return out
}

func boxPath(b result.Box) clipper.Path {
	x1 := clipper.CInt(math.Round(float64(b.X1) * precision))
	y1 := clipper.CInt(math.Round(float64(b.Y1) * precision))
	x2 := clipper.CInt(math.Round(float64(b.X2) * precision))
	y2 := clipper.CInt(math.Round(float64(b.Y2) * precision))

	return clipper.Path{
		&clipper.IntPoint{X: x1, Y: y1},
		&clipper.IntPoint{X: x2, Y: y1},
		&clipper.IntPoint{X: x2, Y: y2},
		&clipper.IntPoint{X: x1, Y: y2},
	}
}
