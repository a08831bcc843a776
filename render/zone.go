package render

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// ZoneColor is the outline color of the counting zone
var ZoneColor = color.RGBA{R: 0, G: 255, B: 255, A: 255}

// Zone draws the outline of a closed polygon and returns the area the
// stroke may touch, clipped to the image
func Zone(img *gocv.Mat, points []image.Point, clr color.RGBA, thickness int) image.Rectangle {

	if len(points) < 3 {
		return image.Rectangle{}
	}

	pv := gocv.NewPointsVectorFromPoints([][]image.Point{points})
	defer pv.Close()

	gocv.Polylines(img, pv, true, clr, thickness)

	var bounds image.Rectangle

	for _, pt := range points {
		bounds = bounds.Union(image.Rectangle{Min: pt, Max: pt.Add(image.Pt(1, 1))})
	}

	// antialiased strokes spread past half the thickness
	return bounds.Inset(-(thickness + 1)).Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
}
