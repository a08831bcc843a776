package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/roadeye/vtrack/postprocess/result"
	"gocv.io/x/gocv"
)

// boxLabel holds a precalculated label so all labels can be drawn after
// the boxes
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// Label returns the caption for a detection, prefixed with its track id
// when tracked
func Label(det result.DetectResult, classNames []string) string {

	name := ClassName(det.Class, classNames)

	if det.Tracked() {
		return fmt.Sprintf("ID:%d %s %.2f", det.TrackID, name, det.Probability)
	}

	return fmt.Sprintf("%s %.2f", name, det.Probability)
}

// ClassName returns the name of a class id, class_<id> when it has none
func ClassName(class int, classNames []string) string {
	if class >= 0 && class < len(classNames) {
		return classNames[class]
	}
	return fmt.Sprintf("class_%d", class)
}

// Boxes renders the bounding boxes and labels of detections.  Tracked
// detections are colored by track id so an object keeps its color across
// frames, untracked ones by class.
func Boxes(img *gocv.Mat, dets []result.DetectResult, classNames []string,
	font Font, lineThickness int) {

	// keep a record of all box labels for later rendering
	boxLabels := make([]boxLabel, 0, len(dets))

	for _, det := range dets {

		useClr := ColorFor(det.Class)

		if det.Tracked() {
			useClr = ColorFor(det.TrackID)
		}

		rect := det.Box.Rect()
		gocv.Rectangle(img, rect, useClr, lineThickness)

		text := Label(det, classNames)
		size := font.Measure(text)
		pad := font.Pad
		h := size.Y + pad.Top + pad.Bottom

		// captions sit on the top edge, or inside boxes touching the frame top
		left := rect.Min.X - lineThickness/2
		base := rect.Min.Y

		if base-h < 0 {
			base = rect.Min.Y + h
		}

		boxLabels = append(boxLabels, boxLabel{
			rect:    image.Rect(left, base-h, left+size.X+pad.Left+pad.Right, base),
			clr:     useClr,
			text:    text,
			textPos: image.Pt(left+pad.Left, base-pad.Bottom),
		})
	}

	// labels are the top most layer so neighbouring boxes never cover them
	for _, box := range boxLabels {
		gocv.Rectangle(img, box.rect, box.clr, -1)

		font.Put(img, box.text, box.textPos)
	}
}
