package postprocess

import (
	"math"
	"sort"
)

// sortCandidates orders candidates by descending score, keeping the original
// order for equal scores
func sortCandidates(cands []candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].score > cands[j].score
	})
}

// nms implements a class aware Non-Maximum Suppression (NMS) algorithm over
// candidates already sorted by score.  It returns the indices of the
// candidates kept
func nms(cands []candidate, threshold float32) []int {

	suppressed := make([]bool, len(cands))
	keep := make([]int, 0, len(cands))

	for i := range cands {

		if suppressed[i] {
			continue
		}

		keep = append(keep, i)
		a := cands[i].box

		for j := i + 1; j < len(cands); j++ {

			if suppressed[j] || cands[j].class != cands[i].class {
				continue
			}

			b := cands[j].box
			iou := calculateOverlap(a.X1, a.Y1, a.X2, a.Y2, b.X1, b.Y1, b.X2, b.Y2)

			if iou > threshold {
				suppressed[j] = true
			}
		}
	}

	return keep
}

// calculateOverlap works out the Intersection of Union (IoU) value of two
// boxes dimensions
func calculateOverlap(xmin0, ymin0, xmax0, ymax0, xmin1, ymin1,
	xmax1, ymax1 float32) float32 {

	w := math.Max(0.0, math.Min(float64(xmax0), float64(xmax1))-math.Max(float64(xmin0), float64(xmin1))+1.0)
	h := math.Max(0.0, math.Min(float64(ymax0), float64(ymax1))-math.Max(float64(ymin0), float64(ymin1))+1.0)
	intersection := w * h

	// area of both rectangles with added 1.0 for inclusive pixel calculation
	area0 := (xmax0 - xmin0 + 1) * (ymax0 - ymin0 + 1)
	area1 := (xmax1 - xmin1 + 1) * (ymax1 - ymin1 + 1)

	union := area0 + area1 - float32(intersection)

	if union <= 0 {
		return 0.0
	}

	return float32(intersection) / union
}
