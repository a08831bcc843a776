package tracker

import "github.com/roadeye/vtrack/postprocess/result"

// DetectionsToObjects converts detection results into tracker objects
func DetectionsToObjects(dets []result.DetectResult) []Object {

	objs := make([]Object, 0, len(dets))

	for _, det := range dets {
		objs = append(objs, NewObject(RectFromBox(det.Box), det.Probability, det.ID))
	}

	return objs
}
