package postprocess

import (
	"fmt"

	"github.com/roadeye/vtrack/postprocess/result"
	"github.com/roadeye/vtrack/preprocess"
)

// YOLOv8 defines the struct for YOLOv8 model inference post processing of
// ONNX exported models
type YOLOv8 struct {
	// Params are the Model configuration parameters
	Params YOLOv8Params
	// idGen provides the next number for each detection result ID
	idGen *result.IDGenerator
}

// YOLOv8Params defines the struct containing the YOLOv8 parameters to use
// for post processing operations
type YOLOv8Params struct {
	// BoxThreshold is the minimum probability score required for a bounding box
	// region to be considered for processing
	BoxThreshold float32
	// NMSThreshold is the Non-Maximum Suppression threshold used for defining
	// the maximum allowed Intersection Over Union (IoU) between two
	// bounding boxes for both to be kept
	NMSThreshold float32
	// ObjectClassNum is the number of different object classes the Model has
	// been trained with
	ObjectClassNum int
	// MaxObjectNumber is the maximum number of objects detected that can be
	// returned
	MaxObjectNumber int
}

// YOLOv8COCOParams returns an instance of YOLOv8Params configured with
// default values for a Model trained on the COCO dataset featuring:
// - Object Classes: 80
// - Box Threshold: 0.25
// - NMS Threshold: 0.45
// - Maximum Object Number: 100
func YOLOv8COCOParams() YOLOv8Params {
	return YOLOv8Params{
		BoxThreshold:    0.25,
		NMSThreshold:    0.45,
		ObjectClassNum:  80,
		MaxObjectNumber: 100,
	}
}

// NewYOLOv8 returns an instance of the YOLOv8 post processor
func NewYOLOv8(p YOLOv8Params) *YOLOv8 {
	return &YOLOv8{
		Params: p,
		idGen:  result.NewIDGenerator(),
	}
}

// candidate is a box that passed the score threshold before NMS
type candidate struct {
	box   result.Box
	score float32
	class int
}

// DetectObjects decodes the raw YOLOv8 output tensor of shape
// [1, 4+classes, anchors] where each anchor column holds cx,cy,w,h followed by
// the class scores.  Boxes are mapped from the letterboxed model input back to
// the resizer's source image.  A threshold of zero or less uses
// Params.BoxThreshold.
func (y *YOLOv8) DetectObjects(output []float32, channels, anchors int,
	resizer *preprocess.Resizer, threshold float32) ([]result.DetectResult, error) {

	if channels != 4+y.Params.ObjectClassNum {
		return nil, fmt.Errorf("output has %d channels, expected %d for %d classes",
			channels, 4+y.Params.ObjectClassNum, y.Params.ObjectClassNum)
	}

	if len(output) < channels*anchors {
		return nil, fmt.Errorf("output buffer too small: %d < %d", len(output), channels*anchors)
	}

	if threshold <= 0 {
		threshold = y.Params.BoxThreshold
	}

	cands := make([]candidate, 0, 64)

	for i := 0; i < anchors; i++ {

		maxScore := float32(0)
		maxClassID := -1

		for c := 0; c < y.Params.ObjectClassNum; c++ {
			score := output[(4+c)*anchors+i]

			if score > maxScore {
				maxScore = score
				maxClassID = c
			}
		}

		if maxClassID < 0 || maxScore < threshold {
			continue
		}

		cx := output[i]
		cy := output[anchors+i]
		w := output[2*anchors+i]
		h := output[3*anchors+i]

		cands = append(cands, candidate{
			box: result.Box{
				X1: cx - w/2,
				Y1: cy - h/2,
				X2: cx + w/2,
				Y2: cy + h/2,
			},
			score: maxScore,
			class: maxClassID,
		})
	}

	return y.collate(cands, resizer), nil
}

// DetectObjectsNMS decodes output from models exported with NMS embedded,
// shape [1, rows, 6] where each row is x1,y1,x2,y2,score,class
func (y *YOLOv8) DetectObjectsNMS(output []float32, rows int,
	resizer *preprocess.Resizer, threshold float32) ([]result.DetectResult, error) {

	if len(output) < rows*6 {
		return nil, fmt.Errorf("output buffer too small: %d < %d", len(output), rows*6)
	}

	if threshold <= 0 {
		threshold = y.Params.BoxThreshold
	}

	cands := make([]candidate, 0, rows)

	for i := 0; i < rows; i++ {
		row := output[i*6 : i*6+6]

		if row[4] < threshold {
			continue
		}

		cands = append(cands, candidate{
			box:   result.Box{X1: row[0], Y1: row[1], X2: row[2], Y2: row[3]},
			score: row[4],
			class: int(row[5]),
		})
	}

	// embedded NMS already suppressed overlaps so only sort and cap
	sortCandidates(cands)

	return y.toResults(cands, resizer), nil
}

// collate sorts candidates by score, applies class aware NMS and converts the
// survivors into detection results
func (y *YOLOv8) collate(cands []candidate, resizer *preprocess.Resizer) []result.DetectResult {

	if len(cands) == 0 {
		return nil
	}

	sortCandidates(cands)
	keep := nms(cands, y.Params.NMSThreshold)

	kept := make([]candidate, 0, len(keep))

	for _, k := range keep {
		kept = append(kept, cands[k])
	}

	return y.toResults(kept, resizer)
}

// toResults removes the letterbox padding and scale from candidate boxes
func (y *YOLOv8) toResults(cands []candidate, resizer *preprocess.Resizer) []result.DetectResult {

	group := make([]result.DetectResult, 0, len(cands))

	for _, c := range cands {
		if y.Params.MaxObjectNumber > 0 && len(group) >= y.Params.MaxObjectNumber {
			break
		}

		box := resizer.Unletterbox(c.box)

		if box.Area() <= 0 {
			continue
		}

		group = append(group, result.DetectResult{
			Box:         box,
			Probability: c.score,
			Class:       c.class,
			ID:          y.idGen.GetNext(),
		})
	}

	return group
}
