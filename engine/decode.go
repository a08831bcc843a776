package engine

import (
	"fmt"
	"image"

	"github.com/roadeye/vtrack/postprocess"
	"github.com/roadeye/vtrack/postprocess/result"
	"github.com/roadeye/vtrack/preprocess"
	"gocv.io/x/gocv"
)

// nmsColumns is the row width of models exported with NMS embedded
const nmsColumns = 6

// stage letterboxes frames to the model input and decodes the model output
// back to frame coordinates.  It is shared by the backends.
type stage struct {
	input   image.Point
	resizer *preprocess.Resizer
	boxed   gocv.Mat
	yolo    *postprocess.YOLOv8
}

func newStage(input image.Point, cfg ModelConfig) *stage {

	dc := cfg.Model.DetectionConfig

	return &stage{
		input: input,
		boxed: gocv.NewMat(),
		yolo: postprocess.NewYOLOv8(postprocess.YOLOv8Params{
			BoxThreshold:    dc.ConfidenceThreshold,
			NMSThreshold:    dc.NMSThreshold,
			ObjectClassNum:  len(cfg.ClassNames()),
			MaxObjectNumber: dc.MaxDetections,
		}),
	}
}

// letterbox resizes img into the input tensor size and returns the padded
// image, valid until the next call
func (s *stage) letterbox(img gocv.Mat) (gocv.Mat, error) {

	if img.Empty() {
		return s.boxed, preprocess.ErrEmptyFrame
	}

	if s.resizer == nil || !s.resizer.Matches(img.Cols(), img.Rows()) {
		if s.resizer != nil {
			s.resizer.Close()
		}

		s.resizer = preprocess.NewResizer(img.Cols(), img.Rows(), s.input.X, s.input.Y)
	}

	s.resizer.LetterBoxResize(img, &s.boxed, preprocess.LetterboxColor)

	return s.boxed, nil
}

// decode interprets output by its shape.  A [1, K, 6] tensor holds rows
// already suppressed by the model, anything else is the raw [1, 4+nc, N]
// head.
func (s *stage) decode(output []float32, dims []int, conf float32) ([]result.DetectResult, error) {

	if len(dims) == 2 {
		dims = append([]int{1}, dims...)
	}

	if len(dims) != 3 || dims[0] != 1 {
		return nil, fmt.Errorf("unsupported output shape %v", dims)
	}

	if dims[2] == nmsColumns {
		return s.yolo.DetectObjectsNMS(output, dims[1], s.resizer, conf)
	}

	return s.yolo.DetectObjects(output, dims[1], dims[2], s.resizer, conf)
}

func (s *stage) close() error {

	if s.resizer != nil {
		s.resizer.Close()
	}

	return s.boxed.Close()
}
