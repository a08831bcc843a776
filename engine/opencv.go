package engine

import (
	"fmt"
	"image"
	"sync"

	"github.com/roadeye/vtrack/postprocess/result"
	"gocv.io/x/gocv"
)

// OpenCV runs a model with the OpenCV DNN module
type OpenCV struct {
	Model
	mu  sync.Mutex
	net gocv.Net
}

// NewOpenCV loads an ONNX model with a square input of inputSize
func NewOpenCV(path string, cfg ModelConfig, inputSize int) (*OpenCV, error) {

	if inputSize <= 0 || inputSize%32 != 0 {
		return nil, fmt.Errorf("input size %d is not a positive multiple of 32", inputSize)
	}

	net := gocv.ReadNetFromONNX(path)

	if net.Empty() {
		return nil, fmt.Errorf("error reading network from %s", path)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &OpenCV{
		Model: Model{
			path:  path,
			cfg:   cfg,
			names: cfg.ClassNames(),
			stage: newStage(image.Pt(inputSize, inputSize), cfg),
		},
		net: net,
	}, nil
}

// Detect runs the network on a BGR image
func (o *OpenCV) Detect(img gocv.Mat, conf float32) ([]result.DetectResult, error) {

	o.mu.Lock()
	defer o.mu.Unlock()

	boxed, err := o.stage.letterbox(img)

	if err != nil {
		return nil, err
	}

	blob := gocv.BlobFromImage(boxed, 1.0/255.0, o.stage.input,
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	o.net.SetInput(blob, "")

	out := o.net.Forward("")
	defer out.Close()

	if out.Empty() {
		return nil, fmt.Errorf("network returned no output")
	}

	data, err := out.DataPtrFloat32()

	if err != nil {
		return nil, fmt.Errorf("error reading output: %w", err)
	}

	return o.stage.decode(data, out.Size(), conf)
}

// Close releases the network
func (o *OpenCV) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.stage.close()
	return o.net.Close()
}
