// Package engine loads YOLOv8 detection models and runs them through OpenCV
// DNN or ONNX Runtime
package engine

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/roadeye/vtrack"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Backend names
const (
	BackendOpenCV = "opencv"
	BackendONNX   = "onnx"
)

// DefaultInputSize is the export size of the official YOLOv8 models, used
// when no sidecar names one
const DefaultInputSize = 640

// warmupSize is the edge of the black frame run through a model on load
const warmupSize = 640

// ErrInvalidModelSize is returned for a size selector other than n, s, m, l
// or x
var ErrInvalidModelSize = errors.New("invalid model size, expected one of n, s, m, l, x")

// Sizes are the YOLOv8 model scales
var Sizes = []string{"n", "s", "m", "l", "x"}

// ValidSize reports whether size is a model scale selector
func ValidSize(size string) bool {
	for _, s := range Sizes {
		if s == size {
			return true
		}
	}

	return false
}

// ModelPath returns the model file to load.  An explicit path is used as is,
// otherwise the size selects yolov8<size>.onnx in modelsDir.
func ModelPath(modelsDir, size, explicit string) (string, error) {

	if explicit != "" {
		return explicit, nil
	}

	size = strings.ToLower(strings.TrimSpace(size))

	if !ValidSize(size) {
		return "", fmt.Errorf("%w: %q", ErrInvalidModelSize, size)
	}

	return filepath.Join(modelsDir, "yolov8"+size+".onnx"), nil
}

// Options select and configure a model
type Options struct {
	// Backend is BackendOpenCV or BackendONNX, empty means OpenCV
	Backend string
	// ModelsDir is searched for yolov8<Size>.onnx
	ModelsDir string
	// Size is the model scale selector
	Size string
	// Path overrides ModelsDir and Size
	Path string
	// InputSize overrides the sidecar input size for the OpenCV backend,
	// ONNX Runtime reads it from the model
	InputSize int
	// SharedLibrary is the onnxruntime library path, empty uses the
	// platform default
	SharedLibrary string
	// Threads is the number of intra op threads for ONNX Runtime, 0 lets
	// the runtime decide
	Threads int
	// Labels is an optional class names file, one per line, replacing the
	// sidecar classes
	Labels string
	// NoWarmup skips the warm-up inference
	NoWarmup bool
	Log      *zap.Logger
}

// Model is the state common to every backend
type Model struct {
	path  string
	cfg   ModelConfig
	names []string
	stage *stage
}

// Path returns the model file
func (m *Model) Path() string {
	return m.path
}

// Config returns the model sidecar, or the defaults when there was none
func (m *Model) Config() ModelConfig {
	return m.cfg
}

// Classes returns the class names indexed by class id
func (m *Model) Classes() []string {
	return m.names
}

// InputSize returns the model input tensor width and height
func (m *Model) InputSize() image.Point {
	return m.stage.input
}

// sidecar loads model_config.json from the model directory.  A missing file
// yields the defaults.
func sidecar(modelPath string, log *zap.Logger) (ModelConfig, bool, error) {

	path := filepath.Join(filepath.Dir(modelPath), SidecarName)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Info("no model config found, using COCO defaults", zap.String("path", path))
		return DefaultModelConfig(), false, nil
	}

	cfg, err := LoadModelConfig(path)

	if err != nil {
		return ModelConfig{}, false, err
	}

	log.Info("loaded model config",
		zap.String("path", path),
		zap.String("name", cfg.Model.Name),
		zap.Int("classes", len(cfg.Model.Classes)),
		zap.Int("input_size", cfg.Model.InputSize),
	)

	return cfg, true, nil
}

// Open loads the model selected by opts and runs a warm-up inference.  Any
// failure means the model is unusable.
func Open(opts Options) (vtrack.Detector, error) {

	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	path, err := ModelPath(opts.ModelsDir, opts.Size, opts.Path)

	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}

	cfg, found, err := sidecar(path, opts.Log)

	if err != nil {
		return nil, err
	}

	if opts.Labels != "" {
		names, err := vtrack.LoadLabels(opts.Labels)

		if err != nil {
			return nil, fmt.Errorf("labels: %w", err)
		}

		cfg.Model.Classes = ClassesFromNames(names)
	}

	var det vtrack.Detector

	switch strings.ToLower(opts.Backend) {
	case "", BackendOpenCV:
		size := opts.InputSize

		if size <= 0 {
			size = DefaultInputSize

			if found {
				size = cfg.Model.InputSize
			}
		}

		det, err = NewOpenCV(path, cfg, size)

	case BackendONNX:
		det, err = NewONNX(path, cfg, ONNXOptions{
			SharedLibrary: opts.SharedLibrary,
			Threads:       opts.Threads,
			Log:           opts.Log,
		})

	default:
		return nil, fmt.Errorf("unknown backend %q", opts.Backend)
	}

	if err != nil {
		return nil, err
	}

	opts.Log.Info("model loaded",
		zap.String("path", path),
		zap.String("backend", opts.Backend),
		zap.Any("input", det.InputSize()),
	)

	if opts.NoWarmup {
		return det, nil
	}

	if err := Warmup(det); err != nil {
		det.Close()
		return nil, err
	}

	return det, nil
}

// Warmup runs one inference on a black frame so the first real frame does
// not pay for lazy initialisation
func Warmup(det vtrack.Detector) error {

	black := gocv.NewMatWithSize(warmupSize, warmupSize, gocv.MatTypeCV8UC3)
	defer black.Close()

	if _, err := det.Detect(black, 0); err != nil {
		return fmt.Errorf("warm-up inference failed: %w", err)
	}

	return nil
}
