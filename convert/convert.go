// Package convert exports YOLOv8 weights to a deployment format with the
// ultralytics tool and writes the model sidecar
package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/roadeye/vtrack/engine"
	"go.uber.org/zap"
)

// ErrInvalidInputSize is returned for an input size that is not a positive
// multiple of 32
var ErrInvalidInputSize = errors.New("input size must be a positive multiple of 32")

// DefaultWeightsURL is the release holding the official YOLOv8 weights, %s
// is the file name
const DefaultWeightsURL = "https://github.com/ultralytics/assets/releases/download/v8.2.0/%s"

var officialWeights = regexp.MustCompile(`^yolov8[nsmlx]\.pt$`)

// artefactSuffix is appended to the weights stem by the exporter
var artefactSuffix = map[string]string{
	"onnx":        ".onnx",
	"torchscript": ".torchscript",
	"engine":      ".engine",
	"coreml":      ".mlpackage",
	"openvino":    "_openvino_model",
	"ncnn":        "_ncnn_model",
	"saved_model": "_saved_model",
}

// Options describe one conversion
type Options struct {
	// Model is the weights file, official names are downloaded when missing
	Model string
	// Output is the artefact name inside OutputDir
	Output    string
	OutputDir string
	Format    string
	InputSize int
	// Quantize exports int8 weights
	Quantize bool
	// NMS embeds non maximum suppression in the exported graph
	NMS        bool
	WeightsURL string
	// Tool is the exporter command, empty means yolo
	Tool string
	Log  *zap.Logger
}

// DefaultOptions mirror the command line defaults
func DefaultOptions() Options {
	return Options{
		Model:      "yolov8n.pt",
		Output:     "yolov8n_optimized.onnx",
		OutputDir:  ".",
		Format:     "onnx",
		InputSize:  416,
		Quantize:   true,
		NMS:        true,
		WeightsURL: DefaultWeightsURL,
		Tool:       "yolo",
	}
}

// Validate checks the options before any work is done
func (o Options) Validate() error {

	if o.InputSize <= 0 || o.InputSize%32 != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidInputSize, o.InputSize)
	}

	if _, ok := artefactSuffix[o.Format]; !ok {
		return fmt.Errorf("unsupported export format %q", o.Format)
	}

	if o.Model == "" {
		return errors.New("no model given")
	}

	if o.Output == "" {
		return errors.New("no output name given")
	}

	return nil
}

// pyBool formats a flag the way the exporter parses it
func pyBool(v bool) string {
	if v {
		return "True"
	}

	return "False"
}

// ExportArgs returns the exporter arguments for the weights file
func ExportArgs(o Options, weights string) []string {
	return []string{
		"export",
		"model=" + weights,
		"format=" + o.Format,
		fmt.Sprintf("imgsz=%d", o.InputSize),
		"int8=" + pyBool(o.Quantize),
		"nms=" + pyBool(o.NMS),
		"half=True",
		"simplify=True",
		"dynamic=False",
		"device=cpu",
	}
}

// ArtefactPath returns where the exporter writes its output for weights
func ArtefactPath(weights, format string) string {
	stem := strings.TrimSuffix(weights, filepath.Ext(weights))
	return stem + artefactSuffix[format]
}

// Runner runs an external command and returns its combined output
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// Run executes the command
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Result describes a finished conversion
type Result struct {
	Model   string `json:"model"`
	Sidecar string `json:"sidecar"`
	// Downloaded is true when the weights were fetched
	Downloaded bool `json:"downloaded"`
}

// Converter runs conversions
type Converter struct {
	runner     Runner
	downloader *Downloader
	log        *zap.Logger
}

// New returns a converter using runner for the exporter, nil means
// ExecRunner
func New(runner Runner, log *zap.Logger) *Converter {

	if runner == nil {
		runner = ExecRunner{}
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Converter{
		runner:     runner,
		downloader: NewDownloader(),
		log:        log,
	}
}

// Convert fetches weights if needed, exports them, moves the artefact to
// the output directory and writes the sidecar beside it
func (c *Converter) Convert(ctx context.Context, o Options) (Result, error) {

	if err := o.Validate(); err != nil {
		return Result{}, err
	}

	if o.Tool == "" {
		o.Tool = "yolo"
	}

	if o.WeightsURL == "" {
		o.WeightsURL = DefaultWeightsURL
	}

	if err := os.MkdirAll(o.OutputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("error creating output directory: %w", err)
	}

	var res Result

	if _, err := os.Stat(o.Model); errors.Is(err, os.ErrNotExist) {

		name := filepath.Base(o.Model)

		if !officialWeights.MatchString(name) {
			return Result{}, fmt.Errorf("model %s not found", o.Model)
		}

		url := fmt.Sprintf(o.WeightsURL, name)
		c.log.Info("downloading weights", zap.String("url", url), zap.String("dest", o.Model))

		if err := c.downloader.Fetch(ctx, url, o.Model); err != nil {
			return Result{}, err
		}

		res.Downloaded = true
	}

	args := ExportArgs(o, o.Model)
	c.log.Info("exporting model", zap.String("tool", o.Tool), zap.Strings("args", args))

	out, err := c.runner.Run(ctx, o.Tool, args...)

	if err != nil {
		return Result{}, fmt.Errorf("export failed: %w\n%s", err, out)
	}

	artefact := ArtefactPath(o.Model, o.Format)

	if _, err := os.Stat(artefact); err != nil {
		return Result{}, fmt.Errorf("exporter did not produce %s: %w", artefact, err)
	}

	res.Model = filepath.Join(o.OutputDir, o.Output)

	if err := os.Rename(artefact, res.Model); err != nil {
		return Result{}, fmt.Errorf("error moving %s: %w", artefact, err)
	}

	res.Sidecar, err = engine.WriteModelConfig(o.OutputDir, Sidecar(o))

	if err != nil {
		return Result{}, err
	}

	c.log.Info("model converted",
		zap.String("model", res.Model),
		zap.String("sidecar", res.Sidecar),
	)

	return res, nil
}

// Sidecar returns the model description written for a conversion
func Sidecar(o Options) engine.ModelConfig {

	cfg := engine.DefaultModelConfig()
	cfg.Model.Name = strings.TrimSuffix(o.Output, filepath.Ext(o.Output))
	cfg.Model.InputSize = o.InputSize

	return cfg
}
