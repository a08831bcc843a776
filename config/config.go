// Package config loads the YAML configuration shared by the vtrack commands
package config

import (
	"errors"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/roadeye/vtrack"
	"github.com/roadeye/vtrack/engine"
	"github.com/roadeye/vtrack/logger"
	"github.com/roadeye/vtrack/perf"
	"github.com/roadeye/vtrack/tracker"
	"github.com/roadeye/vtrack/zone"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration file
type Config struct {
	Source    string    `yaml:"source"`
	Model     Model     `yaml:"model"`
	Detection Detection `yaml:"detection"`
	Tracker   Tracker   `yaml:"tracker"`
	Render    Render    `yaml:"render"`
	Perf      Perf      `yaml:"perf"`
	Server    Server    `yaml:"server"`
	Convert   Convert   `yaml:"convert"`
	Bench     Bench     `yaml:"bench"`
	Log       Log       `yaml:"log"`
}

// Model selects the detection model
type Model struct {
	Size      string `yaml:"size"`
	Path      string `yaml:"path"`
	ModelsDir string `yaml:"models_dir"`
	Backend   string `yaml:"backend"`
	// Labels is an optional class names file
	Labels string `yaml:"labels"`
	// InputSize overrides the sidecar input size, 0 keeps it
	InputSize     int    `yaml:"input_size"`
	SharedLibrary string `yaml:"onnxruntime_lib"`
	Threads       int    `yaml:"threads"`
	// Pool is the number of model instances for concurrent detection
	Pool int `yaml:"pool"`
	// CPUs pins the process to these cores when set
	CPUs []int `yaml:"cpus"`
}

// Detection holds the runtime mutable detection settings
type Detection struct {
	Confidence float32 `yaml:"conf"`
	// Classes are class names or a preset, empty means the all preset
	Classes []string `yaml:"classes"`
	Zone    Zone     `yaml:"zone"`
}

// Zone is an optional polygon detections must overlap
type Zone struct {
	Points    [][2]int `yaml:"points"`
	Threshold float64  `yaml:"threshold"`
}

// Tracker are the ByteTrack parameters
type Tracker struct {
	FrameRate   int     `yaml:"frame_rate"`
	TrackBuffer int     `yaml:"track_buffer"`
	TrackThresh float32 `yaml:"track_thresh"`
	HighThresh  float32 `yaml:"high_thresh"`
	MatchThresh float32 `yaml:"match_thresh"`
}

// Render controls annotation
type Render struct {
	TrailLength   int `yaml:"trail_length"`
	LineThickness int `yaml:"line_thickness"`
	TargetHeight  int `yaml:"target_height"`
}

// Perf configures the latency window and performance targets
type Perf struct {
	Window         int           `yaml:"window"`
	TargetFPS      float64       `yaml:"target_fps"`
	MaxLatency     time.Duration `yaml:"max_latency"`
	SampleInterval time.Duration `yaml:"sample_interval"`
}

// Server configures the browser viewer
type Server struct {
	Addr        string `yaml:"addr"`
	JPEGQuality int    `yaml:"jpeg_quality"`
	Loop        bool   `yaml:"loop"`
	Realtime    bool   `yaml:"realtime"`
}

// Convert are the model conversion defaults
type Convert struct {
	Model     string `yaml:"model"`
	Output    string `yaml:"output"`
	OutputDir string `yaml:"output_dir"`
	Format    string `yaml:"format"`
	InputSize int    `yaml:"input_size"`
	Quantize  bool   `yaml:"quantize"`
	NMS       bool   `yaml:"nms"`
	// WeightsURL is the download location of official weights, %s is
	// replaced by the file name
	WeightsURL string `yaml:"weights_url"`
}

// Bench configures the benchmark runner
type Bench struct {
	Warmup    int    `yaml:"warmup"`
	Frames    int    `yaml:"frames"`
	Report    string `yaml:"report"`
	Histogram string `yaml:"histogram"`
	Output    string `yaml:"output"`
}

// Log configures logging
type Log struct {
	Development bool                `yaml:"development"`
	File        logger.FileOptions `yaml:"file"`
}

// Defaults returns the configuration used when no file is given
func Defaults() Config {

	tc := tracker.DefaultConfig()
	targets := perf.DefaultTargets()

	return Config{
		Source: "0",
		Model: Model{
			Size:      "n",
			ModelsDir: "models",
			Backend:   engine.BackendOpenCV,
			Pool:      1,
		},
		Detection: Detection{
			Confidence: 0.3,
			Classes:    []string{vtrack.PresetAll},
			Zone:       Zone{Threshold: 0.5},
		},
		Tracker: Tracker{
			FrameRate:   tc.FrameRate,
			TrackBuffer: tc.TrackBuffer,
			TrackThresh: tc.TrackThresh,
			HighThresh:  tc.HighThresh,
			MatchThresh: tc.MatchThresh,
		},
		Render: Render{
			TrailLength:   30,
			LineThickness: 2,
			TargetHeight:  480,
		},
		Perf: Perf{
			Window:         perf.DefaultWindow,
			TargetFPS:      targets.FPS,
			MaxLatency:     targets.MaxLatency,
			SampleInterval: 2 * time.Second,
		},
		Server: Server{
			Addr:        ":8080",
			JPEGQuality: 80,
			Loop:        true,
			Realtime:    true,
		},
		Convert: Convert{
			Model:      "yolov8n.pt",
			Output:     "yolov8n_optimized.onnx",
			OutputDir:  "models",
			Format:     "onnx",
			InputSize:  416,
			Quantize:   true,
			NMS:        true,
			WeightsURL: "https://github.com/ultralytics/assets/releases/download/v8.2.0/%s",
		},
		Bench: Bench{
			Warmup: 30,
			Frames: 300,
			Report: "benchmark_report.json",
		},
	}
}

// Load reads a YAML file over the defaults.  Keys missing from the file keep
// their default value.
func Load(path string) (Config, error) {

	cfg := Defaults()

	data, err := os.ReadFile(path)

	if err != nil {
		return cfg, fmt.Errorf("error reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// Validate checks the values that would otherwise fail deep inside a
// component
func (c Config) Validate() error {

	var errs []error

	if c.Detection.Confidence < 0 || c.Detection.Confidence > 1 {
		errs = append(errs, fmt.Errorf("detection.conf %v is outside [0,1]", c.Detection.Confidence))
	}

	if c.Model.Path == "" && !engine.ValidSize(c.Model.Size) {
		errs = append(errs, fmt.Errorf("model.size: %w: %q", engine.ErrInvalidModelSize, c.Model.Size))
	}

	if c.Model.InputSize != 0 && !ValidInputSize(c.Model.InputSize) {
		errs = append(errs, fmt.Errorf("model.input_size %d is not a positive multiple of 32", c.Model.InputSize))
	}

	if !ValidInputSize(c.Convert.InputSize) {
		errs = append(errs, fmt.Errorf("convert.input_size %d is not a positive multiple of 32", c.Convert.InputSize))
	}

	if c.Perf.Window <= 0 {
		errs = append(errs, fmt.Errorf("perf.window must be greater than 0"))
	}

	if c.Model.Pool < 1 {
		errs = append(errs, fmt.Errorf("model.pool must be at least 1"))
	}

	if len(c.Detection.Zone.Points) > 0 {
		if _, err := c.ZoneFilter(); err != nil {
			errs = append(errs, fmt.Errorf("detection.zone: %w", err))
		}
	}

	return errors.Join(errs...)
}

// ValidInputSize reports whether size is a positive multiple of 32
func ValidInputSize(size int) bool {
	return size > 0 && size%32 == 0
}

// TrackerConfig converts the tracker section
func (c Config) TrackerConfig() tracker.Config {
	return tracker.Config{
		FrameRate:   c.Tracker.FrameRate,
		TrackBuffer: c.Tracker.TrackBuffer,
		TrackThresh: c.Tracker.TrackThresh,
		HighThresh:  c.Tracker.HighThresh,
		MatchThresh: c.Tracker.MatchThresh,
	}
}

// Targets converts the performance targets
func (c Config) Targets() perf.Targets {
	return perf.Targets{FPS: c.Perf.TargetFPS, MaxLatency: c.Perf.MaxLatency}
}

// ClassFilter builds the allowed class set from names or presets
func (c Config) ClassFilter(classNames []string) (*vtrack.ClassFilter, error) {

	if len(c.Detection.Classes) == 0 {
		return vtrack.ClassFilterFromPreset(vtrack.PresetAll)
	}

	return vtrack.ClassFilterFromNames(c.Detection.Classes, classNames)
}

// ZoneFilter builds the polygon zone, nil when none is configured
func (c Config) ZoneFilter() (*zone.Zone, error) {

	if len(c.Detection.Zone.Points) == 0 {
		return nil, nil
	}

	pts := make([]image.Point, len(c.Detection.Zone.Points))

	for i, p := range c.Detection.Zone.Points {
		pts[i] = image.Pt(p[0], p[1])
	}

	return zone.New(pts, c.Detection.Zone.Threshold)
}

// EngineOptions converts the model section
func (c Config) EngineOptions() engine.Options {
	return engine.Options{
		Backend:       c.Model.Backend,
		Labels:        c.Model.Labels,
		ModelsDir:     c.Model.ModelsDir,
		Size:          c.Model.Size,
		Path:          c.Model.Path,
		InputSize:     c.Model.InputSize,
		SharedLibrary: c.Model.SharedLibrary,
		Threads:       c.Model.Threads,
	}
}

// PipelineOptions builds the pipeline settings for a detector with the given
// class names
func (c Config) PipelineOptions(classNames []string, monitor *perf.Monitor, log *zap.Logger) (vtrack.Options, error) {

	classes, err := c.ClassFilter(classNames)

	if err != nil {
		return vtrack.Options{}, err
	}

	zn, err := c.ZoneFilter()

	if err != nil {
		return vtrack.Options{}, err
	}

	return vtrack.Options{
		Confidence:    c.Detection.Confidence,
		Classes:       classes,
		Zone:          zn,
		TargetHeight:  c.Render.TargetHeight,
		Tracker:       c.TrackerConfig(),
		TrailLength:   c.Render.TrailLength,
		LineThickness: c.Render.LineThickness,
		Monitor:       monitor,
		Log:           log,
	}, nil
}
