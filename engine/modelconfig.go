package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roadeye/vtrack"
)

// SidecarName is the file name of the model description written next to a
// converted model
const SidecarName = "model_config.json"

// ModelConfig is the JSON sidecar describing a converted model
type ModelConfig struct {
	Model ModelInfo `json:"model"`
}

// ModelInfo holds the model description, class table and thresholds
type ModelInfo struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Description     string            `json:"description"`
	InputSize       int               `json:"input_size"`
	Classes         []ClassConfig     `json:"classes"`
	DetectionConfig DetectionConfig   `json:"detection_config"`
	Performance     PerformanceConfig `json:"performance"`
}

// ClassConfig names a class id and the RGB colour used to draw it
type ClassConfig struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Color [3]int `json:"color"`
}

// DetectionConfig are the decoder thresholds
type DetectionConfig struct {
	ConfidenceThreshold float32 `json:"confidence_threshold"`
	NMSThreshold        float32 `json:"nms_threshold"`
	MaxDetections       int     `json:"max_detections"`
}

// PerformanceConfig are the targets the model was converted for
type PerformanceConfig struct {
	TargetFPS         float64 `json:"target_fps"`
	MaxLatencyMs      float64 `json:"max_latency_ms"`
	OptimizationLevel string  `json:"optimization_level"`
}

// colorLevels are the channel intensities cycled through by ClassColor
var colorLevels = []int{255, 128, 64, 192, 96, 160, 32, 224, 48, 176, 16, 240, 8, 248}

// ClassColor returns the sidecar colour for a class id.  Each block of six
// ids shares an intensity and walks the primary and secondary colours.
func ClassColor(id int) [3]int {
	l := colorLevels[(id/6)%len(colorLevels)]

	switch id % 6 {
	case 0:
		return [3]int{l, 0, 0}
	case 1:
		return [3]int{0, l, 0}
	case 2:
		return [3]int{0, 0, l}
	case 3:
		return [3]int{l, l, 0}
	case 4:
		return [3]int{l, 0, l}
	default:
		return [3]int{0, l, l}
	}
}

// DefaultModelConfig returns the description of a COCO trained YOLOv8 model
// converted at the default input size
func DefaultModelConfig() ModelConfig {

	return ModelConfig{
		Model: ModelInfo{
			Name:        "yolov8n_optimized",
			Version:     "1.0",
			Description: "YOLOv8 optimised for real-time vehicle detection",
			InputSize:   416,
			Classes:     ClassesFromNames(vtrack.COCOClasses),
			DetectionConfig: DetectionConfig{
				ConfidenceThreshold: 0.5,
				NMSThreshold:        0.4,
				MaxDetections:       100,
			},
			Performance: PerformanceConfig{
				TargetFPS:         50,
				MaxLatencyMs:      20,
				OptimizationLevel: "high",
			},
		},
	}
}

// ClassNames returns the class names indexed by id.  Ids missing from the
// table are named classN.
func (c ModelConfig) ClassNames() []string {

	size := 0

	for _, cls := range c.Model.Classes {
		if cls.ID+1 > size {
			size = cls.ID + 1
		}
	}

	names := make([]string, size)

	for i := range names {
		names[i] = fmt.Sprintf("class_%d", i)
	}

	for _, cls := range c.Model.Classes {
		if cls.ID >= 0 {
			names[cls.ID] = cls.Name
		}
	}

	return names
}

// ClassesFromNames builds the class table for names indexed by id
func ClassesFromNames(names []string) []ClassConfig {

	classes := make([]ClassConfig, len(names))

	for i, name := range names {
		classes[i] = ClassConfig{ID: i, Name: name, Color: ClassColor(i)}
	}

	return classes
}

// LoadModelConfig reads a sidecar file.  Zero valued thresholds are replaced
// with the defaults.
func LoadModelConfig(path string) (ModelConfig, error) {

	data, err := os.ReadFile(path)

	if err != nil {
		return ModelConfig{}, fmt.Errorf("error reading model config: %w", err)
	}

	var cfg ModelConfig

	if err := json.Unmarshal(data, &cfg); err != nil {
		return ModelConfig{}, fmt.Errorf("error parsing model config %s: %w", path, err)
	}

	def := DefaultModelConfig().Model

	if len(cfg.Model.Classes) == 0 {
		cfg.Model.Classes = def.Classes
	}

	if cfg.Model.InputSize <= 0 {
		cfg.Model.InputSize = def.InputSize
	}

	if cfg.Model.DetectionConfig.ConfidenceThreshold <= 0 {
		cfg.Model.DetectionConfig.ConfidenceThreshold = def.DetectionConfig.ConfidenceThreshold
	}

	if cfg.Model.DetectionConfig.NMSThreshold <= 0 {
		cfg.Model.DetectionConfig.NMSThreshold = def.DetectionConfig.NMSThreshold
	}

	if cfg.Model.DetectionConfig.MaxDetections <= 0 {
		cfg.Model.DetectionConfig.MaxDetections = def.DetectionConfig.MaxDetections
	}

	return cfg, nil
}

// WriteModelConfig writes the sidecar into dir and returns its path
func WriteModelConfig(dir string, cfg ModelConfig) (string, error) {

	data, err := json.MarshalIndent(cfg, "", "  ")

	if err != nil {
		return "", fmt.Errorf("error encoding model config: %w", err)
	}

	path := filepath.Join(dir, SidecarName)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("error writing model config: %w", err)
	}

	return path, nil
}
