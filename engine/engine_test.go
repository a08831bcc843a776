package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
	"gocv.io/x/gocv"
)

func TestDefaultModelConfig(t *testing.T) {
	cfg := DefaultModelConfig()

	assert.Equal(t, 416, cfg.Model.InputSize)
	require.Len(t, cfg.Model.Classes, 80)
	assert.Equal(t, float32(0.5), cfg.Model.DetectionConfig.ConfidenceThreshold)
	assert.Equal(t, float32(0.4), cfg.Model.DetectionConfig.NMSThreshold)
	assert.Equal(t, 100, cfg.Model.DetectionConfig.MaxDetections)
	assert.Equal(t, 50.0, cfg.Model.Performance.TargetFPS)

	names := cfg.ClassNames()
	assert.Equal(t, "person", names[0])
	assert.Equal(t, "car", names[2])
	assert.Equal(t, "toothbrush", names[79])
}

func TestClassColor(t *testing.T) {
	tests := []struct {
		id   int
		want [3]int
	}{
		{0, [3]int{255, 0, 0}},
		{1, [3]int{0, 255, 0}},
		{3, [3]int{255, 255, 0}},
		{5, [3]int{0, 255, 255}},
		{6, [3]int{128, 0, 0}},
		{7, [3]int{0, 128, 0}},
		{12, [3]int{64, 0, 0}},
		{18, [3]int{192, 0, 0}},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, ClassColor(tc.id), "class %d", tc.id)
	}
}

func TestModelConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultModelConfig()
	cfg.Model.Name = "yolov8s_optimized"
	cfg.Model.InputSize = 320
	cfg.Model.Classes = cfg.Model.Classes[:3]

	path, err := WriteModelConfig(dir, cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, SidecarName), path)

	got, err := LoadModelConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
	assert.Equal(t, []string{"person", "bicycle", "car"}, got.ClassNames())
}

func TestLoadModelConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), SidecarName)
	data := `{"model":{"name":"custom","classes":[{"id":0,"name":"car"},{"id":2,"name":"bus"}]}}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadModelConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 416, cfg.Model.InputSize)
	assert.Equal(t, float32(0.4), cfg.Model.DetectionConfig.NMSThreshold)
	assert.Equal(t, []string{"car", "class_1", "bus"}, cfg.ClassNames())

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = LoadModelConfig(path)
	assert.Error(t, err)
}

func TestModelPath(t *testing.T) {
	path, err := ModelPath("models", "s", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("models", "yolov8s.onnx"), path)

	path, err = ModelPath("models", " X ", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("models", "yolov8x.onnx"), path)

	path, err = ModelPath("models", "bogus", "/opt/custom.onnx")
	require.NoError(t, err)
	assert.Equal(t, "/opt/custom.onnx", path)

	_, err = ModelPath("models", "q", "")
	assert.ErrorIs(t, err, ErrInvalidModelSize)
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(Options{ModelsDir: t.TempDir(), Size: "z"})
	assert.ErrorIs(t, err, ErrInvalidModelSize)

	_, err = Open(Options{ModelsDir: t.TempDir(), Size: "n"})
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "yolov8n.onnx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err = Open(Options{Path: path, Backend: "tensorrt"})
	assert.ErrorContains(t, err, "unknown backend")

	_, err = Open(Options{Path: path, Labels: filepath.Join(t.TempDir(), "missing.txt")})
	assert.ErrorContains(t, err, "labels")
}

func TestClassesFromNames(t *testing.T) {
	classes := ClassesFromNames([]string{"car", "van"})
	require.Len(t, classes, 2)
	assert.Equal(t, ClassConfig{ID: 1, Name: "van", Color: ClassColor(1)}, classes[1])

	cfg := ModelConfig{Model: ModelInfo{Classes: classes}}
	assert.Equal(t, []string{"car", "van"}, cfg.ClassNames())
}

// twoByTwo returns a BGR image with distinct pixels
func twoByTwo(t *testing.T) gocv.Mat {
	img, err := gocv.NewMatFromBytes(2, 2, gocv.MatTypeCV8UC3, []byte{
		0, 0, 255, 0, 255, 0,
		255, 0, 0, 51, 102, 153,
	})
	require.NoError(t, err)
	return img
}

func TestFillCHW(t *testing.T) {
	img := twoByTwo(t)
	defer img.Close()

	dst := make([]float32, 12)
	require.NoError(t, FillCHW(img, dst))

	// R plane, G plane, B plane
	assert.InDeltaSlice(t, []float32{1, 0, 0, 0.6}, dst[0:4], 1e-6)
	assert.InDeltaSlice(t, []float32{0, 1, 0, 0.4}, dst[4:8], 1e-6)
	assert.InDeltaSlice(t, []float32{0, 0, 1, 0.2}, dst[8:12], 1e-6)

	assert.Error(t, FillCHW(img, make([]float32, 11)))

	gray := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC1)
	defer gray.Close()
	assert.Error(t, FillCHW(gray, dst))
}

func TestFillCHW16(t *testing.T) {
	img := twoByTwo(t)
	defer img.Close()

	dst := make([]byte, 24)
	require.NoError(t, FillCHW16(img, dst))

	got := make([]float32, 12)
	Float16ToFloat32(dst, got)

	want := []float32{1, 0, 0, 0.6, 0, 1, 0, 0.4, 0, 0, 1, 0.2}
	assert.InDeltaSlice(t, want, got, 1e-3)
}

func TestFloat16ToFloat32(t *testing.T) {
	vals := []float32{0, 1, -2.5, 640}
	src := make([]byte, 2*len(vals))

	for i, v := range vals {
		b := float16.Fromfloat32(v).Bits()
		src[2*i] = byte(b)
		src[2*i+1] = byte(b >> 8)
	}

	dst := make([]float32, len(vals))
	Float16ToFloat32(src, dst)
	assert.Equal(t, vals, dst)
}
