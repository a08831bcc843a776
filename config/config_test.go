package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roadeye/vtrack"
	"github.com/roadeye/vtrack/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, data string) string {
	path := filepath.Join(dir, "vtrack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0", cfg.Source)
	assert.Equal(t, "n", cfg.Model.Size)
	assert.Equal(t, float32(0.3), cfg.Detection.Confidence)
	assert.Equal(t, 30, cfg.Perf.Window)
	assert.Equal(t, 416, cfg.Convert.InputSize)
	assert.Equal(t, 20*time.Millisecond, cfg.Perf.MaxLatency)
	assert.Equal(t, 300, cfg.Bench.Frames)

	f, err := cfg.ClassFilter(vtrack.COCOClasses)
	require.NoError(t, err)
	assert.Len(t, f.IDs(), 75)
	assert.True(t, f.Allowed(0), "person is in the default set")

	z, err := cfg.ZoneFilter()
	require.NoError(t, err)
	assert.Nil(t, z)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
source: traffic.mp4
model:
  size: s
  backend: onnx
detection:
  conf: 0.45
  classes: [car, truck]
  zone:
    points: [[0, 0], [100, 0], [100, 100], [0, 100]]
    threshold: 0.25
perf:
  max_latency: 40ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "traffic.mp4", cfg.Source)
	assert.Equal(t, "s", cfg.Model.Size)
	assert.Equal(t, engine.BackendONNX, cfg.Model.Backend)
	assert.Equal(t, "models", cfg.Model.ModelsDir, "default kept")
	assert.Equal(t, float32(0.45), cfg.Detection.Confidence)
	assert.Equal(t, 40*time.Millisecond, cfg.Perf.MaxLatency)
	assert.Equal(t, 30, cfg.Perf.Window, "default kept")

	f, err := cfg.ClassFilter(vtrack.COCOClasses)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 7}, f.IDs())

	z, err := cfg.ZoneFilter()
	require.NoError(t, err)
	require.NotNil(t, z)
	assert.Equal(t, 0.25, z.Threshold())

	eo := cfg.EngineOptions()
	assert.Equal(t, "s", eo.Size)
	assert.Equal(t, engine.BackendONNX, eo.Backend)

	tc := cfg.TrackerConfig()
	assert.Equal(t, float32(0.8), tc.MatchThresh)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"conf above one", func(c *Config) { c.Detection.Confidence = 1.2 }, "detection.conf"},
		{"conf negative", func(c *Config) { c.Detection.Confidence = -0.1 }, "detection.conf"},
		{"bad size", func(c *Config) { c.Model.Size = "xl" }, "model.size"},
		{"input size", func(c *Config) { c.Convert.InputSize = 400 }, "convert.input_size"},
		{"model input size", func(c *Config) { c.Model.InputSize = 100 }, "model.input_size"},
		{"window", func(c *Config) { c.Perf.Window = 0 }, "perf.window"},
		{"pool", func(c *Config) { c.Model.Pool = 0 }, "model.pool"},
		{"zone", func(c *Config) { c.Detection.Zone.Points = [][2]int{{0, 0}, {1, 1}} }, "detection.zone"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}

	// an explicit path does not need a size
	cfg := Defaults()
	cfg.Model.Size = ""
	cfg.Model.Path = "custom.onnx"
	assert.NoError(t, cfg.Validate())

	cfg.Detection.Confidence = 0
	assert.NoError(t, cfg.Validate())
}

func TestValidInputSize(t *testing.T) {
	assert.True(t, ValidInputSize(416))
	assert.True(t, ValidInputSize(640))
	assert.False(t, ValidInputSize(0))
	assert.False(t, ValidInputSize(-32))
	assert.False(t, ValidInputSize(420))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := writeConfig(t, t.TempDir(), "model: [unclosed")
	_, err = Load(path)
	assert.Error(t, err)

	path = writeConfig(t, t.TempDir(), "detection:\n  conf: 3\n")
	_, err = Load(path)
	assert.ErrorContains(t, err, "detection.conf")
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "detection:\n  conf: 0.3\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Config, 4)
	done := make(chan error, 1)

	go func() {
		done <- Watch(ctx, path, nil, func(c Config) { got <- c })
	}()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("detection:\n  conf: 0.7\n"), 0o644))

	select {
	case cfg := <-got:
		assert.Equal(t, float32(0.7), cfg.Detection.Confidence)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestPipelineOptions(t *testing.T) {
	cfg := Defaults()
	cfg.Detection.Classes = []string{"car", "bus"}
	cfg.Detection.Zone.Points = [][2]int{{0, 0}, {200, 0}, {200, 200}, {0, 200}}
	cfg.Render.TrailLength = 10

	opts, err := cfg.PipelineOptions(vtrack.COCOClasses, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, float32(0.3), opts.Confidence)
	assert.Equal(t, []int{2, 5}, opts.Classes.IDs())
	require.NotNil(t, opts.Zone)
	assert.Equal(t, 0.5, opts.Zone.Threshold())
	assert.Equal(t, 10, opts.TrailLength)
	assert.Equal(t, 480, opts.TargetHeight)

	cfg.Detection.Classes = []string{"spaceship"}
	_, err = cfg.PipelineOptions(vtrack.COCOClasses, nil, nil)
	assert.ErrorContains(t, err, "spaceship")
}
