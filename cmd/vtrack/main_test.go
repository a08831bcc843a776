package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/roadeye/vtrack/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// parse runs a command with the model flags and returns the merged config
func parse(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()

	var (
		cfg config.Config
		err error
	)

	app := &cli.App{
		Name: "vtrack",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagConfig},
		},
		Commands: []*cli.Command{{
			Name:  "detect",
			Flags: modelFlags(0.5),
			Action: func(c *cli.Context) error {
				cfg, err = loadConfig(c)
				return nil
			},
		}},
	}

	require.NoError(t, app.Run(append([]string{"vtrack"}, args...)))

	return cfg, err
}

func TestLoadConfigFlagDefaults(t *testing.T) {
	cfg, err := parse(t, "detect")
	require.NoError(t, err)

	// the command default applies without a config file
	assert.Equal(t, float32(0.5), cfg.Detection.Confidence)
	assert.Equal(t, "n", cfg.Model.Size)
	assert.Empty(t, cfg.Model.Path)
}

func TestLoadConfigFlags(t *testing.T) {
	cfg, err := parse(t, "detect", "--model", "s", "--conf", "0.25", "--classes", "car", "--classes", "bus")
	require.NoError(t, err)

	assert.Equal(t, "s", cfg.Model.Size)
	assert.Equal(t, float32(0.25), cfg.Detection.Confidence)
	assert.Equal(t, []string{"car", "bus"}, cfg.Detection.Classes)

	cfg, err = parse(t, "detect", "--model", "weights/custom.onnx")
	require.NoError(t, err)
	assert.Equal(t, "weights/custom.onnx", cfg.Model.Path)

	_, err = parse(t, "detect", "--conf", "2")
	assert.Error(t, err)
}

func TestLoadConfigFileWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vtrack.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  size: m\ndetection:\n  conf: 0.6\n"), 0o644))

	cfg, err := parse(t, "--config", path, "detect")
	require.NoError(t, err)
	assert.Equal(t, "m", cfg.Model.Size)
	assert.Equal(t, float32(0.6), cfg.Detection.Confidence)

	// explicit flags still override the file
	cfg, err = parse(t, "--config", path, "detect", "--conf", "0.35")
	require.NoError(t, err)
	assert.Equal(t, "m", cfg.Model.Size)
	assert.Equal(t, float32(0.35), cfg.Detection.Confidence)
}
