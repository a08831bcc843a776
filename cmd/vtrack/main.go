// vtrack detects and tracks vehicles in video with YOLOv8 and ByteTrack
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/roadeye/vtrack"
	"github.com/roadeye/vtrack/config"
	"github.com/roadeye/vtrack/engine"
	"github.com/roadeye/vtrack/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	flagConfig    = "config"
	flagSource    = "source"
	flagModel     = "model"
	flagModelsDir = "models-dir"
	flagBackend   = "backend"
	flagLabels    = "labels"
	flagConf      = "conf"
	flagClasses   = "classes"
	flagPool      = "pool"
	flagSave      = "save"
	flagHeadless  = "headless"
	flagAddr      = "addr"
	flagLogFile   = "log-file"
	flagDev       = "dev"
)

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "vtrack",
		Usage: "vehicle detection and tracking",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotated",
			},
			&cli.BoolFlag{
				Name:  flagDev,
				Usage: "human readable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			return initLogger(c)
		},
		After: func(c *cli.Context) error {
			logger.Sync()
			return nil
		},
		Commands: []*cli.Command{
			runCommand(),
			serveCommand(),
			detectCommand(),
			convertCommand(),
			benchCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogger reads the log section of the config file, if any, before the
// command runs
func initLogger(c *cli.Context) error {

	cfg := config.Defaults()

	if path := c.String(flagConfig); path != "" {
		loaded, err := config.Load(path)

		if err != nil {
			return cli.Exit(err.Error(), 1)
		}

		cfg = loaded
	}

	if c.IsSet(flagLogFile) {
		cfg.Log.File.Path = c.String(flagLogFile)
	}

	if c.Bool(flagDev) {
		cfg.Log.Development = true
	}

	build := logger.InitProduction

	if cfg.Log.Development {
		build = logger.InitDevelopment
	}

	if err := build(cfg.Log.File); err != nil {
		return cli.Exit(fmt.Sprintf("error creating logger: %v", err), 1)
	}

	return nil
}

// modelFlags are shared by the commands that load a model
func modelFlags(conf float64) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    flagModel,
			Aliases: []string{"m"},
			Value:   "n",
			Usage:   "model size n|s|m|l|x, or a model file",
		},
		&cli.StringFlag{
			Name:  flagModelsDir,
			Value: "models",
			Usage: "directory holding yolov8<size>.onnx models",
		},
		&cli.StringFlag{
			Name:  flagBackend,
			Value: engine.BackendOpenCV,
			Usage: "inference backend opencv|onnx",
		},
		&cli.StringFlag{
			Name:  flagLabels,
			Usage: "class names `FILE`, one per line, for models without model_config.json",
		},
		&cli.Float64Flag{
			Name:  flagConf,
			Value: conf,
			Usage: "detection confidence threshold",
		},
		&cli.StringSliceFlag{
			Name:  flagClasses,
			Usage: "class names or a preset (all, vehicles) to keep, default all",
		},
	}
}

// loadConfig reads the config file and applies the command line flags on
// top.  Flags override the file when given explicitly and provide the
// defaults when there is no file.
func loadConfig(c *cli.Context) (config.Config, error) {

	cfg := config.Defaults()
	fromFile := c.String(flagConfig) != ""

	if fromFile {
		loaded, err := config.Load(c.String(flagConfig))

		if err != nil {
			return cfg, err
		}

		cfg = loaded
	}

	use := func(name string) bool {
		return c.IsSet(name) || (!fromFile && hasFlag(c, name))
	}

	if use(flagSource) {
		cfg.Source = c.String(flagSource)
	}

	if use(flagModel) {
		m := c.String(flagModel)

		if engine.ValidSize(m) {
			cfg.Model.Size = m
			cfg.Model.Path = ""
		} else {
			cfg.Model.Path = m
		}
	}

	if use(flagModelsDir) {
		cfg.Model.ModelsDir = c.String(flagModelsDir)
	}

	if use(flagBackend) {
		cfg.Model.Backend = c.String(flagBackend)
	}

	if c.IsSet(flagLabels) {
		cfg.Model.Labels = c.String(flagLabels)
	}

	if use(flagConf) {
		cfg.Detection.Confidence = float32(c.Float64(flagConf))
	}

	if c.IsSet(flagClasses) {
		cfg.Detection.Classes = c.StringSlice(flagClasses)
	}

	if c.IsSet(flagPool) {
		cfg.Model.Pool = c.Int(flagPool)
	}

	if c.IsSet(flagAddr) {
		cfg.Server.Addr = c.String(flagAddr)
	}

	return cfg, cfg.Validate()
}

// hasFlag reports whether the command defines the flag
func hasFlag(c *cli.Context, name string) bool {

	for _, f := range c.Command.Flags {
		for _, n := range f.Names() {
			if n == name {
				return true
			}
		}
	}

	return false
}

// openDetector loads the configured model, exiting the process when it can
// not be used
func openDetector(cfg config.Config, log *zap.Logger) vtrack.Detector {

	if err := vtrack.SetCPUAffinity(cfg.Model.CPUs); err != nil {
		log.Warn("error setting cpu affinity", zap.Ints("cpus", cfg.Model.CPUs), zap.Error(err))
	}

	opts := cfg.EngineOptions()
	opts.Log = log

	det, err := engine.Open(opts)

	if err != nil {
		logger.Fatal("error loading model",
			zap.String("size", cfg.Model.Size),
			zap.String("path", cfg.Model.Path),
			zap.Error(err),
		)
	}

	return det
}

// newPool loads cfg.Model.Pool instances of the configured model
func newPool(cfg config.Config, log *zap.Logger) (*vtrack.Pool, error) {

	if err := vtrack.SetCPUAffinity(cfg.Model.CPUs); err != nil {
		log.Warn("error setting cpu affinity", zap.Ints("cpus", cfg.Model.CPUs), zap.Error(err))
	}

	opts := cfg.EngineOptions()
	opts.Log = log

	return vtrack.NewPool(cfg.Model.Pool, func(i int) (vtrack.Detector, error) {
		return engine.Open(opts)
	})
}
