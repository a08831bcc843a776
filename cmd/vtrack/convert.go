package main

import (
	"fmt"

	"github.com/roadeye/vtrack/config"
	"github.com/roadeye/vtrack/convert"
	"github.com/roadeye/vtrack/logger"
	"github.com/urfave/cli/v2"
)

func convertCommand() *cli.Command {
	return &cli.Command{
		Name:  "convert",
		Usage: "export YOLOv8 weights to an inference format with the ultralytics exporter",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Value: "yolov8n.pt", Usage: "weights to export, official weights are downloaded"},
			&cli.StringFlag{Name: "output", Value: "yolov8n_optimized.onnx", Usage: "artefact file name"},
			&cli.StringFlag{Name: "output-dir", Value: "models", Usage: "directory for the artefact and model_config.json"},
			&cli.StringFlag{Name: "format", Value: "onnx", Usage: "export format"},
			&cli.IntFlag{Name: "input-size", Value: 416, Usage: "model input size, a multiple of 32"},
			&cli.BoolFlag{Name: "no-quantize", Usage: "skip int8 quantisation"},
			&cli.BoolFlag{Name: "no-nms", Usage: "do not embed NMS in the exported model"},
			&cli.StringFlag{Name: "exporter", Value: "yolo", Usage: "ultralytics command line tool"},
		},
		Action: convertModel,
	}
}

func convertModel(c *cli.Context) error {

	cfg := config.Defaults()

	if path := c.String(flagConfig); path != "" {
		loaded, err := config.Load(path)

		if err != nil {
			return cli.Exit(err.Error(), 1)
		}

		cfg = loaded
	}

	o := convert.Options{
		Model:      cfg.Convert.Model,
		Output:     cfg.Convert.Output,
		OutputDir:  cfg.Convert.OutputDir,
		Format:     cfg.Convert.Format,
		InputSize:  cfg.Convert.InputSize,
		Quantize:   cfg.Convert.Quantize && !c.Bool("no-quantize"),
		NMS:        cfg.Convert.NMS && !c.Bool("no-nms"),
		WeightsURL: cfg.Convert.WeightsURL,
		Tool:       c.String("exporter"),
		Log:        logger.Log(),
	}

	if c.IsSet("model") {
		o.Model = c.String("model")
	}

	if c.IsSet("output") {
		o.Output = c.String("output")
	}

	if c.IsSet("output-dir") {
		o.OutputDir = c.String("output-dir")
	}

	if c.IsSet("format") {
		o.Format = c.String("format")
	}

	if c.IsSet("input-size") {
		o.InputSize = c.Int("input-size")
	}

	res, err := convert.New(convert.ExecRunner{}, o.Log).Convert(c.Context, o)

	if err != nil {
		return cli.Exit(fmt.Sprintf("conversion failed: %v", err), 1)
	}

	fmt.Printf("Model:  %s\nConfig: %s\n", res.Model, res.Sidecar)

	return nil
}
