package main

import (
	"fmt"
	"path/filepath"

	"github.com/roadeye/vtrack"
	"github.com/roadeye/vtrack/bench"
	"github.com/roadeye/vtrack/logger"
	"github.com/roadeye/vtrack/perf"
	"github.com/roadeye/vtrack/video"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func benchCommand() *cli.Command {
	return &cli.Command{
		Name:      "bench",
		Usage:     "measure latency and throughput over a video",
		ArgsUsage: "<video>",
		Flags: append(modelFlags(0.3),
			&cli.IntFlag{Name: "warmup", Value: 30, Usage: "frames processed before measuring"},
			&cli.IntFlag{Name: "frames", Value: 300, Usage: "measured frames, short videos are looped"},
			&cli.StringFlag{Name: "report", Value: "benchmark_report.json", Usage: "JSON report `FILE`"},
			&cli.StringFlag{Name: "histogram", Usage: "latency histogram image `FILE`, eg: latency.png"},
			&cli.StringFlag{Name: "output", Usage: "write the annotated video to `FILE`"},
		),
		Action: benchmark,
	}
}

func benchmark(c *cli.Context) error {

	cfg, err := loadConfig(c)

	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	source := c.Args().First()

	if source == "" {
		source = cfg.Source
	}

	b := cfg.Bench

	if c.IsSet("warmup") {
		b.Warmup = c.Int("warmup")
	}

	if c.IsSet("frames") {
		b.Frames = c.Int("frames")
	}

	if c.IsSet("report") {
		b.Report = c.String("report")
	}

	if c.IsSet("histogram") {
		b.Histogram = c.String("histogram")
	}

	if c.IsSet("output") {
		b.Output = c.String("output")
	}

	log := logger.Log()

	det := openDetector(cfg, log)
	defer det.Close()

	monitor, err := perf.NewMonitor(perf.NewSampler(cfg.Perf.Window), cfg.Targets(), log)

	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	opts, err := cfg.PipelineOptions(det.Classes(), monitor, log)

	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	pipe, err := vtrack.NewPipeline(det, opts)

	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	defer pipe.Close()

	src, err := video.Open(source)

	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	defer src.Close()

	model := cfg.Model.Path

	if model == "" {
		model = "yolov8" + cfg.Model.Size
	}

	bo := bench.DefaultOptions()
	bo.Warmup = b.Warmup
	bo.Frames = b.Frames
	bo.Source = filepath.Base(source)
	bo.Model = model
	bo.Output = b.Output
	bo.Targets = cfg.Targets()
	bo.Monitor = monitor
	bo.Log = log

	rep, err := bench.Run(c.Context, pipe, src, bo)

	if err != nil {
		return cli.Exit(fmt.Sprintf("benchmark failed: %v", err), 1)
	}

	fmt.Println(rep.Table())

	if b.Report != "" {
		if err := rep.WriteJSON(b.Report); err != nil {
			return cli.Exit(err.Error(), 1)
		}

		fmt.Printf("Report written to %s\n", b.Report)
	}

	if b.Histogram != "" {
		if err := bench.Histogram(rep.LatenciesMs, rep.Targets.MaxLatencyMs, b.Histogram); err != nil {
			log.Warn("error writing histogram", zap.String("file", b.Histogram), zap.Error(err))
		} else {
			fmt.Printf("Histogram written to %s\n", b.Histogram)
		}
	}

	if !rep.Ok() {
		fmt.Println("Performance targets not met")
	}

	return nil
}
