package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/roadeye/vtrack"
	"github.com/roadeye/vtrack/bench"
	"github.com/roadeye/vtrack/logger"
	"github.com/roadeye/vtrack/video"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "detect and track vehicles in a video or camera feed",
		ArgsUsage: "[source...]",
		Flags: append(modelFlags(0.3),
			&cli.StringFlag{
				Name:    flagSource,
				Aliases: []string{"s"},
				Value:   "0",
				Usage:   "video file or camera index",
			},
			&cli.BoolFlag{
				Name:  flagSave,
				Usage: "write the annotated video to output_<unix>.mp4",
			},
			&cli.BoolFlag{
				Name:  flagHeadless,
				Usage: "do not open a display window",
			},
		),
		Action: run,
	}
}

func run(c *cli.Context) error {

	cfg, err := loadConfig(c)

	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	log := logger.Log()

	det := openDetector(cfg, log)
	defer det.Close()

	opts, err := cfg.PipelineOptions(det.Classes(), nil, log)

	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	pipe, err := vtrack.NewPipeline(det, opts)

	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	defer pipe.Close()

	var window *gocv.Window

	if !c.Bool(flagHeadless) {
		window = gocv.NewWindow("vtrack")
		defer window.Close()
	}

	sources := c.Args().Slice()

	if len(sources) == 0 {
		sources = []string{cfg.Source}
	}

	failed := 0

	for _, source := range sources {
		err := play(c.Context, pipe, source, window, c.Bool(flagSave), log)

		if errors.Is(err, errQuit) {
			break
		}

		if err != nil {
			fmt.Printf("Error: %v\n", err)
			log.Error("source aborted", zap.String("source", source), zap.Error(err))
			failed++
		}

		pipe.ResetTracker()
	}

	fmt.Println(bench.SummaryTable(pipe.Stats()))

	if failed == len(sources) {
		return cli.Exit("no source could be played", 1)
	}

	return nil
}

// errQuit ends the run when the viewer presses q
var errQuit = errors.New("quit")

// play processes one source until it ends, the context is cancelled or q is
// pressed
func play(ctx context.Context, pipe *vtrack.Pipeline, source string, window *gocv.Window,
	save bool, log *zap.Logger) error {

	src, err := video.Open(source)

	if err != nil {
		return err
	}

	defer src.Close()

	props := src.Props()
	fmt.Printf("Video: %s\n  %s\n", source, props)

	var writer *video.Writer

	if save {
		writer, err = video.NewWriter(video.TimestampName("output", ".mp4", time.Now()),
			props.FPS, props.Width, props.Height)

		if err != nil {
			return err
		}

		defer func() {
			writer.Close()
			fmt.Printf("Saved %d frames to %s\n", writer.Frames(), writer.Path())
		}()
	}

	frame := gocv.NewMat()
	defer frame.Close()

	for {
		if ctx.Err() != nil {
			return errQuit
		}

		if err := src.Read(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}

		res, err := pipe.ProcessFrame(frame)

		if err != nil {
			log.Warn("frame skipped", zap.Int("frame", src.Position()), zap.Error(err))
			continue
		}

		if writer != nil {
			if err := writer.Write(res.Annotated); err != nil {
				res.Close()
				return err
			}
		}

		if window == nil {
			res.Close()
			continue
		}

		window.IMShow(res.Annotated)
		key := window.WaitKey(1)

		switch key {
		case int('q'):
			res.Close()
			return errQuit

		case int('s'):
			name := video.TimestampName("screenshot", ".jpg", time.Now())

			if gocv.IMWrite(name, res.Annotated) {
				fmt.Printf("Screenshot saved: %s\n", name)
			} else {
				log.Warn("error writing screenshot", zap.String("file", name))
			}
		}

		res.Close()
	}
}
