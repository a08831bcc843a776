package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/roadeye/vtrack"
	"github.com/roadeye/vtrack/config"
	"github.com/roadeye/vtrack/logger"
	"github.com/roadeye/vtrack/postprocess/result"
	"github.com/roadeye/vtrack/render"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"
)

// detection is one object in the detect output
type detection struct {
	BBox       [4]float32 `json:"bbox"`
	TrackID    int        `json:"track_id"`
	Confidence float32    `json:"confidence"`
	ClassID    int        `json:"class_id"`
	ClassName  string     `json:"class_name"`
}

type detectOutput struct {
	// Image is only set when several images are given
	Image      string      `json:"image,omitempty"`
	Detections []detection `json:"detections"`
	Success    bool        `json:"success"`
}

type detectError struct {
	Image   string `json:"image,omitempty"`
	Error   string `json:"error"`
	Success bool   `json:"success"`
}

func detectCommand() *cli.Command {
	return &cli.Command{
		Name:      "detect",
		Usage:     "detect vehicles in images and print them as JSON",
		ArgsUsage: "<image> [image...]",
		Flags: append(modelFlags(0.5),
			&cli.IntFlag{
				Name:  flagPool,
				Usage: "number of model instances detecting images concurrently",
			},
		),
		Action: detect,
	}
}

// detectJSON builds the output for one image
func detectJSON(image string, dets []result.DetectResult, classNames []string, err error) any {

	if err != nil {
		return detectError{Image: image, Error: err.Error()}
	}

	out := detectOutput{
		Image:      image,
		Detections: make([]detection, 0, len(dets)),
		Success:    true,
	}

	for _, d := range dets {
		out.Detections = append(out.Detections, detection{
			BBox:       [4]float32{d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2},
			TrackID:    d.TrackID,
			Confidence: d.Probability,
			ClassID:    d.Class,
			ClassName:  render.ClassName(d.Class, classNames),
		})
	}

	return out
}

func detect(c *cli.Context) error {

	images := c.Args().Slice()

	if len(images) == 0 {
		return printDetectError(os.Stdout, errors.New("no image given"))
	}

	cfg, err := loadConfig(c)

	if err != nil {
		return printDetectError(os.Stdout, err)
	}

	log := logger.Log()

	pool, err := newPool(cfg, log)

	if err != nil {
		return printDetectError(os.Stdout, err)
	}

	defer pool.Close()

	outcomes := make([]outcome, len(images))

	var g errgroup.Group
	g.SetLimit(pool.Size())

	for i, path := range images {
		g.Go(func() error {
			det := pool.Get()
			defer pool.Return(det)

			dets, err := detectImage(det, path, cfg, log)
			outcomes[i] = outcome{dets: dets, names: det.Classes(), err: err}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return printDetectError(os.Stdout, err)
	}

	failed, err := writeDetections(os.Stdout, images, outcomes)

	if err != nil {
		return cli.Exit(fmt.Sprintf("writing detections: %v", err), 1)
	}

	if failed > 0 {
		return cli.Exit("", 1)
	}

	return nil
}

// outcome is the detection result of one image
type outcome struct {
	dets  []result.DetectResult
	names []string
	err   error
}

// writeDetections prints one JSON line per image and returns the number of
// images that failed
func writeDetections(w io.Writer, images []string, outcomes []outcome) (int, error) {

	enc := json.NewEncoder(w)
	failed := 0

	for i, path := range images {
		name := ""

		if len(images) > 1 {
			name = path
		}

		o := outcomes[i]

		if o.err != nil {
			failed++
		}

		if err := enc.Encode(detectJSON(name, o.dets, o.names, o.err)); err != nil {
			return failed, err
		}
	}

	return failed, nil
}

// detectImage runs a fresh pipeline over one image so track ids start at 1
func detectImage(det vtrack.Detector, path string, cfg config.Config, log *zap.Logger) ([]result.DetectResult, error) {

	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("unable to read image %s", path)
	}

	opts, err := cfg.PipelineOptions(det.Classes(), nil, log)

	if err != nil {
		return nil, err
	}

	pipe, err := vtrack.NewPipeline(det, opts)

	if err != nil {
		return nil, err
	}

	defer pipe.Close()

	res, err := pipe.ProcessFrame(img)

	if err != nil {
		return nil, err
	}

	defer res.Close()

	if res.Err != nil {
		return nil, res.Err
	}

	return res.Detections, nil
}

func printDetectError(w io.Writer, err error) error {
	if encErr := json.NewEncoder(w).Encode(detectJSON("", nil, nil, err)); encErr != nil {
		return cli.Exit(fmt.Sprintf("%v: %v", err, encErr), 1)
	}
	return cli.Exit("", 1)
}
