// Package bench measures pipeline latency and throughput over a video
package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/roadeye/vtrack"
	"github.com/roadeye/vtrack/perf"
	"github.com/roadeye/vtrack/video"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Frames is a seekable frame source, satisfied by video.Source
type Frames interface {
	Read(dst *gocv.Mat) error
	Seek(frame int) error
	Props() video.Props
}

// Options configure a benchmark run
type Options struct {
	// Warmup frames are processed but not measured
	Warmup int
	// Frames is the number of measured frames
	Frames int
	// Source and Model label the report
	Source string
	Model  string
	// Output optionally records the annotated frames
	Output  string
	Targets perf.Targets
	// Monitor samples process CPU and memory when set
	Monitor *perf.Monitor
	// SampleEvery is the number of frames between resource samples
	SampleEvery int
	Log         *zap.Logger
}

// DefaultOptions are 30 warm-up frames and 300 measured frames
func DefaultOptions() Options {
	return Options{
		Warmup:      30,
		Frames:      300,
		Targets:     perf.DefaultTargets(),
		SampleEvery: 30,
	}
}

// Run processes frames through pipe and reports the measured latencies.
// Sources shorter than the run are looped with the tracker reset.
func Run(ctx context.Context, pipe *vtrack.Pipeline, src Frames, opts Options) (*Report, error) {

	if opts.Frames <= 0 {
		return nil, errors.New("frame count must be positive")
	}

	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	if opts.SampleEvery <= 0 {
		opts.SampleEvery = 30
	}

	props := src.Props()

	var writer *video.Writer

	if opts.Output != "" {
		w, err := video.NewWriter(opts.Output, props.FPS, props.Width, props.Height)

		if err != nil {
			return nil, err
		}

		defer w.Close()
		writer = w
	}

	frame := gocv.NewMat()
	defer frame.Close()

	rep := &Report{
		Timestamp:    time.Now(),
		Source:       opts.Source,
		Model:        opts.Model,
		Resolution:   fmt.Sprintf("%dx%d", props.Width, props.Height),
		WarmupFrames: opts.Warmup,
		Frames:       opts.Frames,
		LatenciesMs:  make([]float64, 0, opts.Frames),
	}

	next := func() error {
		err := src.Read(&frame)

		if !errors.Is(err, io.EOF) {
			return err
		}

		if props.Camera {
			return fmt.Errorf("camera stopped delivering frames")
		}

		rep.Loops++

		if err := src.Seek(0); err != nil {
			return err
		}

		pipe.ResetTracker()
		return src.Read(&frame)
	}

	opts.Log.Info("benchmark warm-up", zap.Int("frames", opts.Warmup))

	for i := 0; i < opts.Warmup; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := next(); err != nil {
			return nil, fmt.Errorf("warm-up frame %d: %w", i, err)
		}

		res, err := pipe.ProcessFrame(frame)

		if err != nil {
			return nil, err
		}

		res.Close()
	}

	rep.Loops = 0
	opts.Log.Info("benchmark started", zap.Int("frames", opts.Frames))

	start := time.Now()

	for i := 0; i < opts.Frames; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := next(); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}

		res, err := pipe.ProcessFrame(frame)

		if err != nil {
			return nil, err
		}

		if res.Err != nil {
			opts.Log.Warn("frame failed", zap.Int("frame", i), zap.Error(res.Err))
		}

		rep.LatenciesMs = append(rep.LatenciesMs, float64(res.Inference)/float64(time.Millisecond))
		rep.Detections += len(res.Detections)

		if writer != nil {
			if err := writer.Write(res.Annotated); err != nil {
				res.Close()
				return nil, err
			}
		}

		res.Close()

		if opts.Monitor != nil && i%opts.SampleEvery == 0 {
			opts.Monitor.Sample()
			pr := opts.Monitor.Report()
			rep.System.MaxCPU = max(rep.System.MaxCPU, pr.CPUPercent)
			rep.System.MaxMemory = max(rep.System.MaxMemory, pr.MemoryMB)
		}
	}

	rep.WallTime = time.Since(start).Seconds()

	if opts.Monitor != nil {
		opts.Monitor.Sample()
		pr := opts.Monitor.Report()
		rep.System.CPUPercent = pr.CPUPercent
		rep.System.MemoryMB = pr.MemoryMB
		rep.System.MaxCPU = max(rep.System.MaxCPU, pr.CPUPercent)
		rep.System.MaxMemory = max(rep.System.MaxMemory, pr.MemoryMB)
	}

	var err error

	rep.Latency, rep.FPS, rep.Targets, err = Summarise(rep.LatenciesMs, opts.Targets)

	if err != nil {
		return nil, err
	}

	rep.AvgDetections = float64(rep.Detections) / float64(len(rep.LatenciesMs))

	opts.Log.Info("benchmark finished",
		zap.Float64("avg_fps", rep.FPS.Avg),
		zap.Float64("mean_latency_ms", rep.Latency.Mean),
		zap.Bool("meets_targets", rep.Ok()),
	)

	return rep, nil
}
