package vtrack

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/roadeye/vtrack/perf"
	"github.com/roadeye/vtrack/postprocess/result"
	"github.com/roadeye/vtrack/preprocess"
	"github.com/roadeye/vtrack/render"
	"github.com/roadeye/vtrack/tracker"
	"github.com/roadeye/vtrack/zone"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// ErrConfidence is returned for a confidence threshold outside (0,1]
var ErrConfidence = errors.New("confidence threshold must be in (0,1]")

// Options configure a Pipeline
type Options struct {
	// Confidence is the minimum detection score
	Confidence float32
	// Classes is the allowed class set, nil allows every class
	Classes *ClassFilter
	// Zone optionally restricts detections to a polygon of the source frame
	Zone *zone.Zone
	// TargetHeight is the working resolution height, 0 means 480
	TargetHeight int
	// Tracker holds the ByteTrack parameters
	Tracker tracker.Config
	// TrailLength is the number of center points drawn behind each track,
	// 0 disables trails
	TrailLength int
	// LineThickness of the bounding boxes
	LineThickness int
	// Monitor receives per frame metrics when set, its sampler is used for
	// the overlay FPS
	Monitor *perf.Monitor
	Log     *zap.Logger
}

// DefaultOptions returns the options of the vehicle detector front ends
func DefaultOptions() Options {
	classes, _ := ClassFilterFromPreset(PresetAll)

	return Options{
		Confidence:    0.3,
		Classes:       classes,
		TargetHeight:  preprocess.DefaultTargetHeight,
		Tracker:       tracker.DefaultConfig(),
		LineThickness: 2,
	}
}

// Result is the outcome of processing one frame.  The caller owns
// Annotated and must Close the result.
type Result struct {
	// Annotated is a copy of the input frame with boxes and overlay drawn
	Annotated gocv.Mat
	// Detections are filtered and tracked, in source frame coordinates
	Detections []result.DetectResult
	// FrameNum counts frames since the pipeline was created, from 1
	FrameNum int
	// Inference is the time spent in the detector
	Inference time.Duration
	// Processed is the working resolution the detector ran at
	Processed image.Point
	// Overlay is the area covered by the stats header
	Overlay image.Rectangle
	// ZoneOutline bounds the zone outline, empty without a zone
	ZoneOutline image.Rectangle
	// Err is set when detection failed, the frame then carries the overlay
	// only
	Err error
}

// Close releases the annotated frame
func (r *Result) Close() error {
	return r.Annotated.Close()
}

// Pipeline runs detection, filtering, tracking and annotation on a stream of
// frames.  Frames are processed one at a time.
type Pipeline struct {
	// mu serialises ProcessFrame
	mu      sync.Mutex
	// cfgMu guards the settings that may change between frames
	cfgMu   sync.RWMutex
	conf    float32
	classes *ClassFilter
	zone    *zone.Zone

	det          Detector
	targetHeight int
	scaler       *preprocess.Scaler
	small        gocv.Mat
	adapter      *tracker.Adapter
	sampler      *perf.Sampler
	monitor      *perf.Monitor
	frame        int
	thickness    int
	boxFont      render.Font
	overlayFont  render.Font
	trailStyle   render.TrailStyle
	log          *zap.Logger
}

// NewPipeline returns a pipeline around the detector.  The pipeline does not
// take ownership of the detector.
func NewPipeline(det Detector, opts Options) (*Pipeline, error) {

	if opts.Confidence <= 0 || opts.Confidence > 1 {
		return nil, fmt.Errorf("%w: %v", ErrConfidence, opts.Confidence)
	}

	if opts.TargetHeight <= 0 {
		opts.TargetHeight = preprocess.DefaultTargetHeight
	}

	if opts.LineThickness <= 0 {
		opts.LineThickness = 2
	}

	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	var trail *tracker.Trail

	if opts.TrailLength > 0 {
		trail = tracker.NewTrail(opts.TrailLength)
	}

	sampler := perf.NewSampler(perf.DefaultWindow)

	if opts.Monitor != nil {
		sampler = opts.Monitor.Sampler()
	}

	return &Pipeline{
		conf:         opts.Confidence,
		classes:      opts.Classes,
		zone:         opts.Zone,
		det:          det,
		targetHeight: opts.TargetHeight,
		small:        gocv.NewMat(),
		adapter:      tracker.NewAdapter(opts.Tracker, trail),
		sampler:      sampler,
		monitor:      opts.Monitor,
		thickness:    opts.LineThickness,
		boxFont:      render.DefaultFont(),
		overlayFont:  render.OverlayFont(),
		trailStyle:   render.DefaultTrailStyle(),
		log:          opts.Log,
	}, nil
}

// ProcessFrame detects, tracks and annotates one BGR frame.  The input frame
// is not modified.  Detector and tracker failures are reported on the
// result; an error is only returned for an unusable frame.
func (p *Pipeline) ProcessFrame(frame gocv.Mat) (*Result, error) {

	if frame.Empty() {
		return nil, preprocess.ErrEmptyFrame
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	w, h := frame.Cols(), frame.Rows()

	if p.scaler == nil || !p.scaler.Matches(w, h) {
		s, err := preprocess.NewScaler(w, h, p.targetHeight)

		if err != nil {
			return nil, err
		}

		p.scaler = s
	}

	p.frame++

	p.scaler.Downscale(frame, &p.small)

	p.cfgMu.RLock()
	conf, classes, zn := p.conf, p.classes, p.zone
	p.cfgMu.RUnlock()

	start := time.Now()
	dets, err := p.det.Detect(p.small, conf)
	inference := time.Since(start)

	res := &Result{
		Annotated: frame.Clone(),
		FrameNum:  p.frame,
		Inference: inference,
		Processed: p.scaler.Size(),
	}

	if err != nil {
		p.log.Warn("detection failed", zap.Int("frame", p.frame), zap.Error(err))
		res.Err = fmt.Errorf("frame %d: %w", p.frame, err)
		p.observe(res)
		return res, nil
	}

	dets = classes.Apply(p.scaler.Rescale(dets))

	if zn != nil {
		dets = zn.Filter(dets)
	}

	if len(dets) > 0 {
		tracked, err := p.adapter.Update(dets)

		if err != nil {
			p.log.Warn("tracking failed", zap.Int("frame", p.frame), zap.Error(err))
		} else {
			dets = tracked
		}
	}

	res.Detections = dets

	if zn != nil {
		res.ZoneOutline = render.Zone(&res.Annotated, zn.Points(), render.ZoneColor, 2)
	}

	if len(dets) > 0 {
		render.Trail(&res.Annotated, dets, p.adapter.Trail(), p.trailStyle)
		render.Boxes(&res.Annotated, dets, p.det.Classes(), p.boxFont, p.thickness)
	}

	p.observe(res)

	return res, nil
}

// observe records the frame latency and draws the stats header
func (p *Pipeline) observe(res *Result) {

	if p.monitor != nil {
		p.monitor.Observe(res.Inference, len(res.Detections), res.Err != nil)
	} else {
		p.sampler.Add(res.Inference)
	}

	stats := render.Stats{
		Vehicles:  len(res.Detections),
		FPS:       p.sampler.FPS(),
		Frame:     res.FrameNum,
		Inference: res.Inference,
		Processed: res.Processed,
	}

	res.Overlay = render.Overlay(&res.Annotated, stats.Lines(), p.overlayFont)
}

// SetConfidence changes the detection threshold from the next frame on
func (p *Pipeline) SetConfidence(conf float32) error {

	if conf <= 0 || conf > 1 {
		return fmt.Errorf("%w: %v", ErrConfidence, conf)
	}

	p.cfgMu.Lock()
	defer p.cfgMu.Unlock()

	p.conf = conf
	return nil
}

// Confidence returns the detection threshold
func (p *Pipeline) Confidence() float32 {
	p.cfgMu.RLock()
	defer p.cfgMu.RUnlock()

	return p.conf
}

// SetClasses changes the allowed classes, nil allows every class
func (p *Pipeline) SetClasses(f *ClassFilter) {
	p.cfgMu.Lock()
	defer p.cfgMu.Unlock()

	p.classes = f
}

// Classes returns the allowed class filter
func (p *Pipeline) Classes() *ClassFilter {
	p.cfgMu.RLock()
	defer p.cfgMu.RUnlock()

	return p.classes
}

// SetZone changes the polygon zone, nil removes it
func (p *Pipeline) SetZone(z *zone.Zone) {
	p.cfgMu.Lock()
	defer p.cfgMu.Unlock()

	p.zone = z
}

// Zone returns the polygon zone, nil when none is set
func (p *Pipeline) Zone() *zone.Zone {
	p.cfgMu.RLock()
	defer p.cfgMu.RUnlock()

	return p.zone
}

// ClassNames returns the detector class names
func (p *Pipeline) ClassNames() []string {
	return p.det.Classes()
}

// ResetTracker forgets all tracks, used when the source loops or seeks
func (p *Pipeline) ResetTracker() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.adapter.Reset()
}

// Stats returns the latency and FPS statistics
func (p *Pipeline) Stats() perf.Stats {
	return p.sampler.Stats()
}

// Close releases the pipeline's working buffers, not the detector
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.small.Close()
}
