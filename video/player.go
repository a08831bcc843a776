package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roadeye/vtrack"
	"github.com/roadeye/vtrack/postprocess/result"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// ErrNoSource is returned by playback controls before a source is opened
var ErrNoSource = errors.New("no video source open")

// idlePoll is how often a paused player checks its playing flag
const idlePoll = 20 * time.Millisecond

// Frame is one processed frame as published to viewers
type Frame struct {
	// JPEG is the encoded annotated frame
	JPEG []byte
	// Num is the pipeline frame counter
	Num int
	// Position is the source frame index
	Position   int
	Detections []result.DetectResult
	Inference  time.Duration
	Err        error
}

// Event is the per frame message pushed to viewers
type Event struct {
	Frame    int       `json:"frame"`
	Position int       `json:"position"`
	Objects  int       `json:"objects"`
	Message  string    `json:"message"`
	Error    string    `json:"error,omitempty"`
	Time     time.Time `json:"time"`
}

// EventMessage formats the per frame detection message
func EventMessage(frame, objects int) string {
	return fmt.Sprintf("Frame %d: %d objects detected", frame, objects)
}

// PlayerOptions configure a Player
type PlayerOptions struct {
	// Loop restarts file sources at the end, otherwise playback pauses
	Loop bool
	// Realtime throttles file playback to the source frame rate
	Realtime bool
	// JPEGQuality of published frames, 0 uses 80
	JPEGQuality int
	Log         *zap.Logger
}

// State describes the player for status queries
type State struct {
	Source   string `json:"source"`
	Props    Props  `json:"props"`
	Playing  bool   `json:"playing"`
	Position int    `json:"position"`
}

// Player reads a source through the pipeline on a background goroutine and
// publishes the annotated frames
type Player struct {
	pipe *vtrack.Pipeline
	opts PlayerOptions
	log  *zap.Logger

	frames *Broadcaster[*Frame]
	events *Broadcaster[Event]

	playing atomic.Bool
	// seekTo is the requested frame index, or -1
	seekTo atomic.Int64

	// readMu serialises reading the source with replacing it
	readMu sync.Mutex
	// mu guards src, last and closed
	mu     sync.Mutex
	src    *Source
	last   gocv.Mat
	closed bool
}

// NewPlayer returns a stopped player without a source
func NewPlayer(pipe *vtrack.Pipeline, opts PlayerOptions) *Player {

	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 80
	}

	p := &Player{
		pipe:   pipe,
		opts:   opts,
		log:    opts.Log,
		frames: NewBroadcaster[*Frame](2),
		events: NewBroadcaster[Event](32),
		last:   gocv.NewMat(),
	}

	p.seekTo.Store(-1)

	return p
}

// Open replaces the current source.  Playback is paused and the tracker
// reset.
func (p *Player) Open(source string) (Props, error) {

	src, err := Open(source)

	if err != nil {
		return Props{}, err
	}

	p.playing.Store(false)

	p.readMu.Lock()
	defer p.readMu.Unlock()

	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		src.Close()
		return Props{}, errors.New("player is closed")
	}

	old := p.src
	p.src = src
	p.mu.Unlock()

	if old != nil {
		old.Close()
	}

	p.seekTo.Store(-1)
	p.pipe.ResetTracker()

	p.log.Info("video source opened",
		zap.String("source", source),
		zap.Stringer("props", src.Props()),
	)

	return src.Props(), nil
}

// Play starts or resumes playback
func (p *Player) Play() error {

	if !p.hasSource() {
		return ErrNoSource
	}

	p.playing.Store(true)
	return nil
}

// Pause playback at the current frame
func (p *Player) Pause() {
	p.playing.Store(false)
}

// Stop pauses and rewinds to the first frame
func (p *Player) Stop() error {
	p.playing.Store(false)
	return p.Seek(0)
}

// Seek moves to a frame index.  The tracker is reset as identities do not
// carry over a jump.
func (p *Player) Seek(frame int) error {

	p.mu.Lock()
	src := p.src
	p.mu.Unlock()

	if src == nil {
		return ErrNoSource
	}

	if src.Props().Camera {
		return errors.New("can not seek a camera")
	}

	if frame < 0 {
		frame = 0
	}

	p.seekTo.Store(int64(frame))
	return nil
}

// Playing reports whether playback is running
func (p *Player) Playing() bool {
	return p.playing.Load()
}

// State returns the current source and playback position
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := State{Playing: p.playing.Load()}

	if p.src != nil {
		st.Source = p.src.Name()
		st.Props = p.src.Props()
		st.Position = p.src.Position()
	}

	return st
}

// Frames subscribes to published frames
func (p *Player) Frames() (<-chan *Frame, func()) {
	return p.frames.Subscribe()
}

// Events subscribes to per frame events
func (p *Player) Events() (<-chan Event, func()) {
	return p.events.Subscribe()
}

// Snapshot returns the last annotated frame
func (p *Player) Snapshot() (image.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.last.Empty() {
		return nil, errors.New("no frame available")
	}

	return p.last.ToImage()
}

// Pipeline returns the pipeline frames are processed with
func (p *Player) Pipeline() *vtrack.Pipeline {
	return p.pipe
}

func (p *Player) hasSource() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.src != nil
}

// Run is the playback loop.  It returns when ctx is cancelled.
func (p *Player) Run(ctx context.Context) error {

	frame := gocv.NewMat()
	defer frame.Close()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		p.applySeek()

		if !p.playing.Load() {
			if !sleepCtx(ctx, idlePoll) {
				return nil
			}

			continue
		}

		start := time.Now()

		interval, err := p.step(&frame)

		if err != nil {
			p.log.Warn("playback stopped", zap.Error(err))
			p.playing.Store(false)
			continue
		}

		if p.opts.Realtime && interval > 0 {
			if !sleepCtx(ctx, interval-time.Since(start)) {
				return nil
			}
		}
	}
}

// applySeek moves the source to a pending seek position
func (p *Player) applySeek() {

	pos := p.seekTo.Swap(-1)

	if pos < 0 {
		return
	}

	p.readMu.Lock()
	defer p.readMu.Unlock()

	p.mu.Lock()
	src := p.src
	p.mu.Unlock()

	if src == nil {
		return
	}

	if err := src.Seek(int(pos)); err != nil {
		p.log.Warn("seek failed", zap.Int64("frame", pos), zap.Error(err))
		return
	}

	p.pipe.ResetTracker()
}

// step reads, processes and publishes one frame and returns the source frame
// interval
func (p *Player) step(frame *gocv.Mat) (time.Duration, error) {

	p.readMu.Lock()
	defer p.readMu.Unlock()

	p.mu.Lock()
	src := p.src
	p.mu.Unlock()

	if src == nil {
		return 0, ErrNoSource
	}

	props := src.Props()
	interval := time.Duration(float64(time.Second) / props.FPS)

	err := src.Read(frame)

	if errors.Is(err, io.EOF) {
		if !p.opts.Loop || props.Camera {
			return 0, fmt.Errorf("end of %s", src.Name())
		}

		if err := src.Seek(0); err != nil {
			return 0, err
		}

		p.pipe.ResetTracker()

		if err := src.Read(frame); err != nil {
			return 0, fmt.Errorf("error reading %s after rewind: %w", src.Name(), err)
		}
	}

	res, err := p.pipe.ProcessFrame(*frame)

	if err != nil {
		return interval, fmt.Errorf("error processing frame: %w", err)
	}

	defer res.Close()

	p.publish(res, src.Position()-1)

	return interval, nil
}

func (p *Player) publish(res *vtrack.Result, position int) {

	p.mu.Lock()
	res.Annotated.CopyTo(&p.last)
	p.mu.Unlock()

	ev := Event{
		Frame:    res.FrameNum,
		Position: position,
		Objects:  len(res.Detections),
		Message:  EventMessage(res.FrameNum, len(res.Detections)),
		Time:     time.Now(),
	}

	if res.Err != nil {
		ev.Error = res.Err.Error()
	}

	p.events.Publish(ev)

	if p.frames.Len() == 0 {
		return
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, res.Annotated,
		[]int{int(gocv.IMWriteJpegQuality), p.opts.JPEGQuality})

	if err != nil {
		p.log.Warn("jpeg encode failed", zap.Int("frame", res.FrameNum), zap.Error(err))
		return
	}

	defer buf.Close()

	// the native buffer is released on return so copy it out
	jpg := append([]byte(nil), buf.GetBytes()...)

	p.frames.Publish(&Frame{
		JPEG:       jpg,
		Num:        res.FrameNum,
		Position:   position,
		Detections: res.Detections,
		Inference:  res.Inference,
		Err:        res.Err,
	})
}

// Close stops publishing and releases the source
func (p *Player) Close() error {

	p.playing.Store(false)
	p.frames.Close()
	p.events.Close()

	p.readMu.Lock()
	defer p.readMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	if p.src != nil {
		p.src.Close()
		p.src = nil
	}

	return p.last.Close()
}

// sleepCtx sleeps for d unless ctx is cancelled first, in which case it
// returns false
func sleepCtx(ctx context.Context, d time.Duration) bool {

	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
