package vtrack

import (
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/roadeye/vtrack/postprocess/result"
	"github.com/roadeye/vtrack/preprocess"
	"github.com/roadeye/vtrack/zone"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// fakeDetector returns fixed detections in the coordinates of the image it
// is given and records the size and threshold of each call
type fakeDetector struct {
	mu     sync.Mutex
	dets   []result.DetectResult
	err    error
	sizes  []image.Point
	confs  []float32
	closed bool
}

func (f *fakeDetector) Detect(img gocv.Mat, conf float32) ([]result.DetectResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sizes = append(f.sizes, image.Pt(img.Cols(), img.Rows()))
	f.confs = append(f.confs, conf)

	if f.err != nil {
		return nil, f.err
	}

	out := make([]result.DetectResult, 0, len(f.dets))

	for _, d := range f.dets {
		if d.Probability >= conf {
			out = append(out, d)
		}
	}

	return out, nil
}

func (f *fakeDetector) Classes() []string {
	return COCOClasses
}

func (f *fakeDetector) InputSize() image.Point {
	return image.Pt(416, 416)
}

func (f *fakeDetector) Close() error {
	f.closed = true
	return nil
}

func grayFrame(w, h int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(90, 90, 90, 0), h, w, gocv.MatTypeCV8UC3)
}

func newTestPipeline(t *testing.T, det Detector, opts Options) *Pipeline {
	p, err := NewPipeline(det, opts)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestProcessFrameSingleVehicle(t *testing.T) {
	det := &fakeDetector{dets: []result.DetectResult{{
		Box:         result.Box{X1: 100, Y1: 100, X2: 300, Y2: 200},
		Class:       2,
		Probability: 0.9,
	}}}

	opts := DefaultOptions()
	opts.Confidence = 0.05
	p := newTestPipeline(t, det, opts)

	frame := grayFrame(1280, 720)
	defer frame.Close()

	res, err := p.ProcessFrame(frame)
	require.NoError(t, err)
	defer res.Close()

	require.NoError(t, res.Err)
	require.Len(t, res.Detections, 1)

	d := res.Detections[0]
	assert.Equal(t, 1, d.TrackID)
	assert.Equal(t, 2, d.Class)
	assert.Equal(t, 1, res.FrameNum)
	assert.Equal(t, image.Pt(853, 480), res.Processed)
	assert.Equal(t, []image.Point{{853, 480}}, det.sizes)
	assert.Equal(t, []float32{0.05}, det.confs)

	// boxes are mapped back to the 1280x720 source
	sx := float32(1280) / 853
	assert.InDelta(t, 100*sx, d.Box.X1, 0.01)
	assert.InDelta(t, 300*sx, d.Box.X2, 0.01)
	assert.InDelta(t, 150, d.Box.Y1, 0.01)
	assert.InDelta(t, 300, d.Box.Y2, 0.01)

	// source frame is untouched, the copy is annotated
	assert.Equal(t, 1280, res.Annotated.Cols())
	assert.Equal(t, []uint8{90, 90, 90}, []uint8(frame.GetVecbAt(300, 640)))
}

func TestProcessFrameBoxesWithinBounds(t *testing.T) {
	det := &fakeDetector{dets: []result.DetectResult{
		{Box: result.Box{X1: -20, Y1: -5, X2: 900, Y2: 500}, Class: 7, Probability: 0.8},
		{Box: result.Box{X1: 400, Y1: 200, X2: 500, Y2: 300}, Class: 5, Probability: 0.7},
	}}

	opts := DefaultOptions()
	p := newTestPipeline(t, det, opts)

	frame := grayFrame(1920, 1080)
	defer frame.Close()

	for i := 0; i < 3; i++ {
		res, err := p.ProcessFrame(frame)
		require.NoError(t, err)

		for _, d := range res.Detections {
			assert.True(t, d.Box.Within(1920, 1080), "box %+v", d.Box)
		}

		res.Close()
	}
}

// changedOutside counts pixels that differ between two BGR frames of the
// same size, ignoring the given areas
func changedOutside(t *testing.T, orig, got gocv.Mat, keep ...image.Rectangle) int {
	t.Helper()

	a, b := orig.ToBytes(), got.ToBytes()
	require.Equal(t, len(a), len(b))

	changed := 0

	for y := 0; y < orig.Rows(); y++ {
		for x := 0; x < orig.Cols(); x++ {
			pt := image.Pt(x, y)

			if lo.ContainsBy(keep, func(r image.Rectangle) bool { return pt.In(r) }) {
				continue
			}

			i := (y*orig.Cols() + x) * 3

			if a[i] != b[i] || a[i+1] != b[i+1] || a[i+2] != b[i+2] {
				changed++
			}
		}
	}

	return changed
}

func TestProcessFrameNoDetections(t *testing.T) {
	tests := []struct {
		name string
		zone []image.Point
	}{
		{name: "overlay only"},
		{name: "with zone", zone: []image.Point{{300, 200}, {600, 200}, {600, 400}, {300, 400}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(t, &fakeDetector{}, DefaultOptions())

			if tt.zone != nil {
				z, err := zone.New(tt.zone, 0.5)
				require.NoError(t, err)
				p.SetZone(z)
			}

			frame := grayFrame(640, 480)
			defer frame.Close()

			res, err := p.ProcessFrame(frame)
			require.NoError(t, err)
			defer res.Close()

			assert.Empty(t, res.Detections)
			require.False(t, res.Overlay.Empty())

			if tt.zone != nil {
				require.False(t, res.ZoneOutline.Empty())
				assert.True(t, image.Pt(300, 200).In(res.ZoneOutline))
				assert.True(t, image.Pt(599, 399).In(res.ZoneOutline))
				// the outline is drawn even without detections
				assert.NotZero(t, changedOutside(t, frame, res.Annotated, res.Overlay))
			} else {
				assert.True(t, res.ZoneOutline.Empty())
			}

			// every pixel outside the fixed overlay is unchanged
			assert.Zero(t, changedOutside(t, frame, res.Annotated, res.Overlay, res.ZoneOutline))
		})
	}
}

func TestProcessFrameFiltersClasses(t *testing.T) {
	det := &fakeDetector{dets: []result.DetectResult{
		{Box: result.Box{X1: 10, Y1: 10, X2: 100, Y2: 100}, Class: 0, Probability: 0.9},
		{Box: result.Box{X1: 200, Y1: 10, X2: 300, Y2: 100}, Class: 2, Probability: 0.9},
		{Box: result.Box{X1: 400, Y1: 10, X2: 500, Y2: 100}, Class: 62, Probability: 0.9},
	}}

	p := newTestPipeline(t, det, DefaultOptions())

	frame := grayFrame(640, 480)
	defer frame.Close()

	// the default set keeps people and everyday objects
	res, err := p.ProcessFrame(frame)
	require.NoError(t, err)
	require.Len(t, res.Detections, 3)
	assert.ElementsMatch(t, []int{0, 2, 62}, lo.Map(res.Detections,
		func(d result.DetectResult, _ int) int { return d.Class }))
	res.Close()

	// narrow to vehicles at runtime
	vehicles, err := ClassFilterFromPreset(PresetVehicles)
	require.NoError(t, err)
	p.SetClasses(vehicles)
	p.ResetTracker()

	res, err = p.ProcessFrame(frame)
	require.NoError(t, err)
	require.Len(t, res.Detections, 1)
	assert.Equal(t, 2, res.Detections[0].Class)
	res.Close()
}

func TestDefaultOptionsKeepPerson(t *testing.T) {
	det := &fakeDetector{dets: []result.DetectResult{
		{Box: result.Box{X1: 10, Y1: 10, X2: 100, Y2: 200}, Class: 0, Probability: 0.8},
	}}

	p := newTestPipeline(t, det, DefaultOptions())

	frame := grayFrame(640, 480)
	defer frame.Close()

	res, err := p.ProcessFrame(frame)
	require.NoError(t, err)
	defer res.Close()

	require.Len(t, res.Detections, 1)
	assert.Equal(t, 0, res.Detections[0].Class)
	assert.Equal(t, 1, res.Detections[0].TrackID)
}

func TestProcessFrameZone(t *testing.T) {
	det := &fakeDetector{dets: []result.DetectResult{
		{Box: result.Box{X1: 10, Y1: 10, X2: 100, Y2: 100}, Class: 2, Probability: 0.9},
		{Box: result.Box{X1: 400, Y1: 300, X2: 500, Y2: 400}, Class: 2, Probability: 0.9},
	}}

	p := newTestPipeline(t, det, DefaultOptions())

	z, err := zone.New([]image.Point{{300, 200}, {640, 200}, {640, 480}, {300, 480}}, 0.5)
	require.NoError(t, err)
	p.SetZone(z)

	frame := grayFrame(640, 480)
	defer frame.Close()

	res, err := p.ProcessFrame(frame)
	require.NoError(t, err)
	defer res.Close()

	require.Len(t, res.Detections, 1)
	assert.Equal(t, float32(400), res.Detections[0].Box.X1)
}

func TestProcessFrameDetectorError(t *testing.T) {
	det := &fakeDetector{err: errors.New("inference failed")}
	p := newTestPipeline(t, det, DefaultOptions())

	frame := grayFrame(640, 480)
	defer frame.Close()

	res, err := p.ProcessFrame(frame)
	require.NoError(t, err)
	defer res.Close()

	assert.ErrorContains(t, res.Err, "inference failed")
	assert.Empty(t, res.Detections)
	assert.False(t, res.Annotated.Empty())
	assert.False(t, res.Overlay.Empty())
}

func TestProcessFrameEmpty(t *testing.T) {
	p := newTestPipeline(t, &fakeDetector{}, DefaultOptions())

	empty := gocv.NewMat()
	defer empty.Close()

	_, err := p.ProcessFrame(empty)
	assert.ErrorIs(t, err, preprocess.ErrEmptyFrame)
}

func TestConfidenceValidation(t *testing.T) {
	opts := DefaultOptions()
	opts.Confidence = 0
	_, err := NewPipeline(&fakeDetector{}, opts)
	assert.ErrorIs(t, err, ErrConfidence)

	p := newTestPipeline(t, &fakeDetector{}, DefaultOptions())
	assert.ErrorIs(t, p.SetConfidence(1.5), ErrConfidence)
	require.NoError(t, p.SetConfidence(0.6))
	assert.Equal(t, float32(0.6), p.Confidence())
}

func TestResetTrackerRestartsIDs(t *testing.T) {
	det := &fakeDetector{dets: []result.DetectResult{{
		Box: result.Box{X1: 100, Y1: 100, X2: 200, Y2: 200}, Class: 2, Probability: 0.9,
	}}}

	p := newTestPipeline(t, det, DefaultOptions())

	frame := grayFrame(640, 480)
	defer frame.Close()

	for i := 0; i < 2; i++ {
		res, err := p.ProcessFrame(frame)
		require.NoError(t, err)
		res.Close()
	}

	p.ResetTracker()

	det.dets[0].Box = result.Box{X1: 400, Y1: 300, X2: 500, Y2: 400}

	res, err := p.ProcessFrame(frame)
	require.NoError(t, err)
	defer res.Close()

	require.Len(t, res.Detections, 1)
	assert.Equal(t, 1, res.Detections[0].TrackID)
	assert.Equal(t, 3, res.FrameNum)
	assert.Equal(t, 3, p.Stats().TotalFrames)
}
