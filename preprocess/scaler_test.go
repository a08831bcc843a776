package preprocess

import (
	"image"
	"testing"

	"github.com/roadeye/vtrack/postprocess/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestScalerSize(t *testing.T) {

	tests := []struct {
		name     string
		w, h     int
		expected image.Point
	}{
		{"1080p", 1920, 1080, image.Pt(853, 480)},
		{"720p", 1280, 720, image.Pt(853, 480)},
		{"already 480", 640, 480, image.Pt(640, 480)},
		{"portrait", 720, 1280, image.Pt(270, 480)},
		{"upscale small", 320, 240, image.Pt(640, 480)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := NewScaler(tc.w, tc.h, DefaultTargetHeight)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, s.Size())
		})
	}
}

func TestScalerRejectsEmpty(t *testing.T) {
	_, err := NewScaler(0, 480, DefaultTargetHeight)
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

func TestScalerDownscale(t *testing.T) {
	src := gocv.NewMatWithSize(720, 1280, gocv.MatTypeCV8UC3)
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	s, err := NewScaler(src.Cols(), src.Rows(), DefaultTargetHeight)
	require.NoError(t, err)

	s.Downscale(src, &dst)

	assert.Equal(t, 853, dst.Cols())
	assert.Equal(t, 480, dst.Rows())
}

func TestScalerRescaleWithinBounds(t *testing.T) {
	s, err := NewScaler(1920, 1080, DefaultTargetHeight)
	require.NoError(t, err)

	dets := []result.DetectResult{
		{Box: result.Box{X1: 100, Y1: 100, X2: 200, Y2: 200}, Class: 2},
		// touches the right and bottom edges of the downsized frame
		{Box: result.Box{X1: 800, Y1: 400, X2: 853, Y2: 480}, Class: 2},
		// decoder overshoot beyond the downsized frame
		{Box: result.Box{X1: -4, Y1: -2, X2: 860, Y2: 490}, Class: 7},
	}

	out := s.Rescale(dets)
	require.Len(t, out, 3)

	for _, det := range out {
		assert.True(t, det.Box.Within(1920, 1080), "box %+v outside frame", det.Box)
	}

	assert.InDelta(t, 100*1920.0/853.0, out[0].Box.X1, 1e-3)
	assert.InDelta(t, 450, out[0].Box.Y2, 1e-3)
	assert.InDelta(t, 1920, out[1].Box.X2, 1e-2)
	assert.Equal(t, float32(1080), out[1].Box.Y2)

	// source slice left untouched
	assert.Equal(t, float32(200), dets[0].Box.X2)
}
