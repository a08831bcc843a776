package postprocess

import (
	"testing"

	"github.com/roadeye/vtrack/preprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawOutput builds a [1, 4+classes, anchors] tensor from per anchor
// cx,cy,w,h,class,score tuples
func rawOutput(classes, anchors int, boxes [][6]float32) []float32 {
	out := make([]float32, (4+classes)*anchors)

	for i, b := range boxes {
		out[i] = b[0]
		out[anchors+i] = b[1]
		out[2*anchors+i] = b[2]
		out[3*anchors+i] = b[3]
		out[(4+int(b[4]))*anchors+i] = b[5]
	}

	return out
}

func testParams() YOLOv8Params {
	return YOLOv8Params{
		BoxThreshold:    0.25,
		NMSThreshold:    0.45,
		ObjectClassNum:  3,
		MaxObjectNumber: 10,
	}
}

func TestYOLOv8DetectObjects(t *testing.T) {
	// 640x320 source letterboxed into 320x320, scale 0.5 with 80px y padding
	resizer := preprocess.NewResizer(640, 320, 320, 320)
	defer resizer.Close()

	require.Equal(t, 80, resizer.YPad())

	anchors := 8
	out := rawOutput(3, anchors, [][6]float32{
		{100, 160, 40, 20, 2, 0.90},
		// overlaps the first box with the same class so is suppressed
		{102, 161, 40, 20, 2, 0.80},
		// same location, different class so is kept
		{100, 160, 40, 20, 1, 0.70},
		// below threshold
		{200, 200, 10, 10, 0, 0.10},
	})

	y := NewYOLOv8(testParams())
	dets, err := y.DetectObjects(out, 7, anchors, resizer, 0)
	require.NoError(t, err)
	require.Len(t, dets, 2)

	assert.Equal(t, 2, dets[0].Class)
	assert.InDelta(t, 0.90, dets[0].Probability, 1e-6)
	// (100-20)/0.5, (160-10-80)/0.5, (100+20)/0.5, (160+10-80)/0.5
	assert.InDelta(t, 160, dets[0].Box.X1, 1e-3)
	assert.InDelta(t, 140, dets[0].Box.Y1, 1e-3)
	assert.InDelta(t, 240, dets[0].Box.X2, 1e-3)
	assert.InDelta(t, 180, dets[0].Box.Y2, 1e-3)

	assert.Equal(t, 1, dets[1].Class)
	assert.NotEqual(t, dets[0].ID, dets[1].ID)
}

func TestYOLOv8ThresholdOverride(t *testing.T) {
	resizer := preprocess.NewResizer(320, 320, 320, 320)
	defer resizer.Close()

	out := rawOutput(3, 4, [][6]float32{
		{50, 50, 20, 20, 0, 0.40},
		{150, 150, 20, 20, 1, 0.60},
	})

	y := NewYOLOv8(testParams())

	dets, err := y.DetectObjects(out, 7, 4, resizer, 0.5)
	require.NoError(t, err)
	assert.Len(t, dets, 1)

	dets, err = y.DetectObjects(out, 7, 4, resizer, 0.3)
	require.NoError(t, err)
	assert.Len(t, dets, 2)
}

func TestYOLOv8MaxObjects(t *testing.T) {
	resizer := preprocess.NewResizer(640, 640, 640, 640)
	defer resizer.Close()

	anchors := 20
	boxes := make([][6]float32, 0, anchors)

	for i := 0; i < anchors; i++ {
		// spread out so NMS keeps all of them
		boxes = append(boxes, [6]float32{float32(i*30 + 15), 100, 20, 20, 0, 0.5 + float32(i)/100})
	}

	p := testParams()
	p.MaxObjectNumber = 5
	y := NewYOLOv8(p)

	dets, err := y.DetectObjects(rawOutput(3, anchors, boxes), 7, anchors, resizer, 0)
	require.NoError(t, err)
	require.Len(t, dets, 5)

	// highest scores first
	assert.InDelta(t, 0.69, dets[0].Probability, 1e-6)
	assert.InDelta(t, 0.65, dets[4].Probability, 1e-6)
}

func TestYOLOv8ChannelMismatch(t *testing.T) {
	resizer := preprocess.NewResizer(640, 640, 640, 640)
	defer resizer.Close()

	y := NewYOLOv8(YOLOv8COCOParams())
	_, err := y.DetectObjects(make([]float32, 10*7), 7, 10, resizer, 0)
	assert.Error(t, err)
}

func TestYOLOv8DetectObjectsNMS(t *testing.T) {
	resizer := preprocess.NewResizer(640, 640, 640, 640)
	defer resizer.Close()

	out := []float32{
		10, 10, 50, 50, 0.3, 2,
		100, 100, 200, 180, 0.9, 7,
		0, 0, 0, 0, 0, 0,
	}

	y := NewYOLOv8(YOLOv8COCOParams())
	dets, err := y.DetectObjectsNMS(out, 3, resizer, 0.25)
	require.NoError(t, err)
	require.Len(t, dets, 2)

	assert.Equal(t, 7, dets[0].Class)
	assert.Equal(t, 2, dets[1].Class)
	assert.InDelta(t, 200, dets[0].Box.X2, 1e-3)
}
