package vtrack

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/roadeye/vtrack/postprocess/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classDets(classes ...int) []result.DetectResult {
	dets := make([]result.DetectResult, len(classes))

	for i, c := range classes {
		dets[i] = result.DetectResult{Class: c, ID: int64(i + 1)}
	}

	return dets
}

func classesOf(dets []result.DetectResult) []int {
	out := make([]int, len(dets))

	for i, d := range dets {
		out[i] = d.Class
	}

	return out
}

func TestClassFilterVehicles(t *testing.T) {
	f, err := ClassFilterFromPreset("Vehicles")
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, f.IDs())
	assert.Equal(t, []string{"bicycle", "car", "motorcycle", "airplane", "bus",
		"train", "truck", "boat"}, f.Names(COCOClasses))

	in := classDets(7, 0, 2, 62, 2, 5)
	out := f.Apply(in)

	assert.Equal(t, []int{7, 2, 2, 5}, classesOf(out))
	assert.Equal(t, int64(1), out[0].ID, "order preserved")

	// idempotent
	assert.Equal(t, out, f.Apply(out))
}

func TestClassFilterAll(t *testing.T) {
	f, err := ClassFilterFromPreset(PresetAll)
	require.NoError(t, err)

	assert.True(t, f.Allowed(0))
	assert.True(t, f.Allowed(79))
	assert.False(t, f.Allowed(12))
	assert.False(t, f.Allowed(45))
}

func TestClassFilterFromNames(t *testing.T) {
	f, err := ClassFilterFromNames([]string{"Car", " truck"}, COCOClasses)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 7}, f.IDs())

	f, err = ClassFilterFromNames([]string{"vehicles"}, COCOClasses)
	require.NoError(t, err)
	assert.Len(t, f.IDs(), 8)

	_, err = ClassFilterFromNames([]string{"spaceship"}, COCOClasses)
	assert.Error(t, err)

	_, err = ClassFilterFromPreset("boats")
	assert.Error(t, err)
}

func TestNilClassFilterAllowsAll(t *testing.T) {
	var f *ClassFilter
	in := classDets(0, 50)
	assert.Equal(t, in, f.Apply(in))
}

func TestLoadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("car\n\n truck \nbus\n"), 0o644))

	labels, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"car", "truck", "bus"}, labels)

	_, err = LoadLabels(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("# names\n0: car\n1: 'fire truck'\n"), 0o644))
	labels, err = LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"car", "fire truck"}, labels)

	require.NoError(t, os.WriteFile(path, []byte("0: car\n2: bus\n"), 0o644))
	_, err = LoadLabels(path)
	assert.ErrorContains(t, err, "expected class id 1")

	require.NoError(t, os.WriteFile(path, []byte("\n# empty\n"), 0o644))
	_, err = LoadLabels(path)
	assert.Error(t, err)
}

func TestPool(t *testing.T) {
	var opened []*fakeDetector

	p, err := NewPool(3, func(i int) (Detector, error) {
		d := &fakeDetector{}
		opened = append(opened, d)
		return d, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, p.Size())

	d := p.Get()
	require.NotNil(t, d)
	p.Return(d)

	p.Close()
	p.Close()

	for _, d := range opened {
		assert.True(t, d.closed)
	}

	assert.Nil(t, p.Get())
}

func TestPoolOpenError(t *testing.T) {
	var opened []*fakeDetector

	_, err := NewPool(3, func(i int) (Detector, error) {
		if i == 2 {
			return nil, errors.New("no model")
		}
		d := &fakeDetector{}
		opened = append(opened, d)
		return d, nil
	})

	assert.EqualError(t, err, "no model")
	require.Len(t, opened, 2)
	assert.True(t, opened[0].closed)
	assert.True(t, opened[1].closed)
}
