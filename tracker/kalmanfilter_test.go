package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// matricesEqual compare matrices
func matricesEqual(a, b mat.Matrix, epsilon float64) bool {
	r1, c1 := a.Dims()
	r2, c2 := b.Dims()

	if r1 != r2 || c1 != c2 {
		return false
	}

	for i := 0; i < r1; i++ {
		for j := 0; j < c1; j++ {
			if diff := a.At(i, j) - b.At(i, j); diff > epsilon || diff < -epsilon {
				return false
			}
		}
	}

	return true
}

// TestKalmanFilter checks initiate, predict and update against values from
// the reference ByteTrack C++ implementation
func TestKalmanFilter(t *testing.T) {
	kf := NewKalmanFilter(1.0/20, 1.0/160)

	s := kf.Initiate(Measurement{100.0, 200.0, 1.0, 50.0})

	assert.True(t, matricesEqual(s.Mean,
		mat.NewVecDense(8, []float64{100, 200, 1, 50, 0, 0, 0, 0}), 1e-4))

	expectedInit := mat.NewDense(8, 8, []float64{
		25.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0,
		0.0, 25.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0,
		0.0, 0.0, 1e-4, 0.0, 0.0, 0.0, 0.0, 0.0,
		0.0, 0.0, 0.0, 25.0, 0.0, 0.0, 0.0, 0.0,
		0.0, 0.0, 0.0, 0.0, 9.765625, 0.0, 0.0, 0.0,
		0.0, 0.0, 0.0, 0.0, 0.0, 9.765625, 0.0, 0.0,
		0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 1e-10, 0.0,
		0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 9.765625,
	})

	assert.True(t, matricesEqual(s.Cov, expectedInit, 1e-4), "initiate covariance\n%v",
		mat.Formatted(s.Cov, mat.Prefix(""), mat.Excerpt(0)))

	kf.Predict(s)

	assert.True(t, matricesEqual(s.Mean,
		mat.NewVecDense(8, []float64{100, 200, 1, 50, 0, 0, 0, 0}), 1e-4))

	expectedPredict := mat.NewDense(8, 8, []float64{
		41.015625, 0.0, 0.0, 0.0, 9.765625, 0.0, 0.0, 0.0,
		0.0, 41.015625, 0.0, 0.0, 0.0, 9.765625, 0.0, 0.0,
		0.0, 0.0, 0.0002, 0.0, 0.0, 0.0, 1e-10, 0.0,
		0.0, 0.0, 0.0, 41.015625, 0.0, 0.0, 0.0, 9.765625,
		9.765625, 0.0, 0.0, 0.0, 9.86328125, 0.0, 0.0, 0.0,
		0.0, 9.765625, 0.0, 0.0, 0.0, 9.86328125, 0.0, 0.0,
		0.0, 0.0, 1e-10, 0.0, 0.0, 0.0, 2e-10, 0.0,
		0.0, 0.0, 0.0, 9.765625, 0.0, 0.0, 0.0, 9.86328125,
	})

	assert.True(t, matricesEqual(s.Cov, expectedPredict, 1e-4), "predict covariance\n%v",
		mat.Formatted(s.Cov, mat.Prefix(""), mat.Excerpt(0)))

	err := kf.Update(s, Measurement{105.0, 205.0, 1.1, 55.0})
	require.NoError(t, err)

	expectedMean := mat.NewVecDense(8, []float64{
		104.338844, 204.338837, 1.001961, 54.338844, 1.033058, 1.033058, 0.0, 1.033058,
	})

	assert.True(t, matricesEqual(s.Mean, expectedMean, 1e-4), "update mean %v",
		mat.Formatted(s.Mean.T()))

	expectedUpdate := mat.NewDense(8, 8, []float64{
		5.423553719008268, 0.0, 0.0, 0.0, 1.2913223140495873, 0.0, 0.0, 0.0,
		0.0, 5.423553719008268, 0.0, 0.0, 0.0, 1.2913223140495873, 0.0, 0.0,
		0.0, 0.0, 0.00019607852290531608, 0.0, 0.0, 0.0, 9.803920941585902e-11, 0.0,
		0.0, 0.0, 0.0, 5.423553719008268, 0.0, 0.0, 0.0, 1.2913223140495873,
		1.291322314049589, 0.0, 0.0, 0.0, 7.845590134297521, 0.0, 0.0, 0.0,
		0.0, 1.291322314049589, 0.0, 0.0, 0.0, 7.845590134297521, 0.0, 0.0,
		0.0, 0.0, 9.803920941585902e-11, 0.0, 0.0, 0.0, 1.9999998781210662e-10, 0.0,
		0.0, 0.0, 0.0, 1.291322314049589, 0.0, 0.0, 0.0, 7.845590134297521,
	})

	assert.True(t, matricesEqual(s.Cov, expectedUpdate, 1e-4), "update covariance\n%v",
		mat.Formatted(s.Cov, mat.Prefix(""), mat.Excerpt(0)))
}
