package tracker

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Measurement is a bounding box in xyah (center x, center y, aspect ratio,
// height) form
type Measurement [4]float64

// KalmanState is the 8 dimensional state x,y,a,h,vx,vy,va,vh of a track and
// its covariance
type KalmanState struct {
	Mean *mat.VecDense
	Cov  *mat.SymDense
}

// KalmanFilter is a constant velocity Kalman filter over the xyah box space
type KalmanFilter struct {
	stdWeightPosition float64
	stdWeightVelocity float64
	// motion is the 8x8 transition matrix
	motion *mat.Dense
	// update is the 4x8 observation matrix
	update *mat.Dense
}

// NewKalmanFilter returns a filter with the given position and velocity
// noise weights, ByteTrack uses 1/20 and 1/160
func NewKalmanFilter(stdWeightPosition, stdWeightVelocity float64) *KalmanFilter {

	const ndim = 4

	motion := mat.NewDense(2*ndim, 2*ndim, nil)

	for i := 0; i < 2*ndim; i++ {
		motion.Set(i, i, 1)
	}

	for i := 0; i < ndim; i++ {
		motion.Set(i, ndim+i, 1)
	}

	update := mat.NewDense(ndim, 2*ndim, nil)

	for i := 0; i < ndim; i++ {
		update.Set(i, i, 1)
	}

	return &KalmanFilter{
		stdWeightPosition: stdWeightPosition,
		stdWeightVelocity: stdWeightVelocity,
		motion:            motion,
		update:            update,
	}
}

// Initiate creates a track state from an unassociated measurement, velocities
// start at zero
func (kf *KalmanFilter) Initiate(m Measurement) *KalmanState {

	mean := mat.NewVecDense(8, []float64{m[0], m[1], m[2], m[3], 0, 0, 0, 0})

	h := m[3]
	std := []float64{
		2 * kf.stdWeightPosition * h,
		2 * kf.stdWeightPosition * h,
		1e-2,
		2 * kf.stdWeightPosition * h,
		10 * kf.stdWeightVelocity * h,
		10 * kf.stdWeightVelocity * h,
		1e-5,
		10 * kf.stdWeightVelocity * h,
	}

	return &KalmanState{
		Mean: mean,
		Cov:  diagSym(std),
	}
}

// Predict runs the prediction step, advancing the state by one frame
func (kf *KalmanFilter) Predict(s *KalmanState) {

	h := s.Mean.AtVec(3)
	noise := diagSym([]float64{
		kf.stdWeightPosition * h,
		kf.stdWeightPosition * h,
		1e-2,
		kf.stdWeightPosition * h,
		kf.stdWeightVelocity * h,
		kf.stdWeightVelocity * h,
		1e-5,
		kf.stdWeightVelocity * h,
	})

	var mean mat.VecDense
	mean.MulVec(kf.motion, s.Mean)
	s.Mean = &mean

	// F * P * F^T + Q
	var fp, fpf mat.Dense
	fp.Mul(kf.motion, s.Cov)
	fpf.Mul(&fp, kf.motion.T())

	cov := mat.NewSymDense(8, nil)

	for i := 0; i < 8; i++ {
		for j := i; j < 8; j++ {
			cov.SetSym(i, j, fpf.At(i, j)+noise.At(i, j))
		}
	}

	s.Cov = cov
}

// project maps the state distribution into measurement space
func (kf *KalmanFilter) project(s *KalmanState) (*mat.VecDense, *mat.SymDense) {

	h := s.Mean.AtVec(3)
	std := []float64{
		kf.stdWeightPosition * h,
		kf.stdWeightPosition * h,
		1e-1,
		kf.stdWeightPosition * h,
	}

	var mean mat.VecDense
	mean.MulVec(kf.update, s.Mean)

	var hp, hph mat.Dense
	hp.Mul(kf.update, s.Cov)
	hph.Mul(&hp, kf.update.T())

	cov := mat.NewSymDense(4, nil)

	for i := 0; i < 4; i++ {
		for j := i; j < 4; j++ {
			v := hph.At(i, j)
			if i == j {
				v += std[i] * std[i]
			}
			cov.SetSym(i, j, v)
		}
	}

	return &mean, cov
}

// Update runs the correction step with an associated measurement
func (kf *KalmanFilter) Update(s *KalmanState, m Measurement) error {

	projMean, projCov := kf.project(s)

	var chol mat.Cholesky

	if ok := chol.Factorize(projCov); !ok {
		return errors.New("failed to factorize projected covariance")
	}

	// solve S * K^T = H * P^T for the kalman gain K
	var pht mat.Dense
	pht.Mul(s.Cov, kf.update.T())

	var gainT mat.Dense

	if err := chol.SolveTo(&gainT, pht.T()); err != nil {
		return fmt.Errorf("failed to compute kalman gain: %w", err)
	}

	innovation := mat.NewVecDense(4, []float64{
		m[0] - projMean.AtVec(0),
		m[1] - projMean.AtVec(1),
		m[2] - projMean.AtVec(2),
		m[3] - projMean.AtVec(3),
	})

	var correction mat.VecDense
	correction.MulVec(gainT.T(), innovation)

	var mean mat.VecDense
	mean.AddVec(s.Mean, &correction)
	s.Mean = &mean

	// P - K * S * K^T
	var ks, ksk mat.Dense
	ks.Mul(gainT.T(), projCov)
	ksk.Mul(&ks, &gainT)

	cov := mat.NewSymDense(8, nil)

	for i := 0; i < 8; i++ {
		for j := i; j < 8; j++ {
			cov.SetSym(i, j, s.Cov.At(i, j)-ksk.At(i, j))
		}
	}

	s.Cov = cov

	return nil
}

// diagSym builds a diagonal covariance from standard deviations
func diagSym(std []float64) *mat.SymDense {
	cov := mat.NewSymDense(len(std), nil)

	for i, v := range std {
		cov.SetSym(i, i, v*v)
	}

	return cov
}
