// Package perf measures pipeline throughput and process resource usage
package perf

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultWindow is the number of most recent samples statistics cover
const DefaultWindow = 30

// Stats is a snapshot of the sampler window
type Stats struct {
	AvgLatency  time.Duration `json:"avg_latency"`
	MinLatency  time.Duration `json:"min_latency"`
	MaxLatency  time.Duration `json:"max_latency"`
	AvgFPS      float64       `json:"avg_fps"`
	MinFPS      float64       `json:"min_fps"`
	MaxFPS      float64       `json:"max_fps"`
	Samples     int           `json:"samples"`
	TotalFrames int           `json:"total_frames"`
}

// Sampler keeps a rolling window of inference latencies.  The FPS figures
// are statistics over per sample 1/latency, not frames over wall time.
type Sampler struct {
	mu        sync.Mutex
	window    int
	latencies []float64
	fps       []float64
	total     int
}

// NewSampler returns a sampler over the last window samples, window <= 0
// uses DefaultWindow
func NewSampler(window int) *Sampler {
	if window <= 0 {
		window = DefaultWindow
	}

	return &Sampler{
		window:    window,
		latencies: make([]float64, 0, window),
		fps:       make([]float64, 0, window),
	}
}

// Add records the latency of one frame
func (s *Sampler) Add(latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec := latency.Seconds()
	fps := 0.0

	if sec > 0 {
		fps = 1 / sec
	}

	if len(s.latencies) == s.window {
		s.latencies = append(s.latencies[:0], s.latencies[1:]...)
		s.fps = append(s.fps[:0], s.fps[1:]...)
	}

	s.latencies = append(s.latencies, sec)
	s.fps = append(s.fps, fps)
	s.total++
}

// FPS returns the average FPS of the window
func (s *Sampler) FPS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.fps) == 0 {
		return 0
	}

	return stat.Mean(s.fps, nil)
}

// Stats returns a snapshot of the window, all zero when empty apart from
// the running frame total
func (s *Sampler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Samples: len(s.latencies), TotalFrames: s.total}

	if len(s.latencies) == 0 {
		return st
	}

	st.AvgLatency = seconds(stat.Mean(s.latencies, nil))
	st.MinLatency = seconds(floats.Min(s.latencies))
	st.MaxLatency = seconds(floats.Max(s.latencies))
	st.AvgFPS = stat.Mean(s.fps, nil)
	st.MinFPS = floats.Min(s.fps)
	st.MaxFPS = floats.Max(s.fps)

	return st
}

// Reset clears the window and frame total
func (s *Sampler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latencies = s.latencies[:0]
	s.fps = s.fps[:0]
	s.total = 0
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
