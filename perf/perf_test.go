package perf

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSamplerEmpty(t *testing.T) {
	s := NewSampler(0)

	assert.Equal(t, Stats{}, s.Stats())
	assert.Equal(t, 0.0, s.FPS())
}

func TestSamplerStats(t *testing.T) {
	s := NewSampler(DefaultWindow)

	s.Add(10 * time.Millisecond)
	s.Add(20 * time.Millisecond)
	s.Add(40 * time.Millisecond)

	st := s.Stats()

	assert.Equal(t, 3, st.Samples)
	assert.Equal(t, 3, st.TotalFrames)
	assert.InDelta(t, float64(70*time.Millisecond/3), float64(st.AvgLatency), float64(time.Microsecond))
	assert.Equal(t, 10*time.Millisecond, st.MinLatency)
	assert.Equal(t, 40*time.Millisecond, st.MaxLatency)

	// mean of per sample fps, not 1/mean latency
	assert.InDelta(t, (100.0+50.0+25.0)/3, st.AvgFPS, 1e-9)
	assert.InDelta(t, 25.0, st.MinFPS, 1e-9)
	assert.InDelta(t, 100.0, st.MaxFPS, 1e-9)
}

func TestSamplerZeroLatency(t *testing.T) {
	s := NewSampler(5)
	s.Add(0)

	st := s.Stats()
	assert.Equal(t, 0.0, st.AvgFPS)
	assert.Equal(t, 1, st.TotalFrames)
}

func TestSamplerWindowEviction(t *testing.T) {
	s := NewSampler(3)

	for i := 1; i <= 5; i++ {
		s.Add(time.Duration(i) * time.Millisecond)
	}

	st := s.Stats()
	assert.Equal(t, 3, st.Samples)
	assert.Equal(t, 5, st.TotalFrames)
	assert.Equal(t, 3*time.Millisecond, st.MinLatency)
	assert.Equal(t, 5*time.Millisecond, st.MaxLatency)

	s.Reset()
	assert.Equal(t, Stats{}, s.Stats())
}

func TestCheck(t *testing.T) {
	r := Check(Stats{AvgFPS: 60, AvgLatency: 15 * time.Millisecond}, DefaultTargets())
	assert.True(t, r.Ok())

	r = Check(Stats{AvgFPS: 40, AvgLatency: 25 * time.Millisecond}, DefaultTargets())
	assert.False(t, r.MeetsFPS)
	assert.False(t, r.MeetsLatency)
	assert.False(t, r.Ok())
}

func TestMonitorMetrics(t *testing.T) {
	m, err := NewMonitor(NewSampler(10), DefaultTargets(), zap.NewNop())
	require.NoError(t, err)

	m.Observe(10*time.Millisecond, 3, false)
	m.Observe(10*time.Millisecond, 2, true)
	m.Sample()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.frames))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.detections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors))
	assert.InDelta(t, 100.0, testutil.ToFloat64(m.fps), 1e-6)
	assert.Greater(t, testutil.ToFloat64(m.memUsage), 0.0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "vtrack_frames_total 2")
	assert.Contains(t, rec.Body.String(), "vtrack_inference_seconds_bucket")

	r := m.Report()
	assert.True(t, r.Ok())
	assert.Greater(t, r.MemoryMB, 0.0)
}
