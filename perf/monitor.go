package perf

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// Targets are the real time goals the pipeline is checked against
type Targets struct {
	FPS        float64       `json:"target_fps" yaml:"target_fps"`
	MaxLatency time.Duration `json:"max_latency" yaml:"max_latency"`
}

// DefaultTargets are 50 fps and 20ms per frame
func DefaultTargets() Targets {
	return Targets{FPS: 50, MaxLatency: 20 * time.Millisecond}
}

// Report is the outcome of checking a sampler against targets
type Report struct {
	Stats        Stats   `json:"stats"`
	Targets      Targets `json:"targets"`
	MeetsFPS     bool    `json:"meets_fps"`
	MeetsLatency bool    `json:"meets_latency"`
	CPUPercent   float64 `json:"cpu_percent"`
	MemoryMB     float64 `json:"memory_mb"`
}

// Ok returns true when every target is met
func (r Report) Ok() bool {
	return r.MeetsFPS && r.MeetsLatency
}

// Check compares sampler statistics with the targets
func Check(st Stats, t Targets) Report {
	return Report{
		Stats:        st,
		Targets:      t,
		MeetsFPS:     st.AvgFPS >= t.FPS,
		MeetsLatency: st.AvgLatency <= t.MaxLatency,
	}
}

// Monitor publishes pipeline and process metrics to Prometheus
type Monitor struct {
	sampler  *Sampler
	targets  Targets
	proc     *process.Process
	registry *prometheus.Registry
	log      *zap.Logger

	memUsage   prometheus.Gauge
	cpuUsage   prometheus.Gauge
	fps        prometheus.Gauge
	frames     prometheus.Counter
	detections prometheus.Counter
	errors     prometheus.Counter
	inference  prometheus.Histogram

	lastCPU float64
	lastMem float64
}

// NewMonitor registers the metrics on a private registry and attaches to
// the current process
func NewMonitor(sampler *Sampler, targets Targets, log *zap.Logger) (*Monitor, error) {

	if log == nil {
		log = zap.NewNop()
	}

	proc, err := process.NewProcess(int32(os.Getpid()))

	if err != nil {
		return nil, fmt.Errorf("error attaching to process: %w", err)
	}

	m := &Monitor{
		sampler:  sampler,
		targets:  targets,
		proc:     proc,
		registry: prometheus.NewRegistry(),
		log:      log,
		memUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vtrack_memory_usage_megabytes",
			Help: "Resident memory of the process in megabytes",
		}),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vtrack_cpu_usage_percent",
			Help: "CPU usage of the process in percent",
		}),
		fps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vtrack_fps",
			Help: "Average frames per second over the sampler window",
		}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vtrack_frames_total",
			Help: "Total number of frames processed",
		}),
		detections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vtrack_detections_total",
			Help: "Total number of vehicles reported",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vtrack_frame_errors_total",
			Help: "Total number of frames that failed detection or tracking",
		}),
		inference: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vtrack_inference_seconds",
			Help:    "Detector inference latency",
			Buckets: prometheus.ExponentialBuckets(0.002, 2, 10),
		}),
	}

	m.registry.MustRegister(m.memUsage, m.cpuUsage, m.fps, m.frames,
		m.detections, m.errors, m.inference)

	return m, nil
}

// Observe records one processed frame
func (m *Monitor) Observe(inference time.Duration, detections int, failed bool) {
	m.sampler.Add(inference)
	m.frames.Inc()
	m.detections.Add(float64(detections))
	m.inference.Observe(inference.Seconds())
	m.fps.Set(m.sampler.FPS())

	if failed {
		m.errors.Inc()
	}
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the registry metrics are published on
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Sample reads process CPU and memory usage and updates the gauges
func (m *Monitor) Sample() {

	if mem, err := m.proc.MemoryInfo(); err == nil {
		m.lastMem = float64(mem.RSS) / 1024 / 1024
		m.memUsage.Set(m.lastMem)
	} else {
		m.log.Debug("error reading process memory", zap.Error(err))
	}

	if cpu, err := m.proc.CPUPercent(); err == nil {
		m.lastCPU = math.Round(cpu*100) / 100
		m.cpuUsage.Set(m.lastCPU)
	} else {
		m.log.Debug("error reading process cpu", zap.Error(err))
	}
}

// Run samples the process on every interval until the context is done
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample()
		}
	}
}

// Report checks the current sampler window against the targets
func (m *Monitor) Report() Report {
	r := Check(m.sampler.Stats(), m.targets)
	r.CPUPercent = m.lastCPU
	r.MemoryMB = m.lastMem
	return r
}

// Sampler returns the sampler the monitor feeds
func (m *Monitor) Sampler() *Sampler {
	return m.sampler
}
