package bench

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/roadeye/vtrack/perf"
)

// LatencyStats are in milliseconds
type LatencyStats struct {
	Mean   float64 `json:"mean_ms"`
	Min    float64 `json:"min_ms"`
	Max    float64 `json:"max_ms"`
	StdDev float64 `json:"stddev_ms"`
	P50    float64 `json:"p50_ms"`
	P90    float64 `json:"p90_ms"`
	P95    float64 `json:"p95_ms"`
	P99    float64 `json:"p99_ms"`
}

// FPSStats are over per frame 1/latency
type FPSStats struct {
	Avg float64 `json:"avg"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// SystemStats are process resource figures sampled during the run
type SystemStats struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   float64 `json:"memory_mb"`
	MaxCPU     float64 `json:"max_cpu_percent"`
	MaxMemory  float64 `json:"max_memory_mb"`
}

// TargetCheck records whether the run met the real time targets
type TargetCheck struct {
	TargetFPS    float64 `json:"target_fps"`
	MaxLatencyMs float64 `json:"max_latency_ms"`
	MeetsFPS     bool    `json:"meets_fps"`
	MeetsLatency bool    `json:"meets_latency"`
}

// Report is the benchmark result written as JSON
type Report struct {
	Timestamp     time.Time    `json:"timestamp"`
	Source        string       `json:"source"`
	Model         string       `json:"model"`
	Resolution    string       `json:"resolution"`
	WarmupFrames  int          `json:"warmup_frames"`
	Frames        int          `json:"frames"`
	Loops         int          `json:"loops"`
	WallTime      float64      `json:"wall_time_s"`
	Latency       LatencyStats `json:"latency"`
	FPS           FPSStats     `json:"fps"`
	Detections    int          `json:"total_detections"`
	AvgDetections float64      `json:"avg_detections_per_frame"`
	System        SystemStats  `json:"system"`
	Targets       TargetCheck  `json:"targets"`
	// LatenciesMs holds every measured frame
	LatenciesMs []float64 `json:"latencies_ms"`
}

// Ok reports whether every target was met
func (r *Report) Ok() bool {
	return r.Targets.MeetsFPS && r.Targets.MeetsLatency
}

// Summarise computes latency, FPS and target statistics from per frame
// latencies in milliseconds
func Summarise(latenciesMs []float64, targets perf.Targets) (LatencyStats, FPSStats, TargetCheck, error) {

	var (
		ls LatencyStats
		fs FPSStats
		tc = TargetCheck{
			TargetFPS:    targets.FPS,
			MaxLatencyMs: float64(targets.MaxLatency) / float64(time.Millisecond),
		}
	)

	if len(latenciesMs) == 0 {
		return ls, fs, tc, fmt.Errorf("no frames measured")
	}

	data := stats.Float64Data(latenciesMs)

	var err error

	if ls.Mean, err = data.Mean(); err != nil {
		return ls, fs, tc, err
	}

	ls.Min, _ = data.Min()
	ls.Max, _ = data.Max()
	ls.StdDev, _ = data.StandardDeviation()
	ls.P50, _ = data.Percentile(50)
	ls.P90, _ = data.Percentile(90)
	ls.P95, _ = data.Percentile(95)
	ls.P99, _ = data.Percentile(99)

	fps := make(stats.Float64Data, len(latenciesMs))

	for i, ms := range latenciesMs {
		if ms > 0 {
			fps[i] = 1000 / ms
		}
	}

	fs.Avg, _ = fps.Mean()
	fs.Min, _ = fps.Min()
	fs.Max, _ = fps.Max()

	tc.MeetsFPS = fs.Avg >= targets.FPS
	tc.MeetsLatency = ls.Mean <= tc.MaxLatencyMs

	return ls, fs, tc, nil
}

// WriteJSON writes the report to path
func (r *Report) WriteJSON(path string) error {

	data, err := json.MarshalIndent(r, "", "  ")

	if err != nil {
		return fmt.Errorf("error encoding report: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing report: %w", err)
	}

	return nil
}

func passFail(ok bool) string {
	if ok {
		return "PASS"
	}

	return "FAIL"
}

// Table renders the report for the terminal
func (r *Report) Table() string {

	t := table.NewWriter()
	t.SetTitle("Benchmark: " + r.Source)
	t.AppendHeader(table.Row{"Metric", "Value"})

	t.AppendRows([]table.Row{
		{"Model", r.Model},
		{"Resolution", r.Resolution},
		{"Frames", fmt.Sprintf("%d (+%d warm-up)", r.Frames, r.WarmupFrames)},
		{"Wall time", fmt.Sprintf("%.2fs", r.WallTime)},
	})
	t.AppendSeparator()

	t.AppendRows([]table.Row{
		{"Latency mean", fmt.Sprintf("%.2fms", r.Latency.Mean)},
		{"Latency min / max", fmt.Sprintf("%.2fms / %.2fms", r.Latency.Min, r.Latency.Max)},
		{"Latency std dev", fmt.Sprintf("%.2fms", r.Latency.StdDev)},
		{"Latency p50 / p90", fmt.Sprintf("%.2fms / %.2fms", r.Latency.P50, r.Latency.P90)},
		{"Latency p95 / p99", fmt.Sprintf("%.2fms / %.2fms", r.Latency.P95, r.Latency.P99)},
	})
	t.AppendSeparator()

	t.AppendRows([]table.Row{
		{"FPS avg", fmt.Sprintf("%.1f", r.FPS.Avg)},
		{"FPS min / max", fmt.Sprintf("%.1f / %.1f", r.FPS.Min, r.FPS.Max)},
		{"Detections", fmt.Sprintf("%d (%.2f per frame)", r.Detections, r.AvgDetections)},
		{"CPU", fmt.Sprintf("%.1f%% (max %.1f%%)", r.System.CPUPercent, r.System.MaxCPU)},
		{"Memory", fmt.Sprintf("%.1fMB (max %.1fMB)", r.System.MemoryMB, r.System.MaxMemory)},
	})
	t.AppendSeparator()

	t.AppendRows([]table.Row{
		{fmt.Sprintf("Target %.0f fps", r.Targets.TargetFPS), passFail(r.Targets.MeetsFPS)},
		{fmt.Sprintf("Target %.0fms latency", r.Targets.MaxLatencyMs), passFail(r.Targets.MeetsLatency)},
	})

	return t.Render()
}

// SummaryTable renders the sampler statistics printed when a run ends
func SummaryTable(st perf.Stats) string {

	t := table.NewWriter()
	t.SetTitle("Performance Summary")
	t.AppendRows([]table.Row{
		{"Total frames", st.TotalFrames},
		{"Average FPS", fmt.Sprintf("%.1f", st.AvgFPS)},
		{"Min FPS", fmt.Sprintf("%.1f", st.MinFPS)},
		{"Max FPS", fmt.Sprintf("%.1f", st.MaxFPS)},
		{"Average inference", fmt.Sprintf("%.1fms", float64(st.AvgLatency)/float64(time.Millisecond))},
	})

	return t.Render()
}
