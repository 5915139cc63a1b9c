// Package metrics exposes sampling progress as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/five82/vidsample/internal/reporter"
)

// Metrics is a Reporter that records run progress in its own registry.
type Metrics struct {
	reporter.NullReporter

	Registry *prometheus.Registry

	FramesSampled    prometheus.Counter
	Checkpoints      *prometheus.CounterVec
	RunsTotal        *prometheus.CounterVec
	Throughput       prometheus.Gauge
	WindowThroughput prometheus.Gauge
	ETASeconds       prometheus.Gauge
	Progress         prometheus.Gauge
	Stride           prometheus.Gauge
	RunDuration      prometheus.Histogram
}

// New creates the vidsample metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		FramesSampled: factory.NewCounter(prometheus.CounterOpts{
			Name: "vidsample_frames_sampled_total",
			Help: "Total number of sampled frames analysed",
		}),
		Checkpoints: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vidsample_checkpoints_total",
			Help: "Total number of persistence flushes, by kind",
		}, []string{"kind"}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vidsample_runs_total",
			Help: "Total number of sampling runs, by status",
		}, []string{"status"}),
		Throughput: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vidsample_throughput_fps",
			Help: "Analysed frames per second since the run started",
		}),
		WindowThroughput: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vidsample_window_throughput_fps",
			Help: "Analysed frames per second since the previous checkpoint",
		}),
		ETASeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vidsample_eta_seconds",
			Help: "Estimated seconds until the current video is finished",
		}),
		Progress: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vidsample_progress_percent",
			Help: "Position of the last analysed frame in the current video",
		}),
		Stride: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vidsample_stride_frames",
			Help: "Frame index step of the current run",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vidsample_run_duration_seconds",
			Help:    "Duration of completed sampling runs",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		}),
	}
}

func (m *Metrics) SamplingStarted(plan reporter.SamplingPlan) {
	m.Stride.Set(float64(plan.Stride))
	m.Progress.Set(0)
	m.ETASeconds.Set(0)
}

func (m *Metrics) FrameProgress(progress reporter.FrameProgress) {
	m.FramesSampled.Inc()
	m.Progress.Set(progress.Percent)
}

func (m *Metrics) Checkpoint(snapshot reporter.CheckpointSnapshot) {
	kind := "final"
	switch {
	case snapshot.Cancelled:
		kind = "cancelled"
	case snapshot.Partial:
		kind = "partial"
	}
	m.Checkpoints.WithLabelValues(kind).Inc()
	m.Throughput.Set(snapshot.FPS)
	if snapshot.Partial {
		m.WindowThroughput.Set(snapshot.WindowFPS)
		m.ETASeconds.Set(snapshot.ETA.Seconds())
	}
}

func (m *Metrics) RunComplete(outcome reporter.RunOutcome) {
	m.RunsTotal.WithLabelValues("success").Inc()
	m.RunDuration.Observe(outcome.Elapsed.Seconds())
	m.ETASeconds.Set(0)
	m.Progress.Set(100)
}

func (m *Metrics) Error(reporter.ReporterError) {
	m.RunsTotal.WithLabelValues("failed").Inc()
}
