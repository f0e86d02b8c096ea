package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/signalnine/stabilizer/internal/report"
	"github.com/signalnine/stabilizer/internal/stability"
)

const namespace = "stabilizer"

// Classification holds the gauges describing one classification run. Each
// value lives on its own registry so a run's textfile never mixes in the
// process's default collectors.
type Classification struct {
	registry *prometheus.Registry

	// Labels: label (stable, unstable, unsolvable, inconclusive)
	Benchmarks *prometheus.GaugeVec
	Failed     prometheus.Gauge
	SampleSize prometheus.Gauge
	// Labels: benchmark, label
	SuccessRate *prometheus.GaugeVec
	// Labels: benchmark. Only set for benchmarks with a timed success.
	MeanSuccessSeconds *prometheus.GaugeVec
	LastRun            prometheus.Gauge
}

func New() *Classification {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Classification{
		registry: reg,
		Benchmarks: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "benchmarks",
			Help:      "Benchmarks per stability label in the last classification.",
		}, []string{"label"}),
		Failed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "failed_benchmarks",
			Help:      "Benchmarks that could not be classified.",
		}),
		SampleSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sample_size",
			Help:      "Runs per benchmark the classification used.",
		}),
		SuccessRate: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "success_rate",
			Help:      "Observed success rate of each classified benchmark.",
		}, []string{"benchmark", "label"}),
		MeanSuccessSeconds: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mean_success_seconds",
			Help:      "Mean time of the successful trials of each benchmark.",
		}, []string{"benchmark"}),
		LastRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the classification was exported.",
		}),
	}
}

// Observe replaces the gauge values with those of sum.
func (c *Classification) Observe(sum *report.Summary) {
	c.Benchmarks.Reset()
	c.SuccessRate.Reset()
	c.MeanSuccessSeconds.Reset()

	for _, l := range stability.Labels {
		c.Benchmarks.WithLabelValues(string(l)).Set(float64(sum.Counts[l]))
	}
	c.Failed.Set(float64(len(sum.Failed)))
	c.SampleSize.Set(float64(sum.Params.SampleSize))
	for _, o := range sum.Outcomes {
		if o.Err != nil {
			continue
		}
		c.SuccessRate.WithLabelValues(o.Benchmark, string(o.Verdict.Label)).Set(o.Stats.SuccessRate)
		if o.Stats.Timed > 0 {
			c.MeanSuccessSeconds.WithLabelValues(o.Benchmark).Set(o.Stats.MeanTime)
		}
	}
	c.LastRun.SetToCurrentTime()
}

// WriteTextfile writes the gauges to path in the Prometheus text format,
// as read by node_exporter's textfile collector.
func (c *Classification) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("writing metrics %s: %w", path, err)
	}
	return nil
}

// Export observes sum and writes it to path.
func Export(path string, sum *report.Summary) error {
	c := New()
	c.Observe(sum)
	return c.WriteTextfile(path)
}
