package metrics_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalnine/stabilizer/internal/metrics"
	"github.com/signalnine/stabilizer/internal/report"
	"github.com/signalnine/stabilizer/internal/stability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(name string, k int, elapsed float64) stability.Sample {
	s := stability.Sample{Benchmark: name}
	for i := 0; i < 60; i++ {
		tr := stability.Trial{Benchmark: name}
		if i < k {
			tr.Status = stability.StatusSuccess
			tr.Elapsed = elapsed
			tr.Timed = true
		}
		s.Trials = append(s.Trials, tr)
	}
	return s
}

func summary(t *testing.T) *report.Summary {
	t.Helper()
	short := sample("short", 60, 1)
	short.Trials = short.Trials[:10]
	sum, err := report.Classify([]stability.Sample{
		sample("solid", 60, 2),
		sample("flaky", 30, 5),
		sample("never", 0, 0),
		short,
	}, stability.DefaultParams(), 2)
	require.NoError(t, err)
	return sum
}

func TestObserve(t *testing.T) {
	m := metrics.New()
	m.Observe(summary(t))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Benchmarks.WithLabelValues("stable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Benchmarks.WithLabelValues("unstable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Benchmarks.WithLabelValues("unsolvable")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Benchmarks.WithLabelValues("inconclusive")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failed))
	assert.Equal(t, 60.0, testutil.ToFloat64(m.SampleSize))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.SuccessRate.WithLabelValues("flaky", "unstable")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.MeanSuccessSeconds.WithLabelValues("flaky")))

	// never has no timed success and short was not classified
	assert.Equal(t, 2, testutil.CollectAndCount(m.MeanSuccessSeconds))
	assert.Equal(t, 3, testutil.CollectAndCount(m.SuccessRate))
}

func TestObserveReplacesPreviousRun(t *testing.T) {
	m := metrics.New()
	m.Observe(summary(t))

	sum, err := report.Classify([]stability.Sample{sample("other", 60, 1)}, stability.DefaultParams(), 1)
	require.NoError(t, err)
	m.Observe(sum)

	assert.Equal(t, 1, testutil.CollectAndCount(m.SuccessRate))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Failed))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Benchmarks.WithLabelValues("unsolvable")))
}

func TestExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textfile", "stabilizer.prom")
	require.NoError(t, metrics.Export(path, summary(t)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `stabilizer_benchmarks{label="unstable"} 1`)
	assert.Contains(t, text, `stabilizer_success_rate{benchmark="solid",label="stable"} 1`)
	assert.Contains(t, text, "stabilizer_failed_benchmarks 1")
	assert.True(t, strings.Contains(text, "# HELP stabilizer_sample_size"))
}
