package report_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/signalnine/stabilizer/internal/report"
	"github.com/signalnine/stabilizer/internal/stability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sample builds a 60-trial sample with k timed successes.
func sample(name string, k int, elapsed float64) stability.Sample {
	s := stability.Sample{Benchmark: name}
	for i := 0; i < 60; i++ {
		tr := stability.Trial{Benchmark: name, Status: stability.StatusFailure}
		if i < k {
			tr.Status = stability.StatusSuccess
			tr.Elapsed = elapsed
			tr.Timed = true
		}
		s.Trials = append(s.Trials, tr)
	}
	return s
}

func fixture() []stability.Sample {
	short := sample("short", 60, 1)
	short.Trials = short.Trials[:59]
	return []stability.Sample{
		sample("solid", 60, 2),
		sample("flaky-b", 48, 10),
		sample("flaky-a", 30, 5),
		sample("slow", 48, 55),
		sample("never", 0, 0),
		short,
	}
}

func TestClassify(t *testing.T) {
	sum, err := report.Classify(fixture(), stability.DefaultParams(), 3)
	require.NoError(t, err)

	assert.Equal(t, map[stability.Label]int{
		stability.Stable:       1,
		stability.Unstable:     2,
		stability.Unsolvable:   1,
		stability.Inconclusive: 1,
	}, sum.Counts)
	assert.Equal(t, []string{"flaky-a", "flaky-b"}, sum.Unstable)

	require.Len(t, sum.Failed, 1)
	assert.Equal(t, "short", sum.Failed[0].Benchmark)
	assert.ErrorIs(t, sum.Failed[0].Err, stability.ErrSampleMismatch)

	require.Len(t, sum.Outcomes, 6)
	assert.Equal(t, "solid", sum.Outcomes[0].Benchmark)
	assert.Equal(t, stability.Stable, sum.Outcomes[0].Verdict.Label)
}

func TestClassifySequentialMatchesParallel(t *testing.T) {
	a, err := report.Classify(fixture(), stability.DefaultParams(), 1)
	require.NoError(t, err)
	b, err := report.Classify(fixture(), stability.DefaultParams(), 8)
	require.NoError(t, err)
	assert.Equal(t, a.Counts, b.Counts)
	assert.Equal(t, a.Unstable, b.Unstable)
}

func TestClassifyInvalidParams(t *testing.T) {
	p := stability.DefaultParams()
	p.Alpha = 2
	_, err := report.Classify(fixture(), p, 1)
	assert.Error(t, err)
}

func TestWriteTable(t *testing.T) {
	sum, err := report.Classify(fixture(), stability.DefaultParams(), 2)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report.Write(sum, report.Options{Format: "table", Unstable: true}, &buf))
	out := buf.String()
	for _, want := range []string{"stable", "unstable", "unsolvable", "inconclusive", "failed", "flaky-a"} {
		assert.Contains(t, out, want)
	}
}

func TestWriteMarkdown(t *testing.T) {
	sum, err := report.Classify(fixture(), stability.DefaultParams(), 2)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report.Write(sum, report.Options{Format: "markdown"}, &buf))
	assert.True(t, strings.HasPrefix(buf.String(), "| Label | Count |"))
	assert.Contains(t, buf.String(), "| unstable | 2 |")
	assert.NotContains(t, buf.String(), "flaky-a")
}

func TestWriteJSON(t *testing.T) {
	sum, err := report.Classify(fixture(), stability.DefaultParams(), 2)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report.Write(sum, report.Options{Format: "json", Unstable: true, Details: true}, &buf))

	var got struct {
		Counts     map[string]int `json:"counts"`
		Failed     int            `json:"failed"`
		Unstable   []string       `json:"unstable"`
		Benchmarks []struct {
			Benchmark string   `json:"benchmark"`
			MeanTime  *float64 `json:"mean_time"`
			Error     string   `json:"error"`
		} `json:"benchmarks"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 2, got.Counts["unstable"])
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, []string{"flaky-a", "flaky-b"}, got.Unstable)
	require.Len(t, got.Benchmarks, 6)
	assert.Nil(t, got.Benchmarks[4].MeanTime, "zero-success benchmark has no mean time")
	assert.NotEmpty(t, got.Benchmarks[5].Error)
}

func TestWriteUnknownFormat(t *testing.T) {
	sum, err := report.Classify(nil, stability.DefaultParams(), 1)
	require.NoError(t, err)
	assert.Error(t, report.Write(sum, report.Options{Format: "xml"}, &bytes.Buffer{}))
}
