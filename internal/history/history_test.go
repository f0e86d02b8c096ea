package history_test

import (
	"path/filepath"
	"testing"

	"github.com/signalnine/stabilizer/internal/history"
	"github.com/signalnine/stabilizer/internal/report"
	"github.com/signalnine/stabilizer/internal/stability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	s, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func summary(labels map[string]stability.Label) *report.Summary {
	sum := &report.Summary{Params: stability.DefaultParams()}
	for name, l := range labels {
		sum.Outcomes = append(sum.Outcomes, report.Outcome{
			Benchmark: name,
			Stats:     stability.Statistics{N: 60, SuccessRate: 0.5, MeanTime: 3, Timed: 30},
			Verdict:   stability.Verdict{Label: l},
		})
	}
	return sum
}

func TestRecordAndRuns(t *testing.T) {
	s := openStore(t)

	first, err := s.Record("runs/a", summary(map[string]stability.Label{
		"x": stability.Stable,
		"y": stability.Unstable,
	}))
	require.NoError(t, err)
	second, err := s.Record("runs/b", summary(map[string]stability.Label{
		"x": stability.Unstable,
		"y": stability.Unstable,
	}))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	runs, err := s.Runs(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, "runs/b", runs[0].Source)
	assert.Equal(t, 2, runs[0].Counts[stability.Unstable])
	assert.Equal(t, 0, runs[0].Counts[stability.Stable])
	assert.Equal(t, 1, runs[1].Counts[stability.Stable])

	runs, err = s.Runs(1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	for _, limit := range []int{0, -5} {
		runs, err = s.Runs(limit)
		require.NoError(t, err)
		assert.Len(t, runs, 2, "limit %d", limit)
	}
}

func TestRecordSkipsFailed(t *testing.T) {
	s := openStore(t)
	sum := summary(map[string]stability.Label{"ok": stability.Stable})
	sum.Outcomes = append(sum.Outcomes, report.Outcome{Benchmark: "broken", Err: stability.ErrSampleMismatch})

	_, err := s.Record("runs/a", sum)
	require.NoError(t, err)

	entries, err := s.Benchmark("broken")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBenchmarkHistory(t *testing.T) {
	s := openStore(t)
	for _, l := range []stability.Label{stability.Stable, stability.Unstable, stability.Unstable, stability.Stable} {
		_, err := s.Record("runs", summary(map[string]stability.Label{"x": l}))
		require.NoError(t, err)
	}

	entries, err := s.Benchmark("x")
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, stability.Stable, entries[0].Label)
	assert.Equal(t, stability.Stable, entries[3].Label)
	assert.Equal(t, 2, history.Flips(entries))
}
