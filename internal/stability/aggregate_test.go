package stability_test

import (
	"math"
	"testing"

	"github.com/signalnine/stabilizer/internal/stability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trial(status stability.Status, elapsed float64) stability.Trial {
	return stability.Trial{Benchmark: "b1", Status: status, Elapsed: elapsed, Timed: true}
}

func TestAggregate(t *testing.T) {
	s := stability.Sample{Benchmark: "b1", Trials: []stability.Trial{
		trial(stability.StatusSuccess, 2),
		trial(stability.StatusSuccess, 4),
		trial(stability.StatusFailure, 60),
		trial(stability.StatusError, 0),
	}}
	st, err := stability.Aggregate(s, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Successes)
	assert.Equal(t, 1, st.Errors)
	assert.Equal(t, 0.5, st.SuccessRate)
	assert.Equal(t, 3.0, st.MeanTime)
	assert.True(t, st.HasSuccess)
}

func TestAggregateExcludesUnusableTimes(t *testing.T) {
	s := stability.Sample{Benchmark: "b1", Trials: []stability.Trial{
		trial(stability.StatusSuccess, 10),
		{Benchmark: "b1", Status: stability.StatusSuccess},
		trial(stability.StatusSuccess, math.NaN()),
		trial(stability.StatusSuccess, -1),
		trial(stability.StatusSuccess, math.Inf(1)),
	}}
	st, err := stability.Aggregate(s, 5)
	require.NoError(t, err)
	assert.Equal(t, 1.0, st.SuccessRate)
	assert.Equal(t, 1, st.Timed)
	assert.Equal(t, 10.0, st.MeanTime)
}

func TestAggregateZeroSuccess(t *testing.T) {
	s := stability.Sample{Benchmark: "b1", Trials: []stability.Trial{
		trial(stability.StatusFailure, 1),
		trial(stability.StatusError, 2),
	}}
	st, err := stability.Aggregate(s, 2)
	require.NoError(t, err)
	assert.False(t, st.HasSuccess)
	assert.Equal(t, 0.0, st.SuccessRate)
	assert.True(t, math.IsNaN(st.MeanTime))
}

func TestAggregateOrderIndependent(t *testing.T) {
	trials := []stability.Trial{
		trial(stability.StatusSuccess, 1),
		trial(stability.StatusFailure, 7),
		trial(stability.StatusSuccess, 5),
		trial(stability.StatusSuccess, 3),
	}
	reversed := make([]stability.Trial, len(trials))
	for i, tr := range trials {
		reversed[len(trials)-1-i] = tr
	}
	a, err := stability.Aggregate(stability.Sample{Benchmark: "b1", Trials: trials}, 4)
	require.NoError(t, err)
	b, err := stability.Aggregate(stability.Sample{Benchmark: "b1", Trials: reversed}, 4)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAggregatePreconditions(t *testing.T) {
	s := stability.Sample{Benchmark: "b1", Trials: []stability.Trial{
		trial(stability.StatusSuccess, 1),
		trial(stability.StatusSuccess, 1),
	}}

	_, err := stability.Aggregate(s, 3)
	assert.ErrorIs(t, err, stability.ErrSampleMismatch)

	_, err = stability.Aggregate(s, 0)
	assert.ErrorIs(t, err, stability.ErrInvalidSampleSize)

	s.Trials[1].Benchmark = "b2"
	_, err = stability.Aggregate(s, 2)
	assert.ErrorIs(t, err, stability.ErrMixedBenchmarks)
}
