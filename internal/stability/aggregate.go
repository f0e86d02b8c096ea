package stability

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrSampleMismatch  = errors.New("sample size does not match the configured trial count")
	ErrMixedBenchmarks = errors.New("sample mixes trials of different benchmarks")
)

type Status int

const (
	StatusFailure Status = iota
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Trial is one run's outcome for one benchmark. Elapsed is only meaningful
// when Timed is set.
type Trial struct {
	Benchmark string
	Status    Status
	Elapsed   float64
	Timed     bool
}

// Sample collects the trials of a single benchmark, one per run.
type Sample struct {
	Benchmark string
	Trials    []Trial
}

// Statistics is the aggregate of one sample. MeanTime is NaN when no
// successful trial carries a usable time.
type Statistics struct {
	N           int     `json:"n"`
	Successes   int     `json:"successes"`
	Errors      int     `json:"errors"`
	SuccessRate float64 `json:"success_rate"`
	MeanTime    float64 `json:"-"`
	Timed       int     `json:"timed"`
	HasSuccess  bool    `json:"has_success"`
}

// Aggregate reduces a sample of exactly n trials to its success rate and
// mean success time.
func Aggregate(s Sample, n int) (Statistics, error) {
	if n <= 0 {
		return Statistics{}, fmt.Errorf("%w: got %d", ErrInvalidSampleSize, n)
	}
	if len(s.Trials) != n {
		return Statistics{}, fmt.Errorf("%w: benchmark %q has %d trials, want %d",
			ErrSampleMismatch, s.Benchmark, len(s.Trials), n)
	}

	st := Statistics{N: n, MeanTime: math.NaN()}
	var total float64
	for _, t := range s.Trials {
		if t.Benchmark != s.Benchmark {
			return Statistics{}, fmt.Errorf("%w: %q in sample for %q", ErrMixedBenchmarks, t.Benchmark, s.Benchmark)
		}
		switch t.Status {
		case StatusSuccess:
			st.Successes++
			if usableTime(t) {
				st.Timed++
				total += t.Elapsed
			}
		case StatusError:
			st.Errors++
		}
	}

	st.SuccessRate = float64(st.Successes) / float64(n)
	st.HasSuccess = st.Successes > 0
	if st.Timed > 0 {
		st.MeanTime = total / float64(st.Timed)
	}
	return st, nil
}

func usableTime(t Trial) bool {
	return t.Timed && !math.IsNaN(t.Elapsed) && !math.IsInf(t.Elapsed, 0) && t.Elapsed >= 0
}
