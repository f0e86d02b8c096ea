package result

import (
	"math"
	"time"

	"github.com/signalnine/stabilizer/internal/config"
	"github.com/signalnine/stabilizer/internal/stability"
)

// Record is one row of a run file. Status is kept raw; Schema maps it.
type Record struct {
	Benchmark string
	Status    string
	Elapsed   float64
	Timed     bool
}

// RunMeta describes a sampling run directory.
type RunMeta struct {
	Image      string    `json:"image"`
	Command    []string  `json:"command"`
	Runs       int       `json:"runs"`
	Benchmarks int       `json:"benchmarks"`
	TimeLimit  float64   `json:"time_limit"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Failures   int       `json:"failures"`
	// Set when benchmarks were checked out from a repository.
	BenchmarkRepo   string `json:"benchmark_repo,omitempty"`
	BenchmarkCommit string `json:"benchmark_commit,omitempty"`
}

// Schema maps run-file columns and raw statuses onto trials.
type Schema struct {
	IDColumn     string
	StatusColumn string
	TimeColumn   string
	success      map[string]bool
	errors       map[string]bool
}

func NewSchema(r config.Records) *Schema {
	s := &Schema{
		IDColumn:     r.IDColumn,
		StatusColumn: r.StatusColumn,
		TimeColumn:   r.TimeColumn,
		success:      make(map[string]bool, len(r.SuccessStatuses)),
		errors:       make(map[string]bool, len(r.ErrorStatuses)),
	}
	for _, st := range r.SuccessStatuses {
		s.success[st] = true
	}
	for _, st := range r.ErrorStatuses {
		s.errors[st] = true
	}
	return s
}

func (s *Schema) StatusOf(raw string) stability.Status {
	switch {
	case s.success[raw]:
		return stability.StatusSuccess
	case s.errors[raw]:
		return stability.StatusError
	default:
		return stability.StatusFailure
	}
}

func (s *Schema) Trial(r Record) stability.Trial {
	return stability.Trial{
		Benchmark: r.Benchmark,
		Status:    s.StatusOf(r.Status),
		Elapsed:   r.Elapsed,
		Timed:     r.Timed && !math.IsNaN(r.Elapsed) && r.Elapsed >= 0,
	}
}
